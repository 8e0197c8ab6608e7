package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentaldesk/clinic/internal/platform/auth"
)

// AuditEntry records one access to clinic data.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every authenticated /api request after the handler has run,
// tagging it with the patient it concerns when the path or query names one.
// Recorders, if given, receive the entry as well.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			ctx := req.Context()
			role, _ := auth.PrimaryRole(auth.RolesFromContext(ctx))
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				UserID:     auth.UserIDFromContext(ctx),
				Role:       string(role),
				Resource:   extractResource(path),
				PatientID:  extractPatientID(c),
				Action:     httpMethodToAction(req.Method),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("data_access")

			return err
		}
	}
}

// Login and registration carry credentials, and the socket is long-lived.
func isAuditablePath(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return false
	}
	return !strings.HasPrefix(path, "/api/auth/") && path != "/api/ws"
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource returns the first segment under /api/:
//
//	/api/patients/123/history -> patients
//	/api/dashboard/stats      -> dashboard
func extractResource(path string) string {
	seg := strings.SplitN(strings.TrimPrefix(path, "/api/"), "/", 2)[0]
	if seg == "" {
		return "unknown"
	}
	return seg
}

// extractPatientID looks for /api/patients/<uuid> and then ?patient_id=.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path
	if rest := strings.TrimPrefix(path, "/api/patients/"); rest != path {
		id := strings.SplitN(rest, "/", 2)[0]
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	if id := c.QueryParam("patient_id"); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return ""
}
