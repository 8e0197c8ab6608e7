package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Role is one of the three staff roles of a clinic.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
)

// Capability names a single permission checked at the HTTP boundary.
type Capability string

const (
	CapManageUsers       Capability = "users:manage"
	CapManageCatalog     Capability = "catalog:manage"
	CapViewAllPatients   Capability = "patients:view_all"
	CapRegisterPatients  Capability = "patients:register"
	CapViewHistory       Capability = "history:view"
	CapWriteHistory      Capability = "history:write"
	CapRecordPayments    Capability = "payments:record"
	CapViewPayments      Capability = "payments:view"
	CapViewAllSchedules  Capability = "appointments:view_all"
	CapManageSchedule    Capability = "appointments:manage"
	CapViewImaging       Capability = "imaging:view"
	CapUploadImaging     Capability = "imaging:upload"
	CapViewClinicFinance Capability = "finance:view"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageUsers:       true,
		CapManageCatalog:     true,
		CapViewAllPatients:   true,
		CapRegisterPatients:  true,
		CapViewHistory:       true,
		CapWriteHistory:      true,
		CapRecordPayments:    true,
		CapViewPayments:      true,
		CapViewAllSchedules:  true,
		CapManageSchedule:    true,
		CapViewImaging:       true,
		CapUploadImaging:     true,
		CapViewClinicFinance: true,
	},
	RoleDoctor: {
		CapRegisterPatients: true,
		CapViewHistory:      true,
		CapWriteHistory:     true,
		CapViewPayments:     true,
		CapManageSchedule:   true,
		CapViewImaging:      true,
		CapUploadImaging:    true,
	},
	RoleReceptionist: {
		CapViewAllPatients:  true,
		CapRegisterPatients: true,
		CapRecordPayments:   true,
		CapViewPayments:     true,
		CapViewAllSchedules: true,
		CapManageSchedule:   true,
	},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleCapabilities[r]; !ok {
		return "", fmt.Errorf("invalid role: %s (must be admin, doctor, or receptionist)", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role grants c.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

// PrimaryRole returns the first recognised role in roles. Tokens issued by
// this server carry exactly one.
func PrimaryRole(roles []string) (Role, bool) {
	for _, s := range roles {
		if r := Role(s); r.Valid() {
			return r, true
		}
	}
	return "", false
}

// Can reports whether any of the given role names grants c.
func Can(roles []string, c Capability) bool {
	for _, s := range roles {
		if Role(s).Can(c) {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
// Admins always pass.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, has := range userRoles {
				if Role(has) == RoleAdmin {
					return next(c)
				}
				for _, required := range roles {
					if Role(has) == required {
						return next(c)
					}
				}
			}
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}

// RequireCapability rejects requests whose roles do not grant cap.
func RequireCapability(cap Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !Can(RolesFromContext(c.Request().Context()), cap) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("missing permission: %s", cap))
			}
			return next(c)
		}
	}
}
