package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentaldesk/clinic/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newAuditContext(method, path, userID string, role auth.Role) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, role))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_PatientHistoryRead(t *testing.T) {
	rec := &mockRecorder{}
	patientID := uuid.New().String()
	c := newAuditContext(http.MethodGet, "/api/patients/"+patientID+"/history", "doc-1", auth.RoleDoctor)
	c.Set("request_id", "req-9")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.last()
	if got.PatientID != patientID {
		t.Errorf("expected patient %s, got %s", patientID, got.PatientID)
	}
	if got.Resource != "patients" || got.Action != "read" {
		t.Errorf("unexpected resource/action %s/%s", got.Resource, got.Action)
	}
	if got.UserID != "doc-1" || got.Role != "doctor" {
		t.Errorf("unexpected identity %s/%s", got.UserID, got.Role)
	}
	if got.RequestID != "req-9" || got.StatusCode != http.StatusOK {
		t.Errorf("unexpected request id/status %s/%d", got.RequestID, got.StatusCode)
	}
}

func TestAudit_PaymentCreateUsesQueryPatient(t *testing.T) {
	rec := &mockRecorder{}
	patientID := uuid.New().String()
	c := newAuditContext(http.MethodPost, "/api/payments?patient_id="+patientID, "rec-1", auth.RoleReceptionist)

	_ = Audit(zerolog.New(os.Stderr), rec)(okHandler)(c)

	got := rec.last()
	if got.Action != "create" || got.Resource != "payments" {
		t.Errorf("unexpected action/resource %s/%s", got.Action, got.Resource)
	}
	if got.PatientID != patientID {
		t.Errorf("expected patient %s, got %s", patientID, got.PatientID)
	}
}

func TestAudit_SkipsPublicAndNonAPIPaths(t *testing.T) {
	for _, path := range []string{"/health", "/api/auth/login", "/api/ws"} {
		rec := &mockRecorder{}
		c := newAuditContext(http.MethodPost, path, "", "")
		_ = Audit(zerolog.New(os.Stderr), rec)(okHandler)(c)
		if rec.count() != 0 {
			t.Errorf("%s: expected no audit entry", path)
		}
	}
}

func TestAudit_RecordsErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c := newAuditContext(http.MethodDelete, "/api/users/abc", "admin", auth.RoleAdmin)

	err := Audit(zerolog.New(os.Stderr), rec)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to pass through")
	}
	if got := rec.last(); got.StatusCode != http.StatusForbidden || got.Action != "delete" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	c := newAuditContext(http.MethodGet, "/api/appointments", "u", auth.RoleAdmin)

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
}

func TestAudit_RecorderFunc(t *testing.T) {
	var seen string
	fn := AuditRecorderFunc(func(e AuditEntry) error {
		seen = e.Resource
		return nil
	})
	c := newAuditContext(http.MethodGet, "/api/calendar", "u", auth.RoleAdmin)
	_ = Audit(zerolog.New(os.Stderr), fn)(okHandler)(c)
	if seen != "calendar" {
		t.Errorf("expected calendar, got %q", seen)
	}
}

func TestExtractResource(t *testing.T) {
	tests := map[string]string{
		"/api/patients/1/ledger": "patients",
		"/api/dashboard/stats":   "dashboard",
		"/api/":                  "unknown",
	}
	for path, want := range tests {
		if got := extractResource(path); got != want {
			t.Errorf("extractResource(%q) = %q, want %q", path, got, want)
		}
	}
}
