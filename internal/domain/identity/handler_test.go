package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentaldesk/clinic/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", want, err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d (%v)", want, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	body := `{"email":"doc@clinic.com","password":"secret123","name":"Doc","role":"doctor"}`
	if err := h.Register(e.NewContext(jsonRequest(http.MethodPost, "/api/auth/register", body), rec)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["token_type"] != "bearer" {
		t.Errorf("expected bearer token, got %v", resp["token_type"])
	}
	user := resp["user"].(map[string]interface{})
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash must not be serialized")
	}

	rec = httptest.NewRecorder()
	err := h.Login(e.NewContext(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"doc@clinic.com","password":"secret123"}`), rec))
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("login: %v (%d)", err, rec.Code)
	}

	err = h.Login(e.NewContext(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"doc@clinic.com","password":"bad"}`), httptest.NewRecorder()))
	expectHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestHandler_Register_Duplicate(t *testing.T) {
	h, e := newTestHandler()
	body := `{"email":"desk@clinic.com","password":"secret123","name":"Desk","role":"receptionist"}`
	_ = h.Register(e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder()))

	err := h.Register(e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder()))
	expectHTTPStatus(t, err, http.StatusBadRequest)
}

func TestHandler_Me(t *testing.T) {
	h, e := newTestHandler()
	u := mustCreate(t, h.svc, "me@clinic.com", auth.RoleDoctor)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), u.ID.String(), auth.RoleDoctor))
	rec := httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got User
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != u.ID {
		t.Errorf("expected %s, got %s", u.ID, got.ID)
	}

	err := h.Me(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), httptest.NewRecorder()))
	expectHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestHandler_DeleteUser_Self(t *testing.T) {
	h, e := newTestHandler()
	admin := mustCreate(t, h.svc, "admin@clinic.com", auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), admin.ID.String(), auth.RoleAdmin))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(admin.ID.String())

	expectHTTPStatus(t, h.DeleteUser(c), http.StatusBadRequest)
}

func TestHandler_UpdateUser_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"name":"x"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	expectHTTPStatus(t, h.UpdateUser(c), http.StatusNotFound)
}

func TestHandler_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	expectHTTPStatus(t, h.GetUser(c), http.StatusBadRequest)
}

func TestHandler_UsersRoutesRequireAdmin(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), uuid.New().String(), auth.RoleReceptionist))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for receptionist, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), uuid.New().String(), auth.RoleAdmin))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestHandler_ListDoctors_EmptyArray(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	if err := h.ListDoctors(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", rec.Body.String())
	}
}
