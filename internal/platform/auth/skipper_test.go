package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper_PublicPaths(t *testing.T) {
	publicPaths := []string{
		"/health",
		"/health/db",
		"/api/auth/login",
		"/api/auth/register",
	}

	for _, path := range publicPaths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetPath(path)

			if !AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return true for %s", path)
			}
		})
	}
}

func TestAuthSkipper_ProtectedPaths(t *testing.T) {
	protectedPaths := []string{
		"/api/patients",
		"/api/auth/me",
		"/api/auth/logout",
		"/api/dashboard/stats",
		"/",
		"/health/extra",
	}

	for _, path := range protectedPaths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetPath(path)

			if AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return false for %s", path)
			}
		})
	}
}

func TestLogout_RevokesPresentedToken(t *testing.T) {
	store := NewTokenRevocationStore(time.Hour)
	defer store.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	ctx := context.WithValue(req.Context(), TokenIDKey, "jti-logout")
	ctx = context.WithValue(ctx, TokenExpiryKey, time.Now().Add(time.Hour))
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handleLogout(store)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if revoked, _ := store.IsRevoked(context.Background(), "jti-logout", "", time.Now()); !revoked {
		t.Error("expected token to be revoked after logout")
	}
}

func TestRevokeUser_RequiresUserID(t *testing.T) {
	store := NewTokenRevocationStore(time.Hour)
	defer store.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/revoke-user", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	expectStatus(t, handleRevokeUser(store)(c), http.StatusBadRequest)
}
