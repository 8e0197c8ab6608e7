package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type healthBody struct {
	Status string     `json:"status"`
	Error  string     `json:"error"`
	Redis  *string    `json:"redis"`
	Pool   *PoolStats `json:"pool"`
}

func runHealth(t *testing.T, h echo.HandlerFunc) (int, healthBody) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func healthyStats() *PoolStats {
	return &PoolStats{TotalConns: 2, IdleConns: 1, AcquiredConns: 1, MaxConns: 20, Healthy: true}
}

func pingOK(context.Context) error { return nil }

func TestHealthHandler_Healthy(t *testing.T) {
	code, body := runHealth(t, healthHandler(healthyStats, pingOK, nil))
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body.Status != "healthy" || body.Error != "" {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.Pool == nil || body.Pool.MaxConns != 20 || !body.Pool.Healthy {
		t.Errorf("expected pool stats in body, got %+v", body.Pool)
	}
	if body.Redis != nil {
		t.Errorf("expected no redis field without a client, got %q", *body.Redis)
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	down := func(context.Context) error { return errors.New("connection refused") }
	code, body := runHealth(t, healthHandler(healthyStats, down, pingOK))
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body.Status != "unhealthy" || body.Error != "connection refused" {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.Pool == nil || body.Pool.Healthy {
		t.Error("expected pool marked unhealthy")
	}
	if body.Redis == nil || *body.Redis != "ok" {
		t.Errorf("expected redis ok, got %v", body.Redis)
	}
}

func TestHealthHandler_RedisDown(t *testing.T) {
	down := func(context.Context) error { return errors.New("dial tcp: i/o timeout") }
	code, body := runHealth(t, healthHandler(healthyStats, pingOK, down))
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %q", body.Status)
	}
	if body.Redis == nil || *body.Redis != "dial tcp: i/o timeout" {
		t.Errorf("expected redis error in body, got %v", body.Redis)
	}
	if body.Pool == nil || !body.Pool.Healthy {
		t.Error("expected pool to stay healthy when only redis fails")
	}
}

func TestHealthHandler_PingHasDeadline(t *testing.T) {
	var hasDeadline bool
	ping := func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}
	runHealth(t, healthHandler(healthyStats, ping, nil))
	if !hasDeadline {
		t.Error("expected the database ping to run under a timeout")
	}
}
