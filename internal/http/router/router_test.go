package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "github.com/KauaneAlmeida/back-end-teste/internal/http"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"github.com/gin-gonic/gin"
)

type testConfig struct{}

func (testConfig) GetHTTPAddr() string          { return ":0" }
func (testConfig) GetCORSAllowAll() bool        { return false }
func (testConfig) GetCORSOrigins() []string     { return []string{"https://example.com.br"} }
func (testConfig) GetCORSAllowCreds() bool      { return true }
func (testConfig) GetIPRateLimitPerMinute() int { return 2 }
func (testConfig) GetJWTAccessSecret() string   { return "test-secret" }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	ctx.Admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "admin pong") })
}

func newTestEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  testConfig{},
		Logger:  logger.Discard(),
		Health:  health,
		Modules: []apphttp.Module{pingModule{}},
	})
}

func get(engine *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	if rec := get(newTestEngine(pinger{}), "/api/health"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := get(newTestEngine(pinger{err: errors.New("redis down")}), "/api/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestModuleRoutesAndRequestID(t *testing.T) {
	rec := get(newTestEngine(nil), "/api/v1/ping", "X-Request-ID", "req-1")
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("expected pong, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get("X-Request-ID"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	if rec := get(newTestEngine(nil), "/api/v1/admin/ping"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIPRateLimitAppliesToAPI(t *testing.T) {
	engine := newTestEngine(nil)
	for i := 0; i < 2; i++ {
		if rec := get(engine, "/api/v1/ping"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := get(engine, "/api/v1/ping"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := get(engine, "/api/health"); rec.Code != http.StatusOK {
		t.Fatalf("health must not be limited, got %d", rec.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	rec := get(newTestEngine(nil), "/api/v1/ping", "Origin", "https://example.com.br")
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://example.com.br" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
