package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scribo/internal/app"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/handlers"
	"github.com/ternarybob/scribo/internal/ratelimit"
)

func newTestServer(t *testing.T, cfg *common.Config) *Server {
	t.Helper()
	logger := common.GetLogger()

	application := &app.App{
		Config:          cfg,
		Logger:          logger,
		WriteLimiter:    ratelimit.NewLimiter(cfg.RateLimit.Write, logger),
		ReadLimiter:     ratelimit.NewLimiter(cfg.RateLimit.Read, logger),
		HealthLimiter:   ratelimit.NewLimiter(cfg.RateLimit.Health, logger),
		AuthFailLimiter: ratelimit.NewLimiter(cfg.RateLimit.AuthFailure, logger),
		StatusHandler:   handlers.NewStatusHandler(nil, nil, logger),
	}
	t.Cleanup(func() {
		application.WriteLimiter.Stop()
		application.ReadLimiter.Stop()
		application.HealthLimiter.Stop()
		application.AuthFailLimiter.Stop()
	})
	return New(application)
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.RateLimit.Read.Window = time.Minute
	cfg.RateLimit.Read.Max = 100
	return cfg
}

func doRequest(s *Server, method, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "203.0.113.9:4411"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = "topsecret"
	s := newTestServer(t, cfg)

	require.Equal(t, http.StatusUnauthorized, doRequest(s, http.MethodGet, "/api/version", "").Code)
	require.Equal(t, http.StatusUnauthorized, doRequest(s, http.MethodGet, "/api/version", "wrong").Code)
	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/version", "topsecret").Code)
}

func TestAuthMiddlewareLivenessStaysOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = "topsecret"
	s := newTestServer(t, cfg)

	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/health", "").Code)
}

func TestAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t, testConfig())

	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/version", "").Code)
}

func TestAuthMiddlewareRejectsOversizedCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = "topsecret"
	cfg.Auth.MaxSecretLength = 16
	s := newTestServer(t, cfg)

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	rec := doRequest(s, http.MethodGet, "/api/version", string(long))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum length")
}

func TestAuthFailureThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = "topsecret"
	cfg.RateLimit.AuthFailure.Window = time.Minute
	cfg.RateLimit.AuthFailure.Max = 2
	s := newTestServer(t, cfg)

	require.Equal(t, http.StatusUnauthorized, doRequest(s, http.MethodGet, "/api/version", "wrong").Code)
	require.Equal(t, http.StatusUnauthorized, doRequest(s, http.MethodGet, "/api/version", "wrong").Code)

	// Budget exhausted: even the right secret is refused until the window ages out
	rec := doRequest(s, http.MethodGet, "/api/version", "topsecret")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareReadBudget(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Read.Max = 2
	s := newTestServer(t, cfg)

	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/version", "").Code)
	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/version", "").Code)

	rec := doRequest(s, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareSkipsLiveness(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Read.Max = 1
	s := newTestServer(t, cfg)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/health", "").Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doRequest(s, http.MethodOptions, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
