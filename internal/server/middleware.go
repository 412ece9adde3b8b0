package server

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/scribo/internal/handlers"
	"github.com/ternarybob/scribo/internal/ratelimit"
)

// withMiddleware wraps the router with middleware chain
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = s.rateLimitMiddleware(handler)
	handler = s.authMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logEvent := s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr)
		if r.URL.RawQuery != "" {
			logEvent.Str("query", r.URL.RawQuery)
		}
		logEvent.Msg("HTTP request")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP response")
	})
}

// corsMiddleware handles CORS headers for the dashboard
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the shared-secret bearer credential. The liveness
// probe stays open; everything else requires the secret when one is
// configured. Failed attempts are throttled per client IP by a limiter
// separate from the read/write classes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := s.app.Config.Auth.Secret
		if secret == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + clientIP(r)
		if s.app.AuthFailLimiter.Blocked(key) {
			window := s.app.Config.RateLimit.AuthFailure.Window
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			handlers.WriteError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
			return
		}

		credential := requestCredential(r)

		// Oversized input is rejected before the comparison so the length
		// itself cannot become a timing channel
		if maxLen := s.app.Config.Auth.MaxSecretLength; maxLen > 0 && len(credential) > maxLen {
			s.app.AuthFailLimiter.Record(key)
			handlers.WriteError(w, http.StatusUnauthorized, "credential exceeds maximum length")
			return
		}

		if subtle.ConstantTimeCompare([]byte(credential), []byte(secret)) != 1 {
			s.app.AuthFailLimiter.Record(key)
			handlers.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the limiter class matching the request:
// deep-health its own budget, reads and writes split by method. The liveness
// probe and websocket upgrades are not throttled.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var limiter *ratelimit.Limiter
		switch {
		case r.URL.Path == "/api/health" || r.URL.Path == "/ws":
			// unthrottled
		case r.URL.Path == "/api/health/deep":
			limiter = s.app.HealthLimiter
		case r.Method == http.MethodGet || r.Method == http.MethodHead:
			limiter = s.app.ReadLimiter
		default:
			limiter = s.app.WriteLimiter
		}

		if limiter != nil {
			allowed, retryAfter := limiter.Check(clientIP(r))
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				handlers.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.app.Logger.Error().
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requestCredential extracts the caller's secret from the Authorization
// header, falling back to the token query parameter for EventSource and
// WebSocket clients that cannot set headers.
func requestCredential(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// clientIP derives the limiter key for a request
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher so SSE streaming works through the wrapper
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker interface for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}
