package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/launch-dashboard/internal/auth"
	"github.com/kjstillabower/launch-dashboard/internal/observability"
	"github.com/kjstillabower/launch-dashboard/internal/reqctx"
)

func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := reqctx.WithCorrelationID(r.Context(), corrID)
			ctx = reqctx.WithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request counts, latency and the in-flight count.
// Route labels are bounded to the registered routes under protectedPrefix.
func MetricsMiddleware(protectedPrefix string) mux.MiddlewareFunc {
	routes := knownRoutes(protectedPrefix)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			globalInFlightTracker.Increment()
			defer globalInFlightTracker.Decrement()
			observability.HTTPRequestsInFlight.Inc()
			defer observability.HTTPRequestsInFlight.Dec()

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			duration := time.Since(start).Seconds()
			route := getRoute(r.URL.Path, protectedPrefix, routes)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
		})
	}
}

func knownRoutes(protectedPrefix string) map[string]struct{} {
	routes := map[string]struct{}{}
	for _, path := range []string{
		"/", "/api/status", "/status", "/login", "/logout", "/health", "/metrics",
		protectedPrefix, protectedPrefix + "/simulate",
	} {
		routes[path] = struct{}{}
	}
	return routes
}

// getRoute keeps the route label bounded; unregistered paths are "other".
func getRoute(path, protectedPrefix string, routes map[string]struct{}) string {
	if _, ok := routes[path]; ok {
		return path
	}
	if strings.HasPrefix(path, protectedPrefix+"/") {
		return protectedPrefix + "/*"
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// GateMiddleware derives the authenticated flag from the auth cookie, stores it on
// the request context, and redirects unauthenticated requests under prefix to the
// login page with the original path as the next hint. No downstream handler runs
// for a denied request.
func GateMiddleware(prefix string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authenticated := auth.IsAuthenticated(r)
			if !authenticated && auth.IsProtected(r.URL.Path, prefix) {
				observability.GateDenialsTotal.Inc()
				reqctx.Logger(r.Context()).Debug("gate denied", zap.String("path", r.URL.Path))
				http.Redirect(w, r, auth.LoginURL(r.URL.Path), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuthenticated(r.Context(), authenticated)))
		})
	}
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream handlers
// receive context.DeadlineExceeded. Apply only to routes that call the upstream.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware returns 429 when the token bucket is exhausted. Disabled when limiter is nil.
func RateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				reqctx.Logger(r.Context()).Debug("rate limit denied")
				observability.RateLimitDeniedTotal.Inc()
				writeRateLimitError(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":      "RATE_LIMITED",
			"message":   "Too many requests",
			"requestId": reqctx.CorrelationID(r.Context()),
		},
	})
}
