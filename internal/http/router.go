package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/launch-dashboard/internal/observability"
)

// NewRouter wires every route. The gate wraps the router rather than being
// registered with Use so that unmatched paths under the protected prefix are
// redirected too; mux only runs Use middleware on matched routes.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/login", h.GetLogin).Methods(http.MethodGet)
	router.HandleFunc("/login", h.PostLogin).Methods(http.MethodPost)
	router.HandleFunc("/logout", h.PostLogout).Methods(http.MethodPost)

	statusRouter := router.NewRoute().Subrouter()
	statusRouter.Use(RateLimitMiddleware(limiter))
	statusRouter.Use(TimeoutMiddleware(requestTimeout))
	statusRouter.HandleFunc("/api/status", h.GetStatus).Methods(http.MethodGet)
	statusRouter.HandleFunc("/api/status", h.StatusPreflight).Methods(http.MethodOptions)
	statusRouter.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)

	router.HandleFunc(h.opts.ProtectedPrefix, h.GetSettings).Methods(http.MethodGet)
	simulate := TimeoutMiddleware(requestTimeout)(http.HandlerFunc(h.PostSimulate))
	router.Handle(h.opts.ProtectedPrefix+"/simulate", simulate).Methods(http.MethodPost)

	var handler http.Handler = router
	handler = GateMiddleware(h.opts.ProtectedPrefix)(handler)
	handler = MetricsMiddleware(h.opts.ProtectedPrefix)(handler)
	handler = CorrelationIDMiddleware(logger)(handler)
	return handler
}
