package http

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/launch-dashboard/internal/auth"
	"github.com/kjstillabower/launch-dashboard/internal/cache"
	"github.com/kjstillabower/launch-dashboard/internal/client"
	"github.com/kjstillabower/launch-dashboard/internal/config"
	"github.com/kjstillabower/launch-dashboard/internal/lifecycle"
	"github.com/kjstillabower/launch-dashboard/internal/models"
	"github.com/kjstillabower/launch-dashboard/internal/observability"
	"github.com/kjstillabower/launch-dashboard/internal/reqctx"
	"github.com/kjstillabower/launch-dashboard/internal/traffic"
	"github.com/kjstillabower/launch-dashboard/internal/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	statusCacheKey = "status"
	maxFormBytes   = 1 << 20
)

// Options carries the per-deployment settings the handlers need.
type Options struct {
	ProtectedPrefix string
	DefaultRedirect string
	InsecureCookie  bool // drop the Secure attribute; local development only
	CookieMaxAge    time.Duration
	SchemaCheck     string // config.SchemaCheckOff, Flag or Reject
	CacheTTL        time.Duration
}

// OptionsFromConfig maps the loaded config onto handler options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ProtectedPrefix: cfg.ProtectedPrefix,
		DefaultRedirect: cfg.DefaultRedirect,
		InsecureCookie:  cfg.IsDevelopment(),
		CookieMaxAge:    cfg.CookieMaxAge,
		SchemaCheck:     cfg.SchemaCheck,
		CacheTTL:        cfg.CacheTTL,
	}
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	Version          string
	// CachePing, when set, is called to check cache reachability. Used for remote backends.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	client           client.SimulationClient
	cache            cache.Cache
	secret           *auth.Secret
	opts             Options
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. statusCache may be nil to disable caching.
func NewHandler(
	simClient client.SimulationClient,
	statusCache cache.Cache,
	secret *auth.Secret,
	opts Options,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if opts.ProtectedPrefix == "" {
		opts.ProtectedPrefix = "/settings"
	}
	if opts.DefaultRedirect == "" {
		opts.DefaultRedirect = opts.ProtectedPrefix
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = auth.DefaultMaxAge
	}
	if opts.SchemaCheck == "" {
		opts.SchemaCheck = config.SchemaCheckFlag
	}
	return &Handler{
		client:       simClient,
		cache:        statusCache,
		secret:       secret,
		opts:         opts,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetStatus handles GET /api/status and /status. It relays the upstream payload
// byte-for-byte (compacted) with a permissive CORS header.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := reqctx.Logger(ctx)

	body, cached := h.cachedStatus(ctx)
	if !cached {
		var err error
		body, err = h.client.FetchStatus(ctx)
		if err != nil {
			if client.IsUpstreamFault(err) {
				traffic.RecordError()
			}
			writeUpstreamError(w, r, err)
			return
		}
		traffic.RecordSuccess()
	}

	if h.opts.SchemaCheck != config.SchemaCheckOff {
		shape, err := validation.CheckStatusPayload(body)
		observability.StatusPayloadShapesTotal.WithLabelValues(string(shape)).Inc()
		if err != nil {
			logger.Warn("status payload shape not recognised", zap.Error(err), zap.Int("bytes", len(body)))
			if h.opts.SchemaCheck == config.SchemaCheckReject {
				writeText(w, http.StatusBadGateway, http.StatusText(http.StatusBadGateway))
				return
			}
		}
		w.Header().Set("X-Payload-Shape", string(shape))
	}

	if !cached {
		h.storeStatus(ctx, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// StatusPreflight answers CORS preflight for the status endpoint.
func (h *Handler) StatusPreflight(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
	hdr.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cachedStatus(ctx context.Context) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	body, ok, err := h.cache.Get(ctx, statusCacheKey)
	switch {
	case err != nil:
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		reqctx.Logger(ctx).Warn("status cache get failed", zap.Error(err))
		return nil, false
	case !ok:
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
	reqctx.Logger(ctx).Debug("status cache hit")
	return body, true
}

func (h *Handler) storeStatus(ctx context.Context, body []byte) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, statusCacheKey, body, h.opts.CacheTTL); err != nil {
		reqctx.Logger(ctx).Warn("status cache set failed", zap.Error(err))
	}
}

type loginPage struct {
	Next      string
	Incorrect bool
}

// GetLogin handles GET /login. An already signed-in user goes straight to next.
func (h *Handler) GetLogin(w http.ResponseWriter, r *http.Request) {
	if auth.FromContext(r.Context()) {
		http.Redirect(w, r, auth.SafeNext(r.URL.Query().Get("next"), h.opts.DefaultRedirect), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", loginPage{Next: r.URL.Query().Get("next")})
}

// PostLogin handles POST /login. A wrong password answers 400 with no cookie; a
// correct one sets the session cookie and redirects with 303.
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	logger := reqctx.Logger(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "login form could not be parsed")
		return
	}

	next := r.URL.Query().Get("next")
	if next == "" {
		next = r.PostFormValue("next")
	}

	if !h.secret.Verify(r.PostFormValue("password")) {
		observability.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		logger.Info("login rejected")
		if acceptsJSON(r) {
			writeJSON(w, http.StatusBadRequest, map[string]bool{"incorrect": true})
			return
		}
		h.render(w, r, http.StatusBadRequest, "login.html", loginPage{Next: next, Incorrect: true})
		return
	}

	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	target := auth.SafeNext(next, h.opts.DefaultRedirect)
	if next != "" && target == h.opts.DefaultRedirect && auth.SafeNext(next, "") == "" {
		logger.Warn("login next rejected", zap.String("next", next))
	}
	logger.Info("login accepted", zap.String("redirect", target))
	http.SetCookie(w, auth.SessionCookie(!h.opts.InsecureCookie, h.opts.CookieMaxAge))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// PostLogout handles POST /logout by expiring the session cookie.
func (h *Handler) PostLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ExpiredCookie(!h.opts.InsecureCookie))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// GetSettings handles GET /settings. Only reachable through the gate.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "settings.html", nil)
}

// PostSimulate handles POST /settings/simulate: validates the settings and
// relays them to the Monte Carlo endpoint.
func (h *Handler) PostSimulate(w http.ResponseWriter, r *http.Request) {
	var settings models.SimulationSettings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON simulation settings object")
		return
	}
	if err := validation.ValidateSimulationSettings(settings); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SETTINGS", err.Error())
		return
	}

	body, err := h.client.RunMonteCarlo(r.Context(), settings)
	if err != nil {
		if client.IsUpstreamFault(err) {
			traffic.RecordError()
		}
		writeUpstreamError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "error_rate_breach" {
		checks["statusApi"] = "unhealthy"
	} else {
		checks["statusApi"] = "healthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "launch-dashboard",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeUpstreamError maps a client error onto the proxy's response contract:
// upstream status codes are forwarded with their reason phrase, an open breaker
// is 503, anything else is logged and answered with a plain 500.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *client.UpstreamStatusError
	switch {
	case errors.As(err, &statusErr):
		text := statusErr.Status
		if text == "" {
			text = http.StatusText(statusErr.Code)
		}
		reqctx.Logger(r.Context()).Debug("upstream status forwarded", zap.Int("status", statusErr.Code))
		writeText(w, statusErr.Code, text)
	case errors.Is(err, client.ErrCircuitOpen):
		reqctx.Logger(r.Context()).Warn("upstream circuit open")
		writeText(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
	default:
		reqctx.Logger(r.Context()).Error("upstream request failed",
			zap.Error(err),
			zap.String("category", string(client.CategorizeError(err))))
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		reqctx.Logger(r.Context()).Error("render page", zap.String("template", name), zap.Error(err))
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": reqctx.CorrelationID(r.Context()),
		},
	})
}
