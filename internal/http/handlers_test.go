package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/launch-dashboard/internal/auth"
	"github.com/kjstillabower/launch-dashboard/internal/cache"
	"github.com/kjstillabower/launch-dashboard/internal/client"
	"github.com/kjstillabower/launch-dashboard/internal/config"
	"github.com/kjstillabower/launch-dashboard/internal/lifecycle"
	"github.com/kjstillabower/launch-dashboard/internal/models"
	"github.com/kjstillabower/launch-dashboard/internal/traffic"
)

const testPassword = "launch-day"

const daysPayload = `[{"data":{"max_velocity":310.5,"apogee_time":12.1},"weather":{"temperature":18.2,"wind_speed":3.4}}]`

type fakeClient struct {
	status      []byte
	statusErr   error
	statusCalls int
	mcBody      []byte
	mcErr       error
	gotSettings models.SimulationSettings
	monteCarlos int
}

func (f *fakeClient) FetchStatus(ctx context.Context) ([]byte, error) {
	f.statusCalls++
	return f.status, f.statusErr
}

func (f *fakeClient) RunMonteCarlo(ctx context.Context, settings models.SimulationSettings) ([]byte, error) {
	f.monteCarlos++
	f.gotSettings = settings
	return f.mcBody, f.mcErr
}

type testEnv struct {
	handler *Handler
	router  http.Handler
	logs    *observer.ObservedLogs
}

func newTestEnv(t *testing.T, c client.SimulationClient, statusCache cache.Cache, opts Options) *testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	secret, err := auth.NewSecret(testPassword)
	if err != nil {
		t.Fatalf("NewSecret() error = %v", err)
	}
	h := NewHandler(c, statusCache, secret, opts, nil, logger)
	return &testEnv{handler: h, router: NewRouter(h, logger, nil, 5*time.Second), logs: logs}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func loginRequest(target, password string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader("password="+password))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestGate_RedirectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	tests := []struct {
		name     string
		path     string
		cookie   string
		location string
	}{
		{"no cookie", "/settings", "", "/login?next=%2Fsettings"},
		{"other value", "/settings", "auth=no", "/login?next=%2Fsettings"},
		{"nested path", "/settings/rocket", "", "/login?next=%2Fsettings%2Frocket"},
		{"unrouted path under prefix", "/settings/unknown/page", "", "/login?next=%2Fsettings%2Funknown%2Fpage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", tt.cookie)
			}
			rec := env.do(req)
			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
			}
			if got := rec.Header().Get("Location"); got != tt.location {
				t.Errorf("Location = %q, want %q", got, tt.location)
			}
		})
	}
}

func TestGate_SimulateNeverReachesUpstreamWhenDenied(t *testing.T) {
	fc := &fakeClient{mcBody: []byte(`{"data":[]}`)}
	env := newTestEnv(t, fc, nil, Options{})
	req := httptest.NewRequest(http.MethodPost, "/settings/simulate", strings.NewReader(`{"number_simulations":1,"fuel_mass":1,"wind_from_direction":0,"length":1}`))
	rec := env.do(req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if fc.monteCarlos != 0 {
		t.Errorf("RunMonteCarlo called %d times, want 0", fc.monteCarlos)
	}
}

func TestGate_AuthenticatedPassesThrough(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.Header.Set("Cookie", "auth=yes")
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestGate_PathsOutsidePrefixNotGated(t *testing.T) {
	env := newTestEnv(t, &fakeClient{status: []byte(`{"foo":1}`)}, nil, Options{})
	for _, path := range []string{"/login", "/api/status", "/health"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code == http.StatusSeeOther {
			t.Errorf("GET %s redirected, want ungated", path)
		}
	}
}

func TestPostLogin_Success(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		location string
	}{
		{"next from query", "/login?next=%2Fsettings%2Frocket", "/settings/rocket"},
		{"no next uses default", "/login", "/settings"},
		{"external next falls back", "/login?next=https%3A%2F%2Fevil.example", "/settings"},
		{"scheme-relative next falls back", "/login?next=%2F%2Fevil.example", "/settings"},
		{"next with space is re-encoded", "/login?next=%2Fsettings%2Fa+b", "/settings/a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Zero Options: the cookie must still be Secure.
			env := newTestEnv(t, &fakeClient{}, nil, Options{})
			rec := env.do(loginRequest(tt.target, testPassword))
			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tt.location {
				t.Errorf("Location = %q, want %q", got, tt.location)
			}
			cookies := rec.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("got %d cookies, want 1", len(cookies))
			}
			c := cookies[0]
			if c.Name != "auth" || c.Value != "yes" || c.Path != "/" || c.MaxAge != 604800 {
				t.Errorf("cookie = %+v, want auth=yes Path=/ Max-Age=604800", c)
			}
			if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
				t.Errorf("cookie flags HttpOnly=%v Secure=%v SameSite=%v", c.HttpOnly, c.Secure, c.SameSite)
			}
		})
	}
}

func TestPostLogin_NextFromFormField(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password="+testPassword+"&next=%2Fsettings%2Fa"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)
	if got := rec.Header().Get("Location"); got != "/settings/a" {
		t.Errorf("Location = %q, want /settings/a", got)
	}
}

func TestPostLogin_DevelopmentCookieNotSecure(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{InsecureCookie: true})
	rec := env.do(loginRequest("/login", testPassword))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Secure {
		t.Errorf("cookies = %+v, want one non-Secure cookie", cookies)
	}
}

func TestPostLogin_WrongPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		accept   string
		wantJSON bool
	}{
		{"html form", "nope", "", false},
		{"json client", "nope", "application/json", true},
		{"empty password", "", "application/json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeClient{}, nil, Options{})
			req := loginRequest("/login?next=%2Fsettings", tt.password)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := env.do(req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if sc := rec.Header().Get("Set-Cookie"); sc != "" {
				t.Errorf("Set-Cookie = %q, want none", sc)
			}
			if loc := rec.Header().Get("Location"); loc != "" {
				t.Errorf("Location = %q, want none", loc)
			}
			if tt.wantJSON {
				var body map[string]bool
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if !body["incorrect"] {
					t.Errorf("body = %v, want incorrect=true", body)
				}
			} else if !strings.Contains(rec.Body.String(), "Incorrect password") {
				t.Error("re-rendered form missing error indicator")
			}
			if env.logs.FilterMessage("login rejected").Len() != 1 {
				t.Error("expected one 'login rejected' log entry")
			}
			for _, entry := range env.logs.All() {
				for _, f := range entry.Context {
					if f.String == tt.password && tt.password != "" {
						t.Errorf("log entry %q leaks password", entry.Message)
					}
				}
			}
		})
	}
}

func TestGetLogin_RendersForm(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/login?next=%2Fsettings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="password"`) || strings.Contains(body, "Incorrect password") {
		t.Errorf("unexpected login page: %s", body)
	}
}

func TestGetLogin_AuthenticatedRedirects(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	tests := []struct {
		target   string
		location string
	}{
		{"/login", "/settings"},
		{"/login?next=%2Fsettings%2Frocket", "/settings/rocket"},
		{"/login?next=%2F%2Fevil.example", "/settings"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		req.Header.Set("Cookie", "auth=yes")
		rec := env.do(req)
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("GET %s status = %d, want 303", tt.target, rec.Code)
		}
		if got := rec.Header().Get("Location"); got != tt.location {
			t.Errorf("GET %s Location = %q, want %q", tt.target, got, tt.location)
		}
	}
}

func TestRouter_CustomProtectedPrefix(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{ProtectedPrefix: "/admin"})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login?next=%2Fadmin" {
		t.Errorf("GET /admin = %d %q, want 303 to login", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Cookie", "auth=yes")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("authenticated GET /admin = %d, want 200", rec.Code)
	}

	rec = env.do(loginRequest("/login", testPassword))
	if got := rec.Header().Get("Location"); got != "/admin" {
		t.Errorf("login Location = %q, want /admin", got)
	}
}

func TestPostLogout(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Cookie", "auth=yes")
	rec := env.do(req)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("got %d %q, want 303 /", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "auth" || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v, want expired auth cookie", cookies)
	}
}

func TestGetStatus_RelaysPayload(t *testing.T) {
	env := newTestEnv(t, &fakeClient{status: []byte(`{"foo":1}`)}, nil, Options{})
	for _, path := range []string{"/api/status", "/status"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
		if got := rec.Body.String(); got != `{"foo":1}` {
			t.Errorf("body = %q, want {\"foo\":1}", got)
		}
		if got := rec.Header().Get("X-Payload-Shape"); got != "unknown" {
			t.Errorf("X-Payload-Shape = %q, want unknown", got)
		}
	}
	if env.logs.FilterMessage("status payload shape not recognised").Len() == 0 {
		t.Error("expected warning for unrecognised payload shape")
	}
}

func TestGetStatus_SchemaModes(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		payload   string
		wantCode  int
		wantShape string
	}{
		{"flag days", config.SchemaCheckFlag, daysPayload, http.StatusOK, "days"},
		{"reject days", config.SchemaCheckReject, daysPayload, http.StatusOK, "days"},
		{"reject unknown", config.SchemaCheckReject, `{"foo":1}`, http.StatusBadGateway, ""},
		{"off skips check", config.SchemaCheckOff, `{"foo":1}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeClient{status: []byte(tt.payload)}, nil, Options{SchemaCheck: tt.mode})
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("X-Payload-Shape"); got != tt.wantShape {
				t.Errorf("X-Payload-Shape = %q, want %q", got, tt.wantShape)
			}
			if tt.wantCode == http.StatusOK && rec.Body.String() != tt.payload {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.payload)
			}
		})
	}
}

func TestGetStatus_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
		wantLog  bool
	}{
		{"upstream 503", &client.UpstreamStatusError{Code: 503, Status: "Service Unavailable"}, 503, "Service Unavailable", false},
		{"upstream 404 custom text", &client.UpstreamStatusError{Code: 404, Status: "Nope"}, 404, "Nope", false},
		{"upstream empty text", &client.UpstreamStatusError{Code: 502}, 502, "Bad Gateway", false},
		{"wrapped after retries", fmt.Errorf("exhausted retries: %w", &client.UpstreamStatusError{Code: 500, Status: "Internal Server Error"}), 500, "Internal Server Error", false},
		{"circuit open", client.ErrCircuitOpen, 503, "Service Unavailable", false},
		{"network failure", errors.New("dial tcp: connection refused"), 500, "Internal Server Error", true},
		{"invalid json", client.ErrInvalidPayload, 500, "Internal Server Error", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeClient{statusErr: tt.err}, nil, Options{})
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("Content-Type = %q, want text/plain", ct)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "" {
				t.Error("error responses must not carry the CORS header")
			}
			logged := env.logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("upstream request failed").Len() > 0
			if logged != tt.wantLog {
				t.Errorf("error logged = %v, want %v", logged, tt.wantLog)
			}
		})
	}
}

func TestGetStatus_EndToEndWithHTTPClient(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"foo": 1}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer upstream.Close()

	t.Run("success", func(t *testing.T) {
		c, err := client.NewHTTPClient(upstream.URL+"/status", upstream.URL+"/montecarlo", 2*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		env := newTestEnv(t, c, nil, Options{})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != `{"foo":1}` {
			t.Errorf("got %d %q, want 200 {\"foo\":1}", rec.Code, rec.Body.String())
		}
	})

	t.Run("upstream 503", func(t *testing.T) {
		c, err := client.NewHTTPClient(upstream.URL+"/down", upstream.URL+"/montecarlo", 2*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		env := newTestEnv(t, c, nil, Options{})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("network failure", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		deadURL := dead.URL
		dead.Close()
		c, err := client.NewHTTPClient(deadURL+"/status", deadURL+"/montecarlo", 2*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		env := newTestEnv(t, c, nil, Options{})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("Content-Type = %q, want text/plain", ct)
		}
		if env.logs.FilterMessage("upstream request failed").Len() != 1 {
			t.Error("expected the failure to be logged once")
		}
	})
}

func TestGetStatus_Cache(t *testing.T) {
	fc := &fakeClient{status: []byte(daysPayload)}
	env := newTestEnv(t, fc, cache.NewInMemoryCache(), Options{CacheTTL: time.Minute})
	for i := 0; i < 3; i++ {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != daysPayload {
			t.Fatalf("request %d: got %d %q", i, rec.Code, rec.Body.String())
		}
	}
	if fc.statusCalls != 1 {
		t.Errorf("FetchStatus called %d times, want 1", fc.statusCalls)
	}
}

func TestGetStatus_ErrorsNotCached(t *testing.T) {
	fc := &fakeClient{statusErr: &client.UpstreamStatusError{Code: 503, Status: "Service Unavailable"}}
	env := newTestEnv(t, fc, cache.NewInMemoryCache(), Options{CacheTTL: time.Minute})
	env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if fc.statusCalls != 2 {
		t.Errorf("FetchStatus called %d times, want 2", fc.statusCalls)
	}
}

func TestStatusPreflight(t *testing.T) {
	env := newTestEnv(t, &fakeClient{}, nil, Options{})
	rec := env.do(httptest.NewRequest(http.MethodOptions, "/api/status", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight missing Access-Control-Allow-Origin")
	}
}

func TestPostSimulate(t *testing.T) {
	valid := `{"number_simulations":50,"fuel_mass":12.5,"wind_from_direction":270,"length":2.1}`
	tests := []struct {
		name      string
		body      string
		mcErr     error
		wantCode  int
		wantCalls int
	}{
		{"valid", valid, nil, http.StatusOK, 1},
		{"malformed json", `{"number_simulations":`, nil, http.StatusBadRequest, 0},
		{"unknown field", `{"number_simulations":1,"fuel_mass":1,"length":1,"rockets":2}`, nil, http.StatusBadRequest, 0},
		{"out of range", `{"number_simulations":0,"fuel_mass":1,"wind_from_direction":400,"length":1}`, nil, http.StatusBadRequest, 0},
		{"upstream error", valid, &client.UpstreamStatusError{Code: 502, Status: "Bad Gateway"}, http.StatusBadGateway, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{mcBody: []byte(`{"data":[{"x":1.5,"y":-2}]}`), mcErr: tt.mcErr}
			env := newTestEnv(t, fc, nil, Options{})
			req := httptest.NewRequest(http.MethodPost, "/settings/simulate", strings.NewReader(tt.body))
			req.Header.Set("Cookie", "auth=yes")
			req.Header.Set("Content-Type", "application/json")
			rec := env.do(req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if fc.monteCarlos != tt.wantCalls {
				t.Errorf("RunMonteCarlo calls = %d, want %d", fc.monteCarlos, tt.wantCalls)
			}
			if tt.wantCode == http.StatusOK {
				var resp models.MonteCarloResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(resp.Data) != 1 || resp.Data[0].X != 1.5 {
					t.Errorf("response = %+v", resp)
				}
				if fc.gotSettings.NumberSimulations != 50 || fc.gotSettings.WindFromDirection != 270 {
					t.Errorf("settings relayed = %+v", fc.gotSettings)
				}
			}
		})
	}
}

func TestGetHealth(t *testing.T) {
	t.Cleanup(func() {
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
	})

	core, logs := observer.New(zapcore.InfoLevel)
	secret, _ := auth.NewSecret(testPassword)
	pingErr := error(nil)
	h := NewHandler(&fakeClient{}, nil, secret, Options{}, &HealthConfig{
		DegradedWindow:   time.Minute,
		DegradedErrorPct: 50,
		Version:          "1.2.3",
		CachePing:        func() error { return pingErr },
	}, zap.New(core))

	get := func() (int, map[string]interface{}) {
		rec := httptest.NewRecorder()
		h.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return rec.Code, body
	}

	traffic.Reset()
	code, body := get()
	if code != http.StatusOK || body["status"] != "healthy" || body["version"] != "1.2.3" || body["service"] != "launch-dashboard" {
		t.Errorf("healthy: got %d %v", code, body)
	}
	if checks := body["checks"].(map[string]interface{}); checks["cache"] != "healthy" {
		t.Errorf("checks = %v, want cache healthy", checks)
	}

	traffic.RecordSuccess()
	traffic.RecordError()
	pingErr = errors.New("down")
	code, body = get()
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("degraded: got %d %v", code, body)
	}
	checks := body["checks"].(map[string]interface{})
	if checks["statusApi"] != "unhealthy" || checks["cache"] != "unhealthy" {
		t.Errorf("checks = %v", checks)
	}
	if logs.FilterMessage("health status transition").Len() != 1 {
		t.Error("expected a logged healthy -> degraded transition")
	}

	lifecycle.SetShuttingDown(true)
	code, body = get()
	if code != http.StatusServiceUnavailable || body["status"] != "shutting-down" {
		t.Errorf("shutting down: got %d %v", code, body)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Environment:     config.EnvDevelopment,
		ProtectedPrefix: "/settings",
		DefaultRedirect: "/settings",
		CookieMaxAge:    time.Hour,
		SchemaCheck:     config.SchemaCheckReject,
		CacheTTL:        time.Second,
	}
	opts := OptionsFromConfig(cfg)
	if !opts.InsecureCookie {
		t.Error("InsecureCookie = false in development")
	}
	cfg.Environment = config.EnvProduction
	if OptionsFromConfig(cfg).InsecureCookie {
		t.Error("InsecureCookie = true in production")
	}
	if opts.SchemaCheck != config.SchemaCheckReject || opts.CookieMaxAge != time.Hour {
		t.Errorf("opts = %+v", opts)
	}
}
