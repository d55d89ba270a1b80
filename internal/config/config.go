package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment values accepted in config and APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Schema check modes for the status proxy.
const (
	SchemaCheckOff    = "off"
	SchemaCheckFlag   = "flag"
	SchemaCheckReject = "reject"
)

// Config holds service configuration loaded from YAML and env.
// Built once at startup and passed to the components that need it.
type Config struct {
	Environment string

	ServerPort string

	// Password is the shared login secret: plaintext or an argon2id PHC hash.
	Password string

	StatusAPIURL     string
	MonteCarloAPIURL string
	StatusAPITimeout time.Duration
	RequestTimeout   time.Duration
	SchemaCheck      string

	ProtectedPrefix string
	DefaultRedirect string
	CookieMaxAge    time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend string // "none", "in_memory", "memcached" or "redis"
	CacheTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

// IsDevelopment reports whether the service runs in local development mode.
// Development drops the Secure attribute from the session cookie.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

type fileConfig struct {
	Environment string `yaml:"environment"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	StatusAPI struct {
		URL           string `yaml:"url"`
		MonteCarloURL string `yaml:"montecarlo_url"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"status_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Auth struct {
		ProtectedPrefix string `yaml:"protected_prefix"`
		DefaultRedirect string `yaml:"default_redirect"`
		CookieMaxAge    string `yaml:"cookie_max_age"`
	} `yaml:"auth"`

	Proxy struct {
		SchemaCheck string `yaml:"schema_check"`
	} `yaml:"proxy"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	Password      string `yaml:"password"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// The login password comes from PASSWORD env or the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.Environment = strings.TrimSpace(strings.ToLower(os.Getenv("APP_ENV")))
	if cfg.Environment == "" {
		cfg.Environment = strings.TrimSpace(strings.ToLower(fc.Environment))
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvProduction
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.Password = os.Getenv("PASSWORD")
	if cfg.Password == "" {
		cfg.Password = sec.Password
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("PASSWORD required (set env or config/secrets.yaml password)")
	}

	cfg.StatusAPIURL = strings.TrimSpace(fc.StatusAPI.URL)
	if cfg.StatusAPIURL == "" {
		cfg.StatusAPIURL = "https://launch-server.onrender.com/status"
	}
	cfg.MonteCarloAPIURL = strings.TrimSpace(fc.StatusAPI.MonteCarloURL)
	if cfg.MonteCarloAPIURL == "" {
		cfg.MonteCarloAPIURL = "https://launch-server.onrender.com/montecarlo"
	}
	cfg.StatusAPITimeout = parseDurationOrZero(fc.StatusAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.SchemaCheck = strings.TrimSpace(strings.ToLower(fc.Proxy.SchemaCheck))
	if cfg.SchemaCheck == "" {
		cfg.SchemaCheck = SchemaCheckFlag
	}

	cfg.ProtectedPrefix = fc.Auth.ProtectedPrefix
	if cfg.ProtectedPrefix == "" {
		cfg.ProtectedPrefix = "/settings"
	}
	cfg.DefaultRedirect = fc.Auth.DefaultRedirect
	if cfg.DefaultRedirect == "" {
		cfg.DefaultRedirect = "/settings"
	}
	cfg.CookieMaxAge = parseDuration(fc.Auth.CookieMaxAge, 7*24*time.Hour)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "none"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Second)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Cache.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = sec.RedisPassword
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSecrets reads the optional secrets file. A missing file yields empty secrets.
func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above the upstream timeout when needed.
func validate(cfg *Config) error {
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("environment must be development or production, got %q", cfg.Environment)
	}
	if cfg.StatusAPITimeout <= 0 {
		return fmt.Errorf("status_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.StatusAPITimeout {
		cfg.RequestTimeout = cfg.StatusAPITimeout + time.Second
	}
	if !strings.HasPrefix(cfg.ProtectedPrefix, "/") {
		return fmt.Errorf("auth.protected_prefix must start with /, got %q", cfg.ProtectedPrefix)
	}
	if !strings.HasPrefix(cfg.DefaultRedirect, "/") {
		return fmt.Errorf("auth.default_redirect must start with /, got %q", cfg.DefaultRedirect)
	}
	switch cfg.SchemaCheck {
	case SchemaCheckOff, SchemaCheckFlag, SchemaCheckReject:
	default:
		return fmt.Errorf("proxy.schema_check must be off, flag or reject, got %q", cfg.SchemaCheck)
	}
	switch cfg.CacheBackend {
	case "none", "in_memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be none, in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	return nil
}
