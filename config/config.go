package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/cloudbrowser/models"
)

// Proxy ordering policies for CloudBrowserConfig.ProxyOrdering.
const (
	OrderingRandom     = "random"
	OrderingRoundRobin = "round-robin"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	CloudBrowser CloudBrowserConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Log          LogConfig
}

// CloudBrowserConfig controls the remote browser session pool. All values
// load from the CLOUD_BROWSER_* environment namespace.
type CloudBrowserConfig struct {
	// APIHost is the base URL of the provisioning API. Required.
	APIHost string

	// APIToken authenticates provisioning calls. Required, secret.
	APIToken string

	// NumBrowsers is the number of pool slots. default: 1
	NumBrowsers int

	// Proxies is the ordered proxy URL list. May be empty (no proxy).
	Proxies []string

	// PagesPerBrowser is the page budget before a session is recycled.
	// default: 100
	PagesPerBrowser int

	// StartSemaphores bounds concurrent provisioning calls. default: 10
	StartSemaphores int

	// ProxyOrdering selects the proxy assignment policy:
	// "random" or "round-robin". default: "random"
	ProxyOrdering string

	// BrowserSettings is an opaque blob passed through verbatim to the
	// provisioning call.
	BrowserSettings map[string]any

	// Fingerprint is an opaque blob passed through verbatim to the
	// provisioning call.
	Fingerprint map[string]any

	// ProvisionTimeout is the deadline for one provisioning call.
	// default: 60s
	ProvisionTimeout time.Duration

	// HeartbeatInterval is how often live sessions are pinged.
	// 0 disables the heartbeat. default: 5s
	HeartbeatInterval time.Duration

	// DefaultFetchTimeout is the per-fetch timeout when the request does
	// not specify one. default: 30s
	DefaultFetchTimeout time.Duration

	// MaxFetchTimeout caps the timeout a client may request. default: 120s
	MaxFetchTimeout time.Duration
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("CLOUDBROWSER_HOST", "0.0.0.0"),
			Port: envIntOr("CLOUDBROWSER_PORT", 8080),
			Mode: envOr("CLOUDBROWSER_MODE", "release"),
		},
		CloudBrowser: CloudBrowserConfig{
			APIHost:             os.Getenv("CLOUD_BROWSER_API_HOST"),
			APIToken:            os.Getenv("CLOUD_BROWSER_API_TOKEN"),
			NumBrowsers:         envIntOr("CLOUD_BROWSER_NUM_BROWSERS", 1),
			Proxies:             envSliceOr("CLOUD_BROWSER_PROXIES", nil),
			PagesPerBrowser:     envIntOr("CLOUD_BROWSER_PAGES_PER_BROWSER", 100),
			StartSemaphores:     envIntOr("CLOUD_BROWSER_START_SEMAPHORES", 10),
			ProxyOrdering:       envOr("CLOUD_BROWSER_PROXY_ORDERING", OrderingRandom),
			BrowserSettings:     envJSONOr("CLOUD_BROWSER_BROWSER_SETTINGS"),
			Fingerprint:         envJSONOr("CLOUD_BROWSER_FINGERPRINT"),
			ProvisionTimeout:    envDurationOr("CLOUD_BROWSER_PROVISION_TIMEOUT", 60*time.Second),
			HeartbeatInterval:   envDurationOr("CLOUD_BROWSER_HEARTBEAT_INTERVAL", 5*time.Second),
			DefaultFetchTimeout: envDurationOr("CLOUD_BROWSER_DEFAULT_TIMEOUT", 30*time.Second),
			MaxFetchTimeout:     envDurationOr("CLOUD_BROWSER_MAX_TIMEOUT", 120*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("CLOUDBROWSER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("CLOUDBROWSER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("CLOUDBROWSER_RATE_RPS", 5.0),
			Burst:             envIntOr("CLOUDBROWSER_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("CLOUDBROWSER_LOG_LEVEL", "info"),
			Format: envOr("CLOUDBROWSER_LOG_FORMAT", "json"),
		},
	}
}

// Validate checks the pool configuration. Failures are fatal at
// construction and never recovered.
func (c *CloudBrowserConfig) Validate() error {
	if c.APIHost == "" {
		return configErr("CLOUD_BROWSER_API_HOST is required")
	}
	if !strings.HasPrefix(c.APIHost, "http://") && !strings.HasPrefix(c.APIHost, "https://") {
		return configErr("CLOUD_BROWSER_API_HOST must be an http(s) URL")
	}
	if c.APIToken == "" {
		return configErr("CLOUD_BROWSER_API_TOKEN is required")
	}
	if c.NumBrowsers <= 0 {
		return configErr(fmt.Sprintf("NUM_BROWSERS must be positive, got %d", c.NumBrowsers))
	}
	if c.PagesPerBrowser <= 0 {
		return configErr(fmt.Sprintf("PAGES_PER_BROWSER must be positive, got %d", c.PagesPerBrowser))
	}
	if c.StartSemaphores <= 0 {
		return configErr(fmt.Sprintf("START_SEMAPHORES must be positive, got %d", c.StartSemaphores))
	}
	if c.ProxyOrdering != OrderingRandom && c.ProxyOrdering != OrderingRoundRobin {
		return configErr(fmt.Sprintf("unknown PROXY_ORDERING %q", c.ProxyOrdering))
	}
	return nil
}

func configErr(msg string) error {
	return models.NewPoolError(models.ErrCodeInvalidConfig, msg, nil)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envJSONOr parses a raw JSON object from the environment. Malformed input
// is ignored so a bad opaque blob cannot take the process down.
func envJSONOr(key string) map[string]any {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return nil
	}
	return m
}
