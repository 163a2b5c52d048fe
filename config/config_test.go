package config

import (
	"testing"
	"time"

	"github.com/use-agent/cloudbrowser/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	cb := cfg.CloudBrowser
	if cb.NumBrowsers != 1 {
		t.Errorf("NumBrowsers = %d, want 1", cb.NumBrowsers)
	}
	if cb.PagesPerBrowser != 100 {
		t.Errorf("PagesPerBrowser = %d, want 100", cb.PagesPerBrowser)
	}
	if cb.StartSemaphores != 10 {
		t.Errorf("StartSemaphores = %d, want 10", cb.StartSemaphores)
	}
	if cb.ProxyOrdering != OrderingRandom {
		t.Errorf("ProxyOrdering = %q, want %q", cb.ProxyOrdering, OrderingRandom)
	}
	if len(cb.Proxies) != 0 {
		t.Errorf("Proxies = %v, want empty", cb.Proxies)
	}
	if cb.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 5s", cb.HeartbeatInterval)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CLOUD_BROWSER_API_HOST", "https://browsers.example.net")
	t.Setenv("CLOUD_BROWSER_API_TOKEN", "secret")
	t.Setenv("CLOUD_BROWSER_NUM_BROWSERS", "4")
	t.Setenv("CLOUD_BROWSER_PROXIES", "socks5://a, socks5://b ,socks5://c")
	t.Setenv("CLOUD_BROWSER_PROXY_ORDERING", "round-robin")
	t.Setenv("CLOUD_BROWSER_BROWSER_SETTINGS", `{"locale":"en-US","timezone":"UTC"}`)

	cb := Load().CloudBrowser
	if cb.APIHost != "https://browsers.example.net" {
		t.Errorf("APIHost = %q", cb.APIHost)
	}
	if cb.NumBrowsers != 4 {
		t.Errorf("NumBrowsers = %d, want 4", cb.NumBrowsers)
	}
	if len(cb.Proxies) != 3 || cb.Proxies[1] != "socks5://b" {
		t.Errorf("Proxies = %v", cb.Proxies)
	}
	if cb.ProxyOrdering != OrderingRoundRobin {
		t.Errorf("ProxyOrdering = %q", cb.ProxyOrdering)
	}
	if cb.BrowserSettings["locale"] != "en-US" {
		t.Errorf("BrowserSettings = %v", cb.BrowserSettings)
	}
}

func TestValidate(t *testing.T) {
	valid := CloudBrowserConfig{
		APIHost:         "https://browsers.example.net",
		APIToken:        "secret",
		NumBrowsers:     2,
		PagesPerBrowser: 100,
		StartSemaphores: 10,
		ProxyOrdering:   OrderingRandom,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*CloudBrowserConfig)
	}{
		{"missing host", func(c *CloudBrowserConfig) { c.APIHost = "" }},
		{"non-url host", func(c *CloudBrowserConfig) { c.APIHost = "noturl" }},
		{"missing token", func(c *CloudBrowserConfig) { c.APIToken = "" }},
		{"zero browsers", func(c *CloudBrowserConfig) { c.NumBrowsers = 0 }},
		{"negative pages", func(c *CloudBrowserConfig) { c.PagesPerBrowser = -1 }},
		{"zero semaphores", func(c *CloudBrowserConfig) { c.StartSemaphores = 0 }},
		{"unknown ordering", func(c *CloudBrowserConfig) { c.ProxyOrdering = "randomstring" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if models.CodeOf(err) != models.ErrCodeInvalidConfig {
				t.Errorf("expected %s, got %v", models.ErrCodeInvalidConfig, err)
			}
		})
	}
}
