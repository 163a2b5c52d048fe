// Package cloudapi is the client for the cloud browser provisioning API.
// Sessions are one-time profiles: created per pool slot, destroyed when
// the slot recycles.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/cloudbrowser/config"
	"github.com/use-agent/cloudbrowser/models"
	"github.com/use-agent/cloudbrowser/pool"
	"github.com/use-agent/cloudbrowser/session"
)

const (
	createProfilePath = "/profiles/one_time"
	tokenHeader       = "x-cloud-api-token"
)

// Profile is one provisioned browser profile.
type Profile struct {
	ID    string `json:"id"`
	WSURL string `json:"ws_url"`
}

// Client talks to the provisioning API and implements pool.Provisioner.
type Client struct {
	host            string
	token           string
	browserSettings map[string]any
	fingerprint     map[string]any
	httpClient      *http.Client
	sessionOpts     session.Options
}

// NewClient builds a client from the pool configuration.
func NewClient(cfg config.CloudBrowserConfig) *Client {
	return &Client{
		host:            strings.TrimRight(cfg.APIHost, "/"),
		token:           cfg.APIToken,
		browserSettings: cfg.BrowserSettings,
		fingerprint:     cfg.Fingerprint,
		httpClient: &http.Client{
			Timeout: cfg.ProvisionTimeout,
		},
		sessionOpts: session.Options{
			DefaultTimeout: cfg.DefaultFetchTimeout,
			MaxTimeout:     cfg.MaxFetchTimeout,
		},
	}
}

// CreateProfile asks the provisioning API for a one-time browser profile
// and returns its identity and CDP websocket URL.
func (c *Client) CreateProfile(ctx context.Context, proxy string) (*Profile, error) {
	payload := map[string]any{}
	if proxy != "" {
		payload["proxy"] = proxy
	}
	if len(c.browserSettings) > 0 {
		payload["browser_settings"] = c.browserSettings
	}
	if len(c.fingerprint) > 0 {
		payload["fingerprint"] = c.fingerprint
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewPoolError(models.ErrCodeProvisioning, "failed to encode provisioning request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+createProfilePath, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewPoolError(models.ErrCodeProvisioning, "failed to build provisioning request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewPoolError(models.ErrCodeProvisioning, "provisioning request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, models.NewPoolError(
			models.ErrCodeProvisioning,
			fmt.Sprintf("provisioning API returned %d: %s", resp.StatusCode, string(excerpt)),
			nil,
		)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, models.NewPoolError(models.ErrCodeProvisioning, "failed to decode provisioning response", err)
	}
	if profile.WSURL == "" {
		return nil, models.NewPoolError(models.ErrCodeProvisioning, "provisioning response missing ws_url", nil)
	}
	if profile.ID == "" {
		// Some deployments return only the websocket URL; keep a local
		// identity so logs and teardown calls stay addressable.
		profile.ID = uuid.NewString()
	}
	return &profile, nil
}

// DestroyProfile releases a profile. Best-effort: a failed destroy is not
// fatal to pool teardown.
func (c *Client) DestroyProfile(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.host+"/profiles/"+id, nil)
	if err != nil {
		return err
	}
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("destroy profile %s: status %d", id, resp.StatusCode)
	}
	return nil
}

// CreateSession implements pool.Provisioner: provision a profile, then
// attach to its remote browser.
func (c *Client) CreateSession(ctx context.Context, opts pool.ProvisionOptions) (pool.Session, error) {
	start := time.Now()
	profile, err := c.CreateProfile(ctx, opts.Proxy)
	if err != nil {
		return nil, err
	}

	sess, err := session.Connect(profile.ID, profile.WSURL, func(ctx context.Context) error {
		return c.DestroyProfile(ctx, profile.ID)
	}, c.sessionOpts)
	if err != nil {
		// The profile was already provisioned; release it so it does not
		// leak on the remote side.
		if derr := c.DestroyProfile(ctx, profile.ID); derr != nil {
			slog.Warn("failed to destroy unattachable profile", "profile", profile.ID, "error", derr)
		}
		return nil, err
	}

	slog.Info("session provisioned",
		"profile", profile.ID,
		"proxy", opts.Proxy,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return sess, nil
}
