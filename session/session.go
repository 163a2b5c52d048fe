// Package session drives one remote browser provisioned by the cloud
// browser API, over its CDP websocket URL.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/cloudbrowser/models"
)

// DestroyFunc releases the remote profile backing a session. Best-effort;
// called once from Close.
type DestroyFunc func(ctx context.Context) error

// Options tune per-fetch behaviour.
type Options struct {
	// DefaultTimeout applies when a fetch request carries no timeout.
	DefaultTimeout time.Duration

	// MaxTimeout caps the timeout a request may ask for.
	MaxTimeout time.Duration
}

func (o *Options) defaults() {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 30 * time.Second
	}
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = 120 * time.Second
	}
}

// Session is one remote browser reachable over a CDP websocket. It is
// owned by a single pool slot; the pool guarantees at most one fetch runs
// against it at a time.
type Session struct {
	id      string
	browser *rod.Browser
	destroy DestroyFunc
	opts    Options
}

// Connect attaches to the remote browser behind wsURL. The session is not
// bound to the provisioning context: it outlives the provisioning call,
// and every operation takes its own context.
func Connect(id, wsURL string, destroy DestroyFunc, opts Options) (*Session, error) {
	opts.defaults()

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewPoolError(
			models.ErrCodeProvisioning,
			"failed to connect to remote browser",
			err,
		)
	}

	return &Session{
		id:      id,
		browser: browser,
		destroy: destroy,
		opts:    opts,
	}, nil
}

// ID returns the provisioning API's identifier for this session.
func (s *Session) ID() string { return s.id }

// Ping checks the remote browser is still responding (Browser.getVersion
// round-trip).
func (s *Session) Ping(ctx context.Context) error {
	_, err := proto.BrowserGetVersion{}.Call(s.browser.Context(ctx))
	return err
}

// Fetch loads one page in a fresh tab of the remote browser and returns
// the rendered markup. The tab is always closed afterwards.
//
// Failures are classified: if the browser itself no longer answers, the
// error is SESSION_BROKEN (the pool recycles the session); otherwise it
// is FETCH_FAILED and the caller may retry on another session.
func (s *Session) Fetch(ctx context.Context, req *models.FetchRequest) (*models.FetchResult, error) {
	req.Defaults()

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout > s.opts.MaxTimeout {
		timeout = s.opts.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		// Failing to even open a tab means the browser is gone.
		return nil, models.NewPoolError(
			models.ErrCodeSessionBroken,
			"failed to open page on remote browser",
			err,
		)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			slog.Debug("page close failed", "session", s.id, "error", cerr)
		}
	}()

	p := page.Context(ctx)

	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(req.Headers),
		}.Call(p)
	}

	if err := p.Navigate(req.URL); err != nil {
		return nil, s.classify(err, "navigation to target URL failed")
	}

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"session", s.id, "error", stableErr)
	}

	// Status code via the performance navigation entry; avoids CDP event
	// listeners that would have to be registered before Navigate.
	statusCode := 0
	if res, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = res.Value.Int()
	}

	html, err := p.HTML()
	if err != nil {
		return nil, s.classify(err, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &models.FetchResult{
		HTML:       html,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
	}, nil
}

// Close disconnects from the remote browser and releases its profile.
func (s *Session) Close(ctx context.Context) error {
	err := s.browser.Close()

	if s.destroy != nil {
		if derr := s.destroy(ctx); derr != nil {
			slog.Warn("profile destroy failed", "session", s.id, "error", derr)
		}
	}

	if err != nil {
		return models.NewPoolError(models.ErrCodeSessionBroken, "browser close failed", err)
	}
	return nil
}

// classify decides whether a fetch-time failure means the whole session
// died (recycle it) or only this page failed (retryable). A quick ping
// against the browser makes the distinction.
func (s *Session) classify(err error, msg string) error {
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pingErr := s.Ping(pingCtx); pingErr != nil {
		return models.NewPoolError(models.ErrCodeSessionBroken, msg, err)
	}
	return models.NewPoolError(models.ErrCodeFetch, msg, err)
}

// evalStringOrEmpty evaluates a JS expression and returns the string
// result, swallowing any errors (optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders
// type (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
