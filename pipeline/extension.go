// Package pipeline integrates the browser pool with the surrounding crawl
// pipeline's lifecycle: start warms the pool up, stop tears it down, and
// every page fetch is wrapped in acquire/release semantics.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/use-agent/cloudbrowser/models"
	"github.com/use-agent/cloudbrowser/pool"
)

// Extension is the boundary shim the pipeline drives. It owns no policy
// beyond translating pipeline events into pool operations and classifying
// failures for the pipeline's own retry logic.
type Extension struct {
	pool *pool.BrowserPool
}

// New wires the extension to a pool.
func New(p *pool.BrowserPool) *Extension {
	return &Extension{pool: p}
}

// Start is the pipeline-start hook; it warms the pool up.
func (e *Extension) Start(ctx context.Context) error {
	return e.pool.WarmUp(ctx)
}

// Stop is the pipeline-stop hook; it shuts the pool down.
func (e *Extension) Stop(ctx context.Context) error {
	return e.pool.Shutdown(ctx)
}

// Fetch acquires a session, executes the page fetch against it, and
// releases the session with the outcome. Errors keep their pool error
// codes so the pipeline can distinguish "browser died, retry the page"
// (SESSION_BROKEN, FETCH_FAILED) from "pool is shutting down, do not
// retry" (POOL_SHUT_DOWN) — the latter is always surfaced, never
// swallowed.
func (e *Extension) Fetch(ctx context.Context, req *models.FetchRequest) (*models.FetchResult, error) {
	h, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.Session().Fetch(ctx, req)

	// A failed fetch or a status above 499 retires the browser; the
	// result is still returned to the caller when there is one.
	pageSucceeded := err == nil && (result == nil || result.StatusCode <= 499)
	e.pool.Release(h, pageSucceeded)

	if err != nil {
		slog.Debug("fetch failed",
			"url", req.URL, "session", h.ID(), "code", models.CodeOf(err))
		return nil, err
	}
	return result, nil
}
