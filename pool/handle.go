package pool

import (
	"context"
	"sync"

	"github.com/use-agent/cloudbrowser/models"
)

// Session is one provisioned remote browser as the pool sees it. The
// concrete implementation lives in the session package; tests substitute
// fakes.
type Session interface {
	// ID returns the opaque identifier assigned by the provisioning API.
	ID() string

	// Fetch retrieves one page through this session.
	Fetch(ctx context.Context, req *models.FetchRequest) (*models.FetchResult, error)

	// Ping verifies the remote browser is still reachable.
	Ping(ctx context.Context) error

	// Close tears the session down. Best-effort; failures are logged by
	// the pool, never retried.
	Close(ctx context.Context) error
}

// ProvisionOptions carries the per-slot parameters of one provisioning call.
type ProvisionOptions struct {
	// Proxy is the proxy URL bound to the new session, or "" for none.
	Proxy string
}

// Provisioner creates remote browser sessions against the external
// provisioning API.
type Provisioner interface {
	CreateSession(ctx context.Context, opts ProvisionOptions) (Session, error)
}

// HandleState is the lifecycle state of a SessionHandle.
type HandleState int

const (
	StateStarting HandleState = iota
	StateReady
	StateBusy
	StateDead
)

func (s HandleState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

// SessionHandle is the pool's record of one provisioned session occupying
// a slot. The proxy is bound once at creation and never changes; recycling
// replaces the whole handle, not its fields. Dead is terminal.
type SessionHandle struct {
	session Session
	proxy   string
	slot    int

	mu          sync.Mutex
	state       HandleState
	pagesServed int
	broken      bool
}

// Session returns the remote session behind this handle.
func (h *SessionHandle) Session() Session { return h.session }

// ID returns the remote session identifier.
func (h *SessionHandle) ID() string { return h.session.ID() }

// Proxy returns the proxy URL bound at creation, or "".
func (h *SessionHandle) Proxy() string { return h.proxy }

// Slot returns the logical pool slot this handle occupies.
func (h *SessionHandle) Slot() int { return h.slot }

// State returns the current lifecycle state.
func (h *SessionHandle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PagesServed returns how many pages this handle has successfully served.
func (h *SessionHandle) PagesServed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pagesServed
}

// markBroken flags the handle so it is recycled instead of handed out
// again. Set by the heartbeat loop and by fetch-time failure signals.
func (h *SessionHandle) markBroken() {
	h.mu.Lock()
	h.broken = true
	h.mu.Unlock()
}

// tryAcquire transitions ready→busy. A handle flagged broken is moved to
// dead instead and reported so the caller can recycle it.
func (h *SessionHandle) tryAcquire() (acquired, broken bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateReady {
		return false, false
	}
	if h.broken {
		h.state = StateDead
		return false, true
	}
	h.state = StateBusy
	return true, false
}
