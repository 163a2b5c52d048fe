package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/cloudbrowser/config"
	"github.com/use-agent/cloudbrowser/models"
)

// teardownTimeout bounds the best-effort close of a recycled session.
const teardownTimeout = 15 * time.Second

// BrowserPool owns up to NumBrowsers remote browser sessions, one per
// logical slot. It drives their creation through the StartupGate, hands
// ready sessions to concurrent callers, recycles sessions that exhausted
// their page budget or died, and tears everything down on shutdown.
//
// The slot table is the only contended structure and is always mutated
// under the pool's mutex; provisioning, teardown and fetch calls run
// outside it. Ready handles travel through a buffered channel so waiters
// are notified the moment a refill completes.
type BrowserPool struct {
	cfg      config.CloudBrowserConfig
	prov     Provisioner
	assigner *ProxyAssigner
	gate     *StartupGate

	ready chan *SessionHandle

	mu     sync.Mutex
	slots  []*SessionHandle // nil while the slot is empty or refilling
	warmed bool
	shut   bool

	starting atomic.Int32
	pages    atomic.Int64
	recycled atomic.Int64

	rootCtx context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// New creates a pool. Invalid pool configuration is fatal and never
// recovered.
func New(cfg config.CloudBrowserConfig, prov Provisioner) (*BrowserPool, error) {
	if cfg.NumBrowsers <= 0 {
		return nil, models.NewPoolError(models.ErrCodeInvalidConfig, "NUM_BROWSERS must be positive", nil)
	}
	if cfg.PagesPerBrowser <= 0 {
		return nil, models.NewPoolError(models.ErrCodeInvalidConfig, "PAGES_PER_BROWSER must be positive", nil)
	}
	if cfg.StartSemaphores <= 0 {
		return nil, models.NewPoolError(models.ErrCodeInvalidConfig, "START_SEMAPHORES must be positive", nil)
	}
	if cfg.ProxyOrdering != config.OrderingRandom && cfg.ProxyOrdering != config.OrderingRoundRobin {
		return nil, models.NewPoolError(models.ErrCodeInvalidConfig, "unknown proxy ordering "+cfg.ProxyOrdering, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &BrowserPool{
		cfg:      cfg,
		prov:     prov,
		assigner: NewProxyAssigner(cfg.Proxies, cfg.ProxyOrdering, cfg.NumBrowsers),
		gate:     NewStartupGate(cfg.StartSemaphores),
		ready:    make(chan *SessionHandle, cfg.NumBrowsers),
		slots:    make([]*SessionHandle, cfg.NumBrowsers),
		rootCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// WarmUp provisions a session for every slot concurrently, each gated by
// the StartupGate. It returns once every slot has either a ready session
// or a recorded failure; a failed slot keeps retrying in the background
// and does not abort its siblings. Idempotent.
func (p *BrowserPool) WarmUp(ctx context.Context) error {
	p.mu.Lock()
	if p.shut {
		p.mu.Unlock()
		return errShutDown()
	}
	if p.warmed {
		p.mu.Unlock()
		return nil
	}
	p.warmed = true
	p.mu.Unlock()

	slog.Info("warming up browser pool",
		"numBrowsers", p.cfg.NumBrowsers,
		"startSemaphores", p.cfg.StartSemaphores,
		"proxies", len(p.cfg.Proxies),
	)

	if p.cfg.HeartbeatInterval > 0 {
		p.bg.Add(1)
		go p.heartbeatLoop()
	}

	var g errgroup.Group
	for slot := 0; slot < p.cfg.NumBrowsers; slot++ {
		g.Go(func() error {
			err := p.createHandle(ctx, slot)
			if err != nil && p.rootCtx.Err() == nil {
				slog.Warn("slot failed to start during warm-up", "slot", slot, "error", err)
				p.scheduleRefill(slot, true)
			}
			return err
		})
	}
	return g.Wait()
}

// Acquire returns a ready session handle, atomically marking it busy. It
// blocks until a session is available, the caller's ctx expires (Timeout
// error), or shutdown begins (PoolShutDown error). A handle whose
// heartbeat failed while parked is recycled and skipped, never returned.
func (p *BrowserPool) Acquire(ctx context.Context) (*SessionHandle, error) {
	for {
		p.mu.Lock()
		shut := p.shut
		p.mu.Unlock()
		if shut {
			return nil, errShutDown()
		}

		select {
		case h := <-p.ready:
			acquired, broken := h.tryAcquire()
			if acquired {
				return h, nil
			}
			if broken {
				slog.Info("skipping unhealthy session", "slot", h.Slot(), "session", h.ID())
				p.recycle(h)
			}
			// Otherwise the handle was invalidated while parked
			// (shutdown raced); loop and re-check.
		case <-p.rootCtx.Done():
			return nil, errShutDown()
		case <-ctx.Done():
			return nil, models.NewPoolError(models.ErrCodeTimeout,
				"no session became available before the deadline", ctx.Err())
		}
	}
}

// Release returns a busy handle to the pool. A successful page increments
// the handle's usage; the handle goes back to ready unless it reached its
// page budget or the caller signalled breakage, in which case it is
// recycled and its slot refilled under the StartupGate.
func (p *BrowserPool) Release(h *SessionHandle, pageSucceeded bool) {
	h.mu.Lock()
	if h.state != StateBusy {
		// Already torn down (shutdown raced the release). Nothing to do.
		h.mu.Unlock()
		return
	}
	if pageSucceeded {
		h.pagesServed++
		p.pages.Add(1)
	}
	expired := h.pagesServed >= p.cfg.PagesPerBrowser
	dead := !pageSucceeded || h.broken || expired
	if dead {
		h.state = StateDead
	} else {
		h.state = StateReady
	}
	h.mu.Unlock()

	if dead {
		if expired {
			slog.Info("session exhausted its page budget, recycling",
				"slot", h.slot, "session", h.ID(), "pagesServed", h.PagesServed())
		} else {
			slog.Warn("session reported broken, recycling", "slot", h.slot, "session", h.ID())
		}
		p.recycle(h)
		return
	}

	p.mu.Lock()
	shut := p.shut
	p.mu.Unlock()
	if shut {
		return
	}
	p.ready <- h
}

// Shutdown marks the pool as shutting down, cancels queued gate waits and
// background refills, and tears down every live session concurrently. It
// returns once all teardowns finish or ctx expires, whichever is first.
func (p *BrowserPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shut {
		p.mu.Unlock()
		return nil
	}
	p.shut = true
	handles := make([]*SessionHandle, 0, len(p.slots))
	for i, h := range p.slots {
		if h != nil {
			handles = append(handles, h)
			p.slots[i] = nil
		}
	}
	p.mu.Unlock()

	// Wake queued StartupGate waits, refill loops, the heartbeat, and
	// blocked Acquire callers.
	p.cancel()

	// Handles parked in the ready channel are the same pointers already
	// collected from the slot table; just empty the channel.
drainLoop:
	for {
		select {
		case <-p.ready:
		default:
			break drainLoop
		}
	}

	var wg sync.WaitGroup
	closing := 0
	for _, h := range handles {
		h.mu.Lock()
		if h.state == StateDead {
			h.mu.Unlock()
			continue
		}
		h.state = StateDead
		h.mu.Unlock()

		closing++
		wg.Add(1)
		go func(h *SessionHandle) {
			defer wg.Done()
			if err := h.session.Close(ctx); err != nil {
				slog.Warn("session teardown failed during shutdown",
					"slot", h.slot, "session", h.ID(), "error", err)
			}
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		p.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser pool shut down", "sessions", closing)
	case <-ctx.Done():
		slog.Warn("shutdown deadline elapsed, abandoning pending teardowns",
			"sessions", closing)
	}
	return nil
}

// Stats returns a snapshot of the pool's current state.
func (p *BrowserPool) Stats() models.PoolStats {
	p.mu.Lock()
	var ready, busy int
	for _, h := range p.slots {
		if h == nil {
			continue
		}
		switch h.State() {
		case StateReady:
			ready++
		case StateBusy:
			busy++
		}
	}
	p.mu.Unlock()

	return models.PoolStats{
		NumBrowsers: p.cfg.NumBrowsers,
		Ready:       ready,
		Busy:        busy,
		Starting:    int(p.starting.Load()),
		PagesServed: p.pages.Load(),
		Recycled:    p.recycled.Load(),
	}
}

// createHandle provisions one session for slot and installs it. The gate
// permit covers only the provisioning call itself, not subsequent usage.
func (p *BrowserPool) createHandle(ctx context.Context, slot int) error {
	ctx, cancel := p.joinShutdown(ctx)
	defer cancel()

	if err := p.gate.Acquire(ctx); err != nil {
		if p.rootCtx.Err() != nil {
			return errShutDown()
		}
		return models.NewPoolError(models.ErrCodeTimeout, "startup gate wait cancelled", err)
	}

	proxy := p.assigner.Assign(slot)
	p.starting.Add(1)
	sess, err := p.prov.CreateSession(ctx, ProvisionOptions{Proxy: proxy})
	p.starting.Add(-1)
	p.gate.Release()
	if err != nil {
		if _, ok := err.(*models.PoolError); !ok {
			err = models.NewPoolError(models.ErrCodeProvisioning, "session provisioning failed", err)
		}
		return err
	}

	h := &SessionHandle{session: sess, proxy: proxy, slot: slot, state: StateReady}

	p.mu.Lock()
	if p.shut {
		p.mu.Unlock()
		cctx, ccancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer ccancel()
		if cerr := sess.Close(cctx); cerr != nil {
			slog.Warn("teardown of late-provisioned session failed", "slot", slot, "error", cerr)
		}
		return errShutDown()
	}
	p.slots[slot] = h
	p.mu.Unlock()

	// The send makes the new handle visible to waiters before any further
	// refill for another slot is admitted by the gate.
	p.ready <- h
	slog.Debug("session installed",
		"slot", slot, "session", sess.ID(), "proxy", proxy)
	return nil
}

// recycle removes a dead handle from its slot, tears the session down
// best-effort, and starts a gated refill of the slot.
func (p *BrowserPool) recycle(h *SessionHandle) {
	p.mu.Lock()
	if p.slots[h.slot] == h {
		p.slots[h.slot] = nil
	}
	shut := p.shut
	p.mu.Unlock()

	p.recycled.Add(1)

	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := h.session.Close(ctx); err != nil {
			slog.Warn("session teardown failed", "slot", h.slot, "session", h.ID(), "error", err)
		}
	}()

	if !shut {
		p.scheduleRefill(h.slot, false)
	}
}

// scheduleRefill keeps attempting createHandle for slot until it succeeds
// or shutdown begins. delayFirst pushes the first attempt behind a backoff
// interval, used after a failed warm-up attempt to avoid an immediate
// duplicate call.
func (p *BrowserPool) scheduleRefill(slot int, delayFirst bool) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		backoff := 500 * time.Millisecond
		if delayFirst {
			select {
			case <-p.rootCtx.Done():
				return
			case <-time.After(backoff):
			}
		}
		for {
			err := p.createHandle(p.rootCtx, slot)
			if err == nil || p.rootCtx.Err() != nil {
				return
			}
			slog.Warn("slot refill failed, retrying",
				"slot", slot, "backoff", backoff, "error", err)
			select {
			case <-p.rootCtx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

// heartbeatLoop pings every live session on an interval. A session that
// fails its ping is flagged; Acquire recycles it instead of handing it
// out, and a busy one is recycled at release time.
func (p *BrowserPool) heartbeatLoop() {
	defer p.bg.Done()
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.rootCtx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		live := make([]*SessionHandle, 0, len(p.slots))
		for _, h := range p.slots {
			if h != nil {
				live = append(live, h)
			}
		}
		p.mu.Unlock()

		for _, h := range live {
			ctx, cancel := context.WithTimeout(p.rootCtx, p.cfg.HeartbeatInterval)
			err := h.session.Ping(ctx)
			cancel()
			if err != nil && p.rootCtx.Err() == nil {
				slog.Warn("heartbeat ping failed",
					"slot", h.slot, "session", h.ID(), "error", err)
				h.markBroken()
			}
		}
	}
}

// joinShutdown derives a context cancelled by either the caller's ctx or
// pool shutdown, so queued startups abort promptly in both cases.
func (p *BrowserPool) joinShutdown(ctx context.Context) (context.Context, context.CancelFunc) {
	mctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.rootCtx, cancel)
	return mctx, func() {
		stop()
		cancel()
	}
}

func errShutDown() error {
	return models.NewPoolError(models.ErrCodeShutDown, "browser pool is shutting down", nil)
}
