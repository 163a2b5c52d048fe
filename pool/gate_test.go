package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartupGateBoundsConcurrency(t *testing.T) {
	const permits = 3
	const workers = 12

	g := NewStartupGate(permits)

	var inflight, maxInflight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			cur := inflight.Add(1)
			for {
				max := maxInflight.Load()
				if cur <= max || maxInflight.CompareAndSwap(max, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			g.Release()
		}()
	}
	wg.Wait()

	if got := maxInflight.Load(); got > permits {
		t.Errorf("max concurrent holders %d exceeded %d permits", got, permits)
	}
}

func TestStartupGateAcquireIsCancellable(t *testing.T) {
	g := NewStartupGate(1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Acquire(ctx)
	if err == nil {
		g.Release()
		t.Fatal("expected queued acquire to be cancelled")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("acquire returned after %v, before the deadline", elapsed)
	}
}
