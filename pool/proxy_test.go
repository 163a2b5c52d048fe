package pool

import (
	"testing"

	"github.com/use-agent/cloudbrowser/config"
)

func TestAssignEmptyListReturnsNoProxy(t *testing.T) {
	a := NewProxyAssigner(nil, config.OrderingRoundRobin, 4)
	for slot := 0; slot < 4; slot++ {
		if got := a.Assign(slot); got != "" {
			t.Errorf("slot %d: expected no proxy, got %q", slot, got)
		}
	}
}

func TestAssignRoundRobinInitialOffsets(t *testing.T) {
	proxies := []string{"p0", "p1", "p2"}
	a := NewProxyAssigner(proxies, config.OrderingRoundRobin, 5)

	// Slot i starts at proxies[i mod len].
	want := []string{"p0", "p1", "p2", "p0", "p1"}
	for slot, w := range want {
		if got := a.Assign(slot); got != w {
			t.Errorf("slot %d first assignment: got %s, want %s", slot, got, w)
		}
	}
}

func TestAssignRoundRobinAdvancesPerSlot(t *testing.T) {
	proxies := []string{"p0", "p1", "p2"}
	a := NewProxyAssigner(proxies, config.OrderingRoundRobin, 2)

	// Repeated assignment of slot 0 cycles the whole list.
	want := []string{"p0", "p1", "p2", "p0"}
	for i, w := range want {
		if got := a.Assign(0); got != w {
			t.Errorf("slot 0 assignment %d: got %s, want %s", i, got, w)
		}
	}

	// Slot 1's cursor is independent of slot 0's churn.
	if got := a.Assign(1); got != "p1" {
		t.Errorf("slot 1 first assignment: got %s, want p1", got)
	}
}

func TestAssignRandomStaysInList(t *testing.T) {
	proxies := []string{"p0", "p1", "p2"}
	a := NewProxyAssigner(proxies, config.OrderingRandom, 1)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		got := a.Assign(0)
		switch got {
		case "p0", "p1", "p2":
			seen[got] = true
		default:
			t.Fatalf("assignment %d not in configured list: %q", i, got)
		}
	}
	// 200 draws over 3 proxies: seeing only one would mean the RNG is
	// not being consulted at all.
	if len(seen) < 2 {
		t.Errorf("random ordering returned a single proxy across 200 draws: %v", seen)
	}
}
