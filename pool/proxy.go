package pool

import (
	"math/rand/v2"
	"sync"

	"github.com/use-agent/cloudbrowser/config"
)

// ProxyAssigner maps a pool slot index to a proxy URL from the configured
// list under the selected ordering policy. With an empty list every slot
// runs without a proxy.
type ProxyAssigner struct {
	proxies  []string
	ordering string

	mu      sync.Mutex
	cursors []int // per-slot round-robin position
}

// NewProxyAssigner creates an assigner for numSlots pool slots. Under
// round-robin, slot i starts at proxies[i mod len(proxies)] and each
// recycling of the slot advances its cursor by one, so a long-lived slot
// cycles through the whole list instead of sticking to one proxy.
func NewProxyAssigner(proxies []string, ordering string, numSlots int) *ProxyAssigner {
	cursors := make([]int, numSlots)
	for i := range cursors {
		cursors[i] = i
	}
	return &ProxyAssigner{
		proxies:  proxies,
		ordering: ordering,
		cursors:  cursors,
	}
}

// Assign returns the proxy URL for the next handle occupying slotIndex,
// or "" when no proxies are configured.
func (a *ProxyAssigner) Assign(slotIndex int) string {
	if len(a.proxies) == 0 {
		return ""
	}

	if a.ordering == config.OrderingRoundRobin {
		a.mu.Lock()
		defer a.mu.Unlock()
		proxy := a.proxies[a.cursors[slotIndex]%len(a.proxies)]
		a.cursors[slotIndex]++
		return proxy
	}

	return a.proxies[rand.IntN(len(a.proxies))]
}
