package engine

import (
	"context"
	"sync"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// CapabilityCache memoizes the capability snapshot so repeated workflows skip
// the probe. Invalidation is explicit; nothing expires on its own, because a
// hardware change without a restart is not a supported scenario.
type CapabilityCache struct {
	prober CapabilityProber

	mu    sync.Mutex
	valid bool
	caps  domain.CapabilityModel
}

// NewCapabilityCache wraps a prober.
func NewCapabilityCache(prober CapabilityProber) *CapabilityCache {
	return &CapabilityCache{prober: prober}
}

// Get returns the cached snapshot, probing on first use.
func (c *CapabilityCache) Get(ctx context.Context) (domain.CapabilityModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid {
		return c.caps, nil
	}
	return c.refreshLocked(ctx)
}

// Invalidate drops the cached snapshot; the next Get probes again.
func (c *CapabilityCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// Refresh forces a fresh probe and replaces the cached snapshot.
func (c *CapabilityCache) Refresh(ctx context.Context) (domain.CapabilityModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *CapabilityCache) refreshLocked(ctx context.Context) (domain.CapabilityModel, error) {
	caps, err := c.prober(ctx)
	if err != nil {
		return domain.CapabilityModel{}, err
	}
	c.caps = caps
	c.valid = true
	return caps, nil
}

// Prober adapts the cache back into a CapabilityProber for engine wiring.
func (c *CapabilityCache) Prober() CapabilityProber {
	return c.Get
}
