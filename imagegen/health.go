package imagegen

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HealthStore shares probe results between service instances. Entries are a
// cache, never ground truth; a missing or expired entry triggers a probe.
type HealthStore interface {
	// LoadHealth returns nil, nil when no entry exists.
	LoadHealth(ctx context.Context, provider ProviderID) (*HealthStatus, error)
	SaveHealth(ctx context.Context, status HealthStatus, ttl time.Duration) error
}

// healthCache caches probe results for ttl and coalesces concurrent refreshes
// of the same provider into a single probe.
type healthCache struct {
	mu      sync.RWMutex
	entries map[ProviderID]HealthStatus
	group   singleflight.Group

	ttl          time.Duration
	threshold    int
	probeTimeout time.Duration
	store        HealthStore
	now          func() time.Time
	logger       *zap.Logger
}

func newHealthCache(ttl time.Duration, threshold int, probeTimeout time.Duration, logger *zap.Logger) *healthCache {
	return &healthCache{
		entries:      make(map[ProviderID]HealthStatus),
		ttl:          ttl,
		threshold:    threshold,
		probeTimeout: probeTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

func (c *healthCache) cached(id ProviderID) (HealthStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.entries[id]
	return st, ok
}

func (c *healthCache) set(st HealthStatus) {
	c.mu.Lock()
	c.entries[st.Provider] = st
	c.mu.Unlock()
}

func (c *healthCache) fresh(st HealthStatus) bool {
	return !st.CheckedAt.IsZero() && c.now().Sub(st.CheckedAt) < c.ttl
}

// get returns a fresh status for a, probing at most once per provider at a time.
func (c *healthCache) get(ctx context.Context, a Adapter) HealthStatus {
	id := a.ID()
	if st, ok := c.cached(id); ok && c.fresh(st) {
		return st
	}
	v, _, _ := c.group.Do(string(id), func() (any, error) {
		return c.refresh(ctx, a), nil
	})
	return v.(HealthStatus)
}

func (c *healthCache) refresh(ctx context.Context, a Adapter) HealthStatus {
	id := a.ID()
	prev, ok := c.cached(id)
	if ok && c.fresh(prev) {
		return prev
	}

	if c.store != nil {
		shared, err := c.store.LoadHealth(ctx, id)
		switch {
		case err != nil:
			c.logger.Warn("health store load failed", zap.String("provider", string(id)), zap.Error(err))
		case shared != nil && c.fresh(*shared):
			c.set(*shared)
			return *shared
		case shared != nil && !ok:
			prev = *shared
		}
	}

	// 探测与调用方的取消解耦: 合并后的刷新结果由所有等待者共享
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.probeTimeout)
	defer cancel()

	start := time.Now()
	err := a.HealthCheck(probeCtx)
	latency := time.Since(start)

	st := HealthStatus{
		Provider:  id,
		Available: true,
		CheckedAt: c.now(),
		Latency:   latency,
	}
	if err != nil {
		st.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		st.LastError = err.Error()
	}
	st.Healthy = st.ConsecutiveFailures < c.threshold

	observeProviderHealthCheck(id, st.Healthy, latency, err)
	if prev.Healthy != st.Healthy || prev.CheckedAt.IsZero() {
		c.logger.Info("provider health changed",
			zap.String("provider", string(id)),
			zap.Bool("healthy", st.Healthy),
			zap.Int("consecutive_failures", st.ConsecutiveFailures),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	}

	c.set(st)
	if c.store != nil {
		if serr := c.store.SaveHealth(probeCtx, st, c.ttl); serr != nil {
			c.logger.Warn("health store save failed", zap.String("provider", string(id)), zap.Error(serr))
		}
	}
	return st
}

// recordFailure stores the error for display. Freshness, health and the
// failure counter are left untouched.
func (c *healthCache) recordFailure(id ProviderID, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.entries[id]
	if !ok {
		st = HealthStatus{Provider: id, Available: true, Healthy: true}
	}
	st.LastError = err.Error()
	c.entries[id] = st
}

// invalidate drops the local entry so the next check probes again.
func (c *healthCache) invalidate(id ProviderID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
