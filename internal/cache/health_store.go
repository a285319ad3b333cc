package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

const healthKeyPrefix = "imagegen:health:"

// staleRetention keeps entries around past their freshness window so the
// next probe can continue the consecutive-failure count.
const staleRetention = 3

// HealthStore shares provider probe results between instances through Redis.
// Freshness is decided by the registry from CheckedAt; the key TTL only
// bounds how long old entries linger.
type HealthStore struct {
	cache    *Manager
	observer Observer
}

// Observer 接收命中与未命中事件, metrics.Collector 实现了它
type Observer interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const healthCacheType = "provider_health"

var _ imagegen.HealthStore = (*HealthStore)(nil)

// NewHealthStore 创建基于 Redis 的健康状态存储
func NewHealthStore(m *Manager) *HealthStore {
	return &HealthStore{cache: m}
}

// WithObserver 设置命中统计
func (s *HealthStore) WithObserver(o Observer) *HealthStore {
	s.observer = o
	return s
}

// LoadHealth returns nil, nil when no entry exists.
func (s *HealthStore) LoadHealth(ctx context.Context, provider imagegen.ProviderID) (*imagegen.HealthStatus, error) {
	key := healthKeyPrefix + string(provider)
	var st imagegen.HealthStatus
	err := s.cache.GetJSON(ctx, key, &st)
	if IsCacheMiss(err) {
		if s.observer != nil {
			s.observer.RecordCacheMiss(healthCacheType)
		}
		return nil, nil
	}
	if err == nil && st.Provider != provider {
		err = fmt.Errorf("%w: entry belongs to %q", ErrCorruptValue, st.Provider)
	}
	if errors.Is(err, ErrCorruptValue) {
		// 坏条目直接删除, 下次检查重新探测并写入
		if derr := s.cache.Delete(ctx, key); derr != nil {
			err = errors.Join(err, derr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load health of %s: %w", provider, err)
	}
	if s.observer != nil {
		s.observer.RecordCacheHit(healthCacheType)
	}
	return &st, nil
}

// SaveHealth stores status for staleRetention × ttl.
func (s *HealthStore) SaveHealth(ctx context.Context, status imagegen.HealthStatus, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.cache.SetJSON(ctx, healthKeyPrefix+string(status.Provider), status, staleRetention*ttl)
}
