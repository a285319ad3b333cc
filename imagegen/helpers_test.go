package imagegen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

// fakeAdapter 可控的适配器, 用于注册表与编排测试
type fakeAdapter struct {
	id   ProviderID
	caps Capabilities

	mu          sync.Mutex
	healthErr   error
	healthDelay time.Duration
	generate    func(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error)
	lastReq     GenerationRequest
	lastSet     EffectiveSettings

	probes        atomic.Int32
	generateCalls atomic.Int32
}

func newFakeAdapter(id ProviderID) *fakeAdapter {
	caps, _ := BuiltinCapabilities(id)
	return &fakeAdapter{
		id:   id,
		caps: caps,
		generate: func(_ context.Context, req *GenerationRequest, _ *EffectiveSettings) (*GenerationResponse, error) {
			return &GenerationResponse{ImageData: pngBytes, Model: "fake-" + string(id)}, nil
		},
	}
}

func (f *fakeAdapter) setHealth(err error) {
	f.mu.Lock()
	f.healthErr = err
	f.mu.Unlock()
}

func (f *fakeAdapter) ID() ProviderID { return f.id }

func (f *fakeAdapter) Capabilities() Capabilities { return f.caps.clone() }

func (f *fakeAdapter) ValidateParams(req *GenerationRequest, s *EffectiveSettings) error {
	return validateRequest(f.caps, req, s)
}

func (f *fakeAdapter) EstimateCost(req *GenerationRequest, s *EffectiveSettings) float64 {
	return ComputeCost(f.caps, req.AspectRatio, qualityOf(req, s), imageCount(s))
}

func (f *fakeAdapter) Generate(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error) {
	f.generateCalls.Add(1)
	f.mu.Lock()
	f.lastReq = *req
	f.lastSet = *s
	gen := f.generate
	f.mu.Unlock()
	return gen(ctx, req, s)
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error {
	f.probes.Add(1)
	f.mu.Lock()
	err, delay := f.healthErr, f.healthDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memHealthStore is an in-process HealthStore.
type memHealthStore struct {
	mu      sync.Mutex
	entries map[ProviderID]HealthStatus
	saves   int
}

func newMemHealthStore() *memHealthStore {
	return &memHealthStore{entries: make(map[ProviderID]HealthStatus)}
}

func (m *memHealthStore) LoadHealth(_ context.Context, id ProviderID) (*HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memHealthStore) SaveHealth(_ context.Context, st HealthStatus, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[st.Provider] = st
	m.saves++
	return nil
}

// memSettingsStore serves fixed active profiles.
type memSettingsStore struct {
	mu       sync.Mutex
	active   map[ProviderID]*SettingsProfile
	err      error
	writeErr error
	upserted []*SettingsProfile
}

func newMemSettingsStore() *memSettingsStore {
	return &memSettingsStore{active: make(map[ProviderID]*SettingsProfile)}
}

func (m *memSettingsStore) ActiveProfile(_ context.Context, id ProviderID) (*SettingsProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.active[id], nil
}

func (m *memSettingsStore) Upsert(_ context.Context, p *SettingsProfile) (*SettingsProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	cp := *p
	if cp.ID == "" {
		cp.ID = "generated"
	}
	cp.Version++
	m.upserted = append(m.upserted, &cp)
	return &cp, nil
}

func (m *memSettingsStore) Get(_ context.Context, id string) (*SettingsProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.active {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (m *memSettingsStore) List(_ context.Context, filter ProfileFilter) ([]*SettingsProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SettingsProfile
	for _, p := range m.active {
		if filter.ProviderID == "" || p.ProviderID == filter.ProviderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memSettingsStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, p := range m.active {
		if p.ID == id {
			if p.IsDefault {
				return ErrDefaultProfile
			}
			delete(m.active, k)
			return nil
		}
	}
	return ErrProfileNotFound
}
