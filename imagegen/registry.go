package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

// providerEntry is one row of the compile-time provider table.
type providerEntry struct {
	capabilities   func() Capabilities
	newAdapter     func(cfg ProviderConfig, logger *zap.Logger) Adapter
	configured     func(cfg ProviderConfig) bool
	decodeSpecific func(json.RawMessage) (SpecificSettings, error)
}

// builtinProviders 编译期供应商表. 新增供应商需要在此登记并实现 Adapter.
var builtinProviders = map[ProviderID]providerEntry{
	ProviderOpenAI: {
		capabilities:   openAICapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewOpenAIAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[OpenAISettings],
	},
	ProviderFlux: {
		capabilities:   fluxCapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewFluxAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[FluxSettings],
	},
	ProviderStability: {
		capabilities:   stabilityCapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewStabilityAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[StabilitySettings],
	},
	ProviderIdeogram: {
		capabilities:   ideogramCapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewIdeogramAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[IdeogramSettings],
	},
	ProviderImagen: {
		capabilities:   imagenCapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewImagenAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[ImagenSettings],
	},
	ProviderRecraft: {
		capabilities:   recraftCapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewRecraftAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[RecraftSettings],
	},
	ProviderFal: {
		capabilities:   falCapabilities,
		newAdapter:     func(c ProviderConfig, l *zap.Logger) Adapter { return NewFalAdapter(c, l) },
		configured:     requireAPIKey,
		decodeSpecific: decodeVariant[FalSettings],
	},
}

func requireAPIKey(cfg ProviderConfig) bool {
	return cfg.Enabled && strings.TrimSpace(cfg.APIKey) != ""
}

// BuiltinCapabilities returns the declared capabilities of a provider whether
// or not it is configured.
func BuiltinCapabilities(id ProviderID) (Capabilities, bool) {
	entry, ok := builtinProviders[id]
	if !ok {
		return Capabilities{}, false
	}
	return entry.capabilities(), true
}

// Registry holds the configured adapters and their cached health.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ProviderID]Adapter
	priority []ProviderID

	health *healthCache
	logger *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHealthStore shares health results through store.
func WithHealthStore(store HealthStore) RegistryOption {
	return func(r *Registry) { r.health.store = store }
}

// WithClock replaces the clock used for health freshness.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.health.now = now }
}

// NewRegistry builds adapters for every enabled provider that has the
// configuration it needs. Unconfigured providers are skipped, not errors.
func NewRegistry(cfg RegistryConfig, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "imagegen_registry"))

	ttl := cfg.HealthTTL
	if ttl <= 0 {
		ttl = defaultHealthTTL
	}
	threshold := cfg.FailureThreshold
	if threshold < 1 {
		threshold = defaultFailureThreshold
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}

	r := &Registry{
		adapters: make(map[ProviderID]Adapter),
		priority: normalizePriority(cfg.Priority),
		health:   newHealthCache(ttl, threshold, probeTimeout, logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, id := range AllProviders {
		entry := builtinProviders[id]
		pc, ok := cfg.Providers[id]
		if !ok || !entry.configured(pc) {
			logger.Debug("provider not configured", zap.String("provider", string(id)))
			continue
		}
		r.adapters[id] = entry.newAdapter(pc, logger)
		logger.Info("provider registered", zap.String("provider", string(id)))
	}
	return r
}

// normalizePriority drops unknown and duplicate ids and appends the providers
// missing from p in AllProviders order.
func normalizePriority(p []ProviderID) []ProviderID {
	seen := make(map[ProviderID]bool, len(AllProviders))
	out := make([]ProviderID, 0, len(AllProviders))
	for _, id := range p {
		if id.Valid() && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range AllProviders {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// Register installs or replaces the adapter of a known provider and resets
// its cached health.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter must not be nil")
	}
	if !a.ID().Valid() {
		return fmt.Errorf("unknown provider %q", a.ID())
	}
	r.mu.Lock()
	r.adapters[a.ID()] = a
	r.mu.Unlock()
	r.health.invalidate(a.ID())
	return nil
}

// Adapter returns the configured adapter of id.
func (r *Registry) Adapter(id ProviderID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Capabilities returns the capabilities of id, configured or not.
func (r *Registry) Capabilities(id ProviderID) (Capabilities, bool) {
	if a, ok := r.Adapter(id); ok {
		return a.Capabilities(), true
	}
	return BuiltinCapabilities(id)
}

// ListAvailable returns configured providers in priority order. It does not
// consult health.
func (r *Registry) ListAvailable() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderID, 0, len(r.adapters))
	for _, id := range r.priority {
		if _, ok := r.adapters[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// CheckHealth returns the cached health of id, probing when the entry is
// missing or older than the TTL.
func (r *Registry) CheckHealth(ctx context.Context, id ProviderID) HealthStatus {
	a, ok := r.Adapter(id)
	if !ok {
		return HealthStatus{Provider: id, LastError: "provider not configured"}
	}
	return r.health.get(ctx, a)
}

// CheckHealthAll probes every known provider concurrently.
func (r *Registry) CheckHealthAll(ctx context.Context) map[ProviderID]HealthStatus {
	var (
		mu  sync.Mutex
		out = make(map[ProviderID]HealthStatus, len(AllProviders))
		g   errgroup.Group
	)
	for _, id := range AllProviders {
		g.Go(func() error {
			st := r.CheckHealth(ctx, id)
			mu.Lock()
			out[id] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// SelectProvider resolves the provider for a request.
//
// With a preference the preferred provider must be available and healthy;
// there is no fallback to another provider. Without one, the first healthy
// provider in priority order wins.
func (r *Registry) SelectProvider(ctx context.Context, preferred ProviderID) (ProviderID, error) {
	if preferred != "" {
		if !preferred.Valid() {
			return "", types.NewError(types.ErrInvalidParameters, fmt.Sprintf("unknown provider %q", preferred))
		}
		st := r.CheckHealth(ctx, preferred)
		if !st.Available {
			return "", types.NewError(types.ErrServiceUnavailable, "provider is not configured").
				WithProvider(string(preferred))
		}
		if !st.Healthy {
			msg := "provider is unhealthy"
			if st.LastError != "" {
				msg += ": " + st.LastError
			}
			return "", types.NewError(types.ErrServiceUnavailable, msg).WithProvider(string(preferred))
		}
		return preferred, nil
	}

	for _, id := range r.ListAvailable() {
		if st := r.CheckHealth(ctx, id); st.Healthy {
			return id, nil
		}
		r.logger.Debug("skipping unhealthy provider", zap.String("provider", string(id)))
	}
	return "", types.NewError(types.ErrServiceUnavailable, "no healthy image provider available")
}

// RecordFailure notes a generation failure against id. Only the cached
// LastError changes; health is decided by probes.
func (r *Registry) RecordFailure(id ProviderID, err error) {
	r.health.recordFailure(id, err)
}
