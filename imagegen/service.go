package imagegen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

// CreditChecker asks the credit ledger whether a user may generate at all.
// It is consulted before any provider is touched.
type CreditChecker interface {
	HasCredits(ctx context.Context, userID string) (bool, error)
}

// Service is the orchestration entry point of the image generation core.
type Service struct {
	registry *Registry
	store    SettingsStore
	credits  CreditChecker
	timeout  time.Duration
	logger   *zap.Logger
	inst     *instruments
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCreditChecker enables the pre-flight credit check.
func WithCreditChecker(c CreditChecker) ServiceOption {
	return func(s *Service) { s.credits = c }
}

// WithGenerateTimeout bounds every provider call. Defaults to 120s.
func WithGenerateTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates the orchestrator. store may be nil, in which case
// capability defaults are used and profile administration is disabled.
func NewService(registry *Registry, store SettingsStore, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		registry: registry,
		store:    store,
		timeout:  defaultTimeout,
		logger:   logger.With(zap.String("component", "imagegen_service")),
		inst:     newInstruments(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the provider registry.
func (s *Service) Registry() *Registry { return s.registry }

// GenerateImage selects a provider, validates and prices the request, and
// runs one generation. There is no automatic fallback to another provider.
func (s *Service) GenerateImage(ctx context.Context, req *GenerationRequest, preferred ProviderID) (*GenerationResponse, error) {
	ctx, span := s.inst.start(ctx, "imagegen.generate",
		attribute.String("imagegen.preferred_provider", string(preferred)),
		attribute.String("user.id", req.UserID),
	)
	defer span.End()

	start := time.Now()
	var provider ProviderID
	var cost float64
	fail := func(err error) (*GenerationResponse, error) {
		cerr := Classify(provider, err)
		span.RecordError(cerr)
		span.SetStatus(codes.Error, string(cerr.Code))
		s.inst.recordGeneration(ctx, provider, time.Since(start), 0, cerr)
		if provider != "" && (cerr.Code == types.ErrServiceUnavailable || cerr.Code == types.ErrRateLimited) {
			s.registry.RecordFailure(provider, err)
		}
		s.logger.Warn("image generation failed",
			zap.String("provider", string(provider)),
			zap.String("user_id", req.UserID),
			zap.String("event_type", req.EventType),
			zap.String("code", string(cerr.Code)),
			zap.Float64("estimated_cost", cost),
			zap.Error(err),
		)
		return nil, cerr
	}

	// 1. 积分前置检查
	if err := s.checkCredits(ctx, req); err != nil {
		return fail(err)
	}

	// 2. 选择供应商
	provider, err := s.registry.SelectProvider(ctx, preferred)
	if err != nil {
		return fail(err)
	}
	adapter, ok := s.registry.Adapter(provider)
	if !ok {
		return fail(types.NewError(types.ErrServiceUnavailable, "provider is not configured"))
	}
	span.SetAttributes(attribute.String("imagegen.provider", string(provider)))

	// 3. 合并配置
	settings, err := s.effectiveSettings(ctx, adapter.Capabilities(), req.ProviderOptions)
	if err != nil {
		return fail(err)
	}

	// The adapter sees a copy carrying the resolved quality and seed.
	call := *req
	if call.Quality == "" {
		call.Quality = settings.Quality
	}
	seed := ResolveSeed(req)
	call.Seed = &seed

	// 4. 参数校验 (任何网络调用之前)
	if err := adapter.ValidateParams(&call, settings); err != nil {
		return fail(err)
	}

	// 5. 成本估算与上限
	cost = adapter.EstimateCost(&call, settings)
	if err := checkCostLimits(provider, cost, settings, req.AvailableCredits); err != nil {
		return fail(err)
	}
	if !adapter.Capabilities().SupportsSeed {
		call.Seed = nil
	}

	// 6. 生成
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := adapter.Generate(genCtx, &call, settings)
	if err != nil {
		return fail(err)
	}
	if resp == nil || len(resp.ImageData) == 0 {
		return fail(ErrNoImage)
	}

	// 7. 填充元数据
	resp.Provider = provider
	resp.Seed = seed
	resp.SeedApplied = call.Seed != nil
	resp.Cost = cost
	resp.GenerationTime = time.Since(start)
	if resp.MimeType == "" {
		resp.MimeType = sniffMime(resp.ImageData, "")
	}

	span.SetAttributes(
		attribute.Int64("imagegen.seed", seed),
		attribute.Float64("imagegen.cost", cost),
	)
	s.inst.recordGeneration(ctx, provider, resp.GenerationTime, cost, nil)
	s.logger.Info("image generated",
		zap.String("provider", string(provider)),
		zap.String("model", resp.Model),
		zap.String("user_id", req.UserID),
		zap.String("event_type", req.EventType),
		zap.Int64("seed", seed),
		zap.Float64("cost", cost),
		zap.Duration("duration", resp.GenerationTime),
	)
	return resp, nil
}

func (s *Service) checkCredits(ctx context.Context, req *GenerationRequest) error {
	if req.AvailableCredits != nil {
		v := *req.AvailableCredits
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("available credits %v: %w", v, ErrInsufficientCredits)
		}
	}
	if s.credits == nil {
		return nil
	}
	ok, err := s.credits.HasCredits(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("credit check: %w", err)
	}
	if !ok {
		return ErrInsufficientCredits
	}
	return nil
}

func checkCostLimits(provider ProviderID, cost float64, s *EffectiveSettings, available *float64) error {
	n := imageCount(s)
	if s.MaxCostPerImage > 0 && cost/float64(n) > s.MaxCostPerImage {
		return invalidf(provider, "cost", "%.6f per image exceeds the %.6f ceiling", cost/float64(n), s.MaxCostPerImage)
	}
	if s.MaxCostPerRequest > 0 && cost > s.MaxCostPerRequest {
		return invalidf(provider, "cost", "%.6f exceeds the %.6f request ceiling", cost, s.MaxCostPerRequest)
	}
	if available != nil && cost > *available {
		return fmt.Errorf("cost %.6f above available %.6f: %w", cost, *available, ErrInsufficientCredits)
	}
	return nil
}

// EstimateCost prices a request without generating anything.
func (s *Service) EstimateCost(ctx context.Context, req *GenerationRequest, preferred ProviderID) (*CostEstimate, error) {
	ctx, span := s.inst.start(ctx, "imagegen.estimate")
	defer span.End()

	provider, err := s.registry.SelectProvider(ctx, preferred)
	if err != nil {
		return nil, Classify(preferred, err)
	}
	adapter, ok := s.registry.Adapter(provider)
	if !ok {
		return nil, Classify(provider, types.NewError(types.ErrServiceUnavailable, "provider is not configured"))
	}
	settings, err := s.effectiveSettings(ctx, adapter.Capabilities(), req.ProviderOptions)
	if err != nil {
		return nil, Classify(provider, err)
	}
	call := *req
	if call.Quality == "" {
		call.Quality = settings.Quality
	}
	if err := adapter.ValidateParams(&call, settings); err != nil {
		return nil, Classify(provider, err)
	}

	size, _ := adapter.Capabilities().SizeFor(call.AspectRatio)
	est := &CostEstimate{
		Provider: provider,
		Cost:     adapter.EstimateCost(&call, settings),
		Quality:  call.Quality,
		Width:    size.Width,
		Height:   size.Height,
		Images:   imageCount(settings),
	}
	s.logger.Debug("cost estimated", zap.String("provider", string(provider)), zap.Float64("cost", est.Cost))
	return est, nil
}

// ListAvailableProviders returns configured providers in priority order.
func (s *Service) ListAvailableProviders(ctx context.Context) []ProviderID {
	_, span := s.inst.start(ctx, "imagegen.list_providers")
	defer span.End()
	return s.registry.ListAvailable()
}

// GetProvidersHealth returns the health of every known provider.
func (s *Service) GetProvidersHealth(ctx context.Context) map[ProviderID]HealthStatus {
	ctx, span := s.inst.start(ctx, "imagegen.providers_health")
	defer span.End()
	return s.registry.CheckHealthAll(ctx)
}

// GetProviderCapabilities returns the declared capabilities of a provider.
func (s *Service) GetProviderCapabilities(ctx context.Context, id ProviderID) (Capabilities, error) {
	_, span := s.inst.start(ctx, "imagegen.capabilities", attribute.String("imagegen.provider", string(id)))
	defer span.End()
	caps, ok := s.registry.Capabilities(id)
	if !ok {
		return Capabilities{}, types.NewError(types.ErrInvalidParameters, fmt.Sprintf("unknown provider %q", id))
	}
	return caps, nil
}

// GetEffectiveSettings merges capability defaults, the active profile and opts.
func (s *Service) GetEffectiveSettings(ctx context.Context, id ProviderID, opts *ProviderOptions) (*EffectiveSettings, error) {
	ctx, span := s.inst.start(ctx, "imagegen.effective_settings", attribute.String("imagegen.provider", string(id)))
	defer span.End()
	caps, ok := s.registry.Capabilities(id)
	if !ok {
		return nil, types.NewError(types.ErrInvalidParameters, fmt.Sprintf("unknown provider %q", id))
	}
	settings, err := s.effectiveSettings(ctx, caps, opts)
	if err != nil {
		return nil, Classify(id, err)
	}
	return settings, nil
}

func (s *Service) effectiveSettings(ctx context.Context, caps Capabilities, opts *ProviderOptions) (*EffectiveSettings, error) {
	var profile *SettingsProfile
	if s.store != nil {
		p, err := s.store.ActiveProfile(ctx, caps.Provider)
		if err != nil {
			// 读取配置失败时回退到能力默认值, 不阻塞生成
			s.logger.Warn("load settings profile failed, using defaults",
				zap.String("provider", string(caps.Provider)), zap.Error(err))
		} else {
			profile = p
		}
	}
	return MergeSettings(caps, profile, opts)
}

// CreateOrUpdateSettingsProfile validates p against its provider's
// capabilities and persists it.
func (s *Service) CreateOrUpdateSettingsProfile(ctx context.Context, p *SettingsProfile) (*SettingsProfile, error) {
	ctx, span := s.inst.start(ctx, "imagegen.upsert_profile")
	defer span.End()
	if s.store == nil {
		return nil, profileError("", ErrSettingsDisabled)
	}
	if p == nil {
		return nil, types.NewError(types.ErrInvalidParameters, "profile must not be nil")
	}
	if !p.ProviderID.Valid() {
		return nil, types.NewError(types.ErrInvalidParameters, fmt.Sprintf("unknown provider %q", p.ProviderID))
	}
	caps, _ := s.registry.Capabilities(p.ProviderID)
	if err := ValidateProfile(caps, p); err != nil {
		return nil, Classify(p.ProviderID, err)
	}

	saved, err := s.store.Upsert(ctx, p)
	if err != nil {
		span.RecordError(err)
		return nil, profileError(p.ProviderID, err)
	}
	s.logger.Info("settings profile saved",
		zap.String("profile_id", saved.ID),
		zap.String("provider", string(saved.ProviderID)),
		zap.Int("version", saved.Version),
		zap.Bool("is_default", saved.IsDefault),
		zap.String("updated_by", saved.UpdatedBy),
	)
	return saved, nil
}

// ListSettingsProfiles lists profiles matching filter.
func (s *Service) ListSettingsProfiles(ctx context.Context, filter ProfileFilter) ([]*SettingsProfile, error) {
	ctx, span := s.inst.start(ctx, "imagegen.list_profiles")
	defer span.End()
	if s.store == nil {
		return nil, profileError("", ErrSettingsDisabled)
	}
	if filter.ProviderID != "" && !filter.ProviderID.Valid() {
		return nil, types.NewError(types.ErrInvalidParameters, fmt.Sprintf("unknown provider %q", filter.ProviderID))
	}
	profiles, err := s.store.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, profileError(filter.ProviderID, err)
	}
	return profiles, nil
}

// DeleteSettingsProfile removes a non-default profile.
func (s *Service) DeleteSettingsProfile(ctx context.Context, id string) error {
	ctx, span := s.inst.start(ctx, "imagegen.delete_profile")
	defer span.End()
	if s.store == nil {
		return profileError("", ErrSettingsDisabled)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, ErrProfileNotFound) && !errors.Is(err, ErrDefaultProfile) {
			span.RecordError(err)
		}
		return profileError("", err)
	}
	s.logger.Info("settings profile deleted", zap.String("profile_id", id))
	return nil
}

// profileError 把配置档存储的错误归入封闭错误码, 哨兵错误保留为 Cause,
// errors.Is 仍然可用
func profileError(provider ProviderID, err error) error {
	var code types.ErrorCode
	switch {
	case errors.Is(err, ErrSettingsDisabled):
		code = types.ErrServiceUnavailable
	case errors.Is(err, ErrProfileNotFound),
		errors.Is(err, ErrDefaultProfile),
		errors.Is(err, ErrVersionConflict):
		code = types.ErrInvalidParameters
	default:
		return Classify(provider, err)
	}
	e := types.NewError(code, err.Error()).WithCause(err)
	if provider != "" {
		e = e.WithProvider(string(provider))
	}
	return e
}
