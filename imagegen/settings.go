package imagegen

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// BaseSettings are the provider-agnostic knobs of a settings profile.
// Nil fields fall back to capability defaults.
type BaseSettings struct {
	InferenceSteps    *int     `json:"inference_steps,omitempty"`
	GuidanceScale     *float64 `json:"guidance_scale,omitempty"`
	DefaultQuality    Quality  `json:"default_quality,omitempty"`
	SafetyChecker     *bool    `json:"safety_checker,omitempty"`
	MaxCostPerImage   *float64 `json:"max_cost_per_image,omitempty"`
	MaxCostPerRequest *float64 `json:"max_cost_per_request,omitempty"`
}

// SettingsProfile is a named, versioned, admin-editable bundle of settings
// for one provider. At most one profile per provider is the default.
type SettingsProfile struct {
	ID          string           `json:"id"`
	ProviderID  ProviderID       `json:"provider_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Base        BaseSettings     `json:"base_settings"`
	Specific    SpecificSettings `json:"-"`
	IsActive    bool             `json:"is_active"`
	IsDefault   bool             `json:"is_default"`
	Version     int              `json:"version"`
	CreatedBy   string           `json:"created_by,omitempty"`
	UpdatedBy   string           `json:"updated_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// settingsProfileAlias drops the methods of SettingsProfile to avoid recursion.
type settingsProfileAlias SettingsProfile

type settingsProfileJSON struct {
	settingsProfileAlias
	Specific json.RawMessage `json:"specific_settings,omitempty"`
}

// MarshalJSON encodes Specific through the provider envelope.
func (p SettingsProfile) MarshalJSON() ([]byte, error) {
	out := settingsProfileJSON{settingsProfileAlias: settingsProfileAlias(p)}
	if p.Specific != nil {
		raw, err := MarshalSpecific(p.Specific)
		if err != nil {
			return nil, err
		}
		out.Specific = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes Specific through the provider envelope.
func (p *SettingsProfile) UnmarshalJSON(data []byte) error {
	var in settingsProfileJSON
	if err := decodeStrict(data, &in); err != nil {
		return err
	}
	specific, err := UnmarshalSpecific(in.Specific)
	if err != nil {
		return err
	}
	*p = SettingsProfile(in.settingsProfileAlias)
	p.Specific = specific
	return nil
}

// ProfileFilter narrows ListSettingsProfiles. Zero value lists everything.
type ProfileFilter struct {
	ProviderID  ProviderID
	ActiveOnly  bool
	DefaultOnly bool
}

// SettingsStore persists settings profiles. Implementations must keep at most
// one default per provider and bump Version by exactly one per update.
type SettingsStore interface {
	// ActiveProfile returns the default active profile of a provider, else the
	// most recently updated active one, else nil.
	ActiveProfile(ctx context.Context, provider ProviderID) (*SettingsProfile, error)
	Upsert(ctx context.Context, profile *SettingsProfile) (*SettingsProfile, error)
	Get(ctx context.Context, id string) (*SettingsProfile, error)
	List(ctx context.Context, filter ProfileFilter) ([]*SettingsProfile, error)
	Delete(ctx context.Context, id string) error
}

// EffectiveSettings is the merged configuration an adapter receives.
type EffectiveSettings struct {
	InferenceSteps int     `json:"inference_steps,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
	Quality        Quality `json:"quality"`
	SafetyChecker  bool    `json:"safety_checker"`
	NumImages      int     `json:"num_images"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`

	// 0 表示不限制
	MaxCostPerImage   float64 `json:"max_cost_per_image,omitempty"`
	MaxCostPerRequest float64 `json:"max_cost_per_request,omitempty"`

	Specific SpecificSettings `json:"-"`

	ProfileID      string `json:"profile_id,omitempty"`
	ProfileVersion int    `json:"profile_version,omitempty"`
}

// MarshalJSON adds the specific variant envelope.
func (s EffectiveSettings) MarshalJSON() ([]byte, error) {
	type alias EffectiveSettings
	out := struct {
		alias
		Specific json.RawMessage `json:"specific_settings,omitempty"`
	}{alias: alias(s)}
	if s.Specific != nil {
		raw, err := MarshalSpecific(s.Specific)
		if err != nil {
			return nil, err
		}
		out.Specific = raw
	}
	return json.Marshal(out)
}

// MergeSettings layers capability defaults, the profile's base settings, the
// profile's specific settings and the request options, later layers winning.
// A specific variant that belongs to another provider is rejected.
func MergeSettings(caps Capabilities, profile *SettingsProfile, opts *ProviderOptions) (*EffectiveSettings, error) {
	s := &EffectiveSettings{
		InferenceSteps: caps.InferenceSteps.Default,
		GuidanceScale:  caps.GuidanceScale.Default,
		Quality:        caps.DefaultQuality,
		SafetyChecker:  true,
		NumImages:      1,
	}
	if s.Quality == "" {
		s.Quality = QualityStandard
	}

	if profile != nil {
		if profile.ProviderID != caps.Provider {
			return nil, invalidf(caps.Provider, "profile", "profile %s belongs to %s", profile.ID, profile.ProviderID)
		}
		b := profile.Base
		if b.InferenceSteps != nil {
			s.InferenceSteps = *b.InferenceSteps
		}
		if b.GuidanceScale != nil {
			s.GuidanceScale = *b.GuidanceScale
		}
		if b.DefaultQuality != "" {
			s.Quality = b.DefaultQuality
		}
		if b.SafetyChecker != nil {
			s.SafetyChecker = *b.SafetyChecker
		}
		if b.MaxCostPerImage != nil {
			s.MaxCostPerImage = *b.MaxCostPerImage
		}
		if b.MaxCostPerRequest != nil {
			s.MaxCostPerRequest = *b.MaxCostPerRequest
		}
		if profile.Specific != nil {
			if err := ValidateSpecific(caps.Provider, profile.Specific); err != nil {
				return nil, err
			}
			s.Specific = profile.Specific
		}
		s.ProfileID = profile.ID
		s.ProfileVersion = profile.Version
	}

	if opts != nil {
		if opts.InferenceSteps != nil {
			s.InferenceSteps = *opts.InferenceSteps
		}
		if opts.GuidanceScale != nil {
			s.GuidanceScale = *opts.GuidanceScale
		}
		if opts.NumImages != nil {
			s.NumImages = *opts.NumImages
		}
		if opts.NegativePrompt != "" {
			s.NegativePrompt = strings.TrimSpace(opts.NegativePrompt)
		}
		if opts.Specific != nil {
			if err := ValidateSpecific(caps.Provider, opts.Specific); err != nil {
				return nil, err
			}
			if s.Specific == nil {
				s.Specific = opts.Specific
			} else {
				s.Specific = s.Specific.overlay(opts.Specific)
			}
		}
	}
	return s, nil
}

// ValidateProfile checks a profile against the capabilities of its provider.
func ValidateProfile(caps Capabilities, p *SettingsProfile) error {
	id := caps.Provider
	if strings.TrimSpace(p.Name) == "" {
		return invalidf(id, "name", "must not be empty")
	}
	if p.IsDefault && !p.IsActive {
		return invalidf(id, "is_default", "a default profile must be active")
	}
	b := p.Base
	if b.InferenceSteps != nil {
		if err := checkSteps(caps, *b.InferenceSteps); err != nil {
			return err
		}
	}
	if b.GuidanceScale != nil {
		if err := checkGuidance(caps, *b.GuidanceScale); err != nil {
			return err
		}
	}
	if b.DefaultQuality != "" && !caps.SupportsQuality(b.DefaultQuality) {
		return invalidf(id, "default_quality", "%q not supported", b.DefaultQuality)
	}
	if b.SafetyChecker != nil && !*b.SafetyChecker && !caps.SupportsSafetyChecker {
		return invalidf(id, "safety_checker", "cannot be disabled for this provider")
	}
	if b.MaxCostPerImage != nil && *b.MaxCostPerImage < 0 {
		return invalidf(id, "max_cost_per_image", "must not be negative")
	}
	if b.MaxCostPerRequest != nil && *b.MaxCostPerRequest < 0 {
		return invalidf(id, "max_cost_per_request", "must not be negative")
	}
	return ValidateSpecific(id, p.Specific)
}

func checkSteps(caps Capabilities, steps int) error {
	if !caps.InferenceSteps.Supported() {
		if steps != 0 {
			return invalidf(caps.Provider, "inference_steps", "not supported")
		}
		return nil
	}
	if !caps.InferenceSteps.Contains(steps) {
		return invalidf(caps.Provider, "inference_steps", "%d outside [%d, %d]",
			steps, caps.InferenceSteps.Min, caps.InferenceSteps.Max)
	}
	return nil
}

func checkGuidance(caps Capabilities, g float64) error {
	if !caps.GuidanceScale.Supported() {
		if g != 0 {
			return invalidf(caps.Provider, "guidance_scale", "not supported")
		}
		return nil
	}
	if !caps.GuidanceScale.Contains(g) {
		return invalidf(caps.Provider, "guidance_scale", "%g outside [%g, %g]",
			g, caps.GuidanceScale.Min, caps.GuidanceScale.Max)
	}
	return nil
}
