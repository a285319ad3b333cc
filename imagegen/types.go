package imagegen

import (
	"fmt"
	"strings"
	"time"
)

// ProviderID identifies one compiled-in image generation backend.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderFlux      ProviderID = "flux"
	ProviderStability ProviderID = "stability"
	ProviderIdeogram  ProviderID = "ideogram"
	ProviderImagen    ProviderID = "imagen"
	ProviderRecraft   ProviderID = "recraft"
	ProviderFal       ProviderID = "fal"
)

// AllProviders lists every known backend in the built-in priority order.
var AllProviders = []ProviderID{
	ProviderOpenAI,
	ProviderFlux,
	ProviderIdeogram,
	ProviderImagen,
	ProviderStability,
	ProviderRecraft,
	ProviderFal,
}

// Valid reports whether p belongs to the closed provider set.
func (p ProviderID) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

func (p ProviderID) String() string { return string(p) }

// ParseProviderID parses a provider identifier, case-insensitively.
func ParseProviderID(s string) (ProviderID, error) {
	p := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// AspectRatio is one of the fixed aspect ratios offered to users.
type AspectRatio string

const (
	Aspect1x1   AspectRatio = "1:1"
	Aspect16x9  AspectRatio = "16:9"
	Aspect9x16  AspectRatio = "9:16"
	Aspect4x3   AspectRatio = "4:3"
	Aspect3x4   AspectRatio = "3:4"
	Aspect4x5   AspectRatio = "4:5"
	Aspect5x7   AspectRatio = "5:7"
	Aspect3x2   AspectRatio = "3:2"
	Aspect2x3   AspectRatio = "2:3"
	Aspect10x16 AspectRatio = "10:16"
	Aspect16x10 AspectRatio = "16:10"
	Aspect1x3   AspectRatio = "1:3"
	Aspect3x1   AspectRatio = "3:1"
)

// Valid reports whether a has a canonical resolution.
func (a AspectRatio) Valid() bool {
	_, ok := canonicalSizes[a]
	return ok
}

// Quality is the speed/fidelity tier of a generation.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// AllQualities lists the quality tiers from cheapest to most expensive.
var AllQualities = []Quality{QualityFast, QualityStandard, QualityHigh, QualityUltra}

// Valid reports whether q is a known tier.
func (q Quality) Valid() bool {
	for _, known := range AllQualities {
		if q == known {
			return true
		}
	}
	return false
}

// GenerationRequest is a single image generation call. It is never mutated
// by the orchestrator.
type GenerationRequest struct {
	Prompt      string      `json:"prompt"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	// Quality 为空时使用生效配置中的默认质量
	Quality Quality `json:"quality,omitempty"`
	UserID  string  `json:"user_id"`

	// EventType, EventDetails and SlideIndex only feed seed derivation and logging.
	EventType    string         `json:"event_type,omitempty"`
	EventDetails map[string]any `json:"event_details,omitempty"`
	SlideIndex   *int           `json:"slide_index,omitempty"`

	Seed          *int64 `json:"seed,omitempty"`
	RandomizeSeed bool   `json:"randomize_seed,omitempty"`

	// AvailableCredits is the caller-declared balance; nil skips the check.
	AvailableCredits *float64 `json:"available_credits,omitempty"`

	ProviderOptions *ProviderOptions `json:"provider_options,omitempty"`
}

// ProviderOptions are per-request overrides, applied last when merging settings.
type ProviderOptions struct {
	InferenceSteps *int     `json:"inference_steps,omitempty"`
	GuidanceScale  *float64 `json:"guidance_scale,omitempty"`
	NumImages      *int     `json:"num_images,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`

	// Specific must be the variant of the provider that ends up serving the request.
	Specific SpecificSettings `json:"-"`
}

// GenerationResponse is the normalized result of a successful generation.
//
// Seed is the resolved seed of the request (caller seed, derived or random)
// and is always reported so the generation can be recorded and replayed.
// SeedApplied tells whether the provider actually received it; providers
// without seed support (openai) get no seed and their output is not
// reproducible from it.
type GenerationResponse struct {
	ImageData      []byte         `json:"-"`
	ExtraImages    [][]byte       `json:"-"`
	MimeType       string         `json:"mime_type"`
	Provider       ProviderID     `json:"provider"`
	Model          string         `json:"model,omitempty"`
	Seed           int64          `json:"seed"`
	SeedApplied    bool           `json:"seed_applied"`
	Cost           float64        `json:"cost"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	GenerationTime time.Duration  `json:"-"`
	ProviderData   map[string]any `json:"provider_data,omitempty"`
}

// GenerationTimeMs returns the generation duration in milliseconds, the unit
// persisted in generation records.
func (r *GenerationResponse) GenerationTimeMs() int64 {
	return r.GenerationTime.Milliseconds()
}

// CostEstimate is the result of a dry-run cost estimation.
type CostEstimate struct {
	Provider ProviderID `json:"provider"`
	Cost     float64    `json:"cost"`
	Quality  Quality    `json:"quality"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Images   int        `json:"images"`
}

// HealthStatus is the live availability of a provider. It is derived by
// probing and is never persisted as ground truth.
type HealthStatus struct {
	Provider            ProviderID    `json:"provider"`
	Available           bool          `json:"available"`
	Healthy             bool          `json:"healthy"`
	LastError           string        `json:"last_error,omitempty"`
	CheckedAt           time.Time     `json:"checked_at"`
	Latency             time.Duration `json:"latency"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}
