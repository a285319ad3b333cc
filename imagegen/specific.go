package imagegen

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SpecificSettings is the closed set of per-provider knobs. Only the
// variants declared in this package implement it.
type SpecificSettings interface {
	Provider() ProviderID
	validate() error
	// overlay returns the receiver with the non-zero fields of o applied.
	overlay(o SpecificSettings) SpecificSettings
}

// OpenAISettings configures gpt-image models.
type OpenAISettings struct {
	Model        string `json:"model,omitempty"`
	Background   string `json:"background,omitempty"`    // auto | transparent | opaque
	OutputFormat string `json:"output_format,omitempty"` // png | jpeg | webp
	Moderation   string `json:"moderation,omitempty"`    // auto | low
}

func (OpenAISettings) Provider() ProviderID { return ProviderOpenAI }

func (s OpenAISettings) validate() error {
	if err := oneOf(ProviderOpenAI, "background", s.Background, "auto", "transparent", "opaque"); err != nil {
		return err
	}
	if err := oneOf(ProviderOpenAI, "output_format", s.OutputFormat, "png", "jpeg", "webp"); err != nil {
		return err
	}
	return oneOf(ProviderOpenAI, "moderation", s.Moderation, "auto", "low")
}

func (s OpenAISettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(OpenAISettings)
	if !ok {
		return s
	}
	setStr(&s.Model, v.Model)
	setStr(&s.Background, v.Background)
	setStr(&s.OutputFormat, v.OutputFormat)
	setStr(&s.Moderation, v.Moderation)
	return s
}

// FluxSettings configures Black Forest Labs models.
type FluxSettings struct {
	Model            string `json:"model,omitempty"`
	SafetyTolerance  *int   `json:"safety_tolerance,omitempty"` // 0 (strict) .. 6
	PromptUpsampling *bool  `json:"prompt_upsampling,omitempty"`
	OutputFormat     string `json:"output_format,omitempty"` // jpeg | png
	Raw              *bool  `json:"raw,omitempty"`
}

func (FluxSettings) Provider() ProviderID { return ProviderFlux }

func (s FluxSettings) validate() error {
	if s.SafetyTolerance != nil && (*s.SafetyTolerance < 0 || *s.SafetyTolerance > 6) {
		return invalidf(ProviderFlux, "safety_tolerance", "%d outside [0, 6]", *s.SafetyTolerance)
	}
	return oneOf(ProviderFlux, "output_format", s.OutputFormat, "jpeg", "png")
}

func (s FluxSettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(FluxSettings)
	if !ok {
		return s
	}
	setStr(&s.Model, v.Model)
	setStr(&s.OutputFormat, v.OutputFormat)
	if v.SafetyTolerance != nil {
		s.SafetyTolerance = v.SafetyTolerance
	}
	if v.PromptUpsampling != nil {
		s.PromptUpsampling = v.PromptUpsampling
	}
	if v.Raw != nil {
		s.Raw = v.Raw
	}
	return s
}

// StabilitySettings configures Stable Diffusion 3.5.
type StabilitySettings struct {
	Model        string `json:"model,omitempty"` // sd3.5-large | sd3.5-large-turbo | sd3.5-medium
	StylePreset  string `json:"style_preset,omitempty"`
	OutputFormat string `json:"output_format,omitempty"` // png | jpeg | webp
}

func (StabilitySettings) Provider() ProviderID { return ProviderStability }

func (s StabilitySettings) validate() error {
	if err := oneOf(ProviderStability, "model", s.Model, "sd3.5-large", "sd3.5-large-turbo", "sd3.5-medium"); err != nil {
		return err
	}
	if err := oneOf(ProviderStability, "style_preset", s.StylePreset,
		"3d-model", "analog-film", "anime", "cinematic", "comic-book", "digital-art", "enhance",
		"fantasy-art", "isometric", "line-art", "low-poly", "modeling-compound", "neon-punk",
		"origami", "photographic", "pixel-art", "tile-texture"); err != nil {
		return err
	}
	return oneOf(ProviderStability, "output_format", s.OutputFormat, "png", "jpeg", "webp")
}

func (s StabilitySettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(StabilitySettings)
	if !ok {
		return s
	}
	setStr(&s.Model, v.Model)
	setStr(&s.StylePreset, v.StylePreset)
	setStr(&s.OutputFormat, v.OutputFormat)
	return s
}

// IdeogramSettings configures Ideogram v3.
type IdeogramSettings struct {
	RenderingSpeed string `json:"rendering_speed,omitempty"` // TURBO | DEFAULT | QUALITY
	MagicPrompt    string `json:"magic_prompt,omitempty"`    // AUTO | ON | OFF
	StyleType      string `json:"style_type,omitempty"`      // AUTO | GENERAL | REALISTIC | DESIGN
}

func (IdeogramSettings) Provider() ProviderID { return ProviderIdeogram }

func (s IdeogramSettings) validate() error {
	if err := oneOf(ProviderIdeogram, "rendering_speed", s.RenderingSpeed, "TURBO", "DEFAULT", "QUALITY"); err != nil {
		return err
	}
	if err := oneOf(ProviderIdeogram, "magic_prompt", s.MagicPrompt, "AUTO", "ON", "OFF"); err != nil {
		return err
	}
	return oneOf(ProviderIdeogram, "style_type", s.StyleType, "AUTO", "GENERAL", "REALISTIC", "DESIGN")
}

func (s IdeogramSettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(IdeogramSettings)
	if !ok {
		return s
	}
	setStr(&s.RenderingSpeed, v.RenderingSpeed)
	setStr(&s.MagicPrompt, v.MagicPrompt)
	setStr(&s.StyleType, v.StyleType)
	return s
}

// ImagenSettings configures the Gemini image API.
type ImagenSettings struct {
	Model     string `json:"model,omitempty"`
	ImageSize string `json:"image_size,omitempty"` // 1K | 2K | 4K
}

func (ImagenSettings) Provider() ProviderID { return ProviderImagen }

func (s ImagenSettings) validate() error {
	return oneOf(ProviderImagen, "image_size", s.ImageSize, "1K", "2K", "4K")
}

func (s ImagenSettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(ImagenSettings)
	if !ok {
		return s
	}
	setStr(&s.Model, v.Model)
	setStr(&s.ImageSize, v.ImageSize)
	return s
}

// RecraftSettings configures Recraft v3.
type RecraftSettings struct {
	Model    string `json:"model,omitempty"` // recraftv3 | recraftv2
	Style    string `json:"style,omitempty"`
	Substyle string `json:"substyle,omitempty"`
}

func (RecraftSettings) Provider() ProviderID { return ProviderRecraft }

func (s RecraftSettings) validate() error {
	if err := oneOf(ProviderRecraft, "model", s.Model, "recraftv3", "recraftv2"); err != nil {
		return err
	}
	if err := oneOf(ProviderRecraft, "style", s.Style,
		"any", "realistic_image", "digital_illustration", "vector_illustration", "icon"); err != nil {
		return err
	}
	if s.Substyle != "" && s.Style == "" {
		return invalidf(ProviderRecraft, "substyle", "requires style")
	}
	return nil
}

func (s RecraftSettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(RecraftSettings)
	if !ok {
		return s
	}
	setStr(&s.Model, v.Model)
	setStr(&s.Style, v.Style)
	setStr(&s.Substyle, v.Substyle)
	return s
}

// FalSettings configures fal.ai hosted models.
type FalSettings struct {
	Model        string `json:"model,omitempty"`
	Acceleration string `json:"acceleration,omitempty"`  // none | regular | high
	OutputFormat string `json:"output_format,omitempty"` // jpeg | png
}

func (FalSettings) Provider() ProviderID { return ProviderFal }

func (s FalSettings) validate() error {
	if err := oneOf(ProviderFal, "acceleration", s.Acceleration, "none", "regular", "high"); err != nil {
		return err
	}
	return oneOf(ProviderFal, "output_format", s.OutputFormat, "jpeg", "png")
}

func (s FalSettings) overlay(o SpecificSettings) SpecificSettings {
	v, ok := o.(FalSettings)
	if !ok {
		return s
	}
	setStr(&s.Model, v.Model)
	setStr(&s.Acceleration, v.Acceleration)
	setStr(&s.OutputFormat, v.OutputFormat)
	return s
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// oneOf accepts the empty string as "unset".
func oneOf(provider ProviderID, field, v string, allowed ...string) error {
	if v == "" {
		return nil
	}
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return invalidf(provider, field, "%q not one of %v", v, allowed)
}

// ValidateSpecific checks that s belongs to provider and that its values are
// in range. A nil s is valid.
func ValidateSpecific(provider ProviderID, s SpecificSettings) error {
	if s == nil {
		return nil
	}
	if s.Provider() != provider {
		return invalidf(provider, "specific_settings", "settings for %s cannot be used with %s", s.Provider(), provider)
	}
	return s.validate()
}

// =============================================================================
// JSON envelope
// =============================================================================

type specificEnvelope struct {
	Provider ProviderID      `json:"provider"`
	Settings json.RawMessage `json:"settings"`
}

func decodeVariant[T SpecificSettings](raw json.RawMessage) (SpecificSettings, error) {
	var v T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, nil
	}
	if err := decodeStrict(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeStrict rejects unknown fields. Custom UnmarshalJSON methods do not
// inherit DisallowUnknownFields from the outer decoder, so they decode through this.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// MarshalSpecific encodes s as {"provider": ..., "settings": {...}}.
// A nil s encodes as JSON null.
func MarshalSpecific(s SpecificSettings) ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(specificEnvelope{Provider: s.Provider(), Settings: raw})
}

// UnmarshalSpecific decodes an envelope produced by MarshalSpecific.
func UnmarshalSpecific(data []byte) (SpecificSettings, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var env specificEnvelope
	if err := decodeStrict(data, &env); err != nil {
		return nil, fmt.Errorf("decode specific settings envelope: %w", err)
	}
	entry, ok := builtinProviders[env.Provider]
	if !ok || entry.decodeSpecific == nil {
		return nil, invalidf(env.Provider, "specific_settings", "unknown provider %q", env.Provider)
	}
	s, err := entry.decodeSpecific(env.Settings)
	if err != nil {
		return nil, invalidf(env.Provider, "specific_settings", "%v", err)
	}
	return s, nil
}

type providerOptionsJSON struct {
	InferenceSteps *int            `json:"inference_steps,omitempty"`
	GuidanceScale  *float64        `json:"guidance_scale,omitempty"`
	NumImages      *int            `json:"num_images,omitempty"`
	NegativePrompt string          `json:"negative_prompt,omitempty"`
	Specific       json.RawMessage `json:"specific,omitempty"`
}

// MarshalJSON encodes the specific variant through the envelope.
func (o ProviderOptions) MarshalJSON() ([]byte, error) {
	out := providerOptionsJSON{
		InferenceSteps: o.InferenceSteps,
		GuidanceScale:  o.GuidanceScale,
		NumImages:      o.NumImages,
		NegativePrompt: o.NegativePrompt,
	}
	if o.Specific != nil {
		raw, err := MarshalSpecific(o.Specific)
		if err != nil {
			return nil, err
		}
		out.Specific = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the specific variant through the envelope.
func (o *ProviderOptions) UnmarshalJSON(data []byte) error {
	var in providerOptionsJSON
	if err := decodeStrict(data, &in); err != nil {
		return err
	}
	specific, err := UnmarshalSpecific(in.Specific)
	if err != nil {
		return err
	}
	*o = ProviderOptions{
		InferenceSteps: in.InferenceSteps,
		GuidanceScale:  in.GuidanceScale,
		NumImages:      in.NumImages,
		NegativePrompt: in.NegativePrompt,
		Specific:       specific,
	}
	return nil
}
