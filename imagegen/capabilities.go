package imagegen

// IntRange is an inclusive integer range with a default. Max == 0 means the
// knob is not supported by the provider.
type IntRange struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Supported reports whether the provider accepts the knob at all.
func (r IntRange) Supported() bool { return r.Max > 0 }

// Contains reports whether v is within [Min, Max].
func (r IntRange) Contains(v int) bool { return v >= r.Min && v <= r.Max }

// FloatRange is an inclusive float range with a default. Max == 0 means
// unsupported.
type FloatRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

func (r FloatRange) Supported() bool { return r.Max > 0 }

func (r FloatRange) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// ImageSize is the resolution a provider renders for an aspect ratio.
type ImageSize struct {
	AspectRatio AspectRatio `json:"aspect_ratio"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
}

// Megapixels returns the pixel count in millions.
func (s ImageSize) Megapixels() float64 {
	return float64(s.Width) * float64(s.Height) / 1_000_000
}

// Pricing describes how a provider bills. Exactly one of CostPerMegapixel and
// CostPerImage is expected to be non-zero.
type Pricing struct {
	CostPerMegapixel   float64             `json:"cost_per_megapixel,omitempty"`
	CostPerImage       float64             `json:"cost_per_image,omitempty"`
	QualityMultipliers map[Quality]float64 `json:"quality_multipliers,omitempty"`
}

// Capabilities are the declared parameter ranges and features of a provider.
type Capabilities struct {
	Provider    ProviderID `json:"provider"`
	DisplayName string     `json:"display_name"`

	InferenceSteps IntRange   `json:"inference_steps"`
	GuidanceScale  FloatRange `json:"guidance_scale"`

	SupportedSizes     []ImageSize `json:"supported_sizes"`
	SupportedQualities []Quality   `json:"supported_qualities"`
	DefaultQuality     Quality     `json:"default_quality"`

	SupportsSeed           bool `json:"supports_seed"`
	SupportsNegativePrompt bool `json:"supports_negative_prompt"`
	SupportsMultipleImages bool `json:"supports_multiple_images"`
	MaxImages              int  `json:"max_images"`
	SupportsSafetyChecker  bool `json:"supports_safety_checker"`

	Pricing Pricing `json:"pricing"`
}

// SizeFor returns the provider's resolution for aspect, if supported.
func (c Capabilities) SizeFor(aspect AspectRatio) (ImageSize, bool) {
	for _, s := range c.SupportedSizes {
		if s.AspectRatio == aspect {
			return s, true
		}
	}
	return ImageSize{}, false
}

// SupportsQuality reports whether q is one of the provider's tiers.
func (c Capabilities) SupportsQuality(q Quality) bool {
	for _, s := range c.SupportedQualities {
		if s == q {
			return true
		}
	}
	return false
}

// ImageLimit returns the maximum images per request.
func (c Capabilities) ImageLimit() int {
	if !c.SupportsMultipleImages || c.MaxImages < 1 {
		return 1
	}
	return c.MaxImages
}

// clone returns a deep copy so callers cannot mutate an adapter's declaration.
func (c Capabilities) clone() Capabilities {
	out := c
	out.SupportedSizes = append([]ImageSize(nil), c.SupportedSizes...)
	out.SupportedQualities = append([]Quality(nil), c.SupportedQualities...)
	if c.Pricing.QualityMultipliers != nil {
		out.Pricing.QualityMultipliers = make(map[Quality]float64, len(c.Pricing.QualityMultipliers))
		for k, v := range c.Pricing.QualityMultipliers {
			out.Pricing.QualityMultipliers[k] = v
		}
	}
	return out
}

// sizesFor builds a SupportedSizes list from the canonical table.
func sizesFor(aspects ...AspectRatio) []ImageSize {
	out := make([]ImageSize, 0, len(aspects))
	for _, a := range aspects {
		if s, ok := canonicalSizes[a]; ok {
			out = append(out, s)
		}
	}
	return out
}

// allCanonicalSizes returns the full canonical table in a stable order.
func allCanonicalSizes() []ImageSize {
	return sizesFor(
		Aspect1x1, Aspect16x9, Aspect9x16, Aspect4x3, Aspect3x4, Aspect4x5, Aspect5x7,
		Aspect3x2, Aspect2x3, Aspect10x16, Aspect16x10, Aspect1x3, Aspect3x1,
	)
}
