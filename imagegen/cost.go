package imagegen

import "math"

// canonicalSizes maps each aspect ratio to the resolution used for pricing
// when a provider does not declare its own.
var canonicalSizes = map[AspectRatio]ImageSize{
	Aspect1x1:   {Aspect1x1, 1024, 1024},
	Aspect16x9:  {Aspect16x9, 1344, 768},
	Aspect9x16:  {Aspect9x16, 768, 1344},
	Aspect4x3:   {Aspect4x3, 1152, 896},
	Aspect3x4:   {Aspect3x4, 896, 1152},
	Aspect4x5:   {Aspect4x5, 896, 1120},
	Aspect5x7:   {Aspect5x7, 800, 1120},
	Aspect3x2:   {Aspect3x2, 1216, 832},
	Aspect2x3:   {Aspect2x3, 832, 1216},
	Aspect10x16: {Aspect10x16, 800, 1280},
	Aspect16x10: {Aspect16x10, 1280, 800},
	Aspect1x3:   {Aspect1x3, 576, 1728},
	Aspect3x1:   {Aspect3x1, 1728, 576},
}

// CanonicalSize returns the canonical resolution of an aspect ratio.
func CanonicalSize(aspect AspectRatio) (ImageSize, bool) {
	s, ok := canonicalSizes[aspect]
	return s, ok
}

// ComputeCost prices a generation from the declared pricing alone. It never
// performs I/O and never returns a negative value.
//
// cost = base × qualityMultiplier × numImages, base being either
// CostPerMegapixel × megapixels or CostPerImage.
func ComputeCost(caps Capabilities, aspect AspectRatio, quality Quality, numImages int) float64 {
	size, ok := caps.SizeFor(aspect)
	if !ok {
		size, ok = canonicalSizes[aspect]
		if !ok {
			size = canonicalSizes[Aspect1x1]
		}
	}

	var base float64
	if caps.Pricing.CostPerMegapixel > 0 {
		base = caps.Pricing.CostPerMegapixel * size.Megapixels()
	} else {
		base = caps.Pricing.CostPerImage
	}

	multiplier := 1.0
	if m, ok := caps.Pricing.QualityMultipliers[quality]; ok && m > 0 {
		multiplier = m
	}
	if numImages < 1 {
		numImages = 1
	}

	cost := roundCost(base * multiplier * float64(numImages))
	if cost < 0 || math.IsNaN(cost) {
		return 0
	}
	return cost
}

// roundCost rounds to 6 decimal places (micro-dollars).
func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
