package imagegen

import (
	"math/rand/v2"
	"strconv"
	"unicode/utf16"
)

// SeedModulus bounds every seed to [0, SeedModulus).
const SeedModulus = 1_000_000

// DeriveSeed maps text to a deterministic seed in [0, 999999].
//
// The hash runs over UTF-16 code units with 32-bit two's-complement wrap
// (h = h*31 + c), so seeds stay stable for images generated by earlier
// releases of the product.
func DeriveSeed(text string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(text)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v % SeedModulus
}

// SeedText builds the hash input for a request.
// 幻灯片序号优先于活动类型，两者都没有时直接使用提示词。
func SeedText(prompt string, req *GenerationRequest) string {
	if req == nil {
		return prompt
	}
	if req.SlideIndex != nil {
		return prompt + "_slide_" + strconv.Itoa(*req.SlideIndex)
	}
	if req.EventType != "" {
		return prompt + "_" + req.EventType
	}
	return prompt
}

// RandomSeed returns a uniformly random seed in [0, SeedModulus).
func RandomSeed() int64 {
	return rand.Int64N(SeedModulus)
}

// ResolveSeed picks the seed for a request: a caller seed is used verbatim,
// RandomizeSeed draws a fresh one, otherwise the seed is derived from the prompt.
func ResolveSeed(req *GenerationRequest) int64 {
	if req.Seed != nil {
		return *req.Seed
	}
	if req.RandomizeSeed {
		return RandomSeed()
	}
	return DeriveSeed(SeedText(req.Prompt, req))
}
