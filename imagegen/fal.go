package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// FalAdapter 使用 fal.ai 托管模型 (sync_mode 返回 data URL).
type FalAdapter struct {
	baseAdapter
}

// NewFalAdapter 创建 fal.ai 适配器.
func NewFalAdapter(cfg ProviderConfig, logger *zap.Logger) *FalAdapter {
	return &FalAdapter{
		baseAdapter: newBaseAdapter(ProviderFal, falCapabilities(), cfg, logger,
			bodySignal([]string{"exhausted balance", "insufficient", "locked"}, []string{"rate limit"})),
	}
}

func falCapabilities() Capabilities {
	return Capabilities{
		Provider:               ProviderFal,
		DisplayName:            "fal.ai FLUX",
		InferenceSteps:         IntRange{Min: 1, Max: 50, Default: 28},
		GuidanceScale:          FloatRange{Min: 1, Max: 20, Default: 3.5},
		SupportedSizes:         allCanonicalSizes(),
		SupportedQualities:     []Quality{QualityFast, QualityStandard, QualityHigh},
		DefaultQuality:         QualityStandard,
		SupportsSeed:           true,
		SupportsMultipleImages: true,
		MaxImages:              4,
		SupportsSafetyChecker:  true,
		Pricing: Pricing{
			CostPerMegapixel: 0.025,
			QualityMultipliers: map[Quality]float64{
				QualityFast:     1,
				QualityStandard: 1,
				QualityHigh:     1,
			},
		},
	}
}

type falImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type falRequest struct {
	Prompt              string       `json:"prompt"`
	ImageSize           falImageSize `json:"image_size"`
	NumInferenceSteps   int          `json:"num_inference_steps,omitempty"`
	GuidanceScale       float64      `json:"guidance_scale,omitempty"`
	Seed                *int64       `json:"seed,omitempty"`
	NumImages           int          `json:"num_images"`
	EnableSafetyChecker bool         `json:"enable_safety_checker"`
	SyncMode            bool         `json:"sync_mode"`
	OutputFormat        string       `json:"output_format,omitempty"`
	Acceleration        string       `json:"acceleration,omitempty"`
}

type falResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
	} `json:"images"`
	Seed            int64  `json:"seed"`
	HasNSFWConcepts []bool `json:"has_nsfw_concepts,omitempty"`
	Timings         any    `json:"timings,omitempty"`
}

func (a *FalAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Key " + a.cfg.APIKey}
}

// Generate 同步调用 fal.run/{model}.
func (a *FalAdapter) Generate(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error) {
	specific, _ := s.Specific.(FalSettings)
	model := a.cfg.Model
	if specific.Model != "" {
		model = specific.Model
	}
	sz := a.size(req)
	body := falRequest{
		Prompt:              req.Prompt,
		ImageSize:           falImageSize{Width: sz.Width, Height: sz.Height},
		NumInferenceSteps:   s.InferenceSteps,
		GuidanceScale:       s.GuidanceScale,
		Seed:                req.Seed,
		NumImages:           imageCount(s),
		EnableSafetyChecker: s.SafetyChecker,
		SyncMode:            true,
		OutputFormat:        specific.OutputFormat,
		Acceleration:        specific.Acceleration,
	}

	var resp falResponse
	if err := a.http.postJSON(ctx, joinURL(a.cfg.BaseURL, model), a.headers(), body, &resp); err != nil {
		return nil, err
	}

	images := make([][]byte, 0, len(resp.Images))
	mime := ""
	for _, img := range resp.Images {
		var (
			data []byte
			m    string
			err  error
		)
		// sync_mode 下通常为 data URL, 个别模型仍返回 CDN 地址
		if strings.HasPrefix(img.URL, "http://") || strings.HasPrefix(img.URL, "https://") {
			data, m, err = a.http.fetchImage(ctx, img.URL)
		} else {
			data, m, err = DecodeImagePayload([]byte(img.URL))
		}
		if err != nil {
			return nil, fmt.Errorf("fal image payload: %w", err)
		}
		if mime == "" {
			mime = sniffMime(data, img.ContentType)
			if m != "" && img.ContentType == "" {
				mime = m
			}
		}
		images = append(images, data)
	}

	extra := map[string]any{"provider_seed": resp.Seed}
	if len(resp.HasNSFWConcepts) > 0 {
		extra["has_nsfw_concepts"] = resp.HasNSFWConcepts
	}
	return a.respond(req, model, images, mime, extra)
}

// HealthCheck 使用认证 GET 探测模型端点; 405 表示端点存在且密钥有效.
func (a *FalAdapter) HealthCheck(ctx context.Context) error {
	err := a.http.get(ctx, joinURL(a.cfg.BaseURL, a.cfg.Model), a.headers(), nil)
	var serr *StatusError
	if errors.As(err, &serr) && serr.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	return err
}
