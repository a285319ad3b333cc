package imagegen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ImagenAdapter 使用 Google Gemini 图像 API (generateContent, 内联 base64).
type ImagenAdapter struct {
	baseAdapter
}

// NewImagenAdapter 创建 Google 图像适配器.
func NewImagenAdapter(cfg ProviderConfig, logger *zap.Logger) *ImagenAdapter {
	return &ImagenAdapter{
		baseAdapter: newBaseAdapter(ProviderImagen, imagenCapabilities(), cfg, logger, imagenSignal),
	}
}

func imagenCapabilities() Capabilities {
	return Capabilities{
		Provider:           ProviderImagen,
		DisplayName:        "Google Gemini Image",
		SupportedSizes:     sizesFor(Aspect1x1, Aspect16x9, Aspect9x16, Aspect4x3, Aspect3x4, Aspect4x5, Aspect3x2, Aspect2x3),
		SupportedQualities: []Quality{QualityFast, QualityStandard, QualityHigh, QualityUltra},
		DefaultQuality:     QualityStandard,
		SupportsSeed:       true,
		MaxImages:          1,
		Pricing: Pricing{
			CostPerImage: 0.039,
			QualityMultipliers: map[Quality]float64{
				QualityFast:     1,
				QualityStandard: 1,
				QualityHigh:     1,
				QualityUltra:    3.4,
			},
		},
	}
}

// imagenSignal: Google 在配额用尽时同样返回 429, 需要读取消息区分.
func imagenSignal(status int, body []byte) Signal {
	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "exceeded your current quota"), strings.Contains(lower, "billing"):
		return SignalQuota
	case strings.Contains(lower, "resource_exhausted"):
		return SignalRateLimit
	}
	return SignalNone
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string          `json:"responseModalities"`
	Seed               *int64            `json:"seed,omitempty"`
	ImageConfig        geminiImageConfig `json:"imageConfig"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata map[string]any `json:"usageMetadata,omitempty"`
}

func (a *ImagenAdapter) headers() map[string]string {
	return map[string]string{"x-goog-api-key": a.cfg.APIKey}
}

// Generate 调用 models/{model}:generateContent.
func (a *ImagenAdapter) Generate(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error) {
	specific, _ := s.Specific.(ImagenSettings)
	model := a.cfg.Model
	if specific.Model != "" {
		model = specific.Model
	}
	imageSize := specific.ImageSize
	if imageSize == "" && qualityOf(req, s) == QualityUltra {
		imageSize = "2K"
	}

	var body geminiRequest
	body.Contents = []struct {
		Parts []geminiPart `json:"parts"`
	}{{Parts: []geminiPart{{Text: req.Prompt}}}}
	body.GenerationConfig = geminiGenerationConfig{
		ResponseModalities: []string{"IMAGE"},
		Seed:               req.Seed,
		ImageConfig:        geminiImageConfig{AspectRatio: string(req.AspectRatio), ImageSize: imageSize},
	}

	var resp geminiResponse
	url := joinURL(a.cfg.BaseURL, "/v1beta/models/"+model+":generateContent")
	if err := a.http.postJSON(ctx, url, a.headers(), body, &resp); err != nil {
		return nil, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &ValidationError{Provider: ProviderImagen, Field: "prompt", Reason: "blocked: " + resp.PromptFeedback.BlockReason}
	}

	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, mime, err := DecodeImagePayload([]byte(p.InlineData.Data))
			if err != nil {
				return nil, fmt.Errorf("imagen image payload: %w", err)
			}
			mime = sniffMime(data, p.InlineData.MimeType)
			extra := map[string]any{"finish_reason": c.FinishReason}
			if resp.UsageMetadata != nil {
				extra["usage"] = resp.UsageMetadata
			}
			return a.respond(req, model, [][]byte{data}, mime, extra)
		}
	}
	return nil, ErrNoImage
}

// HealthCheck 读取模型元数据.
func (a *ImagenAdapter) HealthCheck(ctx context.Context) error {
	return a.http.get(ctx, joinURL(a.cfg.BaseURL, "/v1beta/models/"+a.cfg.Model), a.headers(), nil)
}
