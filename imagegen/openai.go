package imagegen

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// OpenAIAdapter 使用 OpenAI gpt-image 模型执行图像生成.
type OpenAIAdapter struct {
	baseAdapter
}

// NewOpenAIAdapter 创建 OpenAI 图像适配器.
func NewOpenAIAdapter(cfg ProviderConfig, logger *zap.Logger) *OpenAIAdapter {
	return &OpenAIAdapter{
		baseAdapter: newBaseAdapter(ProviderOpenAI, openAICapabilities(), cfg, logger,
			bodySignal([]string{"insufficient_quota", "billing_hard_limit_reached", "billing_not_active"}, []string{"rate_limit_exceeded"})),
	}
}

func openAICapabilities() Capabilities {
	return Capabilities{
		Provider:    ProviderOpenAI,
		DisplayName: "OpenAI GPT Image",
		SupportedSizes: []ImageSize{
			{Aspect1x1, 1024, 1024},
			{Aspect3x2, 1536, 1024},
			{Aspect2x3, 1024, 1536},
		},
		SupportedQualities:     []Quality{QualityFast, QualityStandard, QualityHigh, QualityUltra},
		DefaultQuality:         QualityStandard,
		SupportsMultipleImages: true,
		MaxImages:              4,
		Pricing: Pricing{
			CostPerImage: 0.042,
			QualityMultipliers: map[Quality]float64{
				QualityFast:     0.25,
				QualityStandard: 1,
				QualityHigh:     4,
				QualityUltra:    4,
			},
		},
	}
}

type openAIImageRequest struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	N            int    `json:"n"`
	Size         string `json:"size"`
	Quality      string `json:"quality,omitempty"`
	Background   string `json:"background,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	Moderation   string `json:"moderation,omitempty"`
}

type openAIImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
	Usage map[string]any `json:"usage,omitempty"`
}

func openAIQuality(q Quality) string {
	switch q {
	case QualityFast:
		return "low"
	case QualityStandard:
		return "medium"
	default:
		return "high"
	}
}

func (a *OpenAIAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.APIKey}
}

// Generate 调用 /v1/images/generations, 返回 b64_json 图像.
func (a *OpenAIAdapter) Generate(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error) {
	specific, _ := s.Specific.(OpenAISettings)
	model := a.cfg.Model
	if specific.Model != "" {
		model = specific.Model
	}
	sz := a.size(req)
	body := openAIImageRequest{
		Model:        model,
		Prompt:       req.Prompt,
		N:            imageCount(s),
		Size:         fmt.Sprintf("%dx%d", sz.Width, sz.Height),
		Quality:      openAIQuality(qualityOf(req, s)),
		Background:   specific.Background,
		OutputFormat: specific.OutputFormat,
		Moderation:   specific.Moderation,
	}

	var resp openAIImageResponse
	if err := a.http.postJSON(ctx, joinURL(a.cfg.BaseURL, "/v1/images/generations"), a.headers(), body, &resp); err != nil {
		return nil, err
	}

	images := make([][]byte, 0, len(resp.Data))
	mime := ""
	for _, d := range resp.Data {
		data, m, err := DecodeImagePayload([]byte(d.B64JSON))
		if err != nil {
			return nil, fmt.Errorf("openai image payload: %w", err)
		}
		if mime == "" {
			mime = m
		}
		images = append(images, data)
	}

	extra := map[string]any{"created": resp.Created}
	if len(resp.Data) > 0 && resp.Data[0].RevisedPrompt != "" {
		extra["revised_prompt"] = resp.Data[0].RevisedPrompt
	}
	if resp.Usage != nil {
		extra["usage"] = resp.Usage
	}
	return a.respond(req, model, images, mime, extra)
}

// HealthCheck lists models, which needs a valid key but costs nothing.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) error {
	return a.http.get(ctx, joinURL(a.cfg.BaseURL, "/v1/models"), a.headers(), nil)
}
