package imagegen

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RecraftAdapter 使用 Recraft v3 (OpenAI 兼容接口, b64_json 返回).
type RecraftAdapter struct {
	baseAdapter
}

// NewRecraftAdapter 创建 Recraft 适配器.
func NewRecraftAdapter(cfg ProviderConfig, logger *zap.Logger) *RecraftAdapter {
	return &RecraftAdapter{
		baseAdapter: newBaseAdapter(ProviderRecraft, recraftCapabilities(), cfg, logger,
			bodySignal([]string{"not_enough_credits", "insufficient"}, []string{"rate limit", "too many requests"})),
	}
}

func recraftCapabilities() Capabilities {
	return Capabilities{
		Provider:    ProviderRecraft,
		DisplayName: "Recraft V3",
		SupportedSizes: []ImageSize{
			{Aspect1x1, 1024, 1024},
			{Aspect4x3, 1365, 1024},
			{Aspect3x4, 1024, 1365},
			{Aspect3x2, 1536, 1024},
			{Aspect2x3, 1024, 1536},
			{Aspect16x9, 1820, 1024},
			{Aspect9x16, 1024, 1820},
			{Aspect4x5, 1024, 1280},
			{Aspect5x7, 1024, 1434},
			{Aspect10x16, 1024, 1707},
			{Aspect16x10, 1707, 1024},
		},
		SupportedQualities:     []Quality{QualityFast, QualityStandard, QualityHigh, QualityUltra},
		DefaultQuality:         QualityStandard,
		SupportsNegativePrompt: true,
		SupportsMultipleImages: true,
		MaxImages:              6,
		Pricing: Pricing{
			CostPerImage: 0.04,
			QualityMultipliers: map[Quality]float64{
				QualityFast:     1,
				QualityStandard: 1,
				QualityHigh:     1,
				QualityUltra:    2,
			},
		},
	}
}

type recraftRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	Style          string `json:"style,omitempty"`
	Substyle       string `json:"substyle,omitempty"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type recraftResponse struct {
	Created int64 `json:"created"`
	Credits int64 `json:"credits,omitempty"`
	Data    []struct {
		B64JSON string `json:"b64_json,omitempty"`
		URL     string `json:"url,omitempty"`
		ImageID string `json:"image_id,omitempty"`
	} `json:"data"`
}

func (a *RecraftAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.APIKey}
}

// Generate 调用 /v1/images/generations.
func (a *RecraftAdapter) Generate(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error) {
	specific, _ := s.Specific.(RecraftSettings)
	model := a.cfg.Model
	if specific.Model != "" {
		model = specific.Model
	}
	sz := a.size(req)
	body := recraftRequest{
		Prompt:         req.Prompt,
		Model:          model,
		Style:          specific.Style,
		Substyle:       specific.Substyle,
		Size:           fmt.Sprintf("%dx%d", sz.Width, sz.Height),
		N:              imageCount(s),
		NegativePrompt: s.NegativePrompt,
		ResponseFormat: "b64_json",
	}

	var resp recraftResponse
	if err := a.http.postJSON(ctx, joinURL(a.cfg.BaseURL, "/v1/images/generations"), a.headers(), body, &resp); err != nil {
		return nil, err
	}

	images := make([][]byte, 0, len(resp.Data))
	mime := ""
	for _, d := range resp.Data {
		var (
			data []byte
			m    string
			err  error
		)
		if d.B64JSON != "" {
			data, m, err = DecodeImagePayload([]byte(d.B64JSON))
		} else if d.URL != "" {
			data, m, err = a.http.fetchImage(ctx, d.URL)
		} else {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("recraft image payload: %w", err)
		}
		if mime == "" {
			mime = m
		}
		images = append(images, data)
	}
	return a.respond(req, model, images, mime, map[string]any{"credits": resp.Credits})
}

// HealthCheck 读取当前用户信息.
func (a *RecraftAdapter) HealthCheck(ctx context.Context) error {
	return a.http.get(ctx, joinURL(a.cfg.BaseURL, "/v1/users/me"), a.headers(), nil)
}
