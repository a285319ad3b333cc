package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

// ServiceRole marks callers authenticated with a static API key. They act on
// behalf of end users and may name the user and the credit balance in the body.
const ServiceRole = "service"

// GenerationRecorder receives one observation per generation attempt.
// *metrics.Collector implements it.
type GenerationRecorder interface {
	RecordGeneration(provider, code string, images int, cost float64)
}

// ImageHandler serves generation and cost estimation.
type ImageHandler struct {
	service  *imagegen.Service
	recorder GenerationRecorder
	logger   *zap.Logger
}

// NewImageHandler creates an ImageHandler. recorder may be nil.
func NewImageHandler(service *imagegen.Service, recorder GenerationRecorder, logger *zap.Logger) *ImageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageHandler{
		service:  service,
		recorder: recorder,
		logger:   logger.With(zap.String("handler", "images")),
	}
}

// GenerateRequest is the body of generation and estimate calls: a generation
// request plus the optional preferred provider.
type GenerateRequest struct {
	imagegen.GenerationRequest
	Provider string `json:"provider,omitempty"`
}

// GenerateResponse carries the image inline as base64.
type GenerateResponse struct {
	Image            string         `json:"image"`
	ExtraImages      []string       `json:"extra_images,omitempty"`
	MimeType         string         `json:"mime_type"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model,omitempty"`
	Seed             int64          `json:"seed"`
	SeedApplied      bool           `json:"seed_applied"`
	Cost             float64        `json:"cost"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	GenerationTimeMs int64          `json:"generation_time_ms"`
	ProviderData     map[string]any `json:"provider_data,omitempty"`
}

func newGenerateResponse(resp *imagegen.GenerationResponse) GenerateResponse {
	out := GenerateResponse{
		Image:            base64.StdEncoding.EncodeToString(resp.ImageData),
		MimeType:         resp.MimeType,
		Provider:         string(resp.Provider),
		Model:            resp.Model,
		Seed:             resp.Seed,
		SeedApplied:      resp.SeedApplied,
		Cost:             resp.Cost,
		Width:            resp.Width,
		Height:           resp.Height,
		GenerationTimeMs: resp.GenerationTimeMs(),
		ProviderData:     resp.ProviderData,
	}
	for _, img := range resp.ExtraImages {
		out.ExtraImages = append(out.ExtraImages, base64.StdEncoding.EncodeToString(img))
	}
	return out
}

// decodeGenerateRequest parses the body and binds the caller identity. It
// writes the error response itself and returns ok=false on failure.
func (h *ImageHandler) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*imagegen.GenerationRequest, imagegen.ProviderID, bool) {
	if !ValidateContentType(w, r, h.logger) {
		return nil, "", false
	}
	var body GenerateRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return nil, "", false
	}

	var preferred imagegen.ProviderID
	if strings.TrimSpace(body.Provider) != "" {
		id, err := imagegen.ParseProviderID(body.Provider)
		if err != nil {
			WriteError(w, r, types.NewError(types.ErrInvalidParameters, err.Error()), h.logger)
			return nil, "", false
		}
		preferred = id
	}

	req := body.GenerationRequest
	// 终端用户只能以自己的身份生成, 余额由上游服务声明
	if !types.HasRole(r.Context(), ServiceRole) {
		if uid, ok := types.UserID(r.Context()); ok {
			req.UserID = uid
		}
		req.AvailableCredits = nil
	}
	if strings.TrimSpace(req.UserID) == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidParameters, "user_id is required"), h.logger)
		return nil, "", false
	}
	return &req, preferred, true
}

// HandleGenerate 处理 POST /api/v1/images/generations
func (h *ImageHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	req, preferred, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.service.GenerateImage(r.Context(), req, preferred)
	if err != nil {
		cerr := imagegen.Classify(preferred, err)
		h.record(cerr.Provider, strings.ToLower(string(cerr.Code)), 0, 0)
		WriteError(w, r, cerr, h.logger)
		return
	}

	h.record(string(resp.Provider), "ok", 1+len(resp.ExtraImages), resp.Cost)
	WriteSuccess(w, r, newGenerateResponse(resp))
}

// HandleEstimate 处理 POST /api/v1/images/estimate
func (h *ImageHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	req, preferred, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	est, err := h.service.EstimateCost(r.Context(), req, preferred)
	if err != nil {
		WriteError(w, r, imagegen.Classify(preferred, err), h.logger)
		return
	}
	WriteSuccess(w, r, est)
}

func (h *ImageHandler) record(provider, code string, images int, cost float64) {
	if h.recorder != nil {
		h.recorder.RecordGeneration(provider, code, images, cost)
	}
}
