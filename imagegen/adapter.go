package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/internal/tlsutil"
)

// Adapter is the uniform contract of one provider backend.
//
// ValidateParams and EstimateCost are pure and never touch the network.
// Generate returns either a complete response or an error, never both.
type Adapter interface {
	ID() ProviderID
	Capabilities() Capabilities
	ValidateParams(req *GenerationRequest, s *EffectiveSettings) error
	EstimateCost(req *GenerationRequest, s *EffectiveSettings) float64
	Generate(ctx context.Context, req *GenerationRequest, s *EffectiveSettings) (*GenerationResponse, error)
	HealthCheck(ctx context.Context) error
}

// maxResponseBytes caps any provider response body we read into memory.
const maxResponseBytes = 64 << 20

// baseAdapter carries the capability-driven behaviour shared by every adapter.
type baseAdapter struct {
	id     ProviderID
	caps   Capabilities
	cfg    ProviderConfig
	http   *httpClient
	logger *zap.Logger
}

func newBaseAdapter(id ProviderID, caps Capabilities, cfg ProviderConfig, logger *zap.Logger, signal signalFunc) baseAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults(id)
	client := tlsutil.SecureHTTPClient(cfg.Timeout)
	if cfg.Transport != nil {
		client.Transport = cfg.Transport
	}
	return baseAdapter{
		id:     id,
		caps:   caps,
		cfg:    cfg,
		http:   &httpClient{provider: id, client: client, signal: signal, maxBody: maxResponseBytes},
		logger: logger.With(zap.String("component", "imagegen_adapter"), zap.String("provider", string(id))),
	}
}

func (b *baseAdapter) ID() ProviderID { return b.id }

func (b *baseAdapter) Capabilities() Capabilities { return b.caps.clone() }

// ValidateParams checks the request and merged settings against the declared
// capabilities.
func (b *baseAdapter) ValidateParams(req *GenerationRequest, s *EffectiveSettings) error {
	return validateRequest(b.caps, req, s)
}

func (b *baseAdapter) EstimateCost(req *GenerationRequest, s *EffectiveSettings) float64 {
	return ComputeCost(b.caps, req.AspectRatio, qualityOf(req, s), imageCount(s))
}

// size returns the provider resolution for the request aspect ratio.
func (b *baseAdapter) size(req *GenerationRequest) ImageSize {
	if sz, ok := b.caps.SizeFor(req.AspectRatio); ok {
		return sz
	}
	return canonicalSizes[Aspect1x1]
}

// respond assembles the normalized response. Seed, cost and timing are
// stamped by the orchestrator.
func (b *baseAdapter) respond(req *GenerationRequest, model string, images [][]byte, mime string, data map[string]any) (*GenerationResponse, error) {
	if len(images) == 0 || len(images[0]) == 0 {
		return nil, ErrNoImage
	}
	sz := b.size(req)
	return &GenerationResponse{
		ImageData:    images[0],
		ExtraImages:  images[1:],
		MimeType:     mime,
		Provider:     b.id,
		Model:        model,
		Width:        sz.Width,
		Height:       sz.Height,
		ProviderData: data,
	}, nil
}

func qualityOf(req *GenerationRequest, s *EffectiveSettings) Quality {
	if req != nil && req.Quality != "" {
		return req.Quality
	}
	if s != nil && s.Quality != "" {
		return s.Quality
	}
	return QualityStandard
}

func imageCount(s *EffectiveSettings) int {
	if s == nil || s.NumImages < 1 {
		return 1
	}
	return s.NumImages
}

func validateRequest(caps Capabilities, req *GenerationRequest, s *EffectiveSettings) error {
	id := caps.Provider
	if req == nil {
		return invalidf(id, "request", "must not be nil")
	}
	if s == nil {
		return invalidf(id, "settings", "must not be nil")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return invalidf(id, "prompt", "must not be empty")
	}
	if !req.AspectRatio.Valid() {
		return invalidf(id, "aspect_ratio", "unknown aspect ratio %q", req.AspectRatio)
	}
	if _, ok := caps.SizeFor(req.AspectRatio); !ok {
		return invalidf(id, "aspect_ratio", "%s not supported", req.AspectRatio)
	}
	q := qualityOf(req, s)
	if !q.Valid() {
		return invalidf(id, "quality", "unknown quality %q", q)
	}
	if !caps.SupportsQuality(q) {
		return invalidf(id, "quality", "%s not supported", q)
	}
	if err := checkSteps(caps, s.InferenceSteps); err != nil {
		return err
	}
	if err := checkGuidance(caps, s.GuidanceScale); err != nil {
		return err
	}
	if n := s.NumImages; n < 1 || n > caps.ImageLimit() {
		return invalidf(id, "num_images", "%d outside [1, %d]", n, caps.ImageLimit())
	}
	if s.NegativePrompt != "" && !caps.SupportsNegativePrompt {
		return invalidf(id, "negative_prompt", "not supported")
	}
	if !s.SafetyChecker && !caps.SupportsSafetyChecker {
		return invalidf(id, "safety_checker", "cannot be disabled for this provider")
	}
	if req.Seed != nil && (*req.Seed < 0 || *req.Seed > 1<<32-1) {
		return invalidf(id, "seed", "%d outside [0, 4294967295]", *req.Seed)
	}
	return ValidateSpecific(id, s.Specific)
}

// =============================================================================
// HTTP plumbing
// =============================================================================

// signalFunc reads a provider error body for quota or rate-limit hints.
type signalFunc func(status int, body []byte) Signal

// httpClient is the HTTP helper shared by adapters: bounded timeout, auth
// headers, size-limited bodies and *StatusError on non-2xx.
type httpClient struct {
	provider ProviderID
	client   *http.Client
	signal   signalFunc
	maxBody  int64
}

func (c *httpClient) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	// 多读一个字节用来发现超限, 截断的图片不能当作成功返回
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, nil, fmt.Errorf("%s read response: %w", c.provider, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, nil, fmt.Errorf("%s response exceeds %d bytes: %w", c.provider, c.maxBody, ErrResponseTooLarge)
	}
	if resp.StatusCode >= 400 {
		serr := &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(body)}
		if c.signal != nil {
			serr.Signal = c.signal(resp.StatusCode, body)
		}
		return nil, nil, serr
	}
	return body, resp.Header, nil
}

// postJSON sends body as JSON and decodes the response into out.
func (c *httpClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setHeaders(req, headers)

	raw, _, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.provider, err)
	}
	return nil
}

// postMultipart sends fields as multipart/form-data and returns the raw body.
func (c *httpClient) postMultipart(ctx context.Context, url string, headers map[string]string, fields map[string]string) ([]byte, http.Header, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	setHeaders(req, headers)
	return c.do(req)
}

// get issues a GET and decodes a JSON body into out when out is non-nil.
func (c *httpClient) get(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	setHeaders(req, headers)
	raw, _, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.provider, err)
	}
	return nil
}

// fetchImage downloads a result URL. Signed result URLs take no auth header.
func (c *httpClient) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	body, header, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	if len(body) == 0 {
		return nil, "", ErrNoImage
	}
	return body, sniffMime(body, header.Get("Content-Type")), nil
}

func setHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// bodySignal is the default body reader: quota and rate-limit keywords.
func bodySignal(quotaWords, rateWords []string) signalFunc {
	return func(_ int, body []byte) Signal {
		lower := strings.ToLower(string(body))
		for _, w := range quotaWords {
			if strings.Contains(lower, w) {
				return SignalQuota
			}
		}
		for _, w := range rateWords {
			if strings.Contains(lower, w) {
				return SignalRateLimit
			}
		}
		return SignalNone
	}
}

func decodeJSON(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}
