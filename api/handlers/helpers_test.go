package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen/settings"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// stubAdapter 可控的供应商适配器
type stubAdapter struct {
	id        imagegen.ProviderID
	healthErr error
	genErr    error

	mu      sync.Mutex
	lastReq imagegen.GenerationRequest
	calls   atomic.Int32
}

func newStubAdapter(id imagegen.ProviderID) *stubAdapter { return &stubAdapter{id: id} }

func (s *stubAdapter) ID() imagegen.ProviderID { return s.id }

func (s *stubAdapter) Capabilities() imagegen.Capabilities {
	caps, _ := imagegen.BuiltinCapabilities(s.id)
	return caps
}

func (s *stubAdapter) ValidateParams(req *imagegen.GenerationRequest, _ *imagegen.EffectiveSettings) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &imagegen.ValidationError{Provider: s.id, Field: "prompt", Reason: "must not be empty"}
	}
	if _, ok := s.Capabilities().SizeFor(req.AspectRatio); !ok {
		return &imagegen.ValidationError{Provider: s.id, Field: "aspect_ratio", Reason: "unsupported"}
	}
	return nil
}

func (s *stubAdapter) EstimateCost(req *imagegen.GenerationRequest, es *imagegen.EffectiveSettings) float64 {
	return imagegen.ComputeCost(s.Capabilities(), req.AspectRatio, req.Quality, max(es.NumImages, 1))
}

func (s *stubAdapter) Generate(_ context.Context, req *imagegen.GenerationRequest, _ *imagegen.EffectiveSettings) (*imagegen.GenerationResponse, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastReq = *req
	s.mu.Unlock()
	if s.genErr != nil {
		return nil, s.genErr
	}
	return &imagegen.GenerationResponse{
		ImageData: pngBytes,
		MimeType:  "image/png",
		Model:     "stub-" + string(s.id),
		Width:     1024,
		Height:    1024,
	}, nil
}

func (s *stubAdapter) HealthCheck(context.Context) error { return s.healthErr }

func (s *stubAdapter) lastRequest() imagegen.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

type recordedGeneration struct {
	provider, code string
	images         int
	cost           float64
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedGeneration
}

func (f *fakeRecorder) RecordGeneration(provider, code string, images int, cost float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedGeneration{provider, code, images, cost})
}

func newSettingsStore(t *testing.T) *settings.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, settings.AutoMigrate(db))
	return settings.NewStore(db, zap.NewNop())
}

// newTestService 用给定适配器与 (可选) 配置档存储构建真实的 Service
func newTestService(t *testing.T, store imagegen.SettingsStore, adapters ...imagegen.Adapter) *imagegen.Service {
	t.Helper()
	reg := imagegen.NewRegistry(imagegen.DefaultRegistryConfig(), zap.NewNop())
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	return imagegen.NewService(reg, store, zap.NewNop())
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// envelope 是 Response 的解码形态, Data 延迟解析
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *ErrorInfo      `json:"error"`
	RequestID string          `json:"request_id"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
