package handlers

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

func generateBody(provider string) map[string]any {
	body := map[string]any{
		"prompt":       "rooftop birthday party at sunset",
		"aspect_ratio": "1:1",
		"user_id":      "user-1",
		"event_type":   "birthday",
	}
	if provider != "" {
		body["provider"] = provider
	}
	return body
}

func TestImageHandler_Generate(t *testing.T) {
	flux := newStubAdapter(imagegen.ProviderFlux)
	rec := &fakeRecorder{}
	h := NewImageHandler(newTestService(t, nil, flux), rec, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGenerate(w, jsonRequest(t, http.MethodPost, "/api/v1/images/generations", generateBody("flux")))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	resp := decodeData[GenerateResponse](t, env)

	img, err := base64.StdEncoding.DecodeString(resp.Image)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)
	assert.Equal(t, "flux", resp.Provider)
	assert.Equal(t, "image/png", resp.MimeType)
	assert.Greater(t, resp.Cost, 0.0)
	assert.GreaterOrEqual(t, resp.Seed, int64(0))
	assert.Less(t, resp.Seed, int64(1_000_000))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, recordedGeneration{provider: "flux", code: "ok", images: 1, cost: resp.Cost}, rec.calls[0])
}

func TestImageHandler_GenerateDeterministicSeed(t *testing.T) {
	flux := newStubAdapter(imagegen.ProviderFlux)
	h := NewImageHandler(newTestService(t, nil, flux), nil, zap.NewNop())

	seeds := make([]int64, 2)
	for i := range seeds {
		w := httptest.NewRecorder()
		h.HandleGenerate(w, jsonRequest(t, http.MethodPost, "/api/v1/images/generations", generateBody("flux")))
		require.Equal(t, http.StatusOK, w.Code)
		seeds[i] = decodeData[GenerateResponse](t, decodeEnvelope(t, w)).Seed
	}
	assert.Equal(t, seeds[0], seeds[1])
}

func TestImageHandler_GenerateAutoSelectsProvider(t *testing.T) {
	fal := newStubAdapter(imagegen.ProviderFal)
	h := NewImageHandler(newTestService(t, nil, fal), nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGenerate(w, jsonRequest(t, http.MethodPost, "/api/v1/images/generations", generateBody("")))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "fal", decodeData[GenerateResponse](t, decodeEnvelope(t, w)).Provider)
}

func TestImageHandler_GenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(a *stubAdapter)
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown provider",
			body:       generateBody("midjourney"),
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrInvalidParameters),
		},
		{
			name: "missing user",
			body: map[string]any{
				"prompt": "party", "aspect_ratio": "1:1", "provider": "flux",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrInvalidParameters),
		},
		{
			name: "unsupported aspect ratio",
			body: map[string]any{
				"prompt": "party", "aspect_ratio": "7:3", "user_id": "u", "provider": "flux",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrInvalidParameters),
		},
		{
			name:       "unknown field",
			body:       `{"prompt":"party","aspect_ratio":"1:1","user_id":"u","colour":"red"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrInvalidParameters),
		},
		{
			name:       "unknown provider option",
			body:       `{"prompt":"party","aspect_ratio":"1:1","user_id":"u","provider":"flux","provider_options":{"inference_step":500}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrInvalidParameters),
		},
		{
			name:       "unhealthy provider",
			setup:      func(a *stubAdapter) { a.healthErr = &imagegen.StatusError{Provider: imagegen.ProviderFlux, StatusCode: 503} },
			body:       generateBody("flux"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   string(types.ErrServiceUnavailable),
		},
		{
			name:       "provider rate limited",
			setup:      func(a *stubAdapter) { a.genErr = &imagegen.StatusError{Provider: imagegen.ProviderFlux, StatusCode: 429} },
			body:       generateBody("flux"),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   string(types.ErrRateLimited),
		},
		{
			name:       "provider quota",
			setup:      func(a *stubAdapter) { a.genErr = &imagegen.StatusError{Provider: imagegen.ProviderFlux, StatusCode: 402} },
			body:       generateBody("flux"),
			wantStatus: http.StatusPaymentRequired,
			wantCode:   string(types.ErrQuotaExceeded),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flux := newStubAdapter(imagegen.ProviderFlux)
			if tt.setup != nil {
				tt.setup(flux)
			}
			h := NewImageHandler(newTestService(t, nil, flux), nil, zap.NewNop())

			w := httptest.NewRecorder()
			h.HandleGenerate(w, jsonRequest(t, http.MethodPost, "/api/v1/images/generations", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestImageHandler_ValidationFailsBeforeProviderCall(t *testing.T) {
	flux := newStubAdapter(imagegen.ProviderFlux)
	rec := &fakeRecorder{}
	h := NewImageHandler(newTestService(t, nil, flux), rec, zap.NewNop())

	body := generateBody("flux")
	body["prompt"] = "   "
	w := httptest.NewRecorder()
	h.HandleGenerate(w, jsonRequest(t, http.MethodPost, "/api/v1/images/generations", body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, flux.calls.Load())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "invalid_parameters", rec.calls[0].code)
	assert.Equal(t, "flux", rec.calls[0].provider)
}

func TestImageHandler_CallerIdentity(t *testing.T) {
	t.Run("end user is bound to token subject", func(t *testing.T) {
		flux := newStubAdapter(imagegen.ProviderFlux)
		h := NewImageHandler(newTestService(t, nil, flux), nil, zap.NewNop())

		body := generateBody("flux")
		body["user_id"] = "someone-else"
		body["available_credits"] = 0.0
		req := jsonRequest(t, http.MethodPost, "/api/v1/images/generations", body)
		req = req.WithContext(types.WithUserID(req.Context(), "jwt-user"))

		w := httptest.NewRecorder()
		h.HandleGenerate(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := flux.lastRequest()
		assert.Equal(t, "jwt-user", got.UserID)
		assert.Nil(t, got.AvailableCredits)
	})

	t.Run("service caller declares the balance", func(t *testing.T) {
		flux := newStubAdapter(imagegen.ProviderFlux)
		rec := &fakeRecorder{}
		h := NewImageHandler(newTestService(t, nil, flux), rec, zap.NewNop())

		body := generateBody("flux")
		body["available_credits"] = 0.0001
		req := jsonRequest(t, http.MethodPost, "/api/v1/images/generations", body)
		req = req.WithContext(types.WithRoles(req.Context(), []string{ServiceRole}))

		w := httptest.NewRecorder()
		h.HandleGenerate(w, req)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, string(types.ErrInsufficientCredits), env.Error.Code)
		assert.Zero(t, flux.calls.Load())
		require.Len(t, rec.calls, 1)
		assert.Equal(t, "insufficient_credits", rec.calls[0].code)
	})
}

func TestImageHandler_ContentType(t *testing.T) {
	h := NewImageHandler(newTestService(t, nil, newStubAdapter(imagegen.ProviderFlux)), nil, zap.NewNop())

	req := jsonRequest(t, http.MethodPost, "/api/v1/images/generations", generateBody("flux"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.HandleGenerate(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestImageHandler_Estimate(t *testing.T) {
	flux := newStubAdapter(imagegen.ProviderFlux)
	h := NewImageHandler(newTestService(t, nil, flux), nil, zap.NewNop())

	body := generateBody("flux")
	body["quality"] = "high"
	w := httptest.NewRecorder()
	h.HandleEstimate(w, jsonRequest(t, http.MethodPost, "/api/v1/images/estimate", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	est := decodeData[imagegen.CostEstimate](t, decodeEnvelope(t, w))
	assert.Equal(t, imagegen.ProviderFlux, est.Provider)
	assert.Equal(t, imagegen.QualityHigh, est.Quality)
	assert.Equal(t, 1, est.Images)
	assert.Greater(t, est.Cost, 0.0)
	assert.Zero(t, flux.calls.Load(), "estimate must not generate")
}
