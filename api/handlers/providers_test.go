package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

func TestProviderHandler_List(t *testing.T) {
	svc := newTestService(t, nil, newStubAdapter(imagegen.ProviderFal), newStubAdapter(imagegen.ProviderFlux))
	h := NewProviderHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeData[struct {
		Providers []ProviderSummary `json:"providers"`
	}](t, decodeEnvelope(t, w))

	require.Len(t, got.Providers, 2)
	// 默认优先级中 flux 排在 fal 之前
	assert.Equal(t, imagegen.ProviderFlux, got.Providers[0].ID)
	assert.Equal(t, 1, got.Providers[0].Priority)
	assert.Equal(t, imagegen.ProviderFal, got.Providers[1].ID)
	assert.NotEmpty(t, got.Providers[0].DisplayName)
}

func TestProviderHandler_Health(t *testing.T) {
	fal := newStubAdapter(imagegen.ProviderFal)
	fal.healthErr = errors.New("invalid api key")
	svc := newTestService(t, nil, fal, newStubAdapter(imagegen.ProviderFlux))
	h := NewProviderHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	report := decodeData[HealthReport](t, decodeEnvelope(t, w))
	assert.Equal(t, len(imagegen.AllProviders), report.Total)
	assert.Equal(t, 1, report.Healthy)

	byID := make(map[imagegen.ProviderID]imagegen.HealthStatus, len(report.Providers))
	for _, st := range report.Providers {
		byID[st.Provider] = st
	}
	assert.True(t, byID[imagegen.ProviderFlux].Healthy)
	assert.False(t, byID[imagegen.ProviderFal].Healthy)
	assert.Equal(t, "invalid api key", byID[imagegen.ProviderFal].LastError)
	assert.False(t, byID[imagegen.ProviderOpenAI].Available)
}

func TestProviderHandler_Capabilities(t *testing.T) {
	h := NewProviderHandler(newTestService(t, nil, newStubAdapter(imagegen.ProviderFlux)), zap.NewNop())

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"configured", "flux", http.StatusOK},
		{"builtin but unconfigured", "ideogram", http.StatusOK},
		{"case insensitive", "FLUX", http.StatusOK},
		{"unknown", "dalle", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/"+tt.id+"/capabilities", nil)
			req.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()
			h.HandleCapabilities(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				caps := decodeData[imagegen.Capabilities](t, decodeEnvelope(t, w))
				assert.NotEmpty(t, caps.SupportedSizes)
				assert.NotEmpty(t, caps.DisplayName)
			}
		})
	}
}

func TestProviderHandler_EffectiveSettings(t *testing.T) {
	store := newSettingsStore(t)
	svc := newTestService(t, store, newStubAdapter(imagegen.ProviderFlux))
	steps := 40
	_, err := store.Upsert(t.Context(), &imagegen.SettingsProfile{
		ProviderID: imagegen.ProviderFlux,
		Name:       "studio",
		IsActive:   true,
		IsDefault:  true,
		Base:       imagegen.BaseSettings{InferenceSteps: &steps},
	})
	require.NoError(t, err)

	h := NewProviderHandler(svc, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/flux/settings", nil)
	req.SetPathValue("id", "flux")
	w := httptest.NewRecorder()
	h.HandleEffectiveSettings(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeData[imagegen.EffectiveSettings](t, decodeEnvelope(t, w))
	assert.Equal(t, 40, got.InferenceSteps)
	assert.Equal(t, 1, got.ProfileVersion)
	assert.NotEmpty(t, got.ProfileID)
}
