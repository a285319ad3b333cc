package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-42"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
		retryable  bool
	}{
		{"invalid", types.NewError(types.ErrInvalidParameters, "bad steps"), http.StatusBadRequest, false},
		{"insufficient", types.NewError(types.ErrInsufficientCredits, "no credits"), http.StatusPaymentRequired, false},
		{"quota", types.NewError(types.ErrQuotaExceeded, "quota"), http.StatusPaymentRequired, false},
		{"rate limited", types.NewError(types.ErrRateLimited, "slow down"), http.StatusTooManyRequests, true},
		{"unavailable", types.NewError(types.ErrServiceUnavailable, "down").WithProvider("flux"), http.StatusServiceUnavailable, true},
		{"unknown", types.NewError(types.ErrUnknown, "boom"), http.StatusInternalServerError, false},
		{"status override", types.NewError(types.ErrInvalidParameters, "too big").WithHTTPStatus(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, tt.err.Provider, resp.Error.Provider)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", imagegen.ErrProfileNotFound, http.StatusNotFound, CodeNotFound},
		{"default", imagegen.ErrDefaultProfile, http.StatusConflict, CodeConflict},
		{"version", imagegen.ErrVersionConflict, http.StatusConflict, CodeConflict},
		{"disabled", imagegen.ErrSettingsDisabled, http.StatusServiceUnavailable, CodeUnavailable},
		{"validation", &imagegen.ValidationError{Field: "name", Reason: "empty"}, http.StatusBadRequest, string(types.ErrInvalidParameters)},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, string(types.ErrServiceUnavailable)},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, string(types.ErrUnknown)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), imagegen.ProviderFlux, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			env := decodeEnvelope(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{name: "valid", body: `{"name":"test","value":123}`},
		{name: "invalid JSON", body: `{"name":"test",}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"name":"test","unknown":"field"}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "empty", body: "", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", 128) + `"}`, wantErr: true, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			r.Body = http.MaxBytesReader(w, r.Body, 64)

			var got payload
			err := DecodeJSONBody(w, r, &got, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, payload{Name: "test", Value: 123}, got)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/json; charset=UTF-8", true},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}
