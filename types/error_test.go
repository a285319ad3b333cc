package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrServiceUnavailable, "upstream failed").
		WithCause(root).
		WithProvider("flux")

	if GetErrorCode(err) != ErrServiceUnavailable {
		t.Fatalf("expected code %s, got %s", ErrServiceUnavailable, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	assert.Contains(t, err.Error(), "SERVICE_UNAVAILABLE flux")
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrRateLimited, "slow down").WithProvider("openai")
	wrapped := fmt.Errorf("generate: %w", inner)

	got, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsCode(wrapped, ErrRateLimited))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestErrorCode_ClosedSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code      ErrorCode
		status    int
		retryable bool
	}{
		{ErrQuotaExceeded, http.StatusPaymentRequired, false},
		{ErrRateLimited, http.StatusTooManyRequests, true},
		{ErrServiceUnavailable, http.StatusServiceUnavailable, true},
		{ErrInvalidParameters, http.StatusBadRequest, false},
		{ErrInsufficientCredits, http.StatusPaymentRequired, false},
		{ErrUnknown, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.True(t, tt.code.Valid())
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
			assert.Equal(t, tt.retryable, tt.code.Retryable())
		})
	}

	coerced := NewError(ErrorCode("MODEL_NOT_FOUND"), "nope")
	assert.Equal(t, ErrUnknown, coerced.Code)
	assert.False(t, coerced.Retryable)
}
