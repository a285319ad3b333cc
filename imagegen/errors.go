package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

var (
	// ErrInsufficientCredits is returned when the caller cannot pay for a generation.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrNoImage is returned when a provider answered 2xx without an image.
	ErrNoImage = errors.New("provider returned no image")
	// ErrResponseTooLarge is returned when a provider body exceeds the read limit.
	ErrResponseTooLarge = errors.New("provider response too large")

	// ErrProfileNotFound is returned by settings stores for unknown profile ids.
	ErrProfileNotFound = errors.New("settings profile not found")
	// ErrDefaultProfile is returned when deleting the default profile of a provider.
	ErrDefaultProfile = errors.New("cannot delete the default settings profile")
	// ErrVersionConflict is returned when an update lost an optimistic concurrency race.
	ErrVersionConflict = errors.New("settings profile version conflict")
	// ErrSettingsDisabled is returned by profile administration when the
	// service runs without a settings store.
	ErrSettingsDisabled = errors.New("settings store is not configured")
)

// ValidationError reports a request or settings value the provider rejects.
// It is raised before any network call.
type ValidationError struct {
	Provider ProviderID
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Provider, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidf(provider ProviderID, field, format string, args ...any) *ValidationError {
	return &ValidationError{Provider: provider, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Signal is an adapter's reading of a provider error body.
type Signal int

const (
	SignalNone Signal = iota
	SignalRateLimit
	SignalQuota
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider   ProviderID
	StatusCode int
	Body       string
	Signal     Signal
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, body)
}

// Classify maps any failure raised while serving a request to exactly one
// closed error code. Side-effect free.
func Classify(provider ProviderID, err error) *types.Error {
	if err == nil {
		return nil
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		if typed.Provider == "" && provider != "" {
			typed.Provider = string(provider)
		}
		return typed
	}

	code, msg := classifyCode(err)
	e := types.NewError(code, msg).WithCause(err)
	if provider != "" {
		e = e.WithProvider(string(provider))
	}
	return e
}

func classifyCode(err error) (types.ErrorCode, string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return types.ErrInvalidParameters, "invalid generation parameters"
	}
	if errors.Is(err, ErrInsufficientCredits) {
		return types.ErrInsufficientCredits, "insufficient credits"
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		switch {
		case serr.Signal == SignalQuota:
			return types.ErrQuotaExceeded, "provider quota exceeded"
		case serr.Signal == SignalRateLimit:
			return types.ErrRateLimited, "provider rate limit reached"
		case serr.StatusCode == http.StatusTooManyRequests:
			return types.ErrRateLimited, "provider rate limit reached"
		case serr.StatusCode == http.StatusPaymentRequired:
			return types.ErrQuotaExceeded, "provider quota exceeded"
		case serr.StatusCode >= 500:
			return types.ErrServiceUnavailable, "provider unavailable"
		}
		return types.ErrUnknown, "provider rejected the request"
	}

	// 调用方主动取消不算服务不可用
	if errors.Is(err, context.Canceled) {
		return types.ErrUnknown, "request canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrServiceUnavailable, "provider timed out"
	}
	if isNetworkFailure(err) {
		return types.ErrServiceUnavailable, "provider unreachable"
	}
	return types.ErrUnknown, "image generation failed"
}

// isNetworkFailure 只认真正的传输层故障. *url.Error 本身也实现 net.Error,
// 非法 URL 或不支持的 scheme 不算供应商不可用.
func isNetworkFailure(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var errno syscall.Errno
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr), errors.As(err, &errno):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// 连接在响应前被对端关闭
		return true
	}
	return false
}
