package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

// =============================================================================
// 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// HTTP 层自有的错误码, 不属于生成核心的封闭集合
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "FEATURE_UNAVAILABLE"
)

// =============================================================================
// 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出, 编码失败时无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入 200 成功响应
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	writeResponse(w, r, http.StatusOK, Response{Success: true, Data: data})
}

// WriteError 写入分类后的错误. 状态码取 err.HTTPStatus, 为 0 时按错误码映射.
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = err.Code.HTTPStatus()
	}
	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
		}
		if err.Provider != "" {
			fields = append(fields, zap.String("provider", err.Provider))
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Info("API error", fields...)
		}
	}

	writeResponse(w, r, status, Response{Error: &ErrorInfo{
		Code:      string(err.Code),
		Message:   err.Message,
		Provider:  err.Provider,
		Retryable: err.Retryable,
	}})
}

// WriteErrorMessage 写入 HTTP 层错误 (鉴权、路由、冲突等)
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeResponse(w, r, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func writeResponse(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	resp.Timestamp = time.Now().UTC()
	if r != nil {
		if id, ok := types.RequestID(r.Context()); ok {
			resp.RequestID = id
		}
	}
	WriteJSON(w, status, resp)
}

// writeServiceError 把 Service 返回的错误写成响应. 配置档存储的哨兵错误
// 映射到 404/409/503, 其余交给 imagegen.Classify.
func writeServiceError(w http.ResponseWriter, r *http.Request, provider imagegen.ProviderID, err error, logger *zap.Logger) {
	msg := err.Error()
	if terr, ok := types.AsError(err); ok {
		msg = terr.Message
	}
	switch {
	case errors.Is(err, imagegen.ErrProfileNotFound):
		WriteErrorMessage(w, r, http.StatusNotFound, CodeNotFound, msg)
	case errors.Is(err, imagegen.ErrDefaultProfile), errors.Is(err, imagegen.ErrVersionConflict):
		WriteErrorMessage(w, r, http.StatusConflict, CodeConflict, msg)
	case errors.Is(err, imagegen.ErrSettingsDisabled):
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, CodeUnavailable, msg)
	default:
		WriteError(w, r, imagegen.Classify(provider, err), logger)
	}
}

// =============================================================================
// 请求解析
// =============================================================================

// DecodeJSONBody 严格解码 JSON 请求体, 失败时已写出 400 响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidParameters, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiErr := types.NewError(types.ErrInvalidParameters, "request body too large").
				WithCause(err).
				WithHTTPStatus(http.StatusRequestEntityTooLarge)
			WriteError(w, r, apiErr, logger)
			return apiErr
		}
		apiErr := types.NewError(types.ErrInvalidParameters, "invalid JSON body").WithCause(err)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}
	return nil
}

// ValidateContentType 要求 application/json
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		err := types.NewError(types.ErrInvalidParameters, "Content-Type must be application/json").
			WithHTTPStatus(http.StatusUnsupportedMediaType)
		WriteError(w, r, err, logger)
		return false
	}
	return true
}

// =============================================================================
// 响应包装器
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与响应大小
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	BytesWritten int64
	Written      bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 只记录第一次写入的状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 累计写出的字节数
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
