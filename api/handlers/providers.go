package handlers

import (
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
)

// ProviderHandler exposes provider discovery and health.
type ProviderHandler struct {
	service *imagegen.Service
	logger  *zap.Logger
}

// NewProviderHandler creates a ProviderHandler.
func NewProviderHandler(service *imagegen.Service, logger *zap.Logger) *ProviderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderHandler{service: service, logger: logger.With(zap.String("handler", "providers"))}
}

// ProviderSummary is one entry of the provider list.
type ProviderSummary struct {
	ID          imagegen.ProviderID `json:"id"`
	DisplayName string              `json:"display_name"`
	Priority    int                 `json:"priority"`
}

// HandleList 处理 GET /api/v1/providers, 按选择优先级返回已配置的供应商
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids := h.service.ListAvailableProviders(r.Context())
	out := make([]ProviderSummary, 0, len(ids))
	for i, id := range ids {
		s := ProviderSummary{ID: id, Priority: i + 1}
		if caps, ok := h.service.Registry().Capabilities(id); ok {
			s.DisplayName = caps.DisplayName
		}
		out = append(out, s)
	}
	WriteSuccess(w, r, map[string]any{"providers": out})
}

// HealthReport is the body of the provider health endpoint.
type HealthReport struct {
	Healthy   int                     `json:"healthy"`
	Total     int                     `json:"total"`
	Providers []imagegen.HealthStatus `json:"providers"`
}

// HandleHealth 处理 GET /api/v1/providers/health
func (h *ProviderHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	all := h.service.GetProvidersHealth(r.Context())
	report := HealthReport{Total: len(all), Providers: make([]imagegen.HealthStatus, 0, len(all))}
	for _, st := range all {
		if st.Healthy {
			report.Healthy++
		}
		report.Providers = append(report.Providers, st)
	}
	sort.Slice(report.Providers, func(i, j int) bool {
		return report.Providers[i].Provider < report.Providers[j].Provider
	})
	WriteSuccess(w, r, report)
}

// HandleCapabilities 处理 GET /api/v1/providers/{id}/capabilities.
// 未配置的内置供应商同样返回其声明的能力.
func (h *ProviderHandler) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	id, err := imagegen.ParseProviderID(r.PathValue("id"))
	if err != nil {
		WriteErrorMessage(w, r, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	caps, err := h.service.GetProviderCapabilities(r.Context(), id)
	if err != nil {
		WriteError(w, r, imagegen.Classify(id, err), h.logger)
		return
	}
	WriteSuccess(w, r, caps)
}

// HandleEffectiveSettings 处理 GET /api/v1/providers/{id}/settings: 能力默认值
// 与当前生效配置档合并后的结果
func (h *ProviderHandler) HandleEffectiveSettings(w http.ResponseWriter, r *http.Request) {
	id, err := imagegen.ParseProviderID(r.PathValue("id"))
	if err != nil {
		WriteErrorMessage(w, r, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	settings, err := h.service.GetEffectiveSettings(r.Context(), id, nil)
	if err != nil {
		WriteError(w, r, imagegen.Classify(id, err), h.logger)
		return
	}
	WriteSuccess(w, r, settings)
}
