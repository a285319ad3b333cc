package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"
	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

// SettingsHandler administers provider settings profiles. Routes are expected
// behind a role check; the handler itself only records who made the change.
type SettingsHandler struct {
	service *imagegen.Service
	logger  *zap.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(service *imagegen.Service, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{service: service, logger: logger.With(zap.String("handler", "settings"))}
}

// HandleList 处理 GET /api/v1/settings/profiles?provider=&active=&default=
func (h *SettingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter imagegen.ProfileFilter
	if p := strings.TrimSpace(q.Get("provider")); p != "" {
		id, err := imagegen.ParseProviderID(p)
		if err != nil {
			WriteError(w, r, types.NewError(types.ErrInvalidParameters, err.Error()), h.logger)
			return
		}
		filter.ProviderID = id
	}
	var err error
	if filter.ActiveOnly, err = queryBool(q.Get("active")); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidParameters, "active: "+err.Error()), h.logger)
		return
	}
	if filter.DefaultOnly, err = queryBool(q.Get("default")); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidParameters, "default: "+err.Error()), h.logger)
		return
	}

	profiles, err := h.service.ListSettingsProfiles(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, filter.ProviderID, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"profiles": profiles, "total": len(profiles)})
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// HandleUpsert 处理 POST /api/v1/settings/profiles. 没有 id 时创建 (201),
// 否则按 version 乐观并发更新 (200).
func (h *SettingsHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var profile imagegen.SettingsProfile
	if err := DecodeJSONBody(w, r, &profile, h.logger); err != nil {
		return
	}

	creating := profile.ID == ""
	if uid, ok := types.UserID(r.Context()); ok {
		profile.UpdatedBy = uid
		if creating {
			profile.CreatedBy = uid
		}
	}

	saved, err := h.service.CreateOrUpdateSettingsProfile(r.Context(), &profile)
	if err != nil {
		writeServiceError(w, r, profile.ProviderID, err, h.logger)
		return
	}
	status := http.StatusOK
	if creating {
		status = http.StatusCreated
	}
	writeResponse(w, r, status, Response{Success: true, Data: saved})
}

// HandleDelete 处理 DELETE /api/v1/settings/profiles/{id}
func (h *SettingsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, r, http.StatusNotFound, CodeNotFound, "profile id is required")
		return
	}
	if err := h.service.DeleteSettingsProfile(r.Context(), id); err != nil {
		writeServiceError(w, r, "", err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"deleted": id})
}
