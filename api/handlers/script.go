package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/api"
	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/types"
)

// ScriptHandler serves the script library endpoints.
type ScriptHandler struct {
	scripts *service.ScriptService
	logger  *zap.Logger
}

// NewScriptHandler creates the script handler.
func NewScriptHandler(scripts *service.ScriptService, logger *zap.Logger) *ScriptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptHandler{
		scripts: scripts,
		logger:  logger.With(zap.String("handler", "script")),
	}
}

// HandleCreate handles POST /api/v1/scripts.
func (h *ScriptHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.ScriptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	caller := CallerFrom(r)
	script := &store.Script{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Description:    req.Description,
		Content:        req.Content,
		Parameters:     req.Parameters,
		DefaultTimeout: req.DefaultTimeout(),
		CreatedBy:      caller.Subject,
	}

	if err := h.scripts.Create(r.Context(), script); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: script})
}

// HandleList handles GET /api/v1/scripts.
func (h *ScriptHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	scripts, err := h.scripts.List(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, scripts)
}

// HandleGet handles GET /api/v1/scripts/{id}.
func (h *ScriptHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	script, err := h.scripts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, script)
}

// HandleUpdate handles PUT /api/v1/scripts/{id}.
func (h *ScriptHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req api.ScriptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	script, err := h.scripts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	script.Name = req.Name
	script.Description = req.Description
	script.Content = req.Content
	script.Parameters = req.Parameters
	script.DefaultTimeout = req.DefaultTimeout()

	caller := CallerFrom(r)
	if err := h.scripts.Update(r.Context(), script, caller.Subject); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, script)
}

// HandleDelete handles DELETE /api/v1/scripts/{id}.
func (h *ScriptHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.scripts.Delete(r.Context(), r.PathValue("id"), CallerFrom(r)); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "deleted"})
}

// HandleVersions handles GET /api/v1/scripts/{id}/versions.
func (h *ScriptHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.scripts.Versions(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, versions)
}

// queryInt reads an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// requireAdmin rejects non-admin callers.
func requireAdmin(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	if !CallerFrom(r).Admin() {
		WriteError(w, types.NewError(types.ErrForbidden, "admin role required"), logger)
		return false
	}
	return true
}
