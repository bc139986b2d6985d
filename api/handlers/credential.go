package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/api"
	"github.com/BaSui01/scriptflow/service"
)

// CredentialHandler serves the credential endpoints. Authorization lives in
// the service: every operation is admin only.
type CredentialHandler struct {
	credentials *service.CredentialService
	logger      *zap.Logger
}

// NewCredentialHandler creates the credential handler.
func NewCredentialHandler(credentials *service.CredentialService, logger *zap.Logger) *CredentialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialHandler{
		credentials: credentials,
		logger:      logger.With(zap.String("handler", "credential")),
	}
}

// HandleSave handles POST /api/v1/credentials (create or rotate).
func (h *CredentialHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req api.CredentialRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.credentials.Save(r.Context(), req.Name, req.Secret, req.Description, CallerFrom(r)); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: map[string]string{"name": req.Name}})
}

// HandleList handles GET /api/v1/credentials. Admin only; secrets stay sealed.
func (h *CredentialHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	credentials, err := h.credentials.List(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, credentials)
}

// HandleReveal handles GET /api/v1/credentials/{name}.
func (h *CredentialHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	secret, err := h.credentials.Reveal(r.Context(), name, CallerFrom(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"name": name, "secret": secret})
}

// HandleDelete handles DELETE /api/v1/credentials/{name}.
func (h *CredentialHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Delete(r.Context(), r.PathValue("name"), CallerFrom(r)); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "deleted"})
}
