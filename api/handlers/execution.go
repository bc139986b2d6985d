package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/api"
	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/store"
)

// ExecutionHandler serves execution and system endpoints.
type ExecutionHandler struct {
	executions *service.ExecutionService
	logger     *zap.Logger
}

// NewExecutionHandler creates the execution handler.
func NewExecutionHandler(executions *service.ExecutionService, logger *zap.Logger) *ExecutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionHandler{
		executions: executions,
		logger:     logger.With(zap.String("handler", "execution")),
	}
}

// HandleExecute handles POST /api/v1/scripts/{id}/execute. The execution is
// asynchronous; the response carries the running execution record.
func (h *ExecutionHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	execution, err := h.executions.Execute(r.Context(), r.PathValue("id"), req.Parameters, req.Timeout(), CallerFrom(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteAccepted(w, execution)
}

// HandleValidate handles POST /api/v1/scripts/{id}/validate. Runs the
// deny-list check without executing; admin callers see their bypass
// reflected in a valid verdict.
func (h *ExecutionHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	verdict, err := h.executions.Validate(r.Context(), r.PathValue("id"), CallerFrom(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, verdict)
}

// HandleList handles GET /api/v1/executions with script_id, status and
// limit/offset query filters.
func (h *ExecutionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := store.ExecutionFilter{
		ScriptID: r.URL.Query().Get("script_id"),
		Status:   r.URL.Query().Get("status"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	executions, err := h.executions.ListExecutions(r.Context(), filter, CallerFrom(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, executions)
}

// HandleGet handles GET /api/v1/executions/{id}.
func (h *ExecutionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	execution, err := h.executions.GetExecution(r.Context(), r.PathValue("id"), CallerFrom(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, execution)
}

// HandleDelete handles DELETE /api/v1/executions/{id}.
func (h *ExecutionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.executions.DeleteExecution(r.Context(), r.PathValue("id"), CallerFrom(r)); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "deleted"})
}

// HandleStats handles GET /api/v1/executions/stats. Admin only.
func (h *ExecutionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	stats, err := h.executions.Stats(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, stats)
}

// HandleSystemInfo handles GET /api/v1/system/info.
func (h *ExecutionHandler) HandleSystemInfo(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.executions.SystemInfo(CallerFrom(r)))
}
