package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/scriptflow/config"
	"github.com/BaSui01/scriptflow/engine"
	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/streaming"
)

// stubEngine runs scripts without a real interpreter.
type stubEngine struct {
	result  *engine.Result
	verdict engine.ValidationResult
}

func (s *stubEngine) Execute(req engine.Request) *engine.Result {
	if s.result != nil {
		return s.result
	}
	return &engine.Result{Status: engine.StatusCompleted, Output: "done", ExitCode: 0, Duration: 0.2}
}

func (s *stubEngine) ValidateOnly(scriptText string, restrictionsEnabled bool) engine.ValidationResult {
	return s.verdict
}

func (s *stubEngine) Version() string { return "PowerShell 7.4.1" }

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event streaming.OutputEvent) error { return nil }

func newExecutionHandler(t *testing.T, eng service.Engine) (*ExecutionHandler, *store.GormStore, *service.ExecutionService) {
	t.Helper()
	st := newHandlerStore(t)
	cfg := config.EngineConfig{DefaultTimeout: 30 * time.Second, MaxTimeout: time.Minute, MaxConcurrent: 4}
	svc := service.NewExecutionService(st, eng, nopPublisher{}, nil, cfg, nil)
	return NewExecutionHandler(svc, nil), st, svc
}

func seedHandlerScript(t *testing.T, st *store.GormStore, defs []engine.ParameterDefinition) *store.Script {
	t.Helper()
	script := &store.Script{
		ID:         "44444444-4444-4444-4444-444444444444",
		Name:       "restart-iis",
		Content:    "Restart-WebAppPool -Name $pool",
		Parameters: defs,
	}
	require.NoError(t, st.CreateScript(t.Context(), script))
	return script
}

func waitForDrain(t *testing.T, svc *service.ExecutionService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
}

// =============================================================================
// 🧪 ExecutionHandler 测试
// =============================================================================

func TestExecutionHandlerExecute(t *testing.T) {
	h, st, svc := newExecutionHandler(t, &stubEngine{})
	script := seedHandlerScript(t, st, nil)

	w := httptest.NewRecorder()
	r := asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/scripts/"+script.ID+"/execute", strings.NewReader(`{}`)), "alice", service.RoleOperator)
	r.SetPathValue("id", script.ID)
	h.HandleExecute(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "running", data["status"])
	executionID := data["id"].(string)
	assert.NotEmpty(t, executionID)

	waitForDrain(t, svc)

	stored, err := st.GetExecution(t.Context(), executionID)
	require.NoError(t, err)
	assert.Equal(t, store.ExecutionCompleted, stored.Status)
}

func TestExecutionHandlerExecuteBadParameters(t *testing.T) {
	h, st, _ := newExecutionHandler(t, &stubEngine{})
	script := seedHandlerScript(t, st, []engine.ParameterDefinition{
		{Name: "pool", Type: engine.ParamString, Required: true},
	})

	w := httptest.NewRecorder()
	r := asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/scripts/"+script.ID+"/execute", strings.NewReader(`{"parameters":{}}`)), "alice", service.RoleOperator)
	r.SetPathValue("id", script.ID)
	h.HandleExecute(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error.Message, "Required parameter 'pool' is missing")
}

func TestExecutionHandlerValidate(t *testing.T) {
	h, st, _ := newExecutionHandler(t, &stubEngine{verdict: engine.ValidationResult{
		Valid:  false,
		Issues: []string{"Dangerous command detected: Stop-Service"},
	}})
	script := seedHandlerScript(t, st, nil)

	w := httptest.NewRecorder()
	r := asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/scripts/"+script.ID+"/validate", nil), "alice", service.RoleOperator)
	r.SetPathValue("id", script.ID)
	h.HandleValidate(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["valid"])
}

func TestExecutionHandlerHistory(t *testing.T) {
	h, st, svc := newExecutionHandler(t, &stubEngine{})
	script := seedHandlerScript(t, st, nil)

	// run one execution to completion
	w := httptest.NewRecorder()
	r := asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/scripts/"+script.ID+"/execute", strings.NewReader(`{}`)), "alice", service.RoleOperator)
	r.SetPathValue("id", script.ID)
	h.HandleExecute(w, r)
	require.Equal(t, http.StatusAccepted, w.Code)
	executionID := decodeResponse(t, w).Data.(map[string]any)["id"].(string)
	waitForDrain(t, svc)

	t.Run("owner lists own history", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil), "alice", service.RoleOperator)
		h.HandleList(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeResponse(t, w).Data.([]any), 1)
	})

	t.Run("stranger sees nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil), "bob", service.RoleOperator)
		h.HandleList(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeResponse(t, w).Data)
	})

	t.Run("stranger cannot fetch by id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/executions/"+executionID, nil), "bob", service.RoleOperator)
		r.SetPathValue("id", executionID)
		h.HandleGet(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("owner deletes", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := asCaller(httptest.NewRequest(http.MethodDelete, "/api/v1/executions/"+executionID, nil), "alice", service.RoleOperator)
		r.SetPathValue("id", executionID)
		h.HandleDelete(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestExecutionHandlerStats(t *testing.T) {
	h, _, _ := newExecutionHandler(t, &stubEngine{})

	t.Run("operator is forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/executions/stats", nil), "alice", service.RoleOperator)
		h.HandleStats(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin reads stats", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/executions/stats", nil), "root", service.RoleAdmin)
		h.HandleStats(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, float64(0), data["total"])
	})
}

func TestExecutionHandlerSystemInfo(t *testing.T) {
	h, _, _ := newExecutionHandler(t, &stubEngine{})

	w := httptest.NewRecorder()
	r := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil), "alice", service.RoleOperator)
	h.HandleSystemInfo(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "PowerShell 7.4.1", data["interpreter_version"])
	assert.Equal(t, true, data["restrictions_enabled"])
}
