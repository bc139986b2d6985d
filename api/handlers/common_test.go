package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/internal/ctxkeys"
	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/types"
)

// =============================================================================
// 🧪 响应辅助函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusTeapot, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "world", body["hello"])
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAccepted(w, map[string]string{"execution_id": "abc"})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "invalid request",
			err:            types.NewError(types.ErrInvalidRequest, "script name is required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(types.ErrInvalidRequest),
		},
		{
			name:           "not found",
			err:            types.NewError(types.ErrNotFound, "script not found"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   string(types.ErrNotFound),
		},
		{
			name:           "parameter validation",
			err:            types.NewError(types.ErrParamValidation, "Required parameter 'target' is missing"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   string(types.ErrParamValidation),
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrServiceUnavailable, "too many concurrent executions").WithHTTPStatus(503).WithRetryable(true),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   string(types.ErrServiceUnavailable),
		},
		{
			name:           "foreign error becomes internal",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   string(types.ErrInternalError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
		})
	}
}

// =============================================================================
// 🧪 请求辅助函数测试
// =============================================================================

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"restart-iis"}`))
		w := httptest.NewRecorder()

		var p payload
		require.NoError(t, DecodeJSONBody(w, r, &p, logger))
		assert.Equal(t, "restart-iis", p.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
		w := httptest.NewRecorder()

		var p payload
		err := DecodeJSONBody(w, r, &p, logger)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","bogus":1}`))
		w := httptest.NewRecorder()

		var p payload
		err := DecodeJSONBody(w, r, &p, logger)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCallerFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	t.Run("unauthenticated context is empty", func(t *testing.T) {
		caller := CallerFrom(r)
		assert.Equal(t, service.Caller{}, caller)
		assert.False(t, caller.Admin())
	})

	t.Run("identity injected by middleware", func(t *testing.T) {
		ctx := ctxkeys.WithSubject(r.Context(), "alice")
		ctx = ctxkeys.WithRole(ctx, service.RoleAdmin)
		caller := CallerFrom(r.WithContext(ctx))
		assert.Equal(t, "alice", caller.Subject)
		assert.True(t, caller.Admin())
	})
}

// =============================================================================
// 🧪 错误码映射测试
// =============================================================================

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrAuthentication, http.StatusUnauthorized},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrScriptValidation, http.StatusUnprocessableEntity},
		{types.ErrParamValidation, http.StatusUnprocessableEntity},
		{types.ErrExecutionTimeout, http.StatusGatewayTimeout},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{types.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

// =============================================================================
// 🧪 ResponseWriter 测试
// =============================================================================

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := NewResponseWriter(w)

		rw.WriteHeader(http.StatusCreated)
		assert.Equal(t, http.StatusCreated, rw.StatusCode)
		assert.True(t, rw.Written)

		// second WriteHeader is ignored
		rw.WriteHeader(http.StatusInternalServerError)
		assert.Equal(t, http.StatusCreated, rw.StatusCode)
	})

	t.Run("write defaults to 200", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := NewResponseWriter(w)

		_, err := rw.Write([]byte("ok"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rw.StatusCode)
	})
}
