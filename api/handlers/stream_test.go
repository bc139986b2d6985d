package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/scriptflow/config"
	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/streaming"
)

const streamChannelPrefix = "scriptflow:exec:"

func newStreamFixture(t *testing.T) (*StreamHandler, *store.GormStore, *streaming.Broker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	broker := streaming.NewBrokerWithClient(client, streamChannelPrefix, nil)
	st := newHandlerStore(t)
	cfg := config.EngineConfig{DefaultTimeout: time.Second, MaxTimeout: time.Minute, MaxConcurrent: 2}
	svc := service.NewExecutionService(st, &stubEngine{}, broker, nil, cfg, nil)

	return NewStreamHandler(svc, broker, "", nil), st, broker, client
}

func streamServer(t *testing.T, h *StreamHandler, subject, role string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleStream(w, asCaller(r, subject, role))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server, executionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/executions/" + executionID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func readStreamEvent(t *testing.T, conn *websocket.Conn) streaming.OutputEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var event streaming.OutputEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

// waitForSubscriber blocks until the channel has a live subscription, so a
// following publish cannot be lost.
func waitForSubscriber(t *testing.T, client *redis.Client, executionID string) {
	t.Helper()
	channel := streamChannelPrefix + executionID
	require.Eventually(t, func() bool {
		counts, err := client.PubSubNumSub(context.Background(), channel).Result()
		return err == nil && counts[channel] > 0
	}, 5*time.Second, 10*time.Millisecond)
}

// =============================================================================
// 🧪 StreamHandler 测试
// =============================================================================

func TestStreamHandlerLiveOutput(t *testing.T) {
	h, st, broker, client := newStreamFixture(t)

	execution := &store.Execution{
		ID:          "55555555-5555-5555-5555-555555555555",
		ScriptID:    "s1",
		ScriptName:  "restart-iis",
		Status:      store.ExecutionRunning,
		TriggeredBy: "alice",
		StartedAt:   time.Now(),
	}
	require.NoError(t, st.CreateExecution(t.Context(), execution))

	srv := streamServer(t, h, "alice", service.RoleOperator)
	conn := dialStream(t, srv, execution.ID)
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForSubscriber(t, client, execution.ID)

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, streaming.OutputEvent{
		ExecutionID: execution.ID, Type: streaming.EventLine, Line: "restarting pool", Timestamp: time.Now(),
	}))
	require.NoError(t, broker.Publish(ctx, streaming.OutputEvent{
		ExecutionID: execution.ID, Type: streaming.EventStatus, Status: store.ExecutionCompleted, ExitCode: 0, Timestamp: time.Now(),
	}))

	line := readStreamEvent(t, conn)
	assert.Equal(t, streaming.EventLine, line.Type)
	assert.Equal(t, "restarting pool", line.Line)

	terminal := readStreamEvent(t, conn)
	assert.Equal(t, streaming.EventStatus, terminal.Type)
	assert.Equal(t, store.ExecutionCompleted, terminal.Status)
	assert.True(t, terminal.Terminal())

	// relay closes after the terminal event
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(readCtx)
	assert.Error(t, err)
}

func TestStreamHandlerTerminalSnapshot(t *testing.T) {
	h, st, _, _ := newStreamFixture(t)

	finished := time.Now()
	execution := &store.Execution{
		ID:          "66666666-6666-6666-6666-666666666666",
		ScriptID:    "s1",
		ScriptName:  "restart-iis",
		Status:      store.ExecutionCompleted,
		ExitCode:    0,
		TriggeredBy: "alice",
		StartedAt:   finished.Add(-time.Second),
		FinishedAt:  &finished,
	}
	require.NoError(t, st.CreateExecution(t.Context(), execution))

	srv := streamServer(t, h, "alice", service.RoleOperator)
	conn := dialStream(t, srv, execution.ID)
	defer conn.Close(websocket.StatusNormalClosure, "")

	event := readStreamEvent(t, conn)
	assert.Equal(t, streaming.EventStatus, event.Type)
	assert.Equal(t, store.ExecutionCompleted, event.Status)
}

func TestStreamHandlerAccessDenied(t *testing.T) {
	h, st, _, _ := newStreamFixture(t)

	execution := &store.Execution{
		ID:          "77777777-7777-7777-7777-777777777777",
		ScriptID:    "s1",
		ScriptName:  "restart-iis",
		Status:      store.ExecutionRunning,
		TriggeredBy: "alice",
		StartedAt:   time.Now(),
	}
	require.NoError(t, st.CreateExecution(t.Context(), execution))

	srv := streamServer(t, h, "bob", service.RoleOperator)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/executions/" + execution.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStreamHandlerUnknownExecution(t *testing.T) {
	h, _, _, _ := newStreamFixture(t)

	srv := streamServer(t, h, "alice", service.RoleOperator)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/executions/missing"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
