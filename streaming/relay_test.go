package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayServer runs a Relay over an accepted WebSocket, fed from the given
// channel, and reports Run's result.
func relayServer(t *testing.T, events <-chan OutputEvent) (*httptest.Server, <-chan error) {
	t.Helper()

	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			done <- err
			return
		}
		done <- NewRelay(conn, nil).Run(r.Context(), events)
	}))
	t.Cleanup(srv.Close)

	return srv, done
}

func dialWS(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) OutputEvent {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var event OutputEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestRelayForwardsUntilTerminal(t *testing.T) {
	events := make(chan OutputEvent, 8)
	events <- OutputEvent{ExecutionID: "exec-1", Type: EventLine, Line: "one"}
	events <- OutputEvent{ExecutionID: "exec-1", Type: EventLine, Line: "two"}
	events <- OutputEvent{ExecutionID: "exec-1", Type: EventStatus, Status: "completed", ExitCode: 0}

	srv, done := relayServer(t, events)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, "one", readEvent(t, ctx, conn).Line)
	assert.Equal(t, "two", readEvent(t, ctx, conn).Line)

	final := readEvent(t, ctx, conn)
	assert.Equal(t, EventStatus, final.Type)
	assert.Equal(t, "completed", final.Status)

	select {
	case err := <-done:
		assert.NoError(t, err, "relay stops cleanly after the terminal event")
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after terminal event")
	}
}

func TestRelayStopsOnChannelClose(t *testing.T) {
	events := make(chan OutputEvent, 1)
	events <- OutputEvent{ExecutionID: "exec-1", Type: EventLine, Line: "only"}
	close(events)

	srv, done := relayServer(t, events)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, "only", readEvent(t, ctx, conn).Line)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after channel close")
	}
}

func TestRelaySendAfterClose(t *testing.T) {
	relays := make(chan *Relay, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		relay := NewRelay(conn, nil)
		relays <- relay
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	relay := <-relays
	require.NoError(t, relay.Close())
	assert.NoError(t, relay.Close(), "close is idempotent")

	err := relay.Send(ctx, OutputEvent{Type: EventLine, Line: "late"})
	assert.Error(t, err)
}
