package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/scriptflow/types"
)

func setupBroker(t *testing.T) (*miniredis.Miniredis, *Broker) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewBrokerWithClient(client, "scriptflow:exec:", nil)
	t.Cleanup(func() { _ = b.Close() })

	return mr, b
}

func recvEvent(t *testing.T, events <-chan OutputEvent) OutputEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok, "event channel closed early")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return OutputEvent{}
	}
}

// --- publish / subscribe ---

func TestBrokerRoundTrip(t *testing.T) {
	_, b := setupBroker(t)
	ctx := context.Background()

	events, cancel, err := b.Subscribe(ctx, "exec-1")
	require.NoError(t, err)
	defer cancel()

	published := []OutputEvent{
		{ExecutionID: "exec-1", Type: EventLine, Line: "step one", Timestamp: time.Now().UTC()},
		{ExecutionID: "exec-1", Type: EventLine, Line: "step two", Timestamp: time.Now().UTC()},
		{ExecutionID: "exec-1", Type: EventStatus, Status: "completed", ExitCode: 0, Timestamp: time.Now().UTC()},
	}
	for _, event := range published {
		require.NoError(t, b.Publish(ctx, event))
	}

	got := []OutputEvent{recvEvent(t, events), recvEvent(t, events), recvEvent(t, events)}
	assert.Equal(t, "step one", got[0].Line)
	assert.Equal(t, "step two", got[1].Line)
	assert.Equal(t, EventStatus, got[2].Type)
	assert.Equal(t, "completed", got[2].Status)
	assert.True(t, got[2].Terminal())
}

func TestBrokerChannelIsolation(t *testing.T) {
	_, b := setupBroker(t)
	ctx := context.Background()

	events, cancel, err := b.Subscribe(ctx, "exec-a")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Publish(ctx, OutputEvent{ExecutionID: "exec-b", Type: EventLine, Line: "other run"}))
	require.NoError(t, b.Publish(ctx, OutputEvent{ExecutionID: "exec-a", Type: EventLine, Line: "mine"}))

	// Only the exec-a event arrives.
	event := recvEvent(t, events)
	assert.Equal(t, "mine", event.Line)

	select {
	case extra := <-events:
		t.Fatalf("unexpected event leaked across channels: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	_, b := setupBroker(t)

	events, cancel, err := b.Subscribe(context.Background(), "exec-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestBrokerMalformedPayloadDropped(t *testing.T) {
	_, b := setupBroker(t)
	ctx := context.Background()

	events, cancel, err := b.Subscribe(ctx, "exec-1")
	require.NoError(t, err)
	defer cancel()

	// Raw garbage on the same channel, then a valid event.
	require.NoError(t, b.client.Publish(ctx, b.channel("exec-1"), "{not json").Err())
	require.NoError(t, b.Publish(ctx, OutputEvent{ExecutionID: "exec-1", Type: EventLine, Line: "ok"}))

	event := recvEvent(t, events)
	assert.Equal(t, "ok", event.Line)
}

// --- lifecycle ---

func TestBrokerClosed(t *testing.T) {
	_, b := setupBroker(t)
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), OutputEvent{ExecutionID: "exec-1", Type: EventLine})
	assert.Equal(t, types.ErrBrokerUnavailable, types.CodeOf(err))

	_, _, err = b.Subscribe(context.Background(), "exec-1")
	assert.Equal(t, types.ErrBrokerUnavailable, types.CodeOf(err))

	assert.Error(t, b.Ping(context.Background()))

	// Close twice is fine.
	assert.NoError(t, b.Close())
}

func TestBrokerPing(t *testing.T) {
	_, b := setupBroker(t)
	assert.NoError(t, b.Ping(context.Background()))
}

// --- event helpers ---

func TestOutputEventTerminal(t *testing.T) {
	tests := []struct {
		name     string
		event    OutputEvent
		terminal bool
	}{
		{"line", OutputEvent{Type: EventLine, Line: "x"}, false},
		{"running status", OutputEvent{Type: EventStatus, Status: "running"}, false},
		{"completed", OutputEvent{Type: EventStatus, Status: "completed"}, true},
		{"failed", OutputEvent{Type: EventStatus, Status: "failed"}, true},
		{"empty status", OutputEvent{Type: EventStatus}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.event.Terminal())
		})
	}
}
