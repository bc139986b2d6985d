package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/service"
	"github.com/BaSui01/scriptflow/streaming"
)

// Subscriber is the broker slice the stream handler needs.
type Subscriber interface {
	Subscribe(ctx context.Context, executionID string) (<-chan streaming.OutputEvent, func(), error)
}

// StreamHandler serves live execution output over WebSocket.
type StreamHandler struct {
	executions    *service.ExecutionService
	broker        Subscriber
	originPattern string
	logger        *zap.Logger
}

// NewStreamHandler creates the stream handler. originPattern feeds the
// WebSocket origin check; empty means same-origin only.
func NewStreamHandler(executions *service.ExecutionService, broker Subscriber, originPattern string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		executions:    executions,
		broker:        broker,
		originPattern: originPattern,
		logger:        logger.With(zap.String("handler", "stream")),
	}
}

// HandleStream handles GET /ws/executions/{id}. Subscribes before upgrading
// so no event published after the access check is lost. For an already
// terminal execution a single status event is sent and the socket closed.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")

	execution, err := h.executions.GetExecution(r.Context(), executionID, CallerFrom(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	events, cancel, err := h.broker.Subscribe(r.Context(), executionID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	defer cancel()

	opts := &websocket.AcceptOptions{}
	if h.originPattern != "" {
		opts.OriginPatterns = []string{h.originPattern}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("execution_id", executionID),
			zap.Error(err),
		)
		return
	}

	relay := streaming.NewRelay(conn, h.logger)

	if execution.IsTerminal() {
		relay.Send(r.Context(), streaming.OutputEvent{
			ExecutionID: execution.ID,
			Type:        streaming.EventStatus,
			Status:      execution.Status,
			ExitCode:    execution.ExitCode,
			Timestamp:   time.Now(),
		})
		relay.Close()
		return
	}

	if err := relay.Run(r.Context(), events); err != nil {
		h.logger.Debug("stream ended",
			zap.String("execution_id", executionID),
			zap.Error(err),
		)
	}
}
