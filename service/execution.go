package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/scriptflow/config"
	"github.com/BaSui01/scriptflow/engine"
	"github.com/BaSui01/scriptflow/internal/metrics"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/streaming"
	"github.com/BaSui01/scriptflow/types"
)

// Engine is the slice of the execution engine the service depends on.
// Satisfied by *engine.Executor; swapped for doubles in tests.
type Engine interface {
	Execute(req engine.Request) *engine.Result
	ValidateOnly(scriptText string, restrictionsEnabled bool) engine.ValidationResult
	Version() string
}

// Publisher delivers output events to live subscribers. Satisfied by
// *streaming.Broker.
type Publisher interface {
	Publish(ctx context.Context, event streaming.OutputEvent) error
}

// SystemInfo describes the runtime environment reported to callers.
type SystemInfo struct {
	InterpreterVersion  string `json:"interpreter_version"`
	RestrictionsEnabled bool   `json:"restrictions_enabled"`
}

// ExecutionService orchestrates asynchronous script executions: it records a
// running execution, runs the engine on its own goroutine, streams stdout
// lines through the publisher, and persists the terminal result exactly once.
type ExecutionService struct {
	store          store.Store
	engine         Engine
	publisher      Publisher
	metrics        *metrics.Collector
	logger         *zap.Logger
	slots          *semaphore.Weighted
	maxConcurrent  int64
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

// NewExecutionService wires the orchestrator. The metrics collector may be
// nil; concurrency is capped at cfg.MaxConcurrent.
func NewExecutionService(st store.Store, eng Engine, pub Publisher, collector *metrics.Collector, cfg config.EngineConfig, logger *zap.Logger) *ExecutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ExecutionService{
		store:          st,
		engine:         eng,
		publisher:      pub,
		metrics:        collector,
		logger:         logger.With(zap.String("component", "execution_service")),
		slots:          semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent:  int64(maxConcurrent),
		defaultTimeout: cfg.DefaultTimeout,
		maxTimeout:     cfg.MaxTimeout,
	}
}

// Execute starts an asynchronous execution of the given script and returns
// the freshly created running execution record. Parameter validation happens
// up front and rejects the request before anything is recorded; script
// security validation happens inside the engine and surfaces as a failed
// execution instead.
func (s *ExecutionService) Execute(ctx context.Context, scriptID string, parameters map[string]any, timeout time.Duration, caller Caller) (*store.Execution, error) {
	script, err := s.store.GetScript(ctx, scriptID)
	if err != nil {
		return nil, err
	}

	if ok, errs := engine.ValidateParameters(parameters, script.Parameters); !ok {
		if s.metrics != nil {
			s.metrics.RecordValidationFailure("parameter")
		}
		return nil, types.NewError(types.ErrParamValidation, strings.Join(errs, "; ")).
			WithHTTPStatus(422)
	}

	timeout = s.resolveTimeout(timeout, script)

	if !s.slots.TryAcquire(1) {
		return nil, types.NewError(types.ErrServiceUnavailable, "too many concurrent executions").
			WithHTTPStatus(503).
			WithRetryable(true)
	}

	execution := &store.Execution{
		ID:          uuid.NewString(),
		ScriptID:    script.ID,
		ScriptName:  script.Name,
		Status:      store.ExecutionRunning,
		Parameters:  parameters,
		TriggeredBy: caller.Subject,
		StartedAt:   time.Now(),
	}
	if err := s.store.CreateExecution(ctx, execution); err != nil {
		s.slots.Release(1)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ExecutionStarted()
	}

	go s.run(execution, script, parameters, timeout, caller)

	s.logger.Info("execution started",
		zap.String("execution_id", execution.ID),
		zap.String("script", script.Name),
		zap.String("triggered_by", caller.Subject),
		zap.Duration("timeout", timeout),
		zap.Bool("restrictions", caller.RestrictionsEnabled()),
	)

	return execution, nil
}

// run executes the script and persists the terminal result. It runs detached
// from the request context: an execution survives the HTTP request that
// started it.
func (s *ExecutionService) run(execution *store.Execution, script *store.Script, parameters map[string]any, timeout time.Duration, caller Caller) {
	defer s.slots.Release(1)

	ctx := context.Background()

	result := s.engine.Execute(engine.Request{
		Script:       script.Content,
		Parameters:   parameters,
		Timeout:      timeout,
		Restrictions: caller.RestrictionsEnabled(),
		OnLine: func(line string) {
			s.publish(ctx, streaming.OutputEvent{
				ExecutionID: execution.ID,
				Type:        streaming.EventLine,
				Line:        line,
				Timestamp:   time.Now(),
			})
		},
	})

	if err := s.store.FinalizeExecution(ctx, execution.ID, result.Status, result.Output, result.ErrorOutput, result.ExitCode, result.Duration); err != nil {
		s.logger.Error("failed to persist execution result",
			zap.String("execution_id", execution.ID),
			zap.Error(err),
		)
	}

	s.publish(ctx, streaming.OutputEvent{
		ExecutionID: execution.ID,
		Type:        streaming.EventStatus,
		Status:      result.Status,
		ExitCode:    result.ExitCode,
		Timestamp:   time.Now(),
	})

	if s.metrics != nil {
		s.metrics.RecordExecution(script.Name, result.Status, time.Duration(result.Duration*float64(time.Second)))
	}

	s.logger.Info("execution finished",
		zap.String("execution_id", execution.ID),
		zap.String("status", result.Status),
		zap.Int("exit_code", result.ExitCode),
		zap.Float64("duration_seconds", result.Duration),
	)
}

func (s *ExecutionService) publish(ctx context.Context, event streaming.OutputEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish output event",
			zap.String("execution_id", event.ExecutionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordStreamEvent(string(event.Type))
	}
}

// resolveTimeout picks the effective timeout: explicit request value, then
// the script's default, then the service default, clamped to the maximum.
func (s *ExecutionService) resolveTimeout(requested time.Duration, script *store.Script) time.Duration {
	timeout := requested
	if timeout <= 0 && script.DefaultTimeout > 0 {
		timeout = script.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout <= 0 {
		timeout = engine.DefaultTimeout
	}
	if s.maxTimeout > 0 && timeout > s.maxTimeout {
		timeout = s.maxTimeout
	}
	return timeout
}

// Validate runs the deny-list check against a stored script without
// executing it, using the caller's restriction level.
func (s *ExecutionService) Validate(ctx context.Context, scriptID string, caller Caller) (engine.ValidationResult, error) {
	script, err := s.store.GetScript(ctx, scriptID)
	if err != nil {
		return engine.ValidationResult{}, err
	}
	verdict := s.engine.ValidateOnly(script.Content, caller.RestrictionsEnabled())
	if !verdict.Valid && s.metrics != nil {
		s.metrics.RecordValidationFailure("script")
	}
	return verdict, nil
}

// GetExecution fetches one execution. Non-admin callers only see their own.
func (s *ExecutionService) GetExecution(ctx context.Context, id string, caller Caller) (*store.Execution, error) {
	execution, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Admin() && execution.TriggeredBy != caller.Subject {
		return nil, types.NewError(types.ErrForbidden, "execution belongs to another user")
	}
	return execution, nil
}

// ListExecutions returns execution history. Non-admin callers are scoped to
// their own executions regardless of the filter they pass.
func (s *ExecutionService) ListExecutions(ctx context.Context, filter store.ExecutionFilter, caller Caller) ([]*store.Execution, error) {
	if !caller.Admin() {
		filter.TriggeredBy = caller.Subject
	}
	return s.store.ListExecutions(ctx, filter)
}

// DeleteExecution removes one terminal execution record, owner or admin only.
func (s *ExecutionService) DeleteExecution(ctx context.Context, id string, caller Caller) error {
	execution, err := s.GetExecution(ctx, id, caller)
	if err != nil {
		return err
	}
	if !execution.IsTerminal() {
		return types.NewError(types.ErrInvalidRequest, "cannot delete a running execution")
	}
	return s.store.DeleteExecution(ctx, id)
}

// Stats aggregates execution history counters.
func (s *ExecutionService) Stats(ctx context.Context) (*store.ExecutionStats, error) {
	return s.store.ExecutionStats(ctx)
}

// SystemInfo reports the interpreter version and the caller's restriction
// level.
func (s *ExecutionService) SystemInfo(caller Caller) SystemInfo {
	return SystemInfo{
		InterpreterVersion:  s.engine.Version(),
		RestrictionsEnabled: caller.RestrictionsEnabled(),
	}
}

// Drain waits for in-flight executions to finish or the context to expire.
// Called during graceful shutdown. Acquiring every slot guarantees nothing
// is still running.
func (s *ExecutionService) Drain(ctx context.Context) error {
	if err := s.slots.Acquire(ctx, s.maxConcurrent); err != nil {
		return err
	}
	s.slots.Release(s.maxConcurrent)
	return nil
}
