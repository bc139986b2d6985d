package engine

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScriptRunner is the process-spawning half of the engine. Satisfied by
// *Runner; swapped for a double in tests that must prove no process is ever
// spawned.
type ScriptRunner interface {
	Run(composedScript string, timeout time.Duration, onLine LineCallback) *Result
	Version() string
}

// Request carries one execution call. The script text is immutable for the
// duration of the call and nothing here is persisted by the engine.
type Request struct {
	Script     string
	Parameters map[string]any
	Timeout    time.Duration
	// Restrictions selects whether the deny-list is enforced. The flag is an
	// explicit capability input: the surrounding service decides by caller
	// role, the engine only honors it.
	Restrictions bool
	// OnLine, when set, receives each stdout line as it arrives.
	OnLine LineCallback
}

// Executor is the façade over validator, binder, and runner.
type Executor struct {
	validator *Validator
	binder    *Binder
	runner    ScriptRunner
	logger    *zap.Logger
}

// NewExecutor wires the engine façade around a runner.
func NewExecutor(runner ScriptRunner, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		validator: NewValidator(),
		binder:    NewBinder(),
		runner:    runner,
		logger:    logger.With(zap.String("component", "executor")),
	}
}

// Execute validates, composes, and runs. A validation failure short-circuits
// into a failed result without ever reaching the runner. Execute never
// returns nil and never panics.
func (e *Executor) Execute(req Request) *Result {
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}

	verdict := e.validator.Check(req.Script, req.Restrictions)
	if !verdict.Valid {
		e.logger.Warn("script rejected by validator",
			zap.Int("issues", len(verdict.Issues)),
		)
		return &Result{
			Status:      StatusFailed,
			ErrorOutput: "Security validation failed:\n" + strings.Join(verdict.Issues, "\n"),
			ExitCode:    ExitInternalError,
		}
	}

	composed := e.binder.Compose(req.Script, req.Parameters)
	return e.runner.Run(composed, req.Timeout, req.OnLine)
}

// ValidateOnly runs the deny-list check without executing anything.
func (e *Executor) ValidateOnly(scriptText string, restrictionsEnabled bool) ValidationResult {
	return e.validator.Check(scriptText, restrictionsEnabled)
}

// Version reports the interpreter version, or the "Unknown" placeholder.
func (e *Executor) Version() string {
	return e.runner.Version()
}
