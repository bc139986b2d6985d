// Package scriptflow provides a top-level convenience entry point for
// embedding the script execution engine without the HTTP service plumbing.
//
// Usage:
//
//	import "github.com/BaSui01/scriptflow"
//
//	exec, err := scriptflow.New(nil)
//	result := exec.Execute(scriptflow.Request{Script: "Get-Date"})
//
// This is a thin wrapper around [engine.NewRunner] and [engine.NewExecutor];
// use the engine package directly when you need custom interpreter candidates.
package scriptflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/engine"
)

// Request is the execution request accepted by [engine.Executor.Execute].
type Request = engine.Request

// Result is the outcome record returned by every execution.
type Result = engine.Result

// New creates an [engine.Executor] backed by the first usable PowerShell
// interpreter found on PATH. A nil logger disables logging.
func New(logger *zap.Logger) (*engine.Executor, error) {
	runner, err := engine.NewRunner(logger)
	if err != nil {
		return nil, err
	}
	return engine.NewExecutor(runner, logger), nil
}

// NewWithInterpreters is like [New] but probes the given interpreter
// candidates in order instead of the defaults.
func NewWithInterpreters(logger *zap.Logger, candidates ...string) (*engine.Executor, error) {
	runner, err := engine.NewRunnerWithCandidates(candidates, logger)
	if err != nil {
		return nil, err
	}
	return engine.NewExecutor(runner, logger), nil
}
