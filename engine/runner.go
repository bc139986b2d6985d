package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/scriptflow/types"
)

// Sentinel exit codes for results that did not come from the interpreter.
const (
	// ExitInternalError marks validation failures, spawn failures, and pipe
	// I/O errors.
	ExitInternalError = -1
	// ExitTimeout marks executions killed at the deadline.
	ExitTimeout = -2
)

// Execution statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DefaultTimeout applies when a request carries no timeout.
const DefaultTimeout = 300 * time.Second

const (
	probeTimeout   = 5 * time.Second
	versionTimeout = 10 * time.Second
	// drainGrace bounds how long result finalization waits on a stream that
	// may never close (a grandchild process can inherit the pipe).
	drainGrace = 5 * time.Second
)

// defaultInterpreters are probed in order at construction time. PowerShell
// Core first: it is the cross-platform binary.
var defaultInterpreters = []string{"pwsh", "powershell"}

var (
	psRunArgs     = []string{"-NoProfile", "-NonInteractive", "-Command", "-"}
	psVersionArgs = []string{"-NoProfile", "-Command", "$PSVersionTable.PSVersion.ToString()"}
)

// Result is the terminal record of one Run. Created exactly once, at process
// termination or forced kill, and immutable afterwards.
type Result struct {
	Status      string  `json:"status"`
	Output      string  `json:"output"`
	ErrorOutput string  `json:"error_output"`
	ExitCode    int     `json:"exit_code"`
	Duration    float64 `json:"duration_seconds"`
}

// LineCallback receives one standard-output line per invocation, in arrival
// order, synchronously inside the output drainer. A slow callback stalls
// result delivery; a panicking one is recovered and logged.
type LineCallback func(line string)

// Runner spawns interpreter subprocesses and collects their terminal
// results. The interpreter path is resolved once at construction and is the
// only state shared across Run calls; everything mutable is private to a
// single invocation, so one Runner serves any number of concurrent Runs.
type Runner struct {
	path        string
	runArgs     []string
	versionArgs []string
	logger      *zap.Logger
}

// NewRunner probes the default interpreter candidates with a short
// version-query invocation and adopts the first that answers. No interpreter
// on the host means no script can ever run, so that is a construction
// failure, not a per-call one.
func NewRunner(logger *zap.Logger) (*Runner, error) {
	return NewRunnerWithCandidates(defaultInterpreters, logger)
}

// NewRunnerWithCandidates probes the given binary names in order. Used when
// configuration narrows or reorders the default candidate list.
func NewRunnerWithCandidates(candidates []string, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, candidate := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := exec.CommandContext(ctx, candidate, "-Version").Run()
		cancel()
		if err == nil {
			logger.Info("interpreter located", zap.String("path", candidate))
			return &Runner{
				path:        candidate,
				runArgs:     psRunArgs,
				versionArgs: psVersionArgs,
				logger:      logger.With(zap.String("component", "runner")),
			}, nil
		}
		logger.Debug("interpreter probe failed", zap.String("candidate", candidate), zap.Error(err))
	}
	return nil, types.NewError(types.ErrInterpreterNotFound,
		fmt.Sprintf("no interpreter found (probed: %s); install PowerShell 7+", strings.Join(candidates, ", ")))
}

// NewRunnerForInterpreter builds a Runner around a known interpreter without
// probing. runArgs must put the interpreter into "read program text from
// standard input" mode.
func NewRunnerForInterpreter(path string, runArgs, versionArgs []string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		path:        path,
		runArgs:     runArgs,
		versionArgs: versionArgs,
		logger:      logger.With(zap.String("component", "runner")),
	}
}

// Path returns the resolved interpreter path.
func (r *Runner) Path() string {
	return r.path
}

// Run executes the composed script and always returns a well-formed Result;
// spawn and I/O faults become failed results rather than errors. The child
// gets the script on stdin, its stdout and stderr are drained concurrently
// line-by-line, and the deadline is enforced with a hard kill.
func (r *Runner) Run(composedScript string, timeout time.Duration, onLine LineCallback) *Result {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cmd := exec.Command(r.path, r.runArgs...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return r.internalFailure(start, fmt.Errorf("stdin pipe: %w", err))
	}

	// Plain os.Pipe ends instead of StdoutPipe/StderrPipe: exec.Cmd.Wait
	// closes the pipes it created, which races with drainers still holding
	// buffered lines. With our own pipes, Wait only reaps the process and
	// the drainers keep reading until true EOF.
	outR, outW, err := os.Pipe()
	if err != nil {
		return r.internalFailure(start, fmt.Errorf("stdout pipe: %w", err))
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return r.internalFailure(start, fmt.Errorf("stderr pipe: %w", err))
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return r.internalFailure(start, fmt.Errorf("spawn %s: %w", r.path, err))
	}
	// The child holds its own copies; the parent's write ends must close or
	// the drainers never see EOF.
	outW.Close()
	errW.Close()

	r.logger.Debug("script started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("script_bytes", len(composedScript)),
		zap.Duration("timeout", timeout),
	)

	// Feed the script concurrently; a child that fills its output pipe
	// before reading all of stdin would otherwise deadlock the write.
	go func() {
		if _, werr := stdin.Write([]byte(composedScript)); werr != nil {
			r.logger.Debug("stdin write interrupted", zap.Error(werr))
		}
		stdin.Close()
	}()

	var (
		mu       sync.Mutex
		outLines []string
		errLines []string
	)

	var drainers errgroup.Group
	drainers.Go(func() error {
		defer outR.Close()
		return drainLines(outR, func(line string) {
			mu.Lock()
			outLines = append(outLines, line)
			mu.Unlock()
			if onLine != nil {
				r.invokeCallback(onLine, line)
			}
		})
	})
	drainers.Go(func() error {
		defer errR.Close()
		return drainLines(errR, func(line string) {
			mu.Lock()
			errLines = append(errLines, line)
			mu.Unlock()
		})
	})
	drained := make(chan error, 1)
	go func() { drained <- drainers.Wait() }()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var exitCode int
	var internalErr error
	timedOut := false

	select {
	case waitErr := <-waitCh:
		switch e := waitErr.(type) {
		case nil:
			exitCode = 0
		case *exec.ExitError:
			exitCode = e.ExitCode()
		default:
			exitCode = ExitInternalError
			internalErr = waitErr
		}
	case <-time.After(timeout):
		timedOut = true
		if killErr := cmd.Process.Kill(); killErr != nil {
			r.logger.Warn("kill after timeout failed", zap.Error(killErr))
		}
		<-waitCh // observe the forced termination before finalizing
		exitCode = ExitTimeout
		mu.Lock()
		errLines = append(errLines, fmt.Sprintf("Execution timeout after %.0f seconds", timeout.Seconds()))
		mu.Unlock()
	}

	select {
	case derr := <-drained:
		if derr != nil {
			r.logger.Debug("stream drain ended with error", zap.Error(derr))
		}
	case <-time.After(drainGrace):
		r.logger.Warn("drain grace period expired, finalizing with captured output",
			zap.Int("pid", cmd.Process.Pid))
	}

	mu.Lock()
	output := strings.Join(outLines, "\n")
	errOutput := strings.Join(errLines, "\n")
	mu.Unlock()

	duration := time.Since(start).Seconds()

	if internalErr != nil {
		r.logger.Error("script execution fault", zap.Error(internalErr))
		return &Result{
			Status:      StatusFailed,
			Output:      output,
			ErrorOutput: fmt.Sprintf("Execution error: %v", internalErr),
			ExitCode:    ExitInternalError,
			Duration:    duration,
		}
	}

	status := StatusCompleted
	if exitCode != 0 {
		status = StatusFailed
	}

	r.logger.Debug("script finished",
		zap.Int("exit_code", exitCode),
		zap.Bool("timed_out", timedOut),
		zap.Float64("duration_seconds", duration),
	)

	return &Result{
		Status:      status,
		Output:      output,
		ErrorOutput: errOutput,
		ExitCode:    exitCode,
		Duration:    duration,
	}
}

// Version asks the interpreter for its version string. Failures yield the
// fixed placeholder instead of an error.
func (r *Runner) Version() string {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.path, r.versionArgs...).Output()
	if err != nil {
		return "Unknown"
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "Unknown"
	}
	return version
}

// drainLines delivers one line per callback until EOF, line terminators
// stripped. Lines carry no length limit: a script's output is captured
// whole, however long a single line runs. A partial final line (no trailing
// newline) is delivered as-is.
func drainLines(r io.Reader, deliver func(line string)) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			deliver(line)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// invokeCallback shields the drain loop from callback panics; the callback
// is external code.
func (r *Runner) invokeCallback(cb LineCallback, line string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("output callback panicked", zap.Any("panic", p))
		}
	}()
	cb(line)
}

func (r *Runner) internalFailure(start time.Time, err error) *Result {
	r.logger.Error("script execution fault", zap.Error(err))
	return &Result{
		Status:      StatusFailed,
		ErrorOutput: fmt.Sprintf("Execution error: %v", err),
		ExitCode:    ExitInternalError,
		Duration:    time.Since(start).Seconds(),
	}
}
