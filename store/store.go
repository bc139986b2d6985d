package store

import (
	"context"
	"time"
)

// ScriptStore manages the script catalog.
type ScriptStore interface {
	// CreateScript persists a new script
	CreateScript(ctx context.Context, script *Script) error

	// GetScript retrieves a script by ID
	GetScript(ctx context.Context, id string) (*Script, error)

	// GetScriptByName retrieves a script by its unique name
	GetScriptByName(ctx context.Context, name string) (*Script, error)

	// ListScripts retrieves all scripts, newest first
	ListScripts(ctx context.Context, limit, offset int) ([]*Script, error)

	// UpdateScript saves content/schema changes, bumping the version and
	// snapshotting the previous content
	UpdateScript(ctx context.Context, script *Script, updatedBy string) error

	// DeleteScript removes a script and its version history
	DeleteScript(ctx context.Context, id string) error

	// ListScriptVersions retrieves the version history of a script
	ListScriptVersions(ctx context.Context, scriptID string) ([]*ScriptVersion, error)
}

// ExecutionStore manages execution history.
type ExecutionStore interface {
	// CreateExecution persists a new execution record (typically in
	// running state)
	CreateExecution(ctx context.Context, exec *Execution) error

	// GetExecution retrieves an execution by ID
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions retrieves executions matching the filter, newest first
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// FinalizeExecution records the terminal result of a run. It only
	// transitions records that are still running, so a late writer cannot
	// overwrite a terminal state.
	FinalizeExecution(ctx context.Context, id string, status string, output, errorOutput string, exitCode int, duration float64) error

	// DeleteExecution removes an execution record
	DeleteExecution(ctx context.Context, id string) error

	// CleanupExecutions removes terminal executions older than the given
	// age and returns how many were removed
	CleanupExecutions(ctx context.Context, olderThan time.Duration) (int64, error)

	// ExecutionStats returns aggregate history counts
	ExecutionStats(ctx context.Context) (*ExecutionStats, error)
}

// CredentialStore manages sealed credentials.
type CredentialStore interface {
	// SaveCredential creates or updates a credential by name
	SaveCredential(ctx context.Context, cred *Credential) error

	// GetCredential retrieves a credential by name
	GetCredential(ctx context.Context, name string) (*Credential, error)

	// ListCredentials retrieves credential metadata (ciphertext included;
	// callers decide what to expose)
	ListCredentials(ctx context.Context) ([]*Credential, error)

	// DeleteCredential removes a credential by name
	DeleteCredential(ctx context.Context, name string) error
}

// Store is the full persistence surface of the service.
type Store interface {
	ScriptStore
	ExecutionStore
	CredentialStore

	// Ping checks the underlying connection
	Ping(ctx context.Context) error

	// Close releases the underlying connection
	Close() error
}

// ExecutionFilter defines criteria for listing execution history.
type ExecutionFilter struct {
	// ScriptID filters by script
	ScriptID string

	// Status filters by execution status
	Status string

	// TriggeredBy filters by the requesting identity
	TriggeredBy string

	// Since filters executions started after this time
	Since *time.Time

	// Limit caps the number of records returned (0 means no cap)
	Limit int

	// Offset skips the first N records
	Offset int
}

// ExecutionStats contains aggregate execution history counts.
type ExecutionStats struct {
	Total           int64            `json:"total"`
	Running         int64            `json:"running"`
	Completed       int64            `json:"completed"`
	Failed          int64            `json:"failed"`
	StatusCounts    map[string]int64 `json:"status_counts"`
	AverageDuration float64          `json:"average_duration_seconds"`
}
