package store

import (
	"time"

	"github.com/BaSui01/scriptflow/engine"
)

// Execution status values persisted in history records.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Script is a stored script with its declared parameter schema.
type Script struct {
	// ID is a UUID assigned at creation
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// Name is unique across the catalog
	Name string `gorm:"size:200;not null;uniqueIndex" json:"name"`

	Description string `gorm:"type:text" json:"description,omitempty"`

	// Content is the script body as uploaded, before parameter binding
	Content string `gorm:"type:text;not null" json:"content"`

	// Version increments on every content update
	Version int `gorm:"default:1" json:"version"`

	// Parameters declares the accepted parameters; execution requests are
	// validated against this schema before anything runs
	Parameters []engine.ParameterDefinition `gorm:"serializer:json" json:"parameters,omitempty"`

	// DefaultTimeout overrides the engine default when positive
	DefaultTimeout time.Duration `gorm:"default:0" json:"default_timeout,omitempty"`

	CreatedBy string    `gorm:"size:100;index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScriptVersion is an immutable snapshot of a script body, kept whenever the
// content changes so past executions stay auditable.
type ScriptVersion struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ScriptID  string    `gorm:"size:36;not null;index:idx_script_version" json:"script_id"`
	Version   int       `gorm:"not null;index:idx_script_version" json:"version"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	UpdatedBy string    `gorm:"size:100" json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Execution is one run of a script, created in running state and finalized
// exactly once with the terminal result.
type Execution struct {
	// ID is a UUID assigned when the run is accepted
	ID string `gorm:"primaryKey;size:36" json:"id"`

	ScriptID   string `gorm:"size:36;index" json:"script_id"`
	ScriptName string `gorm:"size:200" json:"script_name"`

	// Status is running, completed or failed
	Status string `gorm:"size:20;index" json:"status"`

	// Parameters holds the bound parameter values for this run
	Parameters map[string]any `gorm:"serializer:json" json:"parameters,omitempty"`

	Output      string `gorm:"type:text" json:"output"`
	ErrorOutput string `gorm:"type:text" json:"error_output"`
	ExitCode    int    `json:"exit_code"`

	// DurationSeconds is wall-clock time from spawn to reap
	DurationSeconds float64 `json:"duration_seconds"`

	// TriggeredBy is the identity that requested the run
	TriggeredBy string `gorm:"size:100;index" json:"triggered_by"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsTerminal reports whether the execution has reached a final state.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

// Credential is a named secret sealed with AES-256-GCM before it reaches the
// database. Plaintext never touches a row.
type Credential struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name string `gorm:"size:100;not null;uniqueIndex" json:"name"`

	// Ciphertext is the sealed secret, base64 encoded
	Ciphertext string `gorm:"type:text;not null" json:"-"`

	Description string    `gorm:"size:500" json:"description,omitempty"`
	CreatedBy   string    `gorm:"size:100" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
