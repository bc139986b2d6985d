package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/scriptflow/config"
	"github.com/BaSui01/scriptflow/types"
)

// GormStore implements Store on top of GORM.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database, applies pool settings and runs
// migrations.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "failed to connect database").WithCause(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "failed to access connection pool").WithCause(err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s, err := NewGormStore(db, logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("database connected",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return s, nil
}

// NewGormStore wraps an existing GORM handle and runs migrations. Used by
// tests to inject an in-memory SQLite database.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(
		&Script{},
		&ScriptVersion{},
		&Execution{},
		&Credential{},
	); err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "failed to migrate schema").WithCause(err)
	}

	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Ping checks the underlying connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- scripts ---

func (s *GormStore) CreateScript(ctx context.Context, script *Script) error {
	if err := s.db.WithContext(ctx).Create(script).Error; err != nil {
		return storeError("failed to create script", err)
	}
	return nil
}

func (s *GormStore) GetScript(ctx context.Context, id string) (*Script, error) {
	var script Script
	if err := s.db.WithContext(ctx).First(&script, "id = ?", id).Error; err != nil {
		return nil, lookupError("script", id, err)
	}
	return &script, nil
}

func (s *GormStore) GetScriptByName(ctx context.Context, name string) (*Script, error) {
	var script Script
	if err := s.db.WithContext(ctx).First(&script, "name = ?", name).Error; err != nil {
		return nil, lookupError("script", name, err)
	}
	return &script, nil
}

func (s *GormStore) ListScripts(ctx context.Context, limit, offset int) ([]*Script, error) {
	var scripts []*Script
	q := s.db.WithContext(ctx).Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&scripts).Error; err != nil {
		return nil, storeError("failed to list scripts", err)
	}
	return scripts, nil
}

// UpdateScript snapshots the current content into the version history, bumps
// the version and saves the new state, all in one transaction.
func (s *GormStore) UpdateScript(ctx context.Context, script *Script, updatedBy string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Script
		if err := tx.First(&current, "id = ?", script.ID).Error; err != nil {
			return lookupError("script", script.ID, err)
		}

		if current.Content != script.Content {
			snapshot := ScriptVersion{
				ScriptID:  current.ID,
				Version:   current.Version,
				Content:   current.Content,
				UpdatedBy: updatedBy,
			}
			if err := tx.Create(&snapshot).Error; err != nil {
				return storeError("failed to snapshot script version", err)
			}
			script.Version = current.Version + 1
		} else {
			script.Version = current.Version
		}

		if err := tx.Save(script).Error; err != nil {
			return storeError("failed to update script", err)
		}
		return nil
	})
}

func (s *GormStore) DeleteScript(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Script{}, "id = ?", id)
		if result.Error != nil {
			return storeError("failed to delete script", result.Error)
		}
		if result.RowsAffected == 0 {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("script not found: %s", id))
		}
		if err := tx.Delete(&ScriptVersion{}, "script_id = ?", id).Error; err != nil {
			return storeError("failed to delete script versions", err)
		}
		return nil
	})
}

func (s *GormStore) ListScriptVersions(ctx context.Context, scriptID string) ([]*ScriptVersion, error) {
	var versions []*ScriptVersion
	err := s.db.WithContext(ctx).
		Where("script_id = ?", scriptID).
		Order("version DESC").
		Find(&versions).Error
	if err != nil {
		return nil, storeError("failed to list script versions", err)
	}
	return versions, nil
}

// --- executions ---

func (s *GormStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if err := s.db.WithContext(ctx).Create(exec).Error; err != nil {
		return storeError("failed to create execution", err)
	}
	return nil
}

func (s *GormStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var exec Execution
	if err := s.db.WithContext(ctx).First(&exec, "id = ?", id).Error; err != nil {
		return nil, lookupError("execution", id, err)
	}
	return &exec, nil
}

func (s *GormStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")

	if filter.ScriptID != "" {
		q = q.Where("script_id = ?", filter.ScriptID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.TriggeredBy != "" {
		q = q.Where("triggered_by = ?", filter.TriggeredBy)
	}
	if filter.Since != nil {
		q = q.Where("started_at > ?", *filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var execs []*Execution
	if err := q.Find(&execs).Error; err != nil {
		return nil, storeError("failed to list executions", err)
	}
	return execs, nil
}

func (s *GormStore) FinalizeExecution(ctx context.Context, id string, status string, output, errorOutput string, exitCode int, duration float64) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&Execution{}).
		Where("id = ? AND status = ?", id, ExecutionRunning).
		Updates(map[string]any{
			"status":           status,
			"output":           output,
			"error_output":     errorOutput,
			"exit_code":        exitCode,
			"duration_seconds": duration,
			"finished_at":      &now,
		})
	if result.Error != nil {
		return storeError("failed to finalize execution", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either the record is gone or it already reached a terminal
		// state; both mean this writer lost the race.
		return types.NewError(types.ErrNotFound, fmt.Sprintf("no running execution to finalize: %s", id))
	}
	return nil
}

func (s *GormStore) DeleteExecution(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Execution{}, "id = ?", id)
	if result.Error != nil {
		return storeError("failed to delete execution", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("execution not found: %s", id))
	}
	return nil
}

func (s *GormStore) CleanupExecutions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?", []string{ExecutionCompleted, ExecutionFailed}, cutoff).
		Delete(&Execution{})
	if result.Error != nil {
		return 0, storeError("failed to clean up executions", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("execution history cleaned up",
			zap.Int64("removed", result.RowsAffected),
			zap.Duration("older_than", olderThan),
		)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) ExecutionStats(ctx context.Context) (*ExecutionStats, error) {
	stats := &ExecutionStats{StatusCounts: make(map[string]int64)}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	err := s.db.WithContext(ctx).
		Model(&Execution{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, storeError("failed to aggregate execution stats", err)
	}

	for _, c := range counts {
		stats.StatusCounts[c.Status] = c.Count
		stats.Total += c.Count
		switch c.Status {
		case ExecutionRunning:
			stats.Running = c.Count
		case ExecutionCompleted:
			stats.Completed = c.Count
		case ExecutionFailed:
			stats.Failed = c.Count
		}
	}

	var avg sql.NullFloat64
	err = s.db.WithContext(ctx).
		Model(&Execution{}).
		Where("status IN ?", []string{ExecutionCompleted, ExecutionFailed}).
		Select("avg(duration_seconds)").
		Scan(&avg).Error
	if err != nil {
		return nil, storeError("failed to aggregate execution durations", err)
	}
	if avg.Valid {
		stats.AverageDuration = avg.Float64
	}

	return stats, nil
}

// --- credentials ---

func (s *GormStore) SaveCredential(ctx context.Context, cred *Credential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Credential
		err := tx.First(&existing, "name = ?", cred.Name).Error
		switch {
		case err == nil:
			cred.ID = existing.ID
			cred.CreatedAt = existing.CreatedAt
			if err := tx.Save(cred).Error; err != nil {
				return storeError("failed to update credential", err)
			}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(cred).Error; err != nil {
				return storeError("failed to create credential", err)
			}
			return nil
		default:
			return storeError("failed to look up credential", err)
		}
	})
}

func (s *GormStore) GetCredential(ctx context.Context, name string) (*Credential, error) {
	var cred Credential
	if err := s.db.WithContext(ctx).First(&cred, "name = ?", name).Error; err != nil {
		return nil, lookupError("credential", name, err)
	}
	return &cred, nil
}

func (s *GormStore) ListCredentials(ctx context.Context) ([]*Credential, error) {
	var creds []*Credential
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&creds).Error; err != nil {
		return nil, storeError("failed to list credentials", err)
	}
	return creds, nil
}

func (s *GormStore) DeleteCredential(ctx context.Context, name string) error {
	result := s.db.WithContext(ctx).Delete(&Credential{}, "name = ?", name)
	if result.Error != nil {
		return storeError("failed to delete credential", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("credential not found: %s", name))
	}
	return nil
}

// --- error translation ---

func lookupError(what, key string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("%s not found: %s", what, key))
	}
	return storeError(fmt.Sprintf("failed to load %s", what), err)
}

func storeError(message string, err error) error {
	return types.NewError(types.ErrStoreUnavailable, message).WithCause(err).WithRetryable(true)
}
