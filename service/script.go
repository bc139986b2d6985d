package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/engine"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/types"
)

var validParamTypes = map[string]bool{
	engine.ParamString: true,
	engine.ParamInt:    true,
	engine.ParamFloat:  true,
	engine.ParamBool:   true,
}

// ScriptService manages the script library: content, declared parameter
// schemas and version history.
type ScriptService struct {
	store          store.ScriptStore
	maxScriptBytes int
	maxTimeout     time.Duration
	logger         *zap.Logger
}

// NewScriptService builds the script manager. maxScriptBytes caps stored
// script size; zero means no cap.
func NewScriptService(st store.ScriptStore, maxScriptBytes int, maxTimeout time.Duration, logger *zap.Logger) *ScriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptService{
		store:          st,
		maxScriptBytes: maxScriptBytes,
		maxTimeout:     maxTimeout,
		logger:         logger.With(zap.String("component", "script_service")),
	}
}

// Create validates and stores a new script.
func (s *ScriptService) Create(ctx context.Context, script *store.Script) error {
	if err := s.checkScript(script); err != nil {
		return err
	}
	if err := s.store.CreateScript(ctx, script); err != nil {
		return err
	}
	s.logger.Info("script created",
		zap.String("script_id", script.ID),
		zap.String("name", script.Name),
		zap.String("created_by", script.CreatedBy),
	)
	return nil
}

// Get fetches one script by ID.
func (s *ScriptService) Get(ctx context.Context, id string) (*store.Script, error) {
	return s.store.GetScript(ctx, id)
}

// GetByName fetches one script by its unique name.
func (s *ScriptService) GetByName(ctx context.Context, name string) (*store.Script, error) {
	return s.store.GetScriptByName(ctx, name)
}

// List returns scripts, newest first.
func (s *ScriptService) List(ctx context.Context, limit, offset int) ([]*store.Script, error) {
	return s.store.ListScripts(ctx, limit, offset)
}

// Update validates and stores script changes. A content change snapshots the
// previous version and bumps the version counter.
func (s *ScriptService) Update(ctx context.Context, script *store.Script, updatedBy string) error {
	if err := s.checkScript(script); err != nil {
		return err
	}
	if err := s.store.UpdateScript(ctx, script, updatedBy); err != nil {
		return err
	}
	s.logger.Info("script updated",
		zap.String("script_id", script.ID),
		zap.String("name", script.Name),
		zap.Int("version", script.Version),
		zap.String("updated_by", updatedBy),
	)
	return nil
}

// Delete removes a script and its version history. Admin only.
func (s *ScriptService) Delete(ctx context.Context, id string, caller Caller) error {
	if !caller.Admin() {
		return types.NewError(types.ErrForbidden, "only admins may delete scripts")
	}
	if err := s.store.DeleteScript(ctx, id); err != nil {
		return err
	}
	s.logger.Info("script deleted",
		zap.String("script_id", id),
		zap.String("deleted_by", caller.Subject),
	)
	return nil
}

// Versions lists the archived content versions of a script, newest first.
func (s *ScriptService) Versions(ctx context.Context, id string) ([]*store.ScriptVersion, error) {
	return s.store.ListScriptVersions(ctx, id)
}

// checkScript rejects malformed scripts before they reach the store.
func (s *ScriptService) checkScript(script *store.Script) error {
	if script.Name == "" {
		return types.NewError(types.ErrInvalidRequest, "script name is required")
	}
	if script.Content == "" {
		return types.NewError(types.ErrInvalidRequest, "script content is required")
	}
	if s.maxScriptBytes > 0 && len(script.Content) > s.maxScriptBytes {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("script exceeds maximum size of %d bytes", s.maxScriptBytes))
	}
	if s.maxTimeout > 0 && script.DefaultTimeout > s.maxTimeout {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("default timeout exceeds maximum of %s", s.maxTimeout))
	}

	seen := make(map[string]bool, len(script.Parameters))
	for _, def := range script.Parameters {
		if def.Name == "" {
			return types.NewError(types.ErrInvalidRequest, "parameter name is required")
		}
		if seen[def.Name] {
			return types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("duplicate parameter '%s'", def.Name))
		}
		seen[def.Name] = true
		if !validParamTypes[def.Type] {
			return types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("parameter '%s' has unknown type '%s'", def.Name, def.Type))
		}
		if def.Pattern != "" {
			if _, err := regexp.Compile(def.Pattern); err != nil {
				return types.NewError(types.ErrInvalidRequest,
					fmt.Sprintf("parameter '%s' has an invalid pattern", def.Name))
			}
		}
	}
	return nil
}
