package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/internal/crypto"
	"github.com/BaSui01/scriptflow/store"
	"github.com/BaSui01/scriptflow/types"
)

// CredentialService stores infrastructure credentials sealed with
// AES-256-GCM. Secrets are only ever persisted encrypted and only admins may
// read them back.
type CredentialService struct {
	store  store.CredentialStore
	sealer *crypto.Sealer
	logger *zap.Logger
}

// NewCredentialService wires the credential manager around a sealer.
func NewCredentialService(st store.CredentialStore, sealer *crypto.Sealer, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		store:  st,
		sealer: sealer,
		logger: logger.With(zap.String("component", "credential_service")),
	}
}

// Save seals the secret and upserts it under the given name. Admin only.
func (s *CredentialService) Save(ctx context.Context, name, secret, description string, caller Caller) error {
	if !caller.Admin() {
		return types.NewError(types.ErrForbidden, "only admins may manage credentials")
	}
	if name == "" {
		return types.NewError(types.ErrInvalidRequest, "credential name is required")
	}
	if secret == "" {
		return types.NewError(types.ErrInvalidRequest, "credential secret is required")
	}

	ciphertext, err := s.sealer.Seal(secret)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to seal credential").WithCause(err)
	}

	if err := s.store.SaveCredential(ctx, &store.Credential{
		Name:        name,
		Ciphertext:  ciphertext,
		Description: description,
		CreatedBy:   caller.Subject,
	}); err != nil {
		return err
	}

	s.logger.Info("credential saved",
		zap.String("name", name),
		zap.String("created_by", caller.Subject),
	)
	return nil
}

// Reveal opens the sealed secret stored under name. Admin only.
func (s *CredentialService) Reveal(ctx context.Context, name string, caller Caller) (string, error) {
	if !caller.Admin() {
		return "", types.NewError(types.ErrForbidden, "only admins may read credentials")
	}

	credential, err := s.store.GetCredential(ctx, name)
	if err != nil {
		return "", err
	}

	secret, err := s.sealer.Open(credential.Ciphertext)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to open credential").WithCause(err)
	}
	return secret, nil
}

// List returns credential metadata without secrets.
func (s *CredentialService) List(ctx context.Context) ([]*store.Credential, error) {
	return s.store.ListCredentials(ctx)
}

// Delete removes a stored credential. Admin only.
func (s *CredentialService) Delete(ctx context.Context, name string, caller Caller) error {
	if !caller.Admin() {
		return types.NewError(types.ErrForbidden, "only admins may manage credentials")
	}
	if err := s.store.DeleteCredential(ctx, name); err != nil {
		return err
	}
	s.logger.Info("credential deleted",
		zap.String("name", name),
		zap.String("deleted_by", caller.Subject),
	)
	return nil
}
