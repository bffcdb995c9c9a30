package auth

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// Service wraps authentication business rules, including the
// re-authentication check required before a ledger change-set is persisted.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials at login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Admin, error) {
	admin, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !admin.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return admin, nil
}

// Reauthenticate re-proves the identity of an already-signed-in
// administrator using their known id and the supplied password. A wrong
// password yields shared.ErrIncorrectPassword without any local lockout;
// rate limiting is left to the transport layer.
func (s *Service) Reauthenticate(ctx context.Context, adminID, password string) error {
	id, err := strconv.ParseInt(adminID, 10, 64)
	if err != nil {
		return shared.ErrIncorrectPassword
	}
	admin, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrIncorrectPassword
		}
		return err
	}
	if !admin.IsActive {
		return shared.ErrIncorrectPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return shared.ErrIncorrectPassword
	}
	return nil
}

// CurrentAdmin resolves the identity bound to a login session.
func (s *Service) CurrentAdmin(ctx context.Context, adminID string) (*Identity, error) {
	id, err := strconv.ParseInt(adminID, 10, 64)
	if err != nil {
		return nil, shared.ErrNotFound
	}
	admin, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	identity := admin.Identity()
	return &identity, nil
}
