package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

// AccountRepository finds login accounts.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo AccountRepository
}

// NewService constructs a new Service.
func NewService(repo AccountRepository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return account, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
