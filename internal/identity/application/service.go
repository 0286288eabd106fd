// Package application wires identity use cases: account registration and
// automation token lifecycle.
package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
)

// Service exposes identity use cases.
type Service struct {
	users  domain.UserRepository
	tokens domain.AutomationTokenRepository
	logger *slog.Logger
}

// NewService creates an identity service.
func NewService(users domain.UserRepository, tokens domain.AutomationTokenRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, email, name, timezone string) (*domain.User, error) {
	user, err := domain.NewUser(email, name, timezone)
	if err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID(), "email", user.Email())
	return user, nil
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// IssueToken mints a new automation token for a user and returns the raw
// secret alongside the persisted token record.
func (s *Service) IssueToken(ctx context.Context, userID uuid.UUID, label string) (*domain.AutomationToken, string, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, "", err
	}
	token, secret, err := domain.IssueAutomationToken(userID, label)
	if err != nil {
		return nil, "", err
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return nil, "", err
	}
	s.logger.InfoContext(ctx, "automation token issued",
		"user_id", userID,
		"token_id", token.ID(),
		"prefix", token.Prefix(),
	)
	return token, secret, nil
}

// RevokeToken revokes an automation token.
func (s *Service) RevokeToken(ctx context.Context, tokenID uuid.UUID) error {
	token, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		return err
	}
	token.Revoke()
	if err := s.tokens.Save(ctx, token); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "automation token revoked", "token_id", tokenID)
	return nil
}

// Authenticate resolves a presented raw token to its owning user. Lookup
// goes through the plaintext prefix; the full secret is checked against
// the stored hash in constant time.
func (s *Service) Authenticate(ctx context.Context, secret string) (*domain.User, error) {
	prefix := domain.TokenPrefix(secret)
	if prefix == "" {
		return nil, domain.ErrTokenNotFound
	}
	candidates, err := s.tokens.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, token := range candidates {
		if err := token.Verify(secret); err == nil {
			token.MarkUsed()
			if err := s.tokens.Save(ctx, token); err != nil {
				s.logger.WarnContext(ctx, "failed to record token use", "token_id", token.ID(), "error", err)
			}
			return s.users.FindByID(ctx, token.UserID())
		}
	}
	return nil, domain.ErrTokenNotFound
}
