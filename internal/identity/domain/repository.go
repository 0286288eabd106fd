package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists users.
type UserRepository interface {
	Save(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

// AutomationTokenRepository persists automation tokens.
type AutomationTokenRepository interface {
	Save(ctx context.Context, token *AutomationToken) error
	FindByID(ctx context.Context, id uuid.UUID) (*AutomationToken, error)
	// FindByPrefix returns candidate tokens sharing a prefix. Callers
	// verify the full hash before trusting any of them.
	FindByPrefix(ctx context.Context, prefix string) ([]*AutomationToken, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*AutomationToken, error)
}
