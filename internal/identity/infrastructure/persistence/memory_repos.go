// Package persistence provides identity repository implementations.
package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
)

// MemoryUserRepository is an in-memory UserRepository for tests and local mode.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]*domain.User)}
}

func (r *MemoryUserRepository) Save(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID()] = user
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.TrimSpace(strings.ToLower(email))
	for _, user := range r.users {
		if user.Email() == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *MemoryUserRepository) List(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email() < out[j].Email() })
	return out, nil
}

// MemoryTokenRepository is an in-memory AutomationTokenRepository.
type MemoryTokenRepository struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*domain.AutomationToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[uuid.UUID]*domain.AutomationToken)}
}

func (r *MemoryTokenRepository) Save(_ context.Context, token *domain.AutomationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID()] = token
	return nil
}

func (r *MemoryTokenRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.AutomationToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[id]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return token, nil
}

func (r *MemoryTokenRepository) FindByPrefix(_ context.Context, prefix string) ([]*domain.AutomationToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AutomationToken
	for _, token := range r.tokens {
		if token.Prefix() == prefix {
			out = append(out, token)
		}
	}
	return out, nil
}

func (r *MemoryTokenRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.AutomationToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AutomationToken
	for _, token := range r.tokens {
		if token.UserID() == userID {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}
