package google

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// TokenStore holds each user's oauth2 grant.
type TokenStore interface {
	Token(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error)
	Save(ctx context.Context, userID uuid.UUID, token *oauth2.Token) error
}

// ClientSource builds per-user calendar clients from stored oauth grants.
type ClientSource struct {
	oauth      *oauth2.Config
	tokens     TokenStore
	calendarID string
}

// NewClientSource wires a client source.
func NewClientSource(oauth *oauth2.Config, tokens TokenStore, calendarID string) *ClientSource {
	return &ClientSource{oauth: oauth, tokens: tokens, calendarID: calendarID}
}

// ClientFor resolves the user's client. A missing grant is unauthorized;
// refreshed tokens are persisted back to the store.
func (s *ClientSource) ClientFor(ctx context.Context, userID uuid.UUID) (domain.Client, error) {
	token, err := s.tokens.Token(ctx, userID)
	if err != nil {
		return nil, shareddomain.NewKindError(shareddomain.KindUnauthorized, "calendar_grant_missing", err)
	}
	source := &savingTokenSource{
		ctx:     ctx,
		userID:  userID,
		tokens:  s.tokens,
		wrapped: s.oauth.TokenSource(ctx, token),
		last:    token,
	}
	return NewClient(ctx, source, s.calendarID), nil
}

// savingTokenSource persists tokens the oauth2 transport refreshes.
type savingTokenSource struct {
	ctx     context.Context
	userID  uuid.UUID
	tokens  TokenStore
	wrapped oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.wrapped.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := s.last == nil || s.last.AccessToken != token.AccessToken
	s.last = token
	s.mu.Unlock()
	if changed {
		if err := s.tokens.Save(s.ctx, s.userID, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// MemoryTokenStore keeps grants in memory, for local mode and tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*oauth2.Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[uuid.UUID]*oauth2.Token)}
}

func (s *MemoryTokenStore) Token(_ context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[userID]
	if !ok {
		return nil, shareddomain.NewKindError(shareddomain.KindUnauthorized, "no_stored_grant", nil)
	}
	return token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, userID uuid.UUID, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
	return nil
}
