package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// OAuthConfig builds the oauth2 config for the Calendar events scope. The
// endpoint is spelled out so the store works without the Google metadata
// stack.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
		Scopes:      []string{"https://www.googleapis.com/auth/calendar.events"},
	}
}

// FileTokenStore persists oauth grants to a JSON file keyed by user id.
// Writes go through a temp file and rename so a crash never truncates the
// grants of other users.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore creates a store backed by the given path. The file is
// created on first Save.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Token implements TokenStore.
func (s *FileTokenStore) Token(_ context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, err := s.load()
	if err != nil {
		return nil, err
	}
	token, ok := grants[userID.String()]
	if !ok {
		return nil, shareddomain.NewKindError(shareddomain.KindUnauthorized, "no_stored_grant", nil)
	}
	return token, nil
}

// Save implements TokenStore.
func (s *FileTokenStore) Save(_ context.Context, userID uuid.UUID, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, err := s.load()
	if err != nil {
		return err
	}
	grants[userID.String()] = token

	data, err := json.MarshalIndent(grants, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileTokenStore) load() (map[string]*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*oauth2.Token{}, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	grants := map[string]*oauth2.Token{}
	if err := json.Unmarshal(data, &grants); err != nil {
		return nil, fmt.Errorf("token file %s is corrupt: %w", s.path, err)
	}
	return grants, nil
}
