package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

var (
	ErrTokenRevoked  = errors.New("automation token has been revoked")
	ErrTokenNotFound = errors.New("automation token not found")
)

// tokenPrefixLen is the number of leading characters of the raw token kept
// in plaintext for lookup and display. The rest is stored only as a hash.
const tokenPrefixLen = 8

// AutomationToken is a long-lived bearer credential for non-interactive
// clients (email ingestion, shortcuts, scripts). Only a SHA-256 hash of
// the token is persisted.
type AutomationToken struct {
	shareddomain.BaseAggregateRoot
	userID    uuid.UUID
	label     string
	prefix    string
	hash      string
	revokedAt *time.Time
	lastUsed  *time.Time
}

// IssueAutomationToken mints a new token for a user. The returned secret is
// the only copy of the raw token; callers must show it to the user once.
func IssueAutomationToken(userID uuid.UUID, label string) (*AutomationToken, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	secret := "qzwn_" + base64.RawURLEncoding.EncodeToString(raw)

	token := &AutomationToken{
		BaseAggregateRoot: shareddomain.NewBaseAggregateRoot(),
		userID:            userID,
		label:             label,
		prefix:            secret[:tokenPrefixLen],
		hash:              HashToken(secret),
	}
	return token, secret, nil
}

// RehydrateAutomationToken reconstructs a token from persistence.
func RehydrateAutomationToken(
	id uuid.UUID,
	userID uuid.UUID,
	label, prefix, hash string,
	revokedAt, lastUsed *time.Time,
	createdAt, updatedAt time.Time,
) *AutomationToken {
	return &AutomationToken{
		BaseAggregateRoot: shareddomain.RehydrateBaseAggregateRoot(shareddomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		userID:            userID,
		label:             label,
		prefix:            prefix,
		hash:              hash,
		revokedAt:         revokedAt,
		lastUsed:          lastUsed,
	}
}

// HashToken returns the hex SHA-256 digest of a raw token.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// TokenPrefix returns the lookup prefix of a raw token, or "" if the token
// is too short to carry one.
func TokenPrefix(secret string) string {
	if len(secret) < tokenPrefixLen {
		return ""
	}
	return secret[:tokenPrefixLen]
}

func (t *AutomationToken) UserID() uuid.UUID    { return t.userID }
func (t *AutomationToken) Label() string        { return t.label }
func (t *AutomationToken) Prefix() string       { return t.prefix }
func (t *AutomationToken) Hash() string         { return t.hash }
func (t *AutomationToken) RevokedAt() *time.Time { return t.revokedAt }
func (t *AutomationToken) LastUsedAt() *time.Time { return t.lastUsed }

// Revoked reports whether the token has been revoked.
func (t *AutomationToken) Revoked() bool { return t.revokedAt != nil }

// Verify checks a presented raw token against the stored hash in constant
// time. Revoked tokens never verify.
func (t *AutomationToken) Verify(secret string) error {
	if t.Revoked() {
		return ErrTokenRevoked
	}
	presented := HashToken(secret)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(t.hash)) != 1 {
		return ErrTokenNotFound
	}
	return nil
}

// Revoke marks the token as revoked. Revoking twice is a no-op.
func (t *AutomationToken) Revoke() {
	if t.revokedAt != nil {
		return
	}
	now := time.Now().UTC()
	t.revokedAt = &now
	t.Touch()
}

// MarkUsed records the last successful authentication.
func (t *AutomationToken) MarkUsed() {
	now := time.Now().UTC()
	t.lastUsed = &now
	t.Touch()
}
