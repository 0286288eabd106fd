// Package domain contains the identity bounded context: users and the
// automation tokens that let non-interactive clients act on their behalf.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

var (
	ErrEmptyEmail      = errors.New("user email cannot be empty")
	ErrInvalidTimezone = errors.New("invalid timezone identifier")
	ErrUserNotFound    = errors.New("user not found")
)

// User is the aggregate root for an account. Every task, schedule and
// calendar link in the system is partitioned by user ID.
type User struct {
	shareddomain.BaseAggregateRoot
	email    string
	name     string
	timezone string
	loc      *time.Location
}

// NewUser creates a user. An empty timezone defaults to UTC.
func NewUser(email, name, timezone string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrEmptyEmail
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, ErrInvalidTimezone
	}

	return &User{
		BaseAggregateRoot: shareddomain.NewBaseAggregateRoot(),
		email:             email,
		name:              name,
		timezone:          timezone,
		loc:               loc,
	}, nil
}

// RehydrateUser reconstructs a user from persistence without validation
// side effects beyond timezone resolution.
func RehydrateUser(id uuid.UUID, email, name, timezone string, createdAt, updatedAt time.Time) (*User, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		// Stored timezone may have been removed from the tz database;
		// fall back to UTC rather than making the account unusable.
		loc = time.UTC
		timezone = "UTC"
	}
	return &User{
		BaseAggregateRoot: shareddomain.RehydrateBaseAggregateRoot(shareddomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		email:             email,
		name:              name,
		timezone:          timezone,
		loc:               loc,
	}, nil
}

func (u *User) Email() string    { return u.email }
func (u *User) Name() string     { return u.name }
func (u *User) Timezone() string { return u.timezone }

// Location returns the resolved *time.Location for the user's timezone.
// Day boundaries and end-of-day deadlines are computed in this location.
func (u *User) Location() *time.Location { return u.loc }

// ChangeTimezone updates the user's timezone.
func (u *User) ChangeTimezone(timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return ErrInvalidTimezone
	}
	u.timezone = timezone
	u.loc = loc
	u.Touch()
	return nil
}

// Rename updates the display name.
func (u *User) Rename(name string) {
	u.name = name
	u.Touch()
}
