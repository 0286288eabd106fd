// Package domain defines the external calendar boundary: the event shape,
// the managed-event marker and the client ports the sync layer works
// against.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ManagedBlockProperty is the private extended property stamped on every
// event the engine creates. An event is provably managed only when it
// carries this property and a stored block records the event id.
const ManagedBlockProperty = "qzwhatnext_block_id"

var ErrEventNotFound = errors.New("calendar event not found")

// Event is the engine's view of an external calendar event. Only the
// fields the engine consumes are modeled.
type Event struct {
	ID          string
	Etag        string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Updated     time.Time
	Cancelled   bool
	// BlockID is set when the event carries the managed marker.
	BlockID *uuid.UUID
}

// Managed reports whether the event carries the engine's marker.
func (e Event) Managed() bool { return e.BlockID != nil }

// Client is a calendar API bound to one user's calendar.
type Client interface {
	// ListEvents returns non-cancelled events overlapping [from, to).
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	Insert(ctx context.Context, event Event) (Event, error)
	// Patch updates an event with an etag precondition; a version mismatch
	// fails with a sync_conflict error.
	Patch(ctx context.Context, eventID, etag string, event Event) (Event, error)
	Delete(ctx context.Context, eventID string) error
}

// ClientSource resolves the calendar client for a user. Revoked or missing
// credentials surface as unauthorized errors.
type ClientSource interface {
	ClientFor(ctx context.Context, userID uuid.UUID) (Client, error)
}
