// Package domain contains the scheduling engine core: scheduled blocks,
// the governing-tier assigner, the intra-tier ranker, the availability
// free list and the placer.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

var ErrBlockNotFound = errors.New("scheduled block not found")

// ScheduledBy records who placed a block.
type ScheduledBy string

const (
	ScheduledBySystem ScheduledBy = "system"
	ScheduledByUser   ScheduledBy = "user"
)

// ScheduledBlock is a placed interval of a task on the calendar. The
// interval is half-open: [Start, End).
type ScheduledBlock struct {
	shareddomain.BaseAggregateRoot
	userID          uuid.UUID
	taskID          uuid.UUID
	start           time.Time
	end             time.Time
	scheduledBy     ScheduledBy
	locked          bool
	calendarEventID *string
	calendarEtag    *string
	calendarUpdated *time.Time
	syncPending     bool
}

// NewScheduledBlock places a block for a task.
func NewScheduledBlock(userID, taskID uuid.UUID, start, end time.Time, by ScheduledBy) (*ScheduledBlock, error) {
	if !start.Before(end) {
		return nil, shareddomain.ConstraintViolation("block start must be before end")
	}
	return &ScheduledBlock{
		BaseAggregateRoot: shareddomain.NewBaseAggregateRoot(),
		userID:            userID,
		taskID:            taskID,
		start:             start,
		end:               end,
		scheduledBy:       by,
	}, nil
}

// BlockState is the flat persistence shape of a scheduled block.
type BlockState struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	TaskID          uuid.UUID
	Start           time.Time
	End             time.Time
	ScheduledBy     ScheduledBy
	Locked          bool
	CalendarEventID *string
	CalendarEtag    *string
	CalendarUpdated *time.Time
	SyncPending     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RehydrateBlock reconstructs a block from persistence.
func RehydrateBlock(s BlockState) *ScheduledBlock {
	return &ScheduledBlock{
		BaseAggregateRoot: shareddomain.RehydrateBaseAggregateRoot(shareddomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt)),
		userID:            s.UserID,
		taskID:            s.TaskID,
		start:             s.Start,
		end:               s.End,
		scheduledBy:       s.ScheduledBy,
		locked:            s.Locked,
		calendarEventID:   s.CalendarEventID,
		calendarEtag:      s.CalendarEtag,
		calendarUpdated:   s.CalendarUpdated,
		syncPending:       s.SyncPending,
	}
}

// State flattens the block for persistence.
func (b *ScheduledBlock) State() BlockState {
	return BlockState{
		ID:              b.ID(),
		UserID:          b.userID,
		TaskID:          b.taskID,
		Start:           b.start,
		End:             b.end,
		ScheduledBy:     b.scheduledBy,
		Locked:          b.locked,
		CalendarEventID: b.calendarEventID,
		CalendarEtag:    b.calendarEtag,
		CalendarUpdated: b.calendarUpdated,
		SyncPending:     b.syncPending,
		CreatedAt:       b.CreatedAt(),
		UpdatedAt:       b.UpdatedAt(),
	}
}

func (b *ScheduledBlock) UserID() uuid.UUID          { return b.userID }
func (b *ScheduledBlock) TaskID() uuid.UUID          { return b.taskID }
func (b *ScheduledBlock) Start() time.Time           { return b.start }
func (b *ScheduledBlock) End() time.Time             { return b.end }
func (b *ScheduledBlock) ScheduledBy() ScheduledBy   { return b.scheduledBy }
func (b *ScheduledBlock) Locked() bool               { return b.locked }
func (b *ScheduledBlock) CalendarEventID() *string   { return b.calendarEventID }
func (b *ScheduledBlock) CalendarEtag() *string      { return b.calendarEtag }
func (b *ScheduledBlock) CalendarUpdated() *time.Time { return b.calendarUpdated }
func (b *ScheduledBlock) SyncPending() bool          { return b.syncPending }

// Interval returns the block's half-open interval.
func (b *ScheduledBlock) Interval() Interval {
	return Interval{Start: b.start, End: b.end}
}

// Pinned reports whether a rebuild must not move this block. User-created
// blocks are treated as locked for the current rebuild.
func (b *ScheduledBlock) Pinned() bool {
	return b.locked || b.scheduledBy == ScheduledByUser
}

// Lock pins the block against future rebuilds.
func (b *ScheduledBlock) Lock() {
	if b.locked {
		return
	}
	b.locked = true
	b.Touch()
}

// MoveTo updates the interval, used when a user edit is imported from the
// external calendar.
func (b *ScheduledBlock) MoveTo(start, end time.Time) error {
	if !start.Before(end) {
		return shareddomain.ConstraintViolation("block start must be before end")
	}
	b.start = start
	b.end = end
	b.Touch()
	return nil
}

// LinkCalendarEvent records the external event created for this block.
func (b *ScheduledBlock) LinkCalendarEvent(eventID, etag string, updated time.Time) {
	b.calendarEventID = &eventID
	b.calendarEtag = &etag
	b.calendarUpdated = &updated
	b.syncPending = false
	b.Touch()
}

// RefreshEtag stores the latest external version.
func (b *ScheduledBlock) RefreshEtag(etag string, updated time.Time) {
	b.calendarEtag = &etag
	b.calendarUpdated = &updated
	b.Touch()
}

// MarkSyncPending flags the block for retry after a sync failure.
func (b *ScheduledBlock) MarkSyncPending() {
	if b.syncPending {
		return
	}
	b.syncPending = true
	b.Touch()
}

// BlockRepository persists scheduled blocks.
type BlockRepository interface {
	Save(ctx context.Context, block *ScheduledBlock) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*ScheduledBlock, error)
	// ListInWindow returns blocks overlapping [start, end), ordered by start.
	ListInWindow(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*ScheduledBlock, error)
	ListByTask(ctx context.Context, userID, taskID uuid.UUID) ([]*ScheduledBlock, error)
	// ListSynced returns blocks that carry a calendar event id.
	ListSynced(ctx context.Context, userID uuid.UUID) ([]*ScheduledBlock, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// RemoveForTask deletes every block referencing the task.
	RemoveForTask(ctx context.Context, userID, taskID uuid.UUID) error
}
