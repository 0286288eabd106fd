package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	"github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	schedulingdomain "github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	sharedapp "github.com/qzwhatnext/qzwhatnext/internal/shared/application"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// Synchronizer reconciles scheduled blocks with their managed calendar
// events. The calendar is authoritative for times a user moved there; the
// engine is authoritative for everything it placed itself. Events without
// the managed marker are never written to.
type Synchronizer struct {
	source  domain.ClientSource
	blocks  schedulingdomain.BlockRepository
	tasks   taskdomain.TaskRepository
	audit   *auditapp.Emitter
	uow     sharedapp.UnitOfWork
	horizon time.Duration
	logger  *slog.Logger
}

// NewSynchronizer wires a synchronizer.
func NewSynchronizer(
	source domain.ClientSource,
	blocks schedulingdomain.BlockRepository,
	tasks taskdomain.TaskRepository,
	audit *auditapp.Emitter,
	uow sharedapp.UnitOfWork,
	horizon time.Duration,
	logger *slog.Logger,
) *Synchronizer {
	if horizon == 0 {
		horizon = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		source:  source,
		blocks:  blocks,
		tasks:   tasks,
		audit:   audit,
		uow:     uow,
		horizon: horizon,
		logger:  logger,
	}
}

// SyncResult summarizes one sync pass. A pass with nothing to reconcile
// reports all zeros; running it again immediately is a no-op.
type SyncResult struct {
	Pushed        int // events created or patched on the calendar
	Imported      int // external edits imported onto blocks or tasks
	BlocksRemoved int // blocks deleted because their event vanished
	EventsRemoved int // orphaned managed events deleted
	Conflicts     int // blocks skipped and flagged sync_pending
}

// Dirty reports whether the schedule should be rebuilt after this pass.
func (r SyncResult) Dirty() bool { return r.Imported > 0 || r.BlocksRemoved > 0 }

// Sync runs one reconciliation pass for the user.
func (s *Synchronizer) Sync(ctx context.Context, userID uuid.UUID, now time.Time) (*SyncResult, error) {
	client, err := s.source.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	horizonEnd := now.Add(s.horizon)

	events, err := client.ListEvents(ctx, now, horizonEnd)
	if err != nil {
		return nil, err
	}
	eventsByID := make(map[string]domain.Event, len(events))
	for _, event := range events {
		eventsByID[event.ID] = event
	}

	result := &SyncResult{}
	err = sharedapp.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		blocks, err := s.blocks.ListInWindow(txCtx, userID, now, horizonEnd)
		if err != nil {
			return err
		}

		linked := make(map[string]bool)
		for _, block := range blocks {
			if id := block.CalendarEventID(); id != nil {
				linked[*id] = true
			}
		}

		for _, block := range blocks {
			if err := s.syncBlock(txCtx, client, userID, block, eventsByID, result); err != nil {
				return err
			}
		}

		if err := s.removeOrphans(txCtx, client, userID, blocks, events, linked, result); err != nil {
			return err
		}
		return s.audit.Flush(txCtx)
	})
	if err != nil {
		s.audit.Discard()
		return nil, err
	}

	s.logger.InfoContext(ctx, "calendar sync completed",
		"user_id", userID,
		"pushed", result.Pushed,
		"imported", result.Imported,
		"blocks_removed", result.BlocksRemoved,
		"events_removed", result.EventsRemoved,
		"conflicts", result.Conflicts)
	return result, nil
}

func (s *Synchronizer) syncBlock(
	ctx context.Context,
	client domain.Client,
	userID uuid.UUID,
	block *schedulingdomain.ScheduledBlock,
	eventsByID map[string]domain.Event,
	result *SyncResult,
) error {
	task, err := s.tasks.FindByID(ctx, userID, block.TaskID())
	if err != nil {
		if errors.Is(err, taskdomain.ErrTaskNotFound) {
			// Task purged under the block; the block goes too.
			return s.dropBlock(ctx, client, userID, block, result)
		}
		return err
	}

	if block.CalendarEventID() == nil {
		return s.pushCreate(ctx, client, userID, block, task, result)
	}

	event, present := eventsByID[*block.CalendarEventID()]
	if !present || event.Cancelled {
		// The user deleted the event; honor it by dropping the block.
		if err := s.blocks.Delete(ctx, userID, block.ID()); err != nil {
			return err
		}
		s.audit.Emit(userID, auditdomain.EventCalendarEditImported, block.TaskID(), "task", auditdomain.Details{
			"action":   "event_removed",
			"block_id": block.ID().String(),
		})
		result.BlocksRemoved++
		return nil
	}

	// Ownership needs both the marker and the stored id. A matching id on
	// an unmarked event means someone stripped the marker; leave it alone.
	if event.BlockID == nil || *event.BlockID != block.ID() {
		block.MarkSyncPending()
		if err := s.blocks.Save(ctx, block); err != nil {
			return err
		}
		result.Conflicts++
		return nil
	}

	stored := block.CalendarEtag()
	if stored != nil && event.Etag == *stored {
		return s.pushLocalChanges(ctx, client, userID, block, task, event, result)
	}
	return s.importExternalEdit(ctx, userID, block, task, event, result)
}

// pushCreate publishes a block that has no event yet.
func (s *Synchronizer) pushCreate(
	ctx context.Context,
	client domain.Client,
	userID uuid.UUID,
	block *schedulingdomain.ScheduledBlock,
	task *taskdomain.Task,
	result *SyncResult,
) error {
	blockID := block.ID()
	created, err := client.Insert(ctx, domain.Event{
		Summary:     task.Title(),
		Description: task.Notes(),
		Start:       block.Start(),
		End:         block.End(),
		BlockID:     &blockID,
	})
	if err != nil {
		return err
	}
	block.LinkCalendarEvent(created.ID, created.Etag, created.Updated)
	if err := s.blocks.Save(ctx, block); err != nil {
		return err
	}
	result.Pushed++
	return nil
}

// pushLocalChanges patches the event when the block or task changed since
// the last sync. The etag precondition catches a concurrent external edit.
func (s *Synchronizer) pushLocalChanges(
	ctx context.Context,
	client domain.Client,
	userID uuid.UUID,
	block *schedulingdomain.ScheduledBlock,
	task *taskdomain.Task,
	event domain.Event,
	result *SyncResult,
) error {
	moved := !block.Start().Equal(event.Start) || !block.End().Equal(event.End)
	retitled := task.Title() != event.Summary || task.Notes() != event.Description
	if !moved && !retitled {
		if block.SyncPending() {
			// The earlier conflict resolved itself externally.
			block.RefreshEtag(event.Etag, event.Updated)
			if err := s.blocks.Save(ctx, block); err != nil {
				return err
			}
		}
		return nil
	}

	blockID := block.ID()
	patched, err := client.Patch(ctx, event.ID, event.Etag, domain.Event{
		Summary:     task.Title(),
		Description: task.Notes(),
		Start:       block.Start(),
		End:         block.End(),
		BlockID:     &blockID,
	})
	if err != nil {
		if shareddomain.IsKind(err, shareddomain.KindSyncConflict) {
			block.MarkSyncPending()
			if err := s.blocks.Save(ctx, block); err != nil {
				return err
			}
			result.Conflicts++
			return nil
		}
		return err
	}
	block.RefreshEtag(patched.Etag, patched.Updated)
	if err := s.blocks.Save(ctx, block); err != nil {
		return err
	}
	result.Pushed++
	return nil
}

// importExternalEdit applies a user's calendar edit to the block and task.
// A moved event pins the block so the next rebuild keeps it in place.
func (s *Synchronizer) importExternalEdit(
	ctx context.Context,
	userID uuid.UUID,
	block *schedulingdomain.ScheduledBlock,
	task *taskdomain.Task,
	event domain.Event,
	result *SyncResult,
) error {
	moved := !block.Start().Equal(event.Start) || !block.End().Equal(event.End)
	if moved {
		if err := block.MoveTo(event.Start, event.End); err != nil {
			return err
		}
		block.Lock()
		s.audit.Emit(userID, auditdomain.EventCalendarEditImported, block.TaskID(), "task", auditdomain.Details{
			"action":   "moved",
			"block_id": block.ID().String(),
			"start":    event.Start.UTC().Format(time.RFC3339),
			"end":      event.End.UTC().Format(time.RFC3339),
		})
		result.Imported++
	}

	if event.Summary != task.Title() || event.Description != task.Notes() {
		attrs := taskdomain.Attributes{}
		if event.Summary != task.Title() && event.Summary != "" {
			summary := event.Summary
			attrs.Title = &summary
		}
		if event.Description != task.Notes() {
			description := event.Description
			attrs.Notes = &description
		}
		if attrs.Title != nil || attrs.Notes != nil {
			if _, err := task.Apply(attrs); err != nil {
				return err
			}
			if err := s.tasks.Save(ctx, task); err != nil {
				return err
			}
			s.audit.Emit(userID, auditdomain.EventCalendarEditImported, task.ID(), "task", auditdomain.Details{
				"action":   "text_edited",
				"block_id": block.ID().String(),
			})
			result.Imported++
		}
	}

	block.RefreshEtag(event.Etag, event.Updated)
	return s.blocks.Save(ctx, block)
}

// dropBlock removes a block whose task no longer exists, deleting its
// event when one was created.
func (s *Synchronizer) dropBlock(
	ctx context.Context,
	client domain.Client,
	userID uuid.UUID,
	block *schedulingdomain.ScheduledBlock,
	result *SyncResult,
) error {
	if id := block.CalendarEventID(); id != nil {
		if err := client.Delete(ctx, *id); err != nil && !errors.Is(err, domain.ErrEventNotFound) {
			return err
		}
		result.EventsRemoved++
	}
	if err := s.blocks.Delete(ctx, userID, block.ID()); err != nil {
		return err
	}
	result.BlocksRemoved++
	return nil
}

// removeOrphans deletes managed events whose block no longer exists. The
// marker alone proves the event is ours; events without it are never
// touched.
func (s *Synchronizer) removeOrphans(
	ctx context.Context,
	client domain.Client,
	userID uuid.UUID,
	blocks []*schedulingdomain.ScheduledBlock,
	events []domain.Event,
	linked map[string]bool,
	result *SyncResult,
) error {
	blockIDs := make(map[uuid.UUID]bool, len(blocks))
	for _, block := range blocks {
		blockIDs[block.ID()] = true
	}

	for _, event := range events {
		if event.BlockID == nil || event.Cancelled {
			continue
		}
		if linked[event.ID] || blockIDs[*event.BlockID] {
			continue
		}
		if err := client.Delete(ctx, event.ID); err != nil {
			if errors.Is(err, domain.ErrEventNotFound) {
				continue
			}
			return err
		}
		s.audit.Emit(userID, auditdomain.EventScheduleUpdated, *event.BlockID, "scheduled_block", auditdomain.Details{
			"action":   "orphan_event_removed",
			"event_id": event.ID,
		})
		result.EventsRemoved++
	}
	return nil
}
