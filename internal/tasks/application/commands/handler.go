package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	sharedapp "github.com/qzwhatnext/qzwhatnext/internal/shared/application"
	"github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/eventbus"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// smartTitleMaxWords bounds the auto-generated title length.
const smartTitleMaxWords = 8

// BlockRemover removes scheduled blocks that reference a task. Soft delete
// and purge cascade through it inside the same transaction.
type BlockRemover interface {
	RemoveForTask(ctx context.Context, userID, taskID uuid.UUID) error
}

// Handler executes task write commands.
type Handler struct {
	repo      domain.TaskRepository
	blocks    BlockRemover
	audit     *auditapp.Emitter
	uow       sharedapp.UnitOfWork
	publisher eventbus.Publisher
	logger    *slog.Logger
}

// NewHandler creates a task command handler.
func NewHandler(
	repo domain.TaskRepository,
	blocks BlockRemover,
	audit *auditapp.Emitter,
	uow sharedapp.UnitOfWork,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *Handler {
	if publisher == nil {
		publisher = eventbus.NewNoopPublisher(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, blocks: blocks, audit: audit, uow: uow, publisher: publisher, logger: logger}
}

// publishEvents sends the aggregate's buffered events to the bus after the
// transaction committed. Publish failures are logged, not surfaced: the
// write already happened and the schedule tick will catch up.
func (h *Handler) publishEvents(ctx context.Context, task *domain.Task) {
	events := task.DomainEvents()
	if len(events) == 0 {
		return
	}
	sharedapp.ApplyEventMetadata(events, sharedapp.NewEventMetadata(task.UserID()))
	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			h.logger.WarnContext(ctx, "event marshal failed", "routing_key", event.RoutingKey(), "error", err)
			continue
		}
		envelope, err := json.Marshal(eventbus.ConsumedEvent{
			EventID:       event.EventID(),
			AggregateID:   event.AggregateID(),
			AggregateType: event.AggregateType(),
			RoutingKey:    event.RoutingKey(),
			OccurredAt:    event.OccurredAt(),
			Payload:       body,
			Metadata:      eventbus.EventMetadata{UserID: task.UserID()},
		})
		if err != nil {
			h.logger.WarnContext(ctx, "event marshal failed", "routing_key", event.RoutingKey(), "error", err)
			continue
		}
		if err := h.publisher.Publish(ctx, event.RoutingKey(), envelope); err != nil {
			h.logger.WarnContext(ctx, "event publish failed", "routing_key", event.RoutingKey(), "error", err)
		}
	}
	task.ClearDomainEvents()
}

// Create handles CreateTaskCommand.
func (h *Handler) Create(ctx context.Context, cmd CreateTaskCommand) (*domain.Task, error) {
	task, err := domain.NewTask(cmd.UserID, cmd.Title, domain.NewTaskParams{
		Notes:             cmd.Notes,
		Deadline:          cmd.Deadline,
		StartAfter:        cmd.StartAfter,
		DueBy:             cmd.DueBy,
		EstimatedDuration: cmd.EstimatedDuration,
		Category:          cmd.Category,
		Energy:            cmd.Energy,
		RiskScore:         cmd.RiskScore,
		ImpactScore:       cmd.ImpactScore,
		Dependencies:      cmd.Dependencies,
		FlexWindow:        cmd.FlexWindow,
		AIExcluded:        cmd.AIExcluded,
		Source:            cmd.Source,
	})
	if err != nil {
		return nil, err
	}

	err = sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.checkCycle(txCtx, task); err != nil {
			return err
		}
		if err := h.repo.Save(txCtx, task); err != nil {
			return err
		}
		eventType := auditdomain.EventTaskUpdated
		details := auditdomain.Details{"action": "created", "title": task.Title()}
		if cmd.Source != nil {
			eventType = auditdomain.EventTaskImported
			details["source_type"] = cmd.Source.Type
			details["source_id"] = cmd.Source.ID
		}
		h.audit.Emit(cmd.UserID, eventType, task.ID(), "task", details)
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
		return nil, err
	}

	h.publishEvents(ctx, task)
	h.logger.InfoContext(ctx, "task created", "task_id", task.ID(), "user_id", cmd.UserID)
	return task, nil
}

// AddSmart handles AddSmartTaskCommand: derives a title from free text and
// defers everything else to inference.
func (h *Handler) AddSmart(ctx context.Context, cmd AddSmartTaskCommand) (*domain.Task, error) {
	text := strings.TrimSpace(cmd.Text)
	title := deriveTitle(text)

	task, err := domain.NewTask(cmd.UserID, title, domain.NewTaskParams{
		Notes:              text,
		TitleAutoGenerated: true,
		Source:             cmd.Source,
	})
	if err != nil {
		return nil, err
	}

	err = sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.repo.Save(txCtx, task); err != nil {
			return err
		}
		h.audit.Emit(cmd.UserID, auditdomain.EventTaskImported, task.ID(), "task", auditdomain.Details{
			"action":   "add_smart",
			"excluded": domain.IsAIExcluded(task),
		})
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
		return nil, err
	}
	h.publishEvents(ctx, task)
	return task, nil
}

// Update handles UpdateTaskCommand.
func (h *Handler) Update(ctx context.Context, cmd UpdateTaskCommand) (*domain.Task, error) {
	var task *domain.Task
	err := sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		task, err = h.repo.FindByID(txCtx, cmd.UserID, cmd.TaskID)
		if err != nil {
			return err
		}
		changed, err := task.Apply(cmd.Attrs)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		if containsField(changed, "dependencies") {
			if err := h.checkCycle(txCtx, task); err != nil {
				return err
			}
		}
		if err := h.repo.Save(txCtx, task); err != nil {
			return err
		}
		h.audit.Emit(cmd.UserID, auditdomain.EventTaskUpdated, task.ID(), "task", auditdomain.Details{
			"changed_fields": changed,
		})
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
		return nil, err
	}
	h.publishEvents(ctx, task)
	return task, nil
}

// Complete handles CompleteTaskCommand.
func (h *Handler) Complete(ctx context.Context, cmd CompleteTaskCommand) error {
	var task *domain.Task
	err := sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		task, err = h.repo.FindByID(txCtx, cmd.UserID, cmd.TaskID)
		if err != nil {
			return err
		}
		if err := task.Complete(); err != nil {
			return err
		}
		if err := h.repo.Save(txCtx, task); err != nil {
			return err
		}
		h.audit.Emit(cmd.UserID, auditdomain.EventCompleted, task.ID(), "task", nil)
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
		return err
	}
	h.publishEvents(ctx, task)
	return nil
}

// Delete handles DeleteTaskCommand. The soft delete cascades to remove any
// scheduled blocks referencing the task.
func (h *Handler) Delete(ctx context.Context, cmd DeleteTaskCommand) error {
	var task *domain.Task
	err := sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		task, err = h.repo.FindByID(txCtx, cmd.UserID, cmd.TaskID)
		if err != nil {
			return err
		}
		task.Delete()
		if err := h.repo.Save(txCtx, task); err != nil {
			return err
		}
		if err := h.blocks.RemoveForTask(txCtx, cmd.UserID, cmd.TaskID); err != nil {
			return err
		}
		h.audit.Emit(cmd.UserID, auditdomain.EventTaskUpdated, task.ID(), "task", auditdomain.Details{
			"action": "deleted",
		})
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
		return err
	}
	h.publishEvents(ctx, task)
	return nil
}

// Restore handles RestoreTaskCommand.
func (h *Handler) Restore(ctx context.Context, cmd RestoreTaskCommand) error {
	var task *domain.Task
	err := sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		task, err = h.repo.FindByID(txCtx, cmd.UserID, cmd.TaskID)
		if err != nil {
			return err
		}
		if err := task.Restore(); err != nil {
			return err
		}
		if err := h.repo.Save(txCtx, task); err != nil {
			return err
		}
		h.audit.Emit(cmd.UserID, auditdomain.EventTaskUpdated, task.ID(), "task", auditdomain.Details{
			"action": "restored",
		})
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
		return err
	}
	h.publishEvents(ctx, task)
	return nil
}

// Purge handles PurgeTaskCommand: irreversible removal cascading to blocks.
func (h *Handler) Purge(ctx context.Context, cmd PurgeTaskCommand) error {
	err := sharedapp.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.blocks.RemoveForTask(txCtx, cmd.UserID, cmd.TaskID); err != nil {
			return err
		}
		if err := h.repo.Purge(txCtx, cmd.UserID, cmd.TaskID); err != nil {
			return err
		}
		h.audit.Emit(cmd.UserID, auditdomain.EventTaskUpdated, cmd.TaskID, "task", auditdomain.Details{
			"action": "purged",
		})
		return h.audit.Flush(txCtx)
	})
	if err != nil {
		h.audit.Discard()
	}
	return err
}

// checkCycle loads the user's task graph and verifies acyclicity with the
// candidate's in-memory edges.
func (h *Handler) checkCycle(ctx context.Context, task *domain.Task) error {
	if len(task.Dependencies()) == 0 {
		return nil
	}
	existing, err := h.repo.List(ctx, task.UserID(), domain.ListFilter{})
	if err != nil {
		return err
	}
	return domain.CheckDependencyCycle(task, existing)
}

// deriveTitle takes the first sentence or first few words of free text.
func deriveTitle(text string) string {
	if text == "" {
		return ""
	}
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	words := strings.FieldsFunc(line, unicode.IsSpace)
	if len(words) > smartTitleMaxWords {
		words = words[:smartTitleMaxWords]
	}
	return strings.Join(words, " ")
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
