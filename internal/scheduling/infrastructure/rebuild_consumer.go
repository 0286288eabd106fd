package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/scheduling/application"
	"github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/eventbus"
)

// RebuildConsumer turns task lifecycle events into rebuild triggers. The
// coordinator coalesces bursts, so a batch import produces one rebuild,
// not one per task.
type RebuildConsumer struct {
	coordinator *application.Coordinator
	logger      *slog.Logger
}

// NewRebuildConsumer creates a consumer feeding the coordinator.
func NewRebuildConsumer(coordinator *application.Coordinator, logger *slog.Logger) *RebuildConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildConsumer{coordinator: coordinator, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (c *RebuildConsumer) EventTypes() []string {
	return []string{
		"task.created",
		"task.updated",
		"task.completed",
		"task.missed",
		"task.deleted",
		"task.restored",
	}
}

// Handle implements eventbus.EventConsumer.
func (c *RebuildConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	userID := event.Metadata.UserID
	if userID == uuid.Nil {
		var payload struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.UserID == uuid.Nil {
			c.logger.WarnContext(ctx, "rebuild trigger event without user",
				"routing_key", event.RoutingKey, "event_id", event.EventID)
			return nil
		}
		userID = payload.UserID
	}

	_, _, err := c.coordinator.Trigger(ctx, userID, event.RoutingKey)
	if err != nil {
		if errors.Is(err, application.ErrRebuildLocked) {
			// Another process owns the rebuild; it will see the same state.
			c.logger.DebugContext(ctx, "rebuild already held elsewhere", "user_id", userID)
			return nil
		}
		return err
	}
	return nil
}
