package application

import (
	"github.com/google/uuid"
	"github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata creates command-scoped metadata for domain events.
func NewEventMetadata(userID uuid.UUID) domain.EventMetadata {
	return domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// NewRebuildMetadata creates metadata carrying the rebuild id, so audit
// events from one rebuild can be grouped and ordered.
func NewRebuildMetadata(userID, rebuildID uuid.UUID) domain.EventMetadata {
	md := NewEventMetadata(userID)
	md.RebuildID = rebuildID
	return md
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
