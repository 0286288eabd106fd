package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	types    []string
	received []*ConsumedEvent
}

func (c *recordingConsumer) EventTypes() []string { return c.types }

func (c *recordingConsumer) Handle(_ context.Context, event *ConsumedEvent) error {
	c.received = append(c.received, event)
	return nil
}

func TestInProcessEventBus_DeliversToMatchingConsumer(t *testing.T) {
	bus := NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"task.created"}}
	bus.RegisterConsumer(consumer)

	event := ConsumedEvent{
		EventID:       uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: "task",
		RoutingKey:    "task.created",
		OccurredAt:    time.Now().UTC(),
		Metadata:      EventMetadata{UserID: uuid.New()},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "task.created", payload))

	require.Len(t, consumer.received, 1)
	assert.Equal(t, event.EventID, consumer.received[0].EventID)
	assert.Equal(t, event.Metadata.UserID, consumer.received[0].Metadata.UserID)
}

func TestInProcessEventBus_IgnoresUnmatchedRoutingKey(t *testing.T) {
	bus := NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"task.created"}}
	bus.RegisterConsumer(consumer)

	payload, err := json.Marshal(ConsumedEvent{EventID: uuid.New(), RoutingKey: "task.deleted"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "task.deleted", payload))
	assert.Empty(t, consumer.received)
}

func TestInProcessEventBus_MalformedPayloadIsDropped(t *testing.T) {
	bus := NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"task.created"}}
	bus.RegisterConsumer(consumer)

	require.NoError(t, bus.Publish(context.Background(), "task.created", []byte("not json")))
	assert.Empty(t, consumer.received)
}
