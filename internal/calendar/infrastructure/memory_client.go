// Package infrastructure holds calendar adapters that do not talk to an
// external API.
package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

// MemoryClient is an in-process calendar used in local mode and tests. It
// mimics the etag discipline of the real API: every write bumps the etag
// and a stale precondition fails with a sync conflict.
type MemoryClient struct {
	mu     sync.Mutex
	events map[string]domain.Event
	serial int
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{events: make(map[string]domain.Event)}
}

func (c *MemoryClient) ListEvents(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, event := range c.events {
		if event.Cancelled {
			continue
		}
		if event.Start.Before(to) && event.End.After(from) {
			out = append(out, event)
		}
	}
	return out, nil
}

func (c *MemoryClient) Insert(_ context.Context, event domain.Event) (domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event.ID = uuid.NewString()
	event.Etag = c.nextEtag()
	event.Updated = time.Now().UTC()
	c.events[event.ID] = event
	return event, nil
}

func (c *MemoryClient) Patch(_ context.Context, eventID, etag string, event domain.Event) (domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if etag != "" && etag != current.Etag {
		return domain.Event{}, shareddomain.NewKindError(shareddomain.KindSyncConflict, "event_version_mismatch", nil)
	}
	current.Summary = event.Summary
	current.Description = event.Description
	current.Start = event.Start
	current.End = event.End
	current.Etag = c.nextEtag()
	current.Updated = time.Now().UTC()
	c.events[eventID] = current
	return current, nil
}

func (c *MemoryClient) Delete(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[eventID]; !ok {
		return domain.ErrEventNotFound
	}
	delete(c.events, eventID)
	return nil
}

// EditExternally mutates an event the way a user editing the calendar UI
// would, bumping the etag without going through Patch preconditions.
func (c *MemoryClient) EditExternally(eventID string, mutate func(*domain.Event)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	mutate(&event)
	event.Etag = c.nextEtag()
	event.Updated = time.Now().UTC()
	c.events[eventID] = event
	return nil
}

// Event returns a stored event by id.
func (c *MemoryClient) Event(eventID string) (domain.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.events[eventID]
	return event, ok
}

// Len reports the number of stored events.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *MemoryClient) nextEtag() string {
	c.serial++
	return fmt.Sprintf("etag-%d", c.serial)
}

// StaticClientSource returns the same client for every user.
type StaticClientSource struct {
	client domain.Client
}

func NewStaticClientSource(client domain.Client) *StaticClientSource {
	return &StaticClientSource{client: client}
}

func (s *StaticClientSource) ClientFor(context.Context, uuid.UUID) (domain.Client, error) {
	return s.client, nil
}
