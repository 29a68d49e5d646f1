package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/relay/pkg/api"
)

// EventStore is an append-only history store for run execution events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.RunEvent) error
	ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return nil, nil
}

// MemoryEventStore keeps events in memory, in append order.
type MemoryEventStore struct {
	mu    sync.Mutex
	byRun map[string][]api.RunEvent
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{byRun: make(map[string][]api.RunEvent)}
}

var _ EventStore = (*MemoryEventStore)(nil)

func (s *MemoryEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRun[ev.RunID] = append(s.byRun[ev.RunID], ev)
	return nil
}

func (s *MemoryEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.byRun[runID]
	out := make([]api.RunEvent, len(events))
	copy(out, events)
	return out, nil
}
