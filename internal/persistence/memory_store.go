package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/relay/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of DefinitionStore,
// TriggerStore, and RunStore backed by maps. The pending counter update is
// atomic under the store mutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	definitions map[string][]api.Definition
	triggers    map[string]api.Trigger
	runs        map[string]*api.Run
	markers     map[string]struct{}
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		definitions: make(map[string][]api.Definition),
		triggers:    make(map[string]api.Trigger),
		runs:        make(map[string]*api.Run),
		markers:     make(map[string]struct{}),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ DefinitionStore = (*InMemoryStore)(nil)

var _ TriggerStore = (*InMemoryStore)(nil)

var _ RunStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) PublishDefinition(def api.Definition) (api.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.definitions[def.AutomationID]
	def.Version = len(versions) + 1
	s.definitions[def.AutomationID] = append(versions, def)
	return def, nil
}

func (s *InMemoryStore) GetDefinition(automationID string, version int) (api.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.definitions[automationID]
	if version < 1 || version > len(versions) {
		return api.Definition{}, ErrDefinitionNotFound
	}
	return versions[version-1], nil
}

func (s *InMemoryStore) LatestDefinition(automationID string) (api.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.definitions[automationID]
	if len(versions) == 0 {
		return api.Definition{}, ErrDefinitionNotFound
	}
	return versions[len(versions)-1], nil
}

func (s *InMemoryStore) SaveTrigger(t api.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers[t.ID] = t
	return nil
}

func (s *InMemoryStore) DeactivateTrigger(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok {
		return ErrTriggerNotFound
	}
	t.Active = false
	s.triggers[id] = t
	return nil
}

func (s *InMemoryStore) ActiveTriggers(eventKey string) ([]api.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Trigger
	for _, t := range s.triggers {
		if t.Active && t.EventKey == eventKey {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	copied := *run
	return &copied, nil
}

func (s *InMemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Run
	for _, run := range s.runs {
		if filter.AutomationID != "" && run.AutomationID != filter.AutomationID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		copied := *run
		result = append(result, &copied)
	}
	return result, nil
}

func (s *InMemoryStore) AdvancePending(ctx context.Context, runID string, added int) (int, api.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return 0, "", ErrRunNotFound
	}
	if run.Status.Terminal() {
		return run.Pending, run.Status, nil
	}

	next := run.Pending - 1 + added
	if next < 0 {
		return run.Pending, run.Status, ErrPendingUnderflow
	}

	run.Pending = next
	if next == 0 {
		run.Status = api.StatusCompleted
		run.FinishedAt = time.Now()
	}
	return run.Pending, run.Status, nil
}

func (s *InMemoryStore) FailRun(ctx context.Context, runID string, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status.Terminal() {
		return nil
	}

	run.Status = api.StatusFailed
	run.Error = cause
	run.FinishedAt = time.Now()
	return nil
}

func (s *InMemoryStore) FailAllRunning(ctx context.Context, cause string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for _, run := range s.runs {
		if run.Status != api.StatusRunning {
			continue
		}
		run.Status = api.StatusFailed
		run.Error = cause
		run.FinishedAt = now
		count++
	}
	return count, nil
}

func (s *InMemoryStore) MarkScheduled(ctx context.Context, runID, nodeID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := runID + "|" + nodeID + "|" + key
	if _, exists := s.markers[marker]; exists {
		return false, nil
	}
	s.markers[marker] = struct{}{}
	return true, nil
}
