package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petrijr/relay/pkg/api"
)

// ErrRunnerNotFound is returned when no runner is registered for a node's
// type key. The executor treats it as a per-node failure, not a crash.
var ErrRunnerNotFound = errors.New("runner not found")

// runnerRegistry is the closed set of node types the engine can execute.
// Registration happens at construction and setup time, before events are
// accepted; Resolve is the hot path.
type runnerRegistry struct {
	mu      sync.RWMutex
	runners map[string]api.Runner
}

func newRunnerRegistry() *runnerRegistry {
	return &runnerRegistry{runners: make(map[string]api.Runner)}
}

func (r *runnerRegistry) Register(typeKey string, runner api.Runner) error {
	if typeKey == "" {
		return errors.New("runner type key must not be empty")
	}
	if runner == nil {
		return fmt.Errorf("runner for type %q must not be nil", typeKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[typeKey]; exists {
		return fmt.Errorf("runner type %q already registered", typeKey)
	}
	r.runners[typeKey] = runner
	return nil
}

func (r *runnerRegistry) Resolve(typeKey string) (api.Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[typeKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRunnerNotFound, typeKey)
	}
	return runner, nil
}

// Matchers returns the registered runners that can act as trigger matchers,
// keyed by type.
func (r *runnerRegistry) Matchers() map[string]api.TriggerMatcher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]api.TriggerMatcher)
	for typeKey, runner := range r.runners {
		if m, ok := runner.(api.TriggerMatcher); ok {
			out[typeKey] = m
		}
	}
	return out
}
