package persistence

import (
	"context"
	"sync"

	"github.com/relcut/relcut/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of RunStore and
// EventStore backed by maps. Runs stored here do not survive the process;
// use the SQLite store for a durable journal.
type InMemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*api.ReleaseRun
	events map[string][]api.ReleaseEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:   make(map[string]*api.ReleaseRun),
		events: make(map[string][]api.ReleaseEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ RunStore = (*InMemoryStore)(nil)

var _ EventStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveRun(run *api.ReleaseRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *InMemoryStore) UpdateRun(run *api.ReleaseRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}

	s.runs[run.ID] = run
	return nil
}

func (s *InMemoryStore) GetRun(id string) (*api.ReleaseRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return run, nil
}

func (s *InMemoryStore) ListRuns(filter RunFilter) ([]*api.ReleaseRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.ReleaseRun

	for _, run := range s.runs {
		if filter.State != "" && run.State != filter.State {
			continue
		}
		result = append(result, run)
	}

	return result, nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev api.ReleaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, runID string) ([]api.ReleaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[runID]
	out := make([]api.ReleaseEvent, len(evs))
	copy(out, evs)
	return out, nil
}
