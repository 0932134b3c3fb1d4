package memory

import (
	"context"
	"sync"

	"github.com/aretw0/fetpipe/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Run
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Run),
	}
}

// Begin registers a run in memory.
func (s *Store) Begin(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.ID] = copyRun(run)
	return nil
}

// Record appends a stage record to its run.
func (s *Store) Record(ctx context.Context, rec domain.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.data[rec.RunID]
	if !ok {
		return domain.ErrRunNotFound
	}
	rec.Outputs = copyOutputs(rec.Outputs)
	run.Stages = append(run.Stages, rec)
	return nil
}

// Load retrieves a run from memory.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	// Copy on read so the caller can't mutate the store through the pointer.
	return copyRun(run), nil
}

// Delete removes a run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns the stored run IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	return runs, nil
}

func copyRun(run *domain.Run) *domain.Run {
	out := *run
	out.Stages = make([]domain.StageRecord, len(run.Stages))
	for i, rec := range run.Stages {
		rec.Outputs = copyOutputs(rec.Outputs)
		out.Stages[i] = rec
	}
	return &out
}

func copyOutputs(in domain.Outputs) domain.Outputs {
	if in == nil {
		return nil
	}
	out := make(domain.Outputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
