package ports

import (
	"context"

	"github.com/aretw0/fetpipe/pkg/domain"
)

// RunStore persists pipeline runs and the records of their nodes.
type RunStore interface {
	// Begin registers a new run. Stage records are appended with Record.
	Begin(ctx context.Context, run *domain.Run) error

	// Record appends the outcome of one node execution to its run.
	// Returns domain.ErrRunNotFound if the run was never begun.
	Record(ctx context.Context, rec domain.StageRecord) error

	// Load retrieves a run with all its records.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Run, error)

	// List returns the IDs of the stored runs.
	List(ctx context.Context) ([]string, error)

	// Delete removes a run and its records.
	Delete(ctx context.Context, runID string) error
}
