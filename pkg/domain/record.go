package domain

import (
	"context"
	"sync/atomic"
	"time"
)

// StageStatus is the terminal state of a node within a run.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageRecord is the persisted outcome of one node execution.
type StageRecord struct {
	RunID      string      `json:"run_id"`
	Node       string      `json:"node"`
	Status     StageStatus `json:"status"`
	Outputs    Outputs     `json:"outputs,omitempty"`
	Error      string      `json:"error,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Run groups the records of a single pipeline execution.
type Run struct {
	ID        string        `json:"id"`
	Pipeline  string        `json:"pipeline"`
	StartedAt time.Time     `json:"started_at"`
	Stages    []StageRecord `json:"stages"`
}

// Failed reports whether any stage of the run failed.
func (r *Run) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return true
		}
	}
	return false
}

type attemptsKey struct{}

// WithAttemptCounter attaches a counter that execution loops increment once per tool launch.
func WithAttemptCounter(ctx context.Context) (context.Context, *atomic.Int64) {
	c := new(atomic.Int64)
	return context.WithValue(ctx, attemptsKey{}, c), c
}

// CountAttempt increments the counter attached to ctx, if any.
func CountAttempt(ctx context.Context) {
	if c, ok := ctx.Value(attemptsKey{}).(*atomic.Int64); ok {
		c.Add(1)
	}
}
