package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a RunStore implementation
// adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")
	started := time.Now().UTC().Truncate(time.Second)

	t.Run("Begin Record and Load", func(t *testing.T) {
		run := &domain.Run{ID: runID, Pipeline: "niftymic", StartedAt: started}
		require.NoError(t, store.Begin(ctx, run), "Begin should not return error")

		rec := domain.StageRecord{
			RunID:      runID,
			Node:       "recon",
			Status:     domain.StageSucceeded,
			Outputs:    domain.Outputs{"recon_files": "/w/srr_template.nii.gz"},
			Attempts:   2,
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
		}
		require.NoError(t, store.Record(ctx, rec), "Record should not return error")
		require.NoError(t, store.Record(ctx, domain.StageRecord{
			RunID:  runID,
			Node:   "segmentation",
			Status: domain.StageSkipped,
		}))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "niftymic", loaded.Pipeline)
		assert.True(t, started.Equal(loaded.StartedAt))
		require.Len(t, loaded.Stages, 2)
		assert.Equal(t, "recon", loaded.Stages[0].Node)
		assert.Equal(t, 2, loaded.Stages[0].Attempts)
		assert.Equal(t, "/w/srr_template.nii.gz", loaded.Stages[0].Outputs["recon_files"])
		assert.Equal(t, domain.StageSkipped, loaded.Stages[1].Status)
	})

	t.Run("Record Unknown Run", func(t *testing.T) {
		err := store.Record(ctx, domain.StageRecord{RunID: "unknown-" + runID, Node: "x"})
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Begin(ctx, &domain.Run{ID: id1, Pipeline: "nesvor"}))
		require.NoError(t, store.Begin(ctx, &domain.Run{ID: id2, Pipeline: "nesvor"}))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})
}
