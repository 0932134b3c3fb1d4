package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool creates its outputs on the succeedOn-th call (never when 0).
type fakeTool struct {
	calls     atomic.Int32
	succeedOn int32
	outputs   []string
	exitCode  int
}

func (f *fakeTool) Execute(ctx context.Context, cmd Command) ExitStatus {
	n := f.calls.Add(1)
	if f.succeedOn > 0 && n >= f.succeedOn {
		for _, p := range f.outputs {
			_ = os.MkdirAll(filepath.Dir(p), 0o755)
			_ = os.WriteFile(p, []byte("nii"), 0o644)
		}
		return ExitStatus{Code: f.exitCode}
	}
	return ExitStatus{Code: 1, Err: errors.New("exit status 1")}
}

var testCmd = Command{Name: "tool", Args: []string{"--in", "x"}}

func TestLoop_ArtifactAlreadyPresent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "segmentations", "case01_all_labels.nii.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(out, nil, 0o644))

	tool := &fakeTool{succeedOn: 1}
	loop := NewLoop(tool, WithMaxTries(3))

	res, err := loop.RunUntilArtifact(context.Background(), "segmentation", testCmd, []string{out})
	require.NoError(t, err)
	assert.Equal(t, int32(0), tool.calls.Load(), "no execution when the artifact exists")
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, []string{out}, res.Paths)
}

func TestLoop_SucceedsOnSecondAttempt(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.nii.gz")
	tool := &fakeTool{succeedOn: 2, outputs: []string{out}}
	loop := NewLoop(tool, WithMaxTries(3))

	res, err := loop.RunUntilArtifact(context.Background(), "recon", testCmd, []string{out})
	require.NoError(t, err)
	assert.Equal(t, int32(2), tool.calls.Load())
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, res.Exits, 2)
	assert.Equal(t, 1, res.Exits[0].Code)
}

func TestLoop_RetryBound(t *testing.T) {
	for _, maxTries := range []int{1, 3, 10} {
		out := filepath.Join(t.TempDir(), "never.nii.gz")
		tool := &fakeTool{}
		loop := NewLoop(tool, WithMaxTries(maxTries))

		res, err := loop.RunUntilArtifact(context.Background(), "segmentation", testCmd, []string{out})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrArtifactNotProduced)

		var notProduced *domain.ArtifactNotProducedError
		require.ErrorAs(t, err, &notProduced)
		assert.Equal(t, maxTries, notProduced.Attempts)
		assert.Equal(t, []string{out}, notProduced.Missing)
		assert.Equal(t, "segmentation", notProduced.Stage)
		assert.Equal(t, int32(maxTries), tool.calls.Load())
		assert.Equal(t, maxTries, res.Attempts)
	}
}

func TestLoop_DefaultBudget(t *testing.T) {
	tool := &fakeTool{}
	loop := NewLoop(tool, WithMaxTries(0))
	assert.Equal(t, domain.DefaultMaxTries, loop.MaxTries())

	_, err := loop.RunUntilArtifact(context.Background(), "s", testCmd, []string{filepath.Join(t.TempDir(), "x")})
	assert.ErrorIs(t, err, domain.ErrArtifactNotProduced)
	assert.Equal(t, int32(domain.DefaultMaxTries), tool.calls.Load())
}

func TestLoop_ExitCodeIgnoredWhenArtifactsExist(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.nii.gz")
	tool := &fakeTool{succeedOn: 1, outputs: []string{out}, exitCode: 137}
	loop := NewLoop(tool, WithMaxTries(5))

	res, err := loop.RunUntilArtifact(context.Background(), "recon", testCmd, []string{out})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 137, res.Exits[0].Code)
}

func TestLoop_WaitsForEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.nii.gz")
	second := filepath.Join(dir, "b.nii.gz")
	tool := &fakeTool{succeedOn: 1, outputs: []string{first}}
	loop := NewLoop(tool, WithMaxTries(2))

	_, err := loop.RunUntilArtifact(context.Background(), "s", testCmd, []string{first, second})
	var notProduced *domain.ArtifactNotProducedError
	require.ErrorAs(t, err, &notProduced)
	assert.Equal(t, []string{second}, notProduced.Missing)
}

func TestLoop_LaunchFailureIsFatal(t *testing.T) {
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, cmd Command) ExitStatus {
		calls.Add(1)
		err := errors.New("executable file not found in $PATH")
		return ExitStatus{Code: -1, Err: err, LaunchErr: err}
	})
	loop := NewLoop(exec, WithMaxTries(5))

	_, err := loop.RunUntilArtifact(context.Background(), "s", testCmd, []string{filepath.Join(t.TempDir(), "x")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrArtifactNotProduced)
	assert.Contains(t, err.Error(), "cannot launch")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoop_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, cmd Command) ExitStatus {
		calls.Add(1)
		cancel()
		return ExitStatus{Code: -1, Err: context.Canceled}
	})
	loop := NewLoop(exec, WithMaxTries(5))

	_, err := loop.RunUntilArtifact(ctx, "s", testCmd, []string{filepath.Join(t.TempDir(), "x")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoop_AttemptTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, cmd Command) ExitStatus {
		calls.Add(1)
		<-ctx.Done()
		return ExitStatus{Code: -1, Err: ctx.Err()}
	})
	loop := NewLoop(exec, WithMaxTries(3), WithAttemptTimeout(10*time.Millisecond))

	_, err := loop.RunUntilArtifact(context.Background(), "s", testCmd, []string{filepath.Join(t.TempDir(), "x")})
	assert.ErrorIs(t, err, domain.ErrArtifactNotProduced)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoop_NotifiesObserversAndCounter(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.nii.gz")
	tool := &fakeTool{succeedOn: 3, outputs: []string{out}}

	var outcomes []Outcome
	loop := NewLoop(tool, WithMaxTries(5), WithObserver(ObserverFunc(func(_ context.Context, a Attempt) {
		outcomes = append(outcomes, a.Outcome)
		assert.Equal(t, 5, a.MaxTries)
	})))

	ctx, counter := domain.WithAttemptCounter(context.Background())
	_, err := loop.RunUntilArtifact(ctx, "s", testCmd, []string{out})
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeRetry, OutcomeRetry, OutcomeSuccess}, outcomes)
	assert.Equal(t, int64(3), counter.Load())
}

func TestClassify(t *testing.T) {
	done, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeSuccess, Classify(context.Background(), ExitStatus{Code: 1}, nil))
	assert.Equal(t, OutcomeSuccess, Classify(done, ExitStatus{Code: 1}, nil))
	assert.Equal(t, OutcomeRetry, Classify(context.Background(), ExitStatus{Code: 1}, []string{"x"}))
	assert.Equal(t, OutcomeFatal, Classify(done, ExitStatus{}, []string{"x"}))
	assert.Equal(t, OutcomeFatal, Classify(context.Background(), ExitStatus{LaunchErr: errors.New("nope")}, []string{"x"}))
	assert.Equal(t, "retry", OutcomeRetry.String())
}

func TestLoop_EachAttemptGetsItsOwnContainer(t *testing.T) {
	cmd, err := Build(Invocation{
		PreCommand: "docker run --rm ",
		Image:      "renbem/niftymic",
		Entrypoint: []string{"niftymic_run_reconstruction_pipeline"},
	}, "/work/run1/recon")
	require.NoError(t, err)

	var names, stops []string
	tool := ExecutorFunc(func(_ context.Context, c Command) ExitStatus {
		names = append(names, c.Container)
		stops = append(stops, c.Stop[len(c.Stop)-1])
		assert.Contains(t, c.Args, c.Container)
		return ExitStatus{Code: 1}
	})
	loop := NewLoop(tool, WithMaxTries(2))

	_, err = loop.RunUntilArtifact(context.Background(), "recon", cmd, []string{filepath.Join(t.TempDir(), "srr.nii.gz")})
	assert.ErrorIs(t, err, domain.ErrArtifactNotProduced)

	base := ContainerName("/work/run1/recon")
	assert.Equal(t, []string{base + "-1", base + "-2"}, names)
	assert.Equal(t, names, stops)
}
