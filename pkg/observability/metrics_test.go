package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Attempts(t *testing.T) {
	m := observability.NewMetrics()
	ctx := context.Background()

	m.ObserveAttempt(ctx, process.Attempt{Stage: "recon", Number: 1, Outcome: process.OutcomeRetry})
	m.ObserveAttempt(ctx, process.Attempt{Stage: "recon", Number: 2, Outcome: process.OutcomeSuccess})
	m.ObserveAttempt(ctx, process.Attempt{Stage: "dhcp", Number: 1, Outcome: process.OutcomeRetry})

	expected := `
# HELP fetpipe_attempts_total Tool launches by stage and verification outcome.
# TYPE fetpipe_attempts_total counter
fetpipe_attempts_total{outcome="retry",stage="dhcp"} 1
fetpipe_attempts_total{outcome="retry",stage="recon"} 1
fetpipe_attempts_total{outcome="success",stage="recon"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "fetpipe_attempts_total"))
}

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnStageStart(ctx, &domain.StageEvent{Node: "recon"})
	hooks.OnStageStart(ctx, &domain.StageEvent{Node: "mask"})
	running := `
# HELP fetpipe_stages_running Pipeline nodes currently executing.
# TYPE fetpipe_stages_running gauge
fetpipe_stages_running 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(running), "fetpipe_stages_running"))

	hooks.OnStageFinish(ctx, &domain.StageEvent{Node: "recon", Duration: 3 * time.Second})
	hooks.OnStageFinish(ctx, &domain.StageEvent{Node: "mask", Duration: time.Second, Err: errors.New("boom")})
	hooks.OnStageSkip(ctx, &domain.StageEvent{Node: "segmentation"})

	expected := `
# HELP fetpipe_stages_total Finished pipeline nodes by terminal status.
# TYPE fetpipe_stages_total counter
fetpipe_stages_total{node="mask",status="failed"} 1
fetpipe_stages_total{node="recon",status="succeeded"} 1
fetpipe_stages_total{node="segmentation",status="skipped"} 1
# HELP fetpipe_stages_running Pipeline nodes currently executing.
# TYPE fetpipe_stages_running gauge
fetpipe_stages_running 0
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"fetpipe_stages_total", "fetpipe_stages_running"))
	series, err := testutil.GatherAndCount(m.Registry(), "fetpipe_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestMetrics_LoopObserver(t *testing.T) {
	m := observability.NewMetrics()
	calls := 0
	tool := process.ExecutorFunc(func(context.Context, process.Command) process.ExitStatus {
		calls++
		return process.ExitStatus{Code: 1}
	})
	loop := process.NewLoop(tool, process.WithMaxTries(3), process.WithObserver(m))

	_, err := loop.RunUntilArtifact(context.Background(), "brain_extraction", process.Command{}, []string{t.TempDir() + "/never.nii.gz"})
	require.ErrorIs(t, err, domain.ErrArtifactNotProduced)
	assert.Equal(t, 3, calls)

	expected := `
# HELP fetpipe_attempts_total Tool launches by stage and verification outcome.
# TYPE fetpipe_attempts_total counter
fetpipe_attempts_total{outcome="retry",stage="brain_extraction"} 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "fetpipe_attempts_total"))
}

func TestHandler(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveAttempt(context.Background(), process.Attempt{Stage: "recon", Outcome: process.OutcomeSuccess})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `fetpipe_attempts_total{outcome="success",stage="recon"} 1`)
}
