package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/adapters/memory"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/dsl"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fnStage is an in-process stage for engine tests.
type fnStage struct {
	name    string
	inputs  schema.Schema
	outputs []string
	fn      func(ctx context.Context, in domain.Inputs) (domain.Outputs, error)
}

func (s *fnStage) Name() string { return s.name }

func (s *fnStage) Ports() stages.Ports {
	return stages.Ports{Inputs: s.inputs, Outputs: s.outputs}
}

func (s *fnStage) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	return s.fn(ctx, in)
}

// suffix appends tag to every path of its input.
func suffix(tag string) *fnStage {
	return &fnStage{
		name:    "suffix",
		inputs:  schema.Schema{"in": schema.String()},
		outputs: []string{"out"},
		fn: func(_ context.Context, in domain.Inputs) (domain.Outputs, error) {
			return domain.Outputs{"out": in.String("in") + tag}, nil
		},
	}
}

func collect() *fnStage {
	return &fnStage{
		name:    "collect",
		inputs:  schema.Schema{"a": schema.Optional(schema.String()), "b": schema.Optional(schema.Slice(schema.String()))},
		outputs: []string{"out"},
		fn: func(_ context.Context, in domain.Inputs) (domain.Outputs, error) {
			return domain.Outputs{"out": append([]string{in.String("a")}, in.Paths("b")...)}, nil
		},
	}
}

func failing(err error) *fnStage {
	return &fnStage{
		name:    "failing",
		inputs:  schema.Schema{"in": schema.String()},
		outputs: []string{"out"},
		fn: func(context.Context, domain.Inputs) (domain.Outputs, error) {
			return nil, err
		},
	}
}

func TestEngine_RunsInDependencyOrder(t *testing.T) {
	b := dsl.New("chain").Input("x").Output("result")
	b.Add("first", suffix("-1")).From(dsl.InputNode, "x", "in")
	b.Add("second", suffix("-2")).From("first", "out", "in")
	b.Connect("second", "out", dsl.OutputNode, "result")
	g, err := b.Build()
	require.NoError(t, err)

	store := memory.NewStore()
	res, err := New(WithStore(store), WithWorkDir(t.TempDir())).Run(context.Background(), g, domain.Inputs{"x": "s"}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1-2", res.Outputs["result"])

	run, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "chain", run.Pipeline)
	require.Len(t, run.Stages, 2)
	for _, rec := range run.Stages {
		assert.Equal(t, domain.StageSucceeded, rec.Status)
	}
}

func TestEngine_MapFansOutAndCollects(t *testing.T) {
	var seen sync.Map
	item := &fnStage{
		name:    "item",
		inputs:  schema.Schema{"in": schema.String()},
		outputs: []string{"out"},
		fn: func(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
			env := stages.EnvFrom(ctx)
			seen.Store(env.Index, env.Node)
			return domain.Outputs{"out": in.String("in") + ".done"}, nil
		},
	}

	b := dsl.New("fan").Input("xs").Output("all")
	b.Map("each", item, "in").From(dsl.InputNode, "xs", "in")
	b.Add("join", collect()).From("each", "out", "b")
	b.Connect("join", "out", dsl.OutputNode, "all")
	g, err := b.Build()
	require.NoError(t, err)

	res, err := New(WithWorkers(2)).Run(context.Background(), g, domain.Inputs{"xs": []string{"a", "b", "c"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "a.done", "b.done", "c.done"}, res.Outputs["all"])
	assert.NotEmpty(t, res.Run.ID, "a run ID is generated")

	for i := 0; i < 3; i++ {
		node, ok := seen.Load(i)
		assert.True(t, ok, "item %d executed", i)
		assert.Equal(t, "each", node)
	}
}

func TestEngine_BoundedParallelism(t *testing.T) {
	var running, peak atomic.Int32
	slow := &fnStage{
		name:    "slow",
		inputs:  schema.Schema{"in": schema.String()},
		outputs: []string{"out"},
		fn: func(_ context.Context, in domain.Inputs) (domain.Outputs, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return domain.Outputs{"out": in.String("in")}, nil
		},
	}

	b := dsl.New("bounded").Input("xs")
	b.Map("each", slow, "in").From(dsl.InputNode, "xs", "in")
	g, err := b.Build()
	require.NoError(t, err)

	_, err = New(WithWorkers(2)).Run(context.Background(), g, domain.Inputs{"xs": []string{"1", "2", "3", "4", "5", "6"}}, "r")
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEngine_FailureSkipsDownstreamOnly(t *testing.T) {
	boom := errors.New("tool exploded")
	b := dsl.New("branches").Input("x").Output("ok", "bad")
	b.Add("broken", failing(boom)).From(dsl.InputNode, "x", "in")
	b.Add("after_broken", suffix("-never")).From("broken", "out", "in")
	b.Add("independent", suffix("-fine")).From(dsl.InputNode, "x", "in")
	b.Connect("independent", "out", dsl.OutputNode, "ok").
		Connect("after_broken", "out", dsl.OutputNode, "bad")
	g, err := b.Build()
	require.NoError(t, err)

	var skipped []string
	hooks := domain.LifecycleHooks{
		OnStageSkip: func(_ context.Context, ev *domain.StageEvent) { skipped = append(skipped, ev.Node) },
	}
	res, err := New(WithLifecycleHooks(hooks)).Run(context.Background(), g, domain.Inputs{"x": "s"}, "r")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "node broken")

	assert.Equal(t, domain.Outputs{"ok": "s-fine"}, res.Outputs)
	assert.Equal(t, []string{"after_broken"}, skipped)
	assert.True(t, res.Run.Failed())

	status := map[string]domain.StageStatus{}
	for _, rec := range res.Run.Stages {
		status[rec.Node] = rec.Status
	}
	assert.Equal(t, domain.StageFailed, status["broken"])
	assert.Equal(t, domain.StageSkipped, status["after_broken"])
	assert.Equal(t, domain.StageSucceeded, status["independent"])
}

func TestEngine_MissingPipelineInput(t *testing.T) {
	b := dsl.New("p").Input("x")
	b.Add("n", suffix("")).From(dsl.InputNode, "x", "in")
	g, err := b.Build()
	require.NoError(t, err)

	_, err = New().Run(context.Background(), g, domain.Inputs{}, "r")
	assert.ErrorContains(t, err, `missing input "x"`)
}

func TestEngine_HooksAndEnv(t *testing.T) {
	work := t.TempDir()
	var root string
	envcheck := &fnStage{
		name:    "envcheck",
		inputs:  schema.Schema{"in": schema.String()},
		outputs: []string{"out"},
		fn: func(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
			env := stages.EnvFrom(ctx)
			root = filepath.Join(env.WorkDir, env.RunID, env.Node)
			domain.CountAttempt(ctx)
			domain.CountAttempt(ctx)
			return domain.Outputs{"out": "x"}, nil
		},
	}
	b := dsl.New("p").Input("x")
	b.Add("envcheck", envcheck).From(dsl.InputNode, "x", "in")
	g, err := b.Build()
	require.NoError(t, err)

	var events []domain.EventType
	var mu sync.Mutex
	record := func(_ context.Context, ev *domain.StageEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Type)
	}
	eng := New(WithWorkDir(work), WithLifecycleHooks(domain.LifecycleHooks{OnStageStart: record, OnStageFinish: record}))

	res, err := eng.Run(context.Background(), g, domain.Inputs{"x": "v"}, "run-7")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "run-7", "envcheck"), root)
	assert.Equal(t, []domain.EventType{domain.EventStageStart, domain.EventStageFinish}, events)
	assert.Equal(t, 2, res.Run.Stages[0].Attempts)
}

func TestEngine_CancelledContextSkipsPendingNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fnStage{
		name:    "first",
		inputs:  schema.Schema{"in": schema.String()},
		outputs: []string{"out"},
		fn: func(context.Context, domain.Inputs) (domain.Outputs, error) {
			cancel()
			return domain.Outputs{"out": "x"}, nil
		},
	}
	b := dsl.New("p").Input("x")
	b.Add("first", first).From(dsl.InputNode, "x", "in")
	b.Add("second", suffix("")).From("first", "out", "in")
	g, err := b.Build()
	require.NoError(t, err)

	res, err := New().Run(ctx, g, domain.Inputs{"x": "v"}, "r")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StageSucceeded, res.Run.Stages[0].Status)
	assert.Equal(t, domain.StageSkipped, res.Run.Stages[1].Status)
}
