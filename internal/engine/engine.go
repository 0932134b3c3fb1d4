// Package engine executes pipeline graphs built with pkg/dsl.
//
// It offers only what the pipelines need: dependency order, bounded parallelism and
// per-item fan-out of mapped nodes. A node runs once all its predecessors succeeded;
// nodes downstream of a failure are skipped while independent branches carry on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/aretw0/fetpipe/internal/logging"
	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/dsl"
	"github.com/aretw0/fetpipe/pkg/ports"
	"github.com/aretw0/fetpipe/pkg/stages"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine runs pipeline graphs.
type Engine struct {
	workers int
	workDir string
	loop    *process.Loop
	store   ports.RunStore
	locker  ports.DistributedLocker
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithWorkers bounds the number of stage executions running at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithWorkDir sets the directory under which every run gets its staging roots.
func WithWorkDir(dir string) Option {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// WithLoop sets the verification loop handed to stages.
func WithLoop(l *process.Loop) Option {
	return func(e *Engine) {
		e.loop = l
	}
}

// WithStore records every run in store.
func WithStore(store ports.RunStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker guards staging roots with locker.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers: runtime.NumCPU(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loop == nil {
		e.loop = process.NewLoop(process.NewRunner(), process.WithLoopLogger(e.logger))
	}
	return e
}

// Result is the outcome of a pipeline run.
type Result struct {
	Run *domain.Run
	// Outputs holds the values bound to the pipeline outputs.
	Outputs domain.Outputs
}

// nodeState tracks one node during a run.
type nodeState struct {
	done    chan struct{}
	status  domain.StageStatus
	outputs domain.Outputs
}

// run is the state of a single Run call.
type run struct {
	*Engine
	graph  *dsl.Graph
	inputs domain.Inputs
	record *domain.Run
	env    stages.Env
	slots  chan struct{}

	mu      sync.Mutex
	nodes   map[string]*nodeState
	records map[string]domain.StageRecord
	errs    map[string]error
}

// Run executes g with the given pipeline inputs. An empty runID gets a fresh UUID.
// The returned error joins the errors of every failed node.
func (e *Engine) Run(ctx context.Context, g *dsl.Graph, inputs domain.Inputs, runID string) (*Result, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	for _, name := range g.Inputs {
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("pipeline %s: missing input %q", g.Name, name)
		}
	}

	r := &run{
		Engine: e,
		graph:  g,
		inputs: inputs,
		record: &domain.Run{ID: runID, Pipeline: g.Name, StartedAt: time.Now().UTC()},
		env: stages.Env{
			Loop:    e.loop,
			WorkDir: e.workDir,
			RunID:   runID,
			Index:   -1,
			Locker:  e.locker,
			Logger:  e.logger,
		},
		slots:   make(chan struct{}, e.workers),
		nodes:   make(map[string]*nodeState, len(g.Nodes)),
		records: make(map[string]domain.StageRecord, len(g.Nodes)),
		errs:    make(map[string]error),
	}
	for id := range g.Nodes {
		r.nodes[id] = &nodeState{done: make(chan struct{})}
	}

	if e.store != nil {
		if err := e.store.Begin(ctx, r.record); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}
	e.logger.Info("pipeline started", "pipeline", g.Name, "run_id", runID, "nodes", len(g.Order))

	// Node goroutines only wait on predecessors; execution slots bound the actual work.
	var group errgroup.Group
	for _, id := range g.Order {
		id := id
		group.Go(func() error {
			r.visit(ctx, id)
			return nil
		})
	}
	_ = group.Wait()

	res := &Result{Run: r.record, Outputs: r.pipelineOutputs()}
	var errs []error
	for _, id := range g.Order {
		res.Run.Stages = append(res.Run.Stages, r.records[id])
		if err := r.errs[id]; err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", id, err))
		}
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	err := errors.Join(errs...)
	if err != nil {
		e.logger.Error("pipeline failed", "pipeline", g.Name, "run_id", runID, "error", err)
	} else {
		e.logger.Info("pipeline finished", "pipeline", g.Name, "run_id", runID)
	}
	return res, err
}

func (r *run) visit(ctx context.Context, id string) {
	state := r.nodes[id]
	defer close(state.done)

	for _, e := range r.graph.Incoming(id) {
		if e.From == dsl.InputNode {
			continue
		}
		pred := r.nodes[e.From]
		<-pred.done
		if pred.status != domain.StageSucceeded {
			r.skip(ctx, id, fmt.Sprintf("upstream node %s %s", e.From, pred.status))
			return
		}
	}
	if err := ctx.Err(); err != nil {
		r.skip(ctx, id, err.Error())
		return
	}

	node := r.graph.Nodes[id]
	in := r.gather(id)
	start := time.Now().UTC()
	r.emit(ctx, r.hooks.OnStageStart, &domain.StageEvent{Timestamp: start, Type: domain.EventStageStart, RunID: r.record.ID, Node: id, Index: -1})
	r.logger.Info("stage started", "node", id, "stage", node.Stage.Name())

	attemptCtx, attempts := domain.WithAttemptCounter(ctx)
	var (
		out domain.Outputs
		err error
	)
	if node.Mapped() {
		out, err = r.executeMapped(attemptCtx, node, in)
	} else {
		out, err = r.execute(attemptCtx, node, in, -1)
	}
	finish := time.Now().UTC()

	rec := domain.StageRecord{
		RunID:      r.record.ID,
		Node:       id,
		Outputs:    out,
		Attempts:   int(attempts.Load()),
		StartedAt:  start,
		FinishedAt: finish,
	}
	if err != nil {
		rec.Status = domain.StageFailed
		rec.Error = err.Error()
		rec.Outputs = nil
		r.logger.Error("stage failed", "node", id, "error", err)
	} else {
		rec.Status = domain.StageSucceeded
		r.logger.Info("stage finished", "node", id, "duration", finish.Sub(start))
	}
	state.status = rec.Status
	state.outputs = rec.Outputs
	r.finish(ctx, rec, err)
	r.emit(ctx, r.hooks.OnStageFinish, &domain.StageEvent{
		Timestamp: finish, Type: domain.EventStageFinish, RunID: r.record.ID,
		Node: id, Index: -1, Duration: finish.Sub(start), Err: err,
	})
}

// execute runs one stage invocation inside an execution slot.
func (r *run) execute(ctx context.Context, node *dsl.Node, in domain.Inputs, index int) (domain.Outputs, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.slots }()

	ctx = stages.WithEnv(ctx, r.env.ForNode(node.ID, index))
	return node.Stage.Execute(ctx, in)
}

// executeMapped runs the stage once per element of the iterated input and collects every
// output as a list in item order.
func (r *run) executeMapped(ctx context.Context, node *dsl.Node, in domain.Inputs) (domain.Outputs, error) {
	items := in.Paths(node.MapOver)
	results := make([]domain.Outputs, len(items))

	var group errgroup.Group
	group.SetLimit(r.workers)
	for i, item := range items {
		i, item := i, item
		itemIn := make(domain.Inputs, len(in))
		for k, v := range in {
			itemIn[k] = v
		}
		itemIn[node.MapOver] = item

		group.Go(func() error {
			out, err := r.execute(ctx, node, itemIn, i)
			if err != nil {
				return fmt.Errorf("item %d (%s): %w", i, item, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := make(domain.Outputs)
	for _, name := range node.Stage.Ports().Outputs {
		var paths []string
		for _, out := range results {
			switch v := out[name].(type) {
			case string:
				paths = append(paths, v)
			case []string:
				paths = append(paths, v...)
			}
		}
		if paths != nil {
			merged[name] = paths
		}
	}
	return merged, nil
}

// gather builds the inputs of node id from static values, pipeline inputs and the outputs
// of its predecessors. Outputs a predecessor did not produce stay unbound.
func (r *run) gather(id string) domain.Inputs {
	node := r.graph.Nodes[id]
	in := make(domain.Inputs, len(node.Static))
	for k, v := range node.Static {
		in[k] = v
	}
	for _, e := range r.graph.Incoming(id) {
		if v, ok := r.value(e); ok {
			in[e.Input] = v
		}
	}
	return in
}

func (r *run) value(e dsl.Edge) (any, bool) {
	if e.From == dsl.InputNode {
		v, ok := r.inputs[e.Output]
		return v, ok
	}
	v, ok := r.nodes[e.From].outputs[e.Output]
	return v, ok
}

func (r *run) pipelineOutputs() domain.Outputs {
	out := make(domain.Outputs)
	for _, e := range r.graph.Incoming(dsl.OutputNode) {
		if e.From != dsl.InputNode && r.nodes[e.From].status != domain.StageSucceeded {
			continue
		}
		if v, ok := r.value(e); ok {
			out[e.Input] = v
		}
	}
	return out
}

func (r *run) skip(ctx context.Context, id, reason string) {
	now := time.Now().UTC()
	r.nodes[id].status = domain.StageSkipped
	r.logger.Warn("stage skipped", "node", id, "reason", reason)
	r.finish(ctx, domain.StageRecord{
		RunID:      r.record.ID,
		Node:       id,
		Status:     domain.StageSkipped,
		Error:      reason,
		StartedAt:  now,
		FinishedAt: now,
	}, nil)
	r.emit(ctx, r.hooks.OnStageSkip, &domain.StageEvent{Timestamp: now, Type: domain.EventStageSkip, RunID: r.record.ID, Node: id, Index: -1})
}

func (r *run) finish(ctx context.Context, rec domain.StageRecord, err error) {
	r.mu.Lock()
	r.records[rec.Node] = rec
	if err != nil {
		r.errs[rec.Node] = err
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Record(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Warn("failed to record stage", "node", rec.Node, "error", err)
		}
	}
}

func (r *run) emit(ctx context.Context, hook func(context.Context, *domain.StageEvent), ev *domain.StageEvent) {
	if hook != nil {
		hook(ctx, ev)
	}
}
