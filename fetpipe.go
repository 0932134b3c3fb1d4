package fetpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/fetpipe/internal/engine"
	"github.com/aretw0/fetpipe/internal/logging"
	"github.com/aretw0/fetpipe/pkg/adapters/file"
	"github.com/aretw0/fetpipe/pkg/adapters/memory"
	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/adapters/redis"
	"github.com/aretw0/fetpipe/pkg/config"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/dsl"
	"github.com/aretw0/fetpipe/pkg/observability"
	"github.com/aretw0/fetpipe/pkg/persistence/middleware"
	"github.com/aretw0/fetpipe/pkg/pipelines"
	"github.com/aretw0/fetpipe/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Version is the release of the module.
const Version = "0.4.0"

// Result is the outcome of a pipeline run.
type Result = engine.Result

// Engine is the high-level entry point: it builds pipelines from a parameter set and runs
// them against the configured run store.
type Engine struct {
	params   *config.Params
	engine   *engine.Engine
	store    ports.RunStore
	locker   ports.DistributedLocker
	executor process.Executor
	metrics  *observability.Metrics
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	closers  []func() error
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMetrics records attempts and stage outcomes in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStore overrides the run store selected by the parameters.
func WithStore(store ports.RunStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker overrides the staging-root locker selected by the parameters.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithExecutor replaces the process runner that launches tools.
func WithExecutor(executor process.Executor) Option {
	return func(e *Engine) {
		e.executor = executor
	}
}

// New initializes an Engine for params. A nil params uses config.Default().
func New(params *config.Params, opts ...Option) (*Engine, error) {
	if params == nil {
		params = config.Default()
	}
	eng := &Engine{params: params}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if err := eng.openBackends(); err != nil {
		return nil, err
	}

	if eng.executor == nil {
		eng.executor = process.NewRunner()
	}
	loopOpts := []process.LoopOption{
		process.WithMaxTries(params.General.MaxTries),
		process.WithAttemptTimeout(params.General.AttemptTimeout),
		process.WithLoopLogger(eng.logger),
	}
	hooks := eng.hooks
	if eng.metrics != nil {
		loopOpts = append(loopOpts, process.WithObserver(eng.metrics))
		hooks = domain.ChainHooks(eng.metrics.Hooks(), eng.hooks)
	}

	engineOpts := []engine.Option{
		engine.WithWorkers(params.Runtime.Workers),
		engine.WithWorkDir(params.Runtime.WorkDir),
		engine.WithLoop(process.NewLoop(eng.executor, loopOpts...)),
		engine.WithStore(eng.store),
		engine.WithLifecycleHooks(hooks),
		engine.WithLogger(eng.logger),
	}
	if eng.locker != nil {
		engineOpts = append(engineOpts, engine.WithLocker(eng.locker))
	}
	eng.engine = engine.New(engineOpts...)
	return eng, nil
}

// openBackends selects the run store and the locker from the runtime parameters,
// keeping any injected through options. Records are sealed when an encryption key is configured.
func (e *Engine) openBackends() error {
	rt := e.params.Runtime

	var client *backend.Client
	if rt.Store == config.StoreRedis && (e.store == nil || (rt.Lock && e.locker == nil)) {
		client = backend.NewClient(&backend.Options{Addr: rt.RedisAddr})
		e.closers = append(e.closers, client.Close)
	}

	if e.store == nil {
		switch rt.Store {
		case config.StoreMemory:
			e.store = memory.NewStore()
		case config.StoreFile:
			e.store = file.New(rt.StorePath)
		case config.StoreRedis:
			e.store = redis.NewFromClient(client)
		default:
			return fmt.Errorf("runtime.store: unknown backend %q", rt.Store)
		}
	}

	if rt.EncryptionKeyEnv != "" {
		key, err := middleware.ParseKey(os.Getenv(rt.EncryptionKeyEnv))
		if err != nil {
			return fmt.Errorf("runtime.encryption_key_env %s: %w", rt.EncryptionKeyEnv, err)
		}
		e.store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})(e.store)
	}

	if rt.Lock && e.locker == nil {
		if client != nil {
			e.locker = redis.NewLocker(client, "fetpipe:")
		} else {
			e.locker = memory.NewLocker()
		}
	}
	return nil
}

// Params returns the parameters the engine was built with.
func (e *Engine) Params() *config.Params { return e.params }

// Store returns the run store.
func (e *Engine) Store() ports.RunStore { return e.store }

// Graph assembles the named pipeline.
func (e *Engine) Graph(pipeline string) (*dsl.Graph, error) {
	return pipelines.Build(pipeline, e.params)
}

// Run executes the named pipeline. An empty runID gets a fresh UUID. A gestational age
// configured under segmentation fills the pipeline input when the caller leaves it unset.
func (e *Engine) Run(ctx context.Context, pipeline string, inputs domain.Inputs, runID string) (*Result, error) {
	g, err := e.Graph(pipeline)
	if err != nil {
		return nil, err
	}

	in := make(domain.Inputs, len(inputs)+1)
	for k, v := range inputs {
		in[k] = v
	}
	for _, name := range g.Inputs {
		if _, ok := in[name]; ok {
			continue
		}
		if name == pipelines.InputGestationalAge && e.params.Segmentation.GestationalAge > 0 {
			in[name] = e.params.Segmentation.GestationalAge
		}
	}
	return e.engine.Run(ctx, g, in, runID)
}

// Close releases the backend connections.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
