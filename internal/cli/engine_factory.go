package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/fetpipe"
	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/config"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/observability"
)

// Overrides are command-line values that take precedence over the parameter file.
type Overrides struct {
	PreCommand string
	Mode       string
	WorkDir    string
	Store      string
	Workers    int
	MaxTries   int
}

// loadParams reads the parameter file (or the defaults when path is empty) and applies
// the overrides before validating.
func loadParams(path string, o Overrides) (*config.Params, error) {
	params := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		params = loaded
	}

	if o.PreCommand != "" {
		params.General.PreCommand = o.PreCommand
	}
	if o.Mode != "" {
		params.General.Mode = o.Mode
	}
	if o.WorkDir != "" {
		params.Runtime.WorkDir = o.WorkDir
	}
	if o.Store != "" {
		params.Runtime.Store = o.Store
	}
	if o.Workers > 0 {
		params.Runtime.Workers = o.Workers
	}
	if o.MaxTries > 0 {
		params.General.MaxTries = o.MaxTries
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return params, nil
}

// createEngine initializes an engine with standard CLI conventions.
func createEngine(params *config.Params, logger *slog.Logger, debug bool, metrics *observability.Metrics, hooks domain.LifecycleHooks, executor process.Executor) (*fetpipe.Engine, error) {
	if debug {
		hooks = domain.ChainHooks(createDebugHooks(logger), hooks)
	}
	opts := []fetpipe.Option{
		fetpipe.WithLogger(logger),
		fetpipe.WithLifecycleHooks(hooks),
	}
	if metrics != nil {
		opts = append(opts, fetpipe.WithMetrics(metrics))
	}
	if executor != nil {
		opts = append(opts, fetpipe.WithExecutor(executor))
	}

	engine, err := fetpipe.New(params, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}
