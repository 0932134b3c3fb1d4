package stages

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/fetpipe/internal/logging"
	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/ports"
	"github.com/aretw0/fetpipe/pkg/schema"
)

// Stage is one unit of work in a pipeline.
type Stage interface {
	// Name identifies the tool the stage wraps.
	Name() string
	// Ports declares the accepted inputs and the produced outputs.
	Ports() Ports
	// Execute runs the stage and returns the path of every declared output.
	Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error)
}

// Ports is the interface of a stage as seen by the pipeline assembler.
type Ports struct {
	Inputs  schema.Schema
	Outputs []string
}

// HasInput reports whether name is a declared input.
func (p Ports) HasInput(name string) bool {
	_, ok := p.Inputs[name]
	return ok
}

// HasOutput reports whether name is a declared output.
func (p Ports) HasOutput(name string) bool {
	for _, o := range p.Outputs {
		if o == name {
			return true
		}
	}
	return false
}

// Container holds the launch settings shared by container-backed stages.
type Container struct {
	// PreCommand selects the engine ("docker run --rm ", "singularity exec ").
	PreCommand string
	Image      string
	// Mode forces direct execution when set to process.ModeDirect.
	Mode process.Mode
	// Threads is exported to the tool when positive.
	Threads int
}

// DefaultLockTTL bounds how long a crashed process can hold a staging root.
const DefaultLockTTL = 24 * time.Hour

// Env is the execution environment of a stage run.
type Env struct {
	Loop    *process.Loop
	WorkDir string
	RunID   string
	// Node is the graph node being executed; Index is the item of a mapped node, -1 otherwise.
	Node    string
	Index   int
	Locker  ports.DistributedLocker
	LockTTL time.Duration
	Logger  *slog.Logger
}

type envKey struct{}

// WithEnv attaches env to ctx.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the environment attached to ctx, filling defaults for a standalone call.
func EnvFrom(ctx context.Context) Env {
	env, ok := ctx.Value(envKey{}).(Env)
	if !ok {
		env.Index = -1
	}
	if env.Loop == nil {
		env.Loop = process.NewLoop(process.NewRunner())
	}
	if env.WorkDir == "" {
		env.WorkDir = filepath.Join(os.TempDir(), "fetpipe")
	}
	if env.RunID == "" {
		env.RunID = "standalone"
	}
	if env.LockTTL <= 0 {
		env.LockTTL = DefaultLockTTL
	}
	if env.Logger == nil {
		env.Logger = logging.NewNop()
	}
	return env
}

// ForNode returns a copy of env scoped to one node (and item index).
func (env Env) ForNode(node string, index int) Env {
	env.Node = node
	env.Index = index
	return env
}
