package stages

import (
	"context"
	"fmt"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/staging"
)

// invocation describes one tool launch for a prepared staging area.
type invocation struct {
	contract        staging.Contract
	entrypoint      []string
	imageEntrypoint bool
	threads         int
	args            func(a *staging.Area) ([]process.Token, error)
}

// runContainer is the shared validate, stage, build and verify routine.
func runContainer(ctx context.Context, name string, c Container, inputs schema.Schema, in domain.Inputs, inv invocation) (domain.Outputs, error) {
	if err := schema.Validate(inputs, in); err != nil {
		return nil, fmt.Errorf("%s: invalid inputs: %w", name, err)
	}

	call := process.Invocation{
		Mode:            c.Mode,
		PreCommand:      c.PreCommand,
		Image:           c.Image,
		Entrypoint:      inv.entrypoint,
		ImageEntrypoint: inv.imageEntrypoint,
		Threads:         inv.threads,
	}
	// An unusable pre-command must fail before anything touches the disk.
	if _, err := call.ResolvedMode(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	env := EnvFrom(ctx)
	node := env.Node
	if node == "" {
		node = name
	}
	root := staging.Root(env.WorkDir, env.RunID, node, env.Index)
	logger := env.Logger.With("stage", name, "node", node)

	if env.Locker != nil {
		unlock, err := env.Locker.Lock(ctx, root, env.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("%s: lock staging root: %w", name, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release staging lock", "root", root, "error", err)
			}
		}()
	}

	area, err := staging.Stage(root, in, inv.contract)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	logger.Debug("inputs staged", "root", area.Root)

	args, err := inv.args(area)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	call.Args = args

	cmd, err := process.Build(call, area.Root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	expected, err := area.Expected()
	if err != nil {
		return nil, err
	}
	if _, err := env.Loop.RunUntilArtifact(ctx, node, cmd, expected); err != nil {
		return nil, err
	}
	return area.Outputs()
}

// inputTokens renders every file of port as staged by placement template.
func inputTokens(a *staging.Area, in domain.Inputs, port, template string) []process.Token {
	files := in.Paths(port)
	tokens := make([]process.Token, 0, len(files))
	for _, f := range files {
		tokens = append(tokens, process.Input(f, a.Rel(template, f)))
	}
	return tokens
}

// outputTokens renders every resolved path of a declared output.
func outputTokens(a *staging.Area, output string) ([]process.Token, error) {
	paths, err := a.Resolve(output)
	if err != nil {
		return nil, err
	}
	tokens := make([]process.Token, 0, len(paths))
	for _, p := range paths {
		tokens = append(tokens, process.HostPath(p))
	}
	return tokens, nil
}

// threadsOf returns the thread count handed to the tool. Zero leaves the choice to the tool.
func threadsOf(in domain.Inputs, c Container) int {
	if n := in.Int("threads", c.Threads); n > 0 {
		return n
	}
	return 0
}
