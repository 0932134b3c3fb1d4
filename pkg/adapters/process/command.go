package process

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/google/uuid"
)

// Mode selects how a tool is launched.
type Mode string

const (
	ModeDirect      Mode = "direct"
	ModeDocker      Mode = "docker"
	ModeSingularity Mode = "singularity"
)

// ResolveMode maps a pre-command to a container engine by keyword.
func ResolveMode(preCommand string) (Mode, error) {
	switch {
	case strings.Contains(preCommand, "docker"):
		return ModeDocker, nil
	case strings.Contains(preCommand, "singularity"):
		return ModeSingularity, nil
	default:
		return "", &domain.UnsupportedModeError{PreCommand: preCommand}
	}
}

// Invocation describes how to launch a tool. It is built fresh for every run.
type Invocation struct {
	// Mode forces direct execution when set to ModeDirect; otherwise the mode is
	// derived from PreCommand.
	Mode       Mode
	PreCommand string
	Image      string
	Entrypoint []string
	// ImageEntrypoint makes docker rely on the image's own ENTRYPOINT.
	ImageEntrypoint bool
	Args            []Token
	// Threads, when positive, is exported to the tool as its thread budget.
	Threads int
}

// ResolvedMode returns the execution mode of the invocation.
func (inv Invocation) ResolvedMode() (Mode, error) {
	if inv.Mode == ModeDirect {
		return ModeDirect, nil
	}
	return ResolveMode(inv.PreCommand)
}

// Command is a fully rendered command line.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // extra KEY=VALUE pairs for direct mode
	// Container is the --name given to a docker container. Stop is the argv that kills it
	// when the attempt is cancelled; killing the docker client alone leaves it running.
	Container string
	Stop      []string
}

// ContainerName derives the docker container name of a staging root. Roots are unique per
// run, node and item, so names are too.
func ContainerName(root string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+root))
	return "fetpipe-" + strings.ReplaceAll(id.String(), "-", "")[:12]
}

// ForAttempt returns a copy of c whose container name carries the attempt number, so a
// retry never races a container that is still being removed.
func (c Command) ForAttempt(n int) Command {
	if c.Container == "" {
		return c
	}
	name := fmt.Sprintf("%s-%d", c.Container, n)
	out := c
	out.Args = rename(c.Args, c.Container, name)
	out.Stop = rename(c.Stop, c.Container, name)
	out.Container = name
	return out
}

func rename(argv []string, from, to string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		if a == from {
			a = to
		}
		out[i] = a
	}
	return out
}

// Argv returns the command name followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command as a shell-readable line, for logs and tests.
func (c Command) String() string {
	argv := c.Argv()
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = quote(a)
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>*?()") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var threadVars = []string{"OMP_NUM_THREADS", "ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS"}

// Build renders an invocation for the staging root.
// Unknown pre-commands fail here, before anything is launched.
func Build(inv Invocation, root string) (Command, error) {
	mode, err := inv.ResolvedMode()
	if err != nil {
		return Command{}, err
	}
	if mode != ModeDirect && inv.Image == "" {
		return Command{}, fmt.Errorf("%s execution requires an image reference", mode)
	}

	args := make([]string, 0, len(inv.Args))
	for _, tok := range inv.Args {
		s, err := tok.render(mode, root)
		if err != nil {
			return Command{}, err
		}
		args = append(args, s)
	}

	var env []string
	if inv.Threads > 0 {
		for _, v := range threadVars {
			env = append(env, v+"="+strconv.Itoa(inv.Threads))
		}
	}

	var argv []string
	cmd := Command{Dir: root}
	switch mode {
	case ModeDirect:
		argv = append(argv, inv.Entrypoint...)
		cmd.Env = env
	case ModeDocker:
		pre := strings.Fields(inv.PreCommand)
		cmd.Container = ContainerName(root)
		cmd.Stop = append(dockerClient(pre), "kill", cmd.Container)
		argv = append(argv, pre...)
		argv = append(argv, "--name", cmd.Container)
		argv = append(argv, "-v", root+":"+ContainerDataDir)
		for _, e := range env {
			argv = append(argv, "-e", e)
		}
		argv = append(argv, inv.Image)
		if !inv.ImageEntrypoint {
			argv = append(argv, inv.Entrypoint...)
		}
	case ModeSingularity:
		argv = append(argv, strings.Fields(inv.PreCommand)...)
		argv = append(argv, "-B", root+":"+root)
		for _, e := range env {
			argv = append(argv, "--env", e)
		}
		argv = append(argv, inv.Image)
		argv = append(argv, inv.Entrypoint...)
	}
	argv = append(argv, args...)

	if len(argv) == 0 {
		return Command{}, errors.New("empty command: no entrypoint for direct execution")
	}
	cmd.Name = argv[0]
	cmd.Args = argv[1:]
	return cmd, nil
}

// dockerClient keeps the pre-command up to the docker executable ("sudo docker run" → "sudo docker").
func dockerClient(pre []string) []string {
	for i, f := range pre {
		if strings.Contains(f, "docker") {
			return append([]string(nil), pre[:i+1]...)
		}
	}
	return []string{"docker"}
}
