package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ExitStatus is what a single tool launch reports. It is diagnostic data only.
type ExitStatus struct {
	Code      int   // process exit code, -1 when killed or never started
	Err       error // error returned by the process wait, if any
	LaunchErr error // non-nil when the executable could not be started at all
	Duration  time.Duration
	Output    string // tail of combined stdout/stderr
	StopErr   error  // failure to kill the container of a cancelled attempt
}

// Executor launches a command once and waits for it.
type Executor interface {
	Execute(ctx context.Context, cmd Command) ExitStatus
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, cmd Command) ExitStatus

func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) ExitStatus { return f(ctx, cmd) }

// Runner executes commands as local processes.
type Runner struct {
	grace       time.Duration
	stopTimeout time.Duration
	output      io.Writer
	tailSize    int
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithGracePeriod sets how long a cancelled process may take to exit after SIGINT
// before it is killed.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithStopTimeout bounds how long killing the container of a cancelled attempt may take.
func WithStopTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.stopTimeout = d
	}
}

// WithOutput forwards the tool's stdout and stderr to w.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.output = w
	}
}

// WithTailSize sets how many trailing bytes of output are kept in ExitStatus.Output.
func WithTailSize(n int) RunnerOption {
	return func(r *Runner) {
		r.tailSize = n
	}
}

// NewRunner creates a new process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		grace:       5 * time.Second,
		stopTimeout: 30 * time.Second,
		output:      io.Discard,
		tailSize:    4096,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs cmd to completion. A done context interrupts the process group and kills
// it once the grace period has elapsed; the container of a docker command is killed too,
// before Execute returns.
func (r *Runner) Execute(ctx context.Context, c Command) ExitStatus {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	tail := &tailBuffer{max: r.tailSize}
	out := io.MultiWriter(tail, r.output)
	cmd.Stdout = out
	cmd.Stderr = out
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return interruptGroup(cmd.Process)
	}
	cmd.WaitDelay = r.grace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExitStatus{Code: -1, Err: err, LaunchErr: err}
	}
	err := cmd.Wait()

	status := ExitStatus{Err: err}
	if ctx.Err() != nil {
		killGroup(cmd.Process)
		status.StopErr = r.stop(c)
	}
	status.Duration = time.Since(start)
	status.Output = tail.String()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		status.Code = 0
	case errors.As(err, &exitErr):
		status.Code = exitErr.ExitCode()
	default:
		status.Code = -1
	}
	return status
}

// stop kills the container left behind by a cancelled docker client.
func (r *Runner) stop(c Command) error {
	if len(c.Stop) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.Stop[0], c.Stop[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(c.Stop, " "), err, bytes.TrimSpace(out))
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; t.max > 0 && over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
