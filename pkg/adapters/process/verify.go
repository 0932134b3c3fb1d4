package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/fetpipe/internal/logging"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/cenkalti/backoff/v4"
)

// Outcome is the verdict on one attempt, derived from the filesystem.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify decides what an attempt means. Artifacts on disk win over any exit status;
// a cancelled run or a tool that cannot even be launched is fatal; anything else
// (non-zero exit, crash, per-attempt timeout) is worth another try.
func Classify(ctx context.Context, status ExitStatus, missing []string) Outcome {
	switch {
	case len(missing) == 0:
		return OutcomeSuccess
	case ctx.Err() != nil:
		return OutcomeFatal
	case status.LaunchErr != nil:
		return OutcomeFatal
	default:
		return OutcomeRetry
	}
}

// Missing returns the paths that do not exist yet.
func Missing(paths []string) []string {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	return missing
}

// Attempt describes one finished tool launch.
type Attempt struct {
	Stage    string
	Number   int
	MaxTries int
	Status   ExitStatus
	Outcome  Outcome
	Missing  []string
}

// Observer is notified after every attempt.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// Result summarises a verification loop.
type Result struct {
	Attempts int
	Exits    []ExitStatus
	Paths    []string
}

// Loop re-executes a command until its artifacts appear.
type Loop struct {
	executor       Executor
	maxTries       int
	attemptTimeout time.Duration
	logger         *slog.Logger
	observers      []Observer
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxTries sets the attempt budget. Values below 1 keep the default.
func WithMaxTries(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxTries = n
		}
	}
}

// WithAttemptTimeout bounds every single attempt; a timed-out attempt is retried.
func WithAttemptTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.attemptTimeout = d
	}
}

// WithLoopLogger sets the logger used to report attempts.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver registers an attempt observer.
func WithObserver(o Observer) LoopOption {
	return func(l *Loop) {
		l.observers = append(l.observers, o)
	}
}

// NewLoop creates a verification loop around executor.
func NewLoop(executor Executor, opts ...LoopOption) *Loop {
	l := &Loop{
		executor: executor,
		maxTries: domain.DefaultMaxTries,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxTries returns the attempt budget.
func (l *Loop) MaxTries() int { return l.maxTries }

var errArtifactsMissing = errors.New("expected artifacts missing")

// retryState is owned by a single RunUntilArtifact call.
type retryState struct {
	attempt  int
	maxTries int
	expected []string
	missing  []string
}

// RunUntilArtifact executes cmd until every expected path exists, at most MaxTries times.
// When the artifacts already exist nothing is executed.
func (l *Loop) RunUntilArtifact(ctx context.Context, stage string, cmd Command, expected []string) (Result, error) {
	state := &retryState{maxTries: l.maxTries, expected: expected}
	res := Result{}

	if state.missing = Missing(expected); len(state.missing) == 0 {
		l.logger.Info("artifacts already present, skipping execution", "stage", stage)
		res.Paths = expected
		return res, nil
	}

	op := func() error {
		state.attempt++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if l.attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, l.attemptTimeout)
		}
		defer cancel()

		run := cmd.ForAttempt(state.attempt)
		l.logger.Info("running tool",
			"stage", stage,
			"attempt", state.attempt,
			"max_tries", state.maxTries,
			"cmd", run.String(),
		)
		domain.CountAttempt(ctx)
		status := l.executor.Execute(attemptCtx, run)
		if status.StopErr != nil {
			l.logger.Debug("container of cancelled attempt not killed", "stage", stage, "container", run.Container, "error", status.StopErr)
		}
		res.Exits = append(res.Exits, status)

		state.missing = Missing(state.expected)
		outcome := Classify(ctx, status, state.missing)

		attempt := Attempt{
			Stage:    stage,
			Number:   state.attempt,
			MaxTries: state.maxTries,
			Status:   status,
			Outcome:  outcome,
			Missing:  state.missing,
		}
		for _, o := range l.observers {
			o.ObserveAttempt(ctx, attempt)
		}

		switch outcome {
		case OutcomeSuccess:
			if status.Code != 0 {
				l.logger.Debug("tool exited non-zero but produced its artifacts",
					"stage", stage, "exit_code", status.Code)
			}
			return nil
		case OutcomeFatal:
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(fmt.Errorf("stage %s: cannot launch %s: %w", stage, cmd.Name, status.LaunchErr))
		default:
			l.logger.Warn("expected artifacts missing after attempt",
				"stage", stage,
				"attempt", state.attempt,
				"exit_code", status.Code,
				"missing", len(state.missing),
				"error", status.Err,
			)
			return errArtifactsMissing
		}
	}

	// Each attempt re-runs a long tool, so no delay is added between attempts.
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(state.maxTries-1)), ctx)
	err := backoff.Retry(op, b)
	res.Attempts = state.attempt

	switch {
	case err == nil:
		res.Paths = expected
		return res, nil
	case errors.Is(err, errArtifactsMissing):
		return res, &domain.ArtifactNotProducedError{
			Stage:    stage,
			Attempts: state.attempt,
			Missing:  state.missing,
		}
	default:
		return res, err
	}
}
