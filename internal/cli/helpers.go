package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/fetpipe/internal/logging"
	"github.com/aretw0/fetpipe/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger. Logs go to Stderr so that reports and
// graph exports on Stdout stay clean.
func createLogger(level, format string, quiet bool) *slog.Logger {
	if quiet {
		return logging.NewNop()
	}
	return logging.NewWithFormat(os.Stderr, logging.ParseLevel(level), format)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageStart: func(ctx context.Context, e *domain.StageEvent) {
			logger.Debug("Enter Stage", "run_id", e.RunID, "node", e.Node)
		},
		OnStageFinish: func(ctx context.Context, e *domain.StageEvent) {
			if e.Err != nil {
				logger.Debug("Leave Stage (Error)", "run_id", e.RunID, "node", e.Node, "err", e.Err)
			} else {
				logger.Debug("Leave Stage (Success)", "run_id", e.RunID, "node", e.Node, "duration", e.Duration)
			}
		},
		OnStageSkip: func(ctx context.Context, e *domain.StageEvent) {
			logger.Debug("Skip Stage", "run_id", e.RunID, "node", e.Node)
		},
	}
}

func isInterrupted(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// logCompletion reports how a run ended.
func logCompletion(w io.Writer, runID string, err error, sig os.Signal) {
	switch {
	case err == nil:
		printSystemMessage(w, "Run '%s' finished.", runID)
	case isInterrupted(err) && sig == os.Interrupt:
		fmt.Fprintf(w, "[CTRL+C]\n")
		printSystemMessage(w, "Run '%s' interrupted; re-run with --run-id %s to resume.", runID, runID)
	case isInterrupted(err) && sig != nil:
		printSystemMessage(w, "Run '%s' terminated; re-run with --run-id %s to resume.", runID, runID)
	default:
		printSystemMessage(w, "Run '%s' failed.", runID)
	}
}
