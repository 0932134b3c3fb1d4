package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/fetpipe/internal/presentation/tui"
	httpAdapter "github.com/aretw0/fetpipe/pkg/adapters/http"
	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/observability"
	"github.com/aretw0/fetpipe/pkg/pipelines"
	"github.com/google/uuid"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ConfigPath string
	Overrides  Overrides
	Pipeline   string
	Stacks     []string
	// GestationalAge in weeks; zero falls back to segmentation.gestational_age.
	GestationalAge float64
	RunID          string
	// StatusAddr serves metrics, stored runs and live events while the run lasts.
	StatusAddr string
	LogLevel   string
	LogFormat  string
	Quiet      bool

	Executor process.Executor
	Stdout   io.Writer
}

// Execute handles the run command: it runs one pipeline and prints its report.
func Execute(ctx context.Context, opts RunOptions) error {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger := createLogger(opts.LogLevel, opts.LogFormat, opts.Quiet)

	params, err := loadParams(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	for _, key := range params.Unused {
		logger.Warn("ignoring unknown parameter", "key", key)
	}

	stacks, err := resolveStacks(opts.Stacks)
	if err != nil {
		return err
	}
	inputs := domain.Inputs{domain.PortStacks: stacks}
	if opts.GestationalAge > 0 {
		inputs[pipelines.InputGestationalAge] = opts.GestationalAge
	}

	metrics := observability.NewMetrics()
	streams := httpAdapter.NewStreamManager()
	engine, err := createEngine(params, logger, isDebug(opts.LogLevel), metrics, streams.Hooks(), opts.Executor)
	if err != nil {
		return err
	}
	defer engine.Close()

	if opts.StatusAddr != "" {
		stop := serveStatus(opts.StatusAddr, httpAdapter.NewHandler(engine.Store(), streams, metrics), logger)
		defer stop()
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	sc := NewSignalContext(ctx)
	defer sc.Cancel()

	if !opts.Quiet {
		printSystemMessage(stdout, "Run '%s' started (%s, %d stacks).", runID, opts.Pipeline, len(stacks))
	}
	res, runErr := engine.Run(sc, opts.Pipeline, inputs, runID)
	if res != nil {
		if err := tui.PrintMarkdown(stdout, tui.RunReport(res.Run)); err != nil {
			logger.Warn("failed to print report", "error", err)
		}
	}
	if !opts.Quiet {
		logCompletion(stdout, runID, runErr, sc.Signal())
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	return nil
}

func isDebug(level string) bool { return strings.EqualFold(level, "debug") }

// resolveStacks makes every stack path absolute and checks that it exists.
func resolveStacks(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one stack is required (--stacks)")
	}
	var (
		stacks []string
		errs   []error
	)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			errs = append(errs, fmt.Errorf("stack %s: %w", p, err))
			continue
		}
		stacks = append(stacks, abs)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return stacks, nil
}

// serveStatus starts an HTTP server in the background and returns its shutdown function.
func serveStatus(addr string, handler http.Handler, logger *slog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
}
