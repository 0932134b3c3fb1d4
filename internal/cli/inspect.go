package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/aretw0/fetpipe"
	"github.com/aretw0/fetpipe/internal/logging"
	"github.com/aretw0/fetpipe/internal/presentation/graph"
	"github.com/aretw0/fetpipe/internal/presentation/tui"
	httpAdapter "github.com/aretw0/fetpipe/pkg/adapters/http"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/observability"
	"github.com/aretw0/fetpipe/pkg/pipelines"
)

// openEngine loads the parameters only to reach the configured run store. Execution
// settings are not validated: inspecting runs needs no container engine.
func openEngine(configPath string, o Overrides) (*fetpipe.Engine, error) {
	o.Mode = "direct"
	params, err := loadParams(configPath, o)
	if err != nil {
		return nil, err
	}
	return createEngine(params, logging.NewNop(), false, nil, domain.LifecycleHooks{}, nil)
}

// ValidateParams checks the parameter file and assembles every pipeline with it.
func ValidateParams(configPath string, o Overrides, w io.Writer) error {
	params, err := loadParams(configPath, o)
	if err != nil {
		return err
	}
	mode, err := params.ExecutionMode()
	if err != nil {
		return err
	}
	for _, key := range params.Unused {
		fmt.Fprintf(w, "warning: unknown parameter %q is ignored\n", key)
	}
	for _, name := range pipelines.Names() {
		g, err := pipelines.Build(name, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-14s %d stages\n", g.Name, len(g.Order))
	}
	fmt.Fprintf(w, "Parameters are valid (execution mode: %s)\n", mode)
	return nil
}

// RenderGraph writes the Mermaid diagram of a pipeline. With a runID, the stage outcomes
// of that run are painted on it and the pipeline is taken from the run.
func RenderGraph(ctx context.Context, configPath string, o Overrides, pipeline, runID string, w io.Writer) error {
	engine, err := openEngine(configPath, o)
	if err != nil {
		return err
	}
	defer engine.Close()

	var overlay *graph.Overlay
	if runID != "" {
		run, err := engine.Store().Load(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", runID, err)
		}
		pipeline = run.Pipeline
		overlay = graph.OverlayFromRun(run)
	}

	g, err := engine.Graph(pipeline)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, graph.GenerateMermaid(g, overlay))
	return err
}

// ListRuns prints one line per stored run, most recent first.
func ListRuns(ctx context.Context, configPath string, o Overrides, w io.Writer) error {
	engine, err := openEngine(configPath, o)
	if err != nil {
		return err
	}
	defer engine.Close()

	ids, err := engine.Store().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]*domain.Run, 0, len(ids))
	for _, id := range ids {
		run, err := engine.Store().Load(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrRunNotFound) {
				continue
			}
			return err
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPIPELINE\tSTARTED\tSTAGES\tSTATUS")
	for _, run := range runs {
		status := domain.StageSucceeded
		if run.Failed() {
			status = domain.StageFailed
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			run.ID, run.Pipeline, run.StartedAt.Local().Format(time.DateTime), len(run.Stages), tui.Status(status))
	}
	return tw.Flush()
}

// ShowRun prints the report of a stored run as markdown, or as JSON when asJSON is set.
func ShowRun(ctx context.Context, configPath string, o Overrides, runID string, asJSON bool, w io.Writer) error {
	engine, err := openEngine(configPath, o)
	if err != nil {
		return err
	}
	defer engine.Close()

	run, err := engine.Store().Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	return tui.PrintMarkdown(w, tui.RunReport(run))
}

// DeleteRun removes a stored run.
func DeleteRun(ctx context.Context, configPath string, o Overrides, runID string) error {
	engine, err := openEngine(configPath, o)
	if err != nil {
		return err
	}
	defer engine.Close()
	return engine.Store().Delete(ctx, runID)
}

// Serve exposes the stored runs over HTTP until ctx is done.
func Serve(ctx context.Context, configPath string, o Overrides, addr, logLevel, logFormat string) error {
	logger := createLogger(logLevel, logFormat, false)
	engine, err := openEngine(configPath, o)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpAdapter.NewHandler(engine.Store(), nil, observability.NewMetrics()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "error", err)
			return srv.Close()
		}
		logger.Info("status server stopped")
		return nil
	}
}
