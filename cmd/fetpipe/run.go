package main

import (
	"github.com/aretw0/fetpipe/internal/cli"
	"github.com/aretw0/fetpipe/internal/presentation/tui"
	"github.com/aretw0/fetpipe/pkg/pipelines"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [stacks...]",
	Short: "Run a pipeline on a set of T2-weighted stacks",
	Long: `Runs a pipeline on the given stacks. Every stage works in its own staging root under
the work directory, so re-running with the same --run-id skips the stages whose outputs
already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		pipeline, _ := flags.GetString("pipeline")
		stacks, _ := flags.GetStringSlice("stacks")
		age, _ := flags.GetFloat64("ga")
		runID, _ := flags.GetString("run-id")
		statusAddr, _ := flags.GetString("status-addr")
		workers, _ := flags.GetInt("workers")
		maxTries, _ := flags.GetInt("max-tries")
		quiet, _ := flags.GetBool("quiet")
		logLevel, _ := flags.GetString("log-level")
		logFormat, _ := flags.GetString("log-format")

		if !quiet && tui.IsTerminal(cmd.OutOrStdout()) {
			tui.PrintBanner(cmd.OutOrStdout())
		}

		o := overrides(cmd)
		o.Workers = workers
		o.MaxTries = maxTries
		return cli.Execute(cmd.Context(), cli.RunOptions{
			ConfigPath:     configPath(cmd),
			Overrides:      o,
			Pipeline:       pipeline,
			Stacks:         append(stacks, args...),
			GestationalAge: age,
			RunID:          runID,
			StatusAddr:     statusAddr,
			LogLevel:       logLevel,
			LogFormat:      logFormat,
			Quiet:          quiet,
			Stdout:         cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringP("pipeline", "p", pipelines.NameNiftyMIC, "Pipeline to run")
	flags.StringSlice("stacks", nil, "Input stacks (comma separated or repeated)")
	flags.Float64("ga", 0, "Gestational age in weeks (dHCP segmentation)")
	flags.String("run-id", "", "Run identifier; reuse one to resume a run")
	flags.String("status-addr", "", "Serve /metrics, /runs and /events on this address during the run")
	flags.Int("workers", 0, "Maximum number of stages running at once")
	flags.Int("max-tries", 0, "Launches per stage before giving up")
	flags.BoolP("quiet", "q", false, "Only print the run report")
}
