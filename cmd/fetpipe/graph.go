package main

import (
	"github.com/aretw0/fetpipe/internal/cli"
	"github.com/aretw0/fetpipe/pkg/pipelines"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [pipeline]",
	Short: "Export the pipeline graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of a pipeline. With --run-id, the stage outcomes
of a stored run are painted on the graph.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline := pipelines.NameNiftyMIC
		if len(args) > 0 {
			pipeline = args[0]
		}
		runID, _ := cmd.Flags().GetString("run-id")
		return cli.RenderGraph(cmd.Context(), configPath(cmd), overrides(cmd), pipeline, runID, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("run-id", "", "Overlay the outcome of a stored run")
}
