package main

import (
	"fmt"
	"os"

	"github.com/aretw0/fetpipe/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fetpipe",
	Short: "fetpipe runs fetal brain MRI reconstruction and segmentation pipelines",
	Long: `fetpipe chains containerized neuroimaging tools (NiftyMIC, NeSVoR, ANTs, dHCP) into
pipelines, re-launching each tool until the files it must produce exist.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Parameter file (.json, .yaml or .hcl)")
	flags.String("pre-command", "", "Container launch prefix, e.g. \"docker run --rm \"")
	flags.String("mode", "", "Execution mode: direct, docker or singularity")
	flags.String("workdir", "", "Directory holding the staging roots")
	flags.String("store", "", "Run store: memory, file or redis")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
}

// overrides collects the persistent flags that override the parameter file.
func overrides(cmd *cobra.Command) cli.Overrides {
	flags := cmd.Flags()
	preCommand, _ := flags.GetString("pre-command")
	mode, _ := flags.GetString("mode")
	workDir, _ := flags.GetString("workdir")
	store, _ := flags.GetString("store")
	return cli.Overrides{
		PreCommand: preCommand,
		Mode:       mode,
		WorkDir:    workDir,
		Store:      store,
	}
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
