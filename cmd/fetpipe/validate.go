package main

import (
	"github.com/aretw0/fetpipe/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the parameter file",
	Long:  `Loads the parameter file, resolves the execution mode and assembles every pipeline with it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ValidateParams(configPath(cmd), overrides(cmd), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
