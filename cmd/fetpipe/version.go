package main

import (
	"fmt"

	"github.com/aretw0/fetpipe"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fetpipe",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fetpipe version %s\n", fetpipe.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
