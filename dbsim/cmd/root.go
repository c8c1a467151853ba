// Package cmd provides the command-line interface of dbsim.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dbsim",
	Short: "dbsim simulates the datablock memory of a controller.",
	Long: `dbsim simulates the datablock memory of a controller. It keeps a set ` +
		`of byte-addressed datablocks, exposes them to an area engine and an ` +
		`HTTP API, and persists them across restarts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
