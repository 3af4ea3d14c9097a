// Package cmd provides the command-line interface for vcrouterctl.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vcrouterctl",
	Short: "vcrouterctl inspects and dry-runs vcrouter network configurations.",
	Long: `vcrouterctl inspects and dry-runs vcrouter network configurations. ` +
		`It currently provides config validation (validate) and single-decision ` +
		`routing dry-runs (route).`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
