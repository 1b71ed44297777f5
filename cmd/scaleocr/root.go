package main

import (
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
)

var (
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "scaleocr",
	Short: "Read the number shown on a scale or gauge display",
	Long: `scaleocr runs the same recognition cascade as the worker on a local image
and prints the accepted value.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetLevel("debug")
		} else {
			logging.SetLevel("warn")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every strategy attempt")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
