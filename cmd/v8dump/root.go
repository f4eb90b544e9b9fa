package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "v8dump",
	Short: "Inspect, render, and round-trip V8 structured-clone files",

	// Each invocation gets its own run ID so that output from a
	// scripted batch of v8dump calls (piped into a shared log
	// collector) can be correlated back to the file/subcommand that
	// produced it.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = log.WithField("run", uuid.NewString())
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(roundtripCmd)
}
