// Package main implements the daybook CLI tool.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "daybook",
	Short:        "Daybook - todos, recurring chores and tracked time",
	SilenceUsage: true,
}

var (
	globalConfigPath string
	globalStorePath  string
	globalMemory     bool
	globalVerbose    bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalConfigPath, "config", "", "Config file merged over the global config")
	flags.StringVar(&globalStorePath, "db", "", "SQLite database file (overrides store.path)")
	flags.BoolVar(&globalMemory, "memory", false, "Use an empty in-memory store")
	flags.BoolVarP(&globalVerbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.MarkFlagsMutuallyExclusive("db", "memory")
	rootCmd.SetErrPrefix("daybook:")

	cobra.OnFinalize(func() {
		_ = closeApp()
	})
}
