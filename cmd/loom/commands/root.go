// Package commands provides the CLI commands for the loom agent runtime.
package commands

import (
	"os"

	"github.com/loomwork/loom/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs bool
	logLevel  string
	logFile   bool
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom - an autonomous agent runtime",
	Long: `loom hosts conversational, tool-using agents on top of a small
concurrency core: spawn an agent, stream its turns, answer its
permission prompts, and let it spin up subagents of its own.

Run 'loom run' to start an interactive session.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "write logs to a timestamped file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
