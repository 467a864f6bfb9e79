// Package cmd implements the lectern CLI.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lectern-ai/lectern/internal/log"
)

var (
	flagVerbose bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Lectern - course material assistant",
	Long: `Lectern answers questions about your course materials.

It ingests course documents into a PostgreSQL vector store and serves a
retrieval-augmented chat API backed by Gemini. Point it at a folder of
course scripts, run 'lectern ingest', then 'lectern serve'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "log in JSON format")
}

// newLogger builds the process logger from the global flags.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, log.Config{
		Level: level,
		JSON:  flagJSONLog,
	})
}
