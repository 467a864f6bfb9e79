package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lectern-ai/lectern/internal/app"
	"github.com/lectern-ai/lectern/internal/config"
)

var flagClear bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Load course documents into the knowledge store",
	Long: `Ingest parses every .txt and .md course document in the given folder
(or the configured docs_dir), chunks the lesson content, and stores the
embeddings in PostgreSQL. Courses already in the catalog are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return runIngest(dir)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&flagClear, "clear", false, "delete all existing course data first")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dir == "" {
		dir = cfg.DocsDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	res, err := a.Loader.LoadDirectory(ctx, dir, flagClear)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}

	fmt.Printf("Ingested %d course(s) (%d chunk(s)), skipped %d, failed %d in %s\n",
		res.CoursesAdded, res.ChunksAdded, res.CoursesSkipped, res.Failed, res.Duration.Round(10*time.Millisecond))
	return nil
}
