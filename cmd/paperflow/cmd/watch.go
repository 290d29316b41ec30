package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"paperflow/internal/application/pipeline"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process new and changed PDFs in the papers folder",
	Long: `Process every PDF in the papers folder through conversion, summary and
indexing, then keep watching for new or changed files.

With --once the existing backlog is processed, including retries of
transient failures, and the command exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := os.MkdirAll(cfg.Paths.Papers, 0o755); err != nil {
			return fmt.Errorf("failed to create papers directory: %w", err)
		}
		ledger, err := deps.Ledger(ctx)
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}
		summarizer, err := deps.Summarizer(ctx)
		if err != nil {
			return err
		}
		indexer, err := deps.Indexer(ctx)
		if err != nil {
			return err
		}
		conv, err := deps.Converter()
		if err != nil {
			return err
		}

		p := cfg.Pipeline
		orch := pipeline.NewOrchestrator(ledger, store, conv, summarizer, indexer,
			pipeline.WithRetryPolicy(pipeline.RetryPolicy{MaxAttempts: p.MaxAttempts, Base: p.BackoffBase}),
			pipeline.WithTimeouts(pipeline.Timeouts{
				Convert:   cfg.Converter.Timeout,
				Summarize: cfg.Summarizer.Timeout,
				Index:     cfg.Indexer.Timeout,
			}),
			pipeline.WithLogger(slog.Default()),
		)
		watcher := pipeline.NewWatcher(cfg.Paths.Papers, p.Debounce, ledger, p.ProcessExisting)
		dispatcher := pipeline.NewDispatcher(orch, watcher, ledger, pipeline.DispatcherConfig{
			Workers:       p.Workers,
			SweepInterval: p.SweepInterval,
			ShutdownGrace: p.ShutdownGrace,
			Once:          watchOnce,
		})

		slog.Info("Starting pipeline.",
			"papers", cfg.Paths.Papers,
			"converter", conv.Name(),
			"summarizer", cfg.Summarizer.Backend,
			"indexer", cfg.Indexer.Backend,
			"ledger", cfg.Ledger.Backend,
		)
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "process the existing backlog and exit")
	rootCmd.AddCommand(watchCmd)
}
