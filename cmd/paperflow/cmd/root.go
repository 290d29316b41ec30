package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paperflow/internal/app"
	"paperflow/internal/application"
	"paperflow/internal/config"
)

var (
	configPath string
	cfg        *config.Config
	deps       *app.Deps
)

var rootCmd = &cobra.Command{
	Use:   "paperflow",
	Short: "Turn a folder of PDFs into a summarized, searchable library",
	Long: `paperflow watches a folder of research papers, converts each PDF to
markdown, writes a summary with a language model, and pushes both to a
remote semantic index. Progress is kept in a ledger so work resumes
where it stopped.

The remaining commands query the library the pipeline builds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		explicit := configPath != "" || os.Getenv("PAPERFLOW_CONFIG") != ""
		c, err := config.Load(config.Path(configPath), explicit)
		if err != nil {
			return err
		}
		slog.SetDefault(c.Logger(os.Stderr))
		cfg = c
		deps = app.New(c)
		return nil
	},
}

// Execute runs the root command and exits with a status that tells
// configuration problems and unknown papers apart from other failures
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if deps != nil {
		if cerr := deps.Close(); cerr != nil {
			slog.Warn("Failed to close clients.", "error", cerr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error onto the process exit status
func exitCode(err error) int {
	var cfgErr *application.ConfigurationError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &cfgErr):
		return 2
	case errors.Is(err, application.ErrNotFound):
		return 3
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $PAPERFLOW_CONFIG or ./paperflow.yaml)")
}
