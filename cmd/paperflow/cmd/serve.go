package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"paperflow/internal/adapters/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the library read-only over HTTP",
	Long: `Serve the library as a read-only JSON API:

  GET  /papers[?all=true]
  GET  /papers/{id}
  GET  /papers/{id}/text[?section=...]
  GET  /papers/{id}/summary
  POST /papers/{id}/verify   {"claim": "..."}
  GET  /search?q=...[&top=N]`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, err := deps.Ledger(ctx)
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}
		verifier, err := deps.Summarizer(ctx)
		if err != nil {
			return err
		}
		indexer, err := deps.Indexer(ctx)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           httpapi.NewServer(ledger, store, verifier, indexer).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Serving library.", "addr", serveAddr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("Shutting down server.")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}
