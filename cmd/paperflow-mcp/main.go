package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "paperflow/internal/adapters/mcp"
	"paperflow/internal/app"
	"paperflow/internal/config"
)

func main() {
	configFlag := flag.String("config", "", "config file (default $PAPERFLOW_CONFIG or ./paperflow.yaml)")
	flag.Parse()

	explicit := *configFlag != "" || os.Getenv("PAPERFLOW_CONFIG") != ""
	cfg, err := config.Load(config.Path(*configFlag), explicit)
	if err != nil {
		slog.Error("paperflow-mcp: invalid configuration.", "error", err)
		os.Exit(2)
	}
	// stdout carries the protocol
	slog.SetDefault(cfg.Logger(os.Stderr))

	deps := app.New(cfg)
	lib, err := openLibrary(context.Background(), deps)
	if err != nil {
		_ = deps.Close()
		slog.Error("paperflow-mcp: failed to open library.", "error", err)
		os.Exit(1)
	}

	mcpServer := server.NewMCPServer(
		"paperflow-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(
		mcp.NewTool("ping",
			mcp.WithDescription("Health check, returns pong"),
		),
		func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("pong"), nil
		},
	)

	mcpadapter.RegisterReadTools(mcpServer, lib)
	mcpadapter.RegisterWriteTools(mcpServer, lib)

	err = server.ServeStdio(mcpServer)
	_ = deps.Close()
	if err != nil {
		slog.Error("paperflow-mcp: server stopped.", "error", err)
		os.Exit(1)
	}
}

// openLibrary connects the adapters the tools read from. Verifier and index
// stay nil when disabled; those tools then report what is missing.
func openLibrary(ctx context.Context, deps *app.Deps) (mcpadapter.Library, error) {
	ledger, err := deps.Ledger(ctx)
	if err != nil {
		return mcpadapter.Library{}, err
	}
	store, err := deps.Artifacts()
	if err != nil {
		return mcpadapter.Library{}, err
	}
	verifier, err := deps.Summarizer(ctx)
	if err != nil {
		return mcpadapter.Library{}, err
	}
	indexer, err := deps.Indexer(ctx)
	if err != nil {
		return mcpadapter.Library{}, err
	}
	return mcpadapter.Library{Ledger: ledger, Artifacts: store, Verifier: verifier, Indexer: indexer}, nil
}
