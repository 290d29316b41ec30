package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"paperflow/internal/application"
	"paperflow/internal/application/commands"
	"paperflow/internal/ports"
)

// maxPaperChars caps how much of a paper read_paper hands back in one call
const maxPaperChars = 100000

// Library is what the tools read from. Verifier and Indexer may be nil when
// no model or remote index is configured; their tools then report why.
type Library struct {
	Ledger    ports.Ledger
	Artifacts ports.ArtifactStore
	Verifier  ports.Summarizer
	Indexer   ports.Indexer
}

// RegisterReadTools adds the read-only library tools to the MCP server.
func RegisterReadTools(s *server.MCPServer, lib Library) {
	s.AddTool(listPapersTool(), listPapersHandler(lib))
	s.AddTool(readPaperTool(), readPaperHandler(lib))
	s.AddTool(readSummaryTool(), readSummaryHandler(lib))
	s.AddTool(searchPapersTool(), searchPapersHandler(lib))
	s.AddTool(searchInPaperTool(), searchInPaperHandler(lib))
	s.AddTool(verifyCitationTool(), verifyCitationHandler(lib))
}

// --- list_papers ---

func listPapersTool() mcp.Tool {
	return mcp.NewTool("list_papers",
		mcp.WithDescription("List all papers in the library that finished processing."),
	)
}

func listPapersHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := commands.NewListPapersCommand(lib.Ledger, lib.Artifacts).Execute(ctx)
		if err != nil {
			return toolError(err)
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText("No papers in library yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Papers in library (%d):\n\n", len(entries))
		for _, e := range entries {
			mark := " "
			if e.HasSummary {
				mark = "✓"
			}
			fmt.Fprintf(&sb, "  [%s] %s\n", mark, e.Record.ID)
		}
		sb.WriteString("\n[✓] = has summary\n")
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- read_paper ---

func readPaperTool() mcp.Tool {
	return mcp.NewTool("read_paper",
		mcp.WithDescription("Read the full markdown of a paper, or one section of it."),
		mcp.WithString("name",
			mcp.Description("Paper ID or part of it (e.g. vaswani2017)"),
			mcp.Required(),
		),
		mcp.WithString("section",
			mcp.Description("Heading to narrow the result to (case-insensitive, e.g. Results)"),
		),
	)
}

func readPaperHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		section := req.GetString("section", "")

		res, err := commands.NewReadPaperCommand(lib.Ledger, lib.Artifacts, name, section).Execute(ctx)
		if err != nil {
			return notFoundHint(err, "Use `list_papers` to see available papers.")
		}

		content := res.Content
		if runes := []rune(content); len(runes) > maxPaperChars {
			content = string(runes[:maxPaperChars]) + "\n\n[TRUNCATED - paper is very long]"
		}
		return mcp.NewToolResultText(content), nil
	}
}

// --- read_summary ---

func readSummaryTool() mcp.Tool {
	return mcp.NewTool("read_summary",
		mcp.WithDescription("Read the generated summary of a paper."),
		mcp.WithString("name",
			mcp.Description("Paper ID or part of it"),
			mcp.Required(),
		),
	)
}

func readSummaryHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := commands.NewSummaryCommand(lib.Ledger, lib.Artifacts, req.GetString("name", "")).Execute(ctx)
		if err != nil {
			return notFoundHint(err, "The paper may not have been summarized yet.")
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// --- search_papers ---

func searchPapersTool() mcp.Tool {
	return mcp.NewTool("search_papers",
		mcp.WithDescription("Search papers by semantic query. Returns a ranked list of relevant papers."),
		mcp.WithString("query",
			mcp.Description("Search query (e.g. attention mechanisms in transformers)"),
			mcp.Required(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results to return (default 5)"),
		),
	)
}

func searchPapersHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		topK := req.GetInt("top_k", commands.DefaultTopK)

		hits, err := commands.NewFindCommand(lib.Indexer, query, topK).Execute(ctx)
		if err != nil {
			return toolError(err)
		}
		if len(hits) == 0 {
			return mcp.NewToolResultText("No relevant papers found for this query."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d relevant papers:\n\n", len(hits))
		for i, h := range hits {
			fmt.Fprintf(&sb, "%d. **%s** (relevance: %.2f)\n", i+1, h.DocumentID, h.Score)
			if h.Snippet != "" {
				fmt.Fprintf(&sb, "   %s\n", h.Snippet)
			}
			sb.WriteByte('\n')
		}
		sb.WriteString("Use `read_paper` or `read_summary` to get details.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- search_in_paper ---

func searchInPaperTool() mcp.Tool {
	return mcp.NewTool("search_in_paper",
		mcp.WithDescription("Find passages about a topic within a single paper."),
		mcp.WithString("name",
			mcp.Description("Paper to search in"),
			mcp.Required(),
		),
		mcp.WithString("query",
			mcp.Description("What to search for"),
			mcp.Required(),
		),
	)
}

func searchInPaperHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		query := req.GetString("query", "")

		passages, err := commands.NewSearchInPaperCommand(lib.Ledger, lib.Indexer, name, query, 3).Execute(ctx)
		if err != nil {
			return notFoundHint(err, "Use `list_papers` to see available papers.")
		}
		if len(passages) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No relevant passages found for '%s' in %s", query, name)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Relevant passages from **%s**:\n\n", name)
		for i, p := range passages {
			fmt.Fprintf(&sb, "### Passage %d\n%s\n\n", i+1, p)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- verify_citation ---

func verifyCitationTool() mcp.Tool {
	return mcp.NewTool("verify_citation",
		mcp.WithDescription("Check that a claim is supported by the cited paper. Use before finalizing any citation."),
		mcp.WithString("paper_name",
			mcp.Description("Paper being cited"),
			mcp.Required(),
		),
		mcp.WithString("claim",
			mcp.Description("The statement attributed to the paper"),
			mcp.Required(),
		),
	)
}

func verifyCitationHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("paper_name", "")
		claim := req.GetString("claim", "")

		res, err := commands.NewVerifyCommand(lib.Ledger, lib.Artifacts, lib.Verifier, name, claim).Execute(ctx)
		if err != nil {
			return notFoundHint(err, "Add the paper first, then verify.")
		}

		v := res.Verification
		var sb strings.Builder
		fmt.Fprintf(&sb, "## Citation Verification: %s\n\n", res.DocumentID)
		fmt.Fprintf(&sb, "**Status:** %s\n", strings.ToUpper(v.Verdict.String()))
		fmt.Fprintf(&sb, "**Confidence:** %.0f%%\n\n", v.Confidence*100)
		fmt.Fprintf(&sb, "**Claim being checked:**\n> %s\n\n", claim)
		fmt.Fprintf(&sb, "**Supporting quote from paper:**\n> %s\n\n", v.Quote)
		fmt.Fprintf(&sb, "**Notes:** %s\n", v.Notes)
		if v.Verdict == ports.VerdictNotVerified {
			sb.WriteString("\n**Action needed:** revise the claim or find a different source.\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- helpers ---

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// notFoundHint appends a next step to NotFound errors
func notFoundHint(err error, hint string) (*mcp.CallToolResult, error) {
	if errors.Is(err, application.ErrNotFound) {
		return mcp.NewToolResultError(err.Error() + "\n\n" + hint), nil
	}
	return toolError(err)
}
