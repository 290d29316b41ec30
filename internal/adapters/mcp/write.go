package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"paperflow/internal/application/commands"
)

// RegisterWriteTools adds tools that push to the remote index. None of them
// touch the pipeline ledger.
func RegisterWriteTools(s *server.MCPServer, lib Library) {
	s.AddTool(uploadTool(), uploadHandler(lib))
}

// --- upload_papers ---

func uploadTool() mcp.Tool {
	return mcp.NewTool("upload_papers",
		mcp.WithDescription("Upload converted papers missing from the search index. Papers already indexed at their current content are skipped."),
		mcp.WithString("name",
			mcp.Description("Upload only this paper. Omit to upload everything missing."),
		),
	)
}

func uploadHandler(lib Library) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var ids []string
		if name := req.GetString("name", ""); name != "" {
			ids = append(ids, name)
		}

		res, err := commands.NewUploadCommand(lib.Ledger, lib.Artifacts, lib.Indexer, ids...).Execute(ctx)
		if err != nil {
			return toolError(err)
		}

		var sb strings.Builder
		sb.WriteString(res.Message)
		sb.WriteByte('\n')
		for _, id := range res.Uploaded {
			fmt.Fprintf(&sb, "  + %s\n", id)
		}
		failed := make([]string, 0, len(res.Failed))
		for id := range res.Failed {
			failed = append(failed, id)
		}
		sort.Strings(failed)
		for _, id := range failed {
			fmt.Fprintf(&sb, "  ! %s: %v\n", id, res.Failed[id])
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
