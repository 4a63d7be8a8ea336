package mcp

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/lore/internal/log"
)

// jsonResult marshals v into a single JSON text block. All tool data
// goes to clients as JSON; they parse it.
func jsonResult(v any, logger log.Logger) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		// Log the real failure server-side, keep internals off the wire.
		logger.Warn("marshaling tool result", "error", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "internal error: result not serializable"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// toolError returns a caller-addressable failure as a tool result, so
// the calling model can read the message and correct its next call.
// Domain errors only; system errors propagate through the protocol
// layer instead.
func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
