// Package mcpserver implements the stdio MCP tool servers bundled into
// the relay binary. Each server exposes a small set of operations whose
// results carry an HTML snippet as an embedded resource, for clients that
// render tool output directly, plus a JSON text summary for the model.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version reported during the MCP handshake.
const Version = "1.0.0"

// Server wraps an MCP SDK server for one bundled tool.
type Server struct {
	mcpServer *mcp.Server
	name      string
}

// New creates the server for the given tool identifier.
func New(id string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch id {
	case "weather":
		return NewWeather(WeatherConfig{Logger: logger})
	case "ecommerce":
		return NewEcommerce(logger)
	default:
		return nil, fmt.Errorf("unknown tool server %q", id)
	}
}

// Run starts the server on the given transport. Blocking; returns when
// the transport closes or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// Name returns the server's handshake name.
func (s *Server) Name() string {
	return s.name
}

// htmlResult builds the dual-payload tool result: an embedded text/html
// resource for rendering plus a JSON text summary the model can read.
func htmlResult(html, jsonText string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.EmbeddedResource{
				Resource: &mcp.ResourceContents{
					URI:      "data:text/html," + url.PathEscape(html),
					MIMEType: "text/html",
					Text:     jsonText,
				},
			},
		},
	}
}

// errorResult reports an operation failure to the model without failing
// the protocol call.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
