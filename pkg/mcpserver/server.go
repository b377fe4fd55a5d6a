// Package mcpserver exposes the launcher as a Model Context Protocol tool,
// so agents can render visualizations over streamable HTTP.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// ToolName is the name of the launch tool.
const ToolName = "launch_visualization"

// LaunchInput is the tool's argument object.
type LaunchInput struct {
	Language   string `json:"language" jsonschema:"language tag, e.g. python or R"`
	Code       string `json:"code" jsonschema:"source code that prints the visualization to stdout"`
	OutputMode string `json:"output_mode,omitempty" jsonschema:"static (default) or interactive"`
}

// LaunchOutput is the structured part of a successful tool result.
type LaunchOutput struct {
	Format      api.VisualizationFormat `json:"format,omitempty"`
	ExecutionID string                  `json:"execution_id,omitempty"`
	DurationMs  int64                   `json:"duration_ms,omitempty"`
}

// NewServer builds an MCP server with the launch tool registered.
func NewServer(launcher transport.Launcher, version string) *mcp.Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{Name: "vizlaunch", Version: version},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolName,
		Description: "Runs a python or R snippet in an isolated container and returns " +
			"the visualization it prints (SVG, HTML, base64 PNG or plain text).",
	}, launchHandler(launcher))

	return server
}

// Handler serves server over the streamable HTTP transport.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func launchHandler(launcher transport.Launcher) mcp.ToolHandlerFor[LaunchInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in LaunchInput) (*mcp.CallToolResult, any, error) {
		resp, err := launcher.Launch(ctx, &api.LaunchRequest{
			Language:   in.Language,
			Code:       in.Code,
			OutputMode: in.OutputMode,
		})
		if err != nil {
			slog.Debug("mcp launch failed", "language", in.Language, "error", err)
			return errorResult(err), nil, nil
		}

		out := LaunchOutput{
			Format:      resp.Format,
			ExecutionID: resp.ExecutionID,
			DurationMs:  resp.DurationMs,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: resp.Visualization}},
		}, out, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	msg := err.Error()
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
