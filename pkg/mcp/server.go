// Package mcp exposes a workflow run to AI agents as an MCP stdio server.
// Each cursor intent is a tool; results are JSON cursor events.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

// NewServer creates an MCP server with the cursor tools registered. A nil
// cursor registers only the document tools.
func NewServer(version string, cursor *runtime.Cursor) *server.MCPServer {
	s := server.NewMCPServer(
		"autopilot",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("autopilot/validate",
			mcp.WithDescription("Validate an autopilot workflow YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the workflow YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("autopilot/schema",
			mcp.WithDescription("Export the workflow JSON Schema"),
		),
		HandleSchema,
	)

	if cursor == nil {
		return s
	}
	op := &Operator{Cursor: cursor}

	s.AddTool(
		mcp.NewTool("autopilot/advance",
			mcp.WithDescription("Run the next step of the workflow, or replay its recorded outcome after a rewind"),
			mcp.WithNumber("steps", mcp.Description("Number of steps to advance (default 1)")),
		),
		op.HandleAdvance,
	)

	s.AddTool(
		mcp.NewTool("autopilot/rewind",
			mcp.WithDescription("Step back over the last traversed step; its outcome is kept for replay"),
		),
		op.HandleRewind,
	)

	s.AddTool(
		mcp.NewTool("autopilot/rerun",
			mcp.WithDescription("Run the most recently traversed step again, discarding recorded outcomes from it onward"),
		),
		op.HandleRerun,
	)

	s.AddTool(
		mcp.NewTool("autopilot/status",
			mcp.WithDescription("Show the cursor position, the current outcome and the next step"),
		),
		op.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("autopilot/history",
			mcp.WithDescription("List traversed steps with their outcomes"),
		),
		op.HandleHistory,
	)

	return s
}
