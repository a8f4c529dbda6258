package main

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/autopilot/pkg/logging"
	amcp "github.com/ormasoftchile/autopilot/pkg/mcp"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [workflow.yaml]",
	Short: "Serve a workflow run to AI agents over MCP stdio",
	Long:  "Without a workflow only the validate and schema tools are served.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return serveStdio(amcp.NewServer(version, nil))
	}
	filePath := args[0]

	wf, err := loadWorkflow(filePath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(runLogLevel)
	if err != nil {
		return err
	}
	env, err := openRunEnv(runtime.GenerateRunID(), runTraceDir, runNoTrace, level)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := logging.WithRunID(cmd.Context(), env.runID)
	cursor := newCursor(wf, env)
	serveErr := serveStdio(amcp.NewServer(version, cursor))

	// Stdout carries the protocol, so the summary goes to stderr.
	failed := finishRun(ctx, cursor, env, filePath, cmd.ErrOrStderr(), cmd.ErrOrStderr())
	if serveErr != nil {
		return serveErr
	}
	return failed
}

func serveStdio(s *server.MCPServer) error {
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

func init() {
	addRunFlags(mcpCmd)
	rootCmd.AddCommand(mcpCmd)
}
