package main

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/autopilot/pkg/diagram"
)

var (
	diagramFormat string
	showWidth     int
	showRaw       bool
)

var diagramCmd = &cobra.Command{
	Use:   "diagram [workflow.yaml]",
	Short: "Draw a workflow as a Mermaid flowchart or ASCII diagram",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagram,
}

func runDiagram(cmd *cobra.Command, args []string) error {
	wf, err := loadWorkflow(args[0], cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out, err := diagram.Generate(wf, filepath.Base(args[0]), diagram.Format(diagramFormat))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

var showCmd = &cobra.Command{
	Use:   "show [workflow.yaml]",
	Short: "Print a formatted overview of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	wf, err := loadWorkflow(args[0], cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	md, err := diagram.Generate(wf, filepath.Base(args[0]), diagram.FormatMarkdown)
	if err != nil {
		return err
	}
	if showRaw {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(showWidth),
	)
	if err != nil {
		return fmt.Errorf("init markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render overview: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "Diagram format: mermaid or ascii")
	showCmd.Flags().IntVar(&showWidth, "width", 100, "Wrap width")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the Markdown source")
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(showCmd)
}
