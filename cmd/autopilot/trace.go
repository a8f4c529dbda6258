package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

var traceShowCmd = &cobra.Command{
	Use:   "show [run-dir|trace.jsonl]",
	Short: "Print the cursor events and summary of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceShow,
}

func runTraceShow(cmd *cobra.Command, args []string) error {
	path := args[0]
	dir := filepath.Dir(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		dir = path
		path = filepath.Join(path, "trace.jsonl")
	}

	events, err := runtime.ReadTrace(path)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, te := range events {
		ev := te.Event
		line := fmt.Sprintf("%4d  %s  %-8s pos=%d", i+1, te.Timestamp.Format("15:04:05.000"), ev.Kind, ev.Position)
		if ev.Step != nil {
			line += fmt.Sprintf("  %s[%d]", ev.StageName, ev.Step.Action)
			if ev.Step.Times > 1 {
				line += fmt.Sprintf(" %d/%d", ev.Step.Iteration+1, ev.Step.Times)
			}
		}
		if ev.Outcome != nil {
			line += "  " + ev.Outcome.Summary()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d events\n", len(events))

	summary, err := runtime.LoadSummary(filepath.Join(dir, "summary.yaml"))
	if err != nil {
		// Runs that are still open have no summary yet.
		return nil
	}
	printSummary(w, summary, "")
	return nil
}

func init() {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace file operations",
	}
	traceCmd.AddCommand(traceShowCmd)
	rootCmd.AddCommand(traceCmd)
}
