package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/autopilot/pkg/console"
	"github.com/ormasoftchile/autopilot/pkg/dispatch"
	"github.com/ormasoftchile/autopilot/pkg/logging"
	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
	"github.com/ormasoftchile/autopilot/pkg/schema"
	"github.com/ormasoftchile/autopilot/pkg/secrets"
	"github.com/ormasoftchile/autopilot/pkg/session"
	"github.com/ormasoftchile/autopilot/pkg/tui"
)

var (
	runPlain           bool
	runCompact         bool
	runTraceDir        string
	runNoTrace         bool
	runLogLevel        string
	runShell           string
	runSSHTimeout      time.Duration
	runKnownHosts      string
	runInsecureHostKey bool
	runIdentities      []string
)

var runCmd = &cobra.Command{
	Use:   "run [workflow.yaml]",
	Short: "Run a workflow one step at a time",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

// runEnv holds everything opened for one run.
type runEnv struct {
	runID  string
	dir    string // empty when tracing is off
	logger *slog.Logger
	trace  *runtime.TraceWriter
	closer io.Closer
}

// openRunEnv creates <traceDir>/<runID>/ with the trace and log files.
func openRunEnv(runID, traceDir string, noTrace bool, level slog.Level) (*runEnv, error) {
	env := &runEnv{runID: runID, logger: logging.Discard()}
	if noTrace {
		return env, nil
	}

	env.dir = filepath.Join(traceDir, runID)
	if err := os.MkdirAll(env.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(env.dir, "autopilot.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	env.closer = logFile
	env.logger = logging.New(logFile, level)

	tw, err := runtime.NewTraceWriter(filepath.Join(env.dir, "trace.jsonl"), runID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("create trace: %w", err)
	}
	env.trace = tw
	return env, nil
}

func (e *runEnv) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// newCursor wires the session registry, dispatcher and cursor for a run.
func newCursor(wf *schema.Workflow, env *runEnv) *runtime.Cursor {
	dialer := &session.SSHDialer{
		Timeout:               runSSHTimeout,
		KnownHostsPath:        runKnownHosts,
		InsecureIgnoreHostKey: runInsecureHostKey,
		IdentityFiles:         runIdentities,
	}
	registry := session.NewRegistry(dialer, env.logger)
	d := dispatch.New(&providers.LocalExecutor{}, registry, secrets.NewResolver(), env.logger)
	d.Shell = runShell
	return runtime.NewCursor(wf, d, runtime.CursorOptions{
		RunID:    env.runID,
		Sessions: registry,
		Trace:    env.trace,
		Logger:   env.logger,
	})
}

func runRun(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx, env.runID)
	env.logger.InfoContext(ctx, "run started", slog.String("workflow", filePath))

	cursor := newCursor(wf, env)

	var uiErr error
	if runPlain {
		uiErr = console.New(cursor, cmd.OutOrStdout()).Run(ctx)
	} else {
		uiErr = tui.Run(ctx, cursor, tui.Config{Title: filepath.Base(filePath), Compact: runCompact})
	}
	failed := finishRun(ctx, cursor, env, filePath, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// A terminated run reports its summary, not the UI's cancellation error.
	if uiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("run: %w", uiErr)
	}
	return failed
}

// finishRun closes the cursor, reports and saves the run summary, and returns
// an error when any recorded outcome failed.
func finishRun(ctx context.Context, cursor *runtime.Cursor, env *runEnv, filePath string, out, errOut io.Writer) error {
	if err := cursor.Close(); err != nil {
		env.logger.WarnContext(ctx, "close trace", slog.String("error", err.Error()))
	}

	summary := cursor.Summary(filePath)
	env.logger.InfoContext(ctx, "run finished",
		slog.Int("reached", summary.Steps.Reached),
		slog.Int("failed", summary.Steps.Failed))
	printSummary(out, summary, env.dir)
	if env.dir != "" {
		if err := runtime.SaveSummary(summary, filepath.Join(env.dir, "summary.yaml")); err != nil {
			fmt.Fprintf(errOut, "Warning: %v\n", err)
		}
	}
	if summary.Steps.Failed > 0 {
		return fmt.Errorf("%d step(s) failed", summary.Steps.Failed)
	}
	return nil
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, s *runtime.RunSummary, dir string) {
	fmt.Fprintf(w, "\nRun %s: %d/%d steps reached\n", s.RunID, s.Steps.Reached, s.Steps.Total)
	fmt.Fprintf(w, "  %d displayed, %d ran, %d failed\n", s.Steps.Displayed, s.Steps.Ran, s.Steps.Failed)
	if dir != "" {
		fmt.Fprintf(w, "  trace: %s\n", dir)
	}
}

// addRunFlags registers the flags shared by every command that executes a
// workflow.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runTraceDir, "trace-dir", ".autopilot/runs", "Directory for run traces and logs")
	cmd.Flags().BoolVar(&runNoTrace, "no-trace", false, "Do not write trace, log or summary files")
	cmd.Flags().StringVar(&runLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&runShell, "shell", dispatch.DefaultShell, "Shell for local commands")
	cmd.Flags().DurationVar(&runSSHTimeout, "ssh-timeout", 10*time.Second, "SSH connect timeout")
	cmd.Flags().StringVar(&runKnownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&runInsecureHostKey, "insecure-ignore-host-key", false, "Skip SSH host key verification")
	cmd.Flags().StringArrayVar(&runIdentities, "identity", nil, "SSH private key file, repeatable")
}

func init() {
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Use the line-mode console instead of the full-screen UI")
	runCmd.Flags().BoolVar(&runCompact, "compact", false, "Hide the step list in the full-screen UI")
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
