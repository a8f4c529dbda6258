package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/autopilot/pkg/runtime"
	"github.com/ormasoftchile/autopilot/pkg/schema"
)

func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetErr(&errOut)
	return c, &out, &errOut
}

func TestLoadDotEnv(t *testing.T) {
	// Register restore, then start from unset.
	t.Setenv("AUTOPILOT_TEST_NEW", "x")
	os.Unsetenv("AUTOPILOT_TEST_NEW")
	t.Setenv("AUTOPILOT_TEST_QUOTED", "x")
	os.Unsetenv("AUTOPILOT_TEST_QUOTED")
	t.Setenv("AUTOPILOT_TEST_KEEP", "original")

	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nAUTOPILOT_TEST_NEW=value\nexport AUTOPILOT_TEST_QUOTED=\"a=b\"\nAUTOPILOT_TEST_KEEP=override\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loadDotEnv(path)

	if got := os.Getenv("AUTOPILOT_TEST_NEW"); got != "value" {
		t.Errorf("NEW = %q, want value", got)
	}
	if got := os.Getenv("AUTOPILOT_TEST_QUOTED"); got != "a=b" {
		t.Errorf("QUOTED = %q, want a=b", got)
	}
	if got := os.Getenv("AUTOPILOT_TEST_KEEP"); got != "original" {
		t.Errorf("KEEP = %q, existing variables must not be overwritten", got)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}

func TestValidateCmd(t *testing.T) {
	c, out, _ := testCommand()
	if err := runValidate(c, []string{"../../testdata/valid/full.yaml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "is valid (2 stages") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestValidateCmd_Invalid(t *testing.T) {
	c, _, errOut := testCommand()
	err := runValidate(c, []string{"../../testdata/invalid/text-and-command.yaml"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(errOut.String(), "[domain]") {
		t.Errorf("errors should be listed by phase: %s", errOut.String())
	}
}

func TestSchemaCmd(t *testing.T) {
	c, out, _ := testCommand()
	if err := runSchema(c, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"stages"`) {
		t.Errorf("schema should describe stages: %s", out.String())
	}
}

func TestDiagramCmd(t *testing.T) {
	old := diagramFormat
	defer func() { diagramFormat = old }()

	diagramFormat = "mermaid"
	c, out, _ := testCommand()
	if err := runDiagram(c, []string{"../../examples/demo.yaml"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "flowchart TD") {
		t.Errorf("unexpected diagram: %s", out.String())
	}

	diagramFormat = "svg"
	c, _, _ = testCommand()
	if err := runDiagram(c, []string{"../../examples/demo.yaml"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestShowCmd_Raw(t *testing.T) {
	old := showRaw
	defer func() { showRaw = old }()

	showRaw = true
	c, out, _ := testCommand()
	if err := runShow(c, []string{"../../examples/demo.yaml"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "# demo.yaml") || !strings.Contains(out.String(), "## 1. Welcome") {
		t.Errorf("unexpected overview: %s", out.String())
	}
}

func TestRunEnvRecordsTraceAndSummary(t *testing.T) {
	dir := t.TempDir()
	env, err := openRunEnv("run-1", dir, false, slog.LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	wf := &schema.Workflow{Stages: []schema.Stage{
		{Name: "Hello", Actions: []schema.Action{{Text: "one"}, {Text: "two"}}},
	}}
	cursor := newCursor(wf, env)
	ctx := context.Background()
	cursor.Advance(ctx)
	cursor.Advance(ctx)
	cursor.Rewind()
	if err := cursor.Close(); err != nil {
		t.Fatal(err)
	}
	summary := cursor.Summary("hello.yaml")
	if err := runtime.SaveSummary(summary, filepath.Join(env.dir, "summary.yaml")); err != nil {
		t.Fatal(err)
	}

	runDir := filepath.Join(dir, "run-1")
	for _, name := range []string{"trace.jsonl", "autopilot.log", "summary.yaml"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	c, out, _ := testCommand()
	if err := runTraceShow(c, []string{runDir}); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"advanced", "rewound", "3 events", "Run run-1: 2/2 steps reached", "2 displayed, 0 ran, 0 failed"} {
		if !strings.Contains(got, want) {
			t.Errorf("trace show missing %q:\n%s", want, got)
		}
	}
}

func TestRunEnvNoTrace(t *testing.T) {
	dir := t.TempDir()
	env, err := openRunEnv("run-2", dir, true, slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	if env.dir != "" || env.trace != nil {
		t.Error("no-trace should not open files")
	}
	if err := env.Close(); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no-trace created %d entries", len(entries))
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &runtime.RunSummary{
		RunID: "r",
		Steps: runtime.StepsSummary{Total: 4, Reached: 3, Displayed: 1, Ran: 1, Failed: 1},
	}, "/tmp/r")
	want := "\nRun r: 3/4 steps reached\n  1 displayed, 1 ran, 1 failed\n  trace: /tmp/r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFinishRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	env, err := openRunEnv("run-3", dir, false, slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	wf := &schema.Workflow{Stages: []schema.Stage{
		{Name: "Checks", Actions: []schema.Action{{Command: schema.Commands{"true"}}, {Command: schema.Commands{"false"}}}},
	}}
	ctx := context.Background()
	cursor := newCursor(wf, env)
	cursor.Advance(ctx)
	cursor.Advance(ctx)

	var out, errOut bytes.Buffer
	err = finishRun(ctx, cursor, env, "checks.yaml", &out, &errOut)
	if err == nil || !strings.Contains(err.Error(), "1 step(s) failed") {
		t.Fatalf("finishRun error = %v, want failure count", err)
	}
	if !strings.Contains(out.String(), "1 ran, 1 failed") {
		t.Errorf("summary = %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "run-3", "summary.yaml")); err != nil {
		t.Errorf("summary not saved: %v", err)
	}
}

func TestFinishRunSucceeds(t *testing.T) {
	env, err := openRunEnv("run-4", t.TempDir(), true, slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	wf := &schema.Workflow{Stages: []schema.Stage{{Name: "Hi", Actions: []schema.Action{{Text: "hello"}}}}}
	cursor := newCursor(wf, env)
	cursor.Advance(context.Background())

	var out bytes.Buffer
	if err := finishRun(context.Background(), cursor, env, "hi.yaml", &out, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
