package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// mockDispatcher returns canned outcomes and counts calls.
type mockDispatcher struct {
	calls int
	fail  string
}

func (m *mockDispatcher) Execute(ctx context.Context, action schema.Action, iteration int) *providers.Outcome {
	m.calls++
	if action.Kind() == schema.KindMessage {
		return &providers.Outcome{Kind: providers.Displayed, Text: action.Text}
	}
	cmd := action.Command.String()
	if cmd == m.fail {
		one := 1
		return &providers.Outcome{Kind: providers.Failed, Prompt: "[me@box]$", Command: cmd, ExitStatus: &one, Stderr: "boom\n", ErrorKind: providers.ExitNonZero, Detail: "exit status 1"}
	}
	zero := 0
	return &providers.Outcome{Kind: providers.Ran, Prompt: "[me@box]$", Command: cmd, ExitStatus: &zero, Stdout: "mock output\n"}
}

func testConsole(t *testing.T) (*Console, *mockDispatcher, *bytes.Buffer) {
	t.Helper()
	wf := &schema.Workflow{Stages: []schema.Stage{
		{Name: "Intro", Actions: []schema.Action{
			{Text: "welcome"},
			{Command: schema.Commands{"uptime"}},
		}},
		{Name: "Work", Actions: []schema.Action{
			{Command: schema.Commands{"date"}, Loop: &schema.LoopSpec{Times: 2}},
			{Command: schema.Commands{"false"}},
		}},
	}}
	d := &mockDispatcher{fail: "false"}
	cur := runtime.NewCursor(wf, d, runtime.CursorOptions{RunID: "run-1"})
	t.Cleanup(func() { cur.Close() })
	var buf bytes.Buffer
	return New(cur, &buf), d, &buf
}

func TestConsoleHelp(t *testing.T) {
	c, _, buf := testConsole(t)
	c.Exec(context.Background(), "help")
	out := buf.String()
	for _, cmd := range []string{"next", "back", "rerun", "continue", "status", "history", "help", "quit"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output missing command %q", cmd)
		}
	}
}

func TestConsoleEmptyLineAdvances(t *testing.T) {
	c, d, buf := testConsole(t)
	ctx := context.Background()

	c.Exec(ctx, "")
	c.Exec(ctx, "n")
	if d.calls != 2 {
		t.Fatalf("calls = %d, want 2", d.calls)
	}
	out := buf.String()
	if !strings.Contains(out, "### Intro ###") {
		t.Errorf("missing stage banner: %s", out)
	}
	if strings.Count(out, "### Intro ###") != 1 {
		t.Errorf("banner should print once per stage: %s", out)
	}
	if !strings.Contains(out, "welcome") || !strings.Contains(out, "[me@box]$ uptime\nmock output") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestConsoleNextRunsWholeLoop(t *testing.T) {
	c, d, buf := testConsole(t)
	ctx := context.Background()

	c.Exec(ctx, "next")
	c.Exec(ctx, "next")
	buf.Reset()
	c.Exec(ctx, "next")

	if d.calls != 4 {
		t.Errorf("calls = %d, want 4", d.calls)
	}
	out := buf.String()
	if !strings.Contains(out, "(1/2)") || !strings.Contains(out, "(2/2)") {
		t.Errorf("both iterations should print: %s", out)
	}
	if got := c.cursor.Position(); got != 4 {
		t.Errorf("position = %d, want 4", got)
	}
}

func TestConsoleBackReplays(t *testing.T) {
	c, d, buf := testConsole(t)
	ctx := context.Background()

	c.Exec(ctx, "next")
	c.Exec(ctx, "next")
	c.Exec(ctx, "back")
	if !strings.Contains(buf.String(), "back to 2/5: uptime") {
		t.Errorf("unexpected back output: %s", buf.String())
	}
	c.Exec(ctx, "next")
	if d.calls != 2 {
		t.Errorf("replay should not dispatch, calls = %d", d.calls)
	}
	if !strings.Contains(buf.String(), "(replayed)") {
		t.Errorf("replay should be marked: %s", buf.String())
	}

	c.Exec(ctx, "rerun")
	if d.calls != 3 {
		t.Errorf("rerun should dispatch, calls = %d", d.calls)
	}
}

func TestConsoleBackAtStart(t *testing.T) {
	c, _, buf := testConsole(t)
	c.Exec(context.Background(), "b")
	c.Exec(context.Background(), "r")
	out := buf.String()
	if !strings.Contains(out, "Already at the first step.") || !strings.Contains(out, "Nothing to rerun yet.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestConsoleContinueRunsPastFailures(t *testing.T) {
	c, d, buf := testConsole(t)
	ctx := context.Background()

	c.Exec(ctx, "continue")
	if d.calls != 5 {
		t.Errorf("calls = %d, want 5", d.calls)
	}
	out := buf.String()
	if !strings.Contains(out, "failed: exit_non_zero") {
		t.Errorf("failure should be reported: %s", out)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("stderr should be shown: %s", out)
	}
	if !strings.Contains(out, "All steps completed.") {
		t.Errorf("missing completion line: %s", out)
	}
	if got := c.buildPrompt(); got != "autopilot[done]> " {
		t.Errorf("prompt = %q", got)
	}
}

func TestConsoleStatusAndHistory(t *testing.T) {
	c, _, buf := testConsole(t)
	ctx := context.Background()

	c.Exec(ctx, "history")
	if !strings.Contains(buf.String(), "No steps executed yet.") {
		t.Errorf("unexpected history: %s", buf.String())
	}

	c.Exec(ctx, "next")
	c.Exec(ctx, "next")
	buf.Reset()
	c.Exec(ctx, "status")
	out := buf.String()
	for _, want := range []string{"run-1", "2/5", "Intro", "ran (exit 0)", "date (x2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q: %s", want, out)
		}
	}

	buf.Reset()
	c.Exec(ctx, "h")
	out = buf.String()
	if !strings.Contains(out, "[1] welcome: displayed") || !strings.Contains(out, "[2] uptime: ran (exit 0)") {
		t.Errorf("unexpected history: %s", out)
	}
}

func TestConsolePromptFormat(t *testing.T) {
	c, _, _ := testConsole(t)
	prompt := c.buildPrompt()
	if !strings.Contains(prompt, "1/5") || !strings.Contains(prompt, "Intro") {
		t.Errorf("prompt format unexpected: %q", prompt)
	}
}

func TestConsoleQuitAndUnknown(t *testing.T) {
	c, _, buf := testConsole(t)
	if c.Exec(context.Background(), "bogus") {
		t.Error("unknown command should not quit")
	}
	if !strings.Contains(buf.String(), `Unknown command: "bogus"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if !c.Exec(context.Background(), "quit") {
		t.Error("quit should report true")
	}
}
