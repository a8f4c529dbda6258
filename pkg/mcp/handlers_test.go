package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
	"github.com/ormasoftchile/autopilot/pkg/schema"
)

type stubDispatcher struct{ calls int }

func (d *stubDispatcher) Execute(ctx context.Context, action schema.Action, iteration int) *providers.Outcome {
	d.calls++
	if action.Kind() == schema.KindMessage {
		return &providers.Outcome{Kind: providers.Displayed, Text: action.Text}
	}
	if action.Command.String() == "false" {
		one := 1
		return &providers.Outcome{Kind: providers.Failed, Command: "false", ExitStatus: &one, ErrorKind: providers.ExitNonZero}
	}
	zero := 0
	return &providers.Outcome{Kind: providers.Ran, Command: action.Command.String(), ExitStatus: &zero}
}

func newOperator(t *testing.T) (*Operator, *stubDispatcher) {
	t.Helper()
	wf := &schema.Workflow{Stages: []schema.Stage{
		{Name: "Intro", Actions: []schema.Action{
			{Text: "hi"},
			{Command: schema.Commands{"true"}},
			{Command: schema.Commands{"false"}},
		}},
	}}
	d := &stubDispatcher{}
	c := runtime.NewCursor(wf, d, runtime.CursorOptions{RunID: "mcp-run"})
	t.Cleanup(func() { c.Close() })
	return &Operator{Cursor: c}, d
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("expected content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", r.Content[0])
	}
	return tc.Text
}

func TestHandleValidate_MissingPath(t *testing.T) {
	result, err := HandleValidate(context.Background(), call(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleValidate_Fixtures(t *testing.T) {
	result, err := HandleValidate(context.Background(), call(map[string]any{"path": "../../testdata/valid/minimal.yaml"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Errorf("expected valid workflow, got %s", resultText(t, result))
	}

	result, err = HandleValidate(context.Background(), call(map[string]any{"path": "../../testdata/invalid/text-and-command.yaml"}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for invalid workflow")
	}
	if !strings.Contains(resultText(t, result), "[domain]") {
		t.Errorf("expected a domain error, got %s", resultText(t, result))
	}
}

func TestHandleValidate_Warnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	doc := "stages:\n  - name: a\n    actions:\n      - command: ls\n        sudo:\n          password: hunter2\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	result, _ := HandleValidate(context.Background(), call(map[string]any{"path": path}))
	if result.IsError {
		t.Fatalf("warnings should not fail validation: %s", resultText(t, result))
	}
	if !strings.Contains(resultText(t, result), "warnings:") {
		t.Errorf("expected warnings, got %s", resultText(t, result))
	}
}

func TestHandleSchema(t *testing.T) {
	result, err := HandleSchema(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Error("expected success for schema")
	}
	if !strings.Contains(resultText(t, result), "stages") {
		t.Error("expected schema content")
	}
}

func TestHandleAdvance(t *testing.T) {
	op, d := newOperator(t)
	ctx := context.Background()

	result, _ := op.HandleAdvance(ctx, call(map[string]any{"steps": float64(2)}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}
	var events []runtime.Event
	if err := json.Unmarshal([]byte(resultText(t, result)), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].Kind != runtime.Advanced || events[1].Position != 2 {
		t.Errorf("unexpected events: %+v", events)
	}
	if d.calls != 2 {
		t.Errorf("calls = %d, want 2", d.calls)
	}

	// The failing step is reported as an error result; advancing past the
	// end stops early.
	result, _ = op.HandleAdvance(ctx, call(map[string]any{"steps": float64(5)}))
	if !result.IsError {
		t.Error("failed outcome should mark the result as an error")
	}
	events = nil
	if err := json.Unmarshal([]byte(resultText(t, result)), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].Kind != runtime.End {
		t.Errorf("expected step then End, got %+v", events)
	}
}

func TestHandleAdvance_BadSteps(t *testing.T) {
	op, _ := newOperator(t)
	result, _ := op.HandleAdvance(context.Background(), call(map[string]any{"steps": float64(0)}))
	if !result.IsError {
		t.Error("expected error for zero steps")
	}
}

func TestHandleRewindRerun(t *testing.T) {
	op, d := newOperator(t)
	ctx := context.Background()

	result, _ := op.HandleRerun(ctx, call(nil))
	if !result.IsError {
		t.Error("rerun at the start should fail")
	}

	op.HandleAdvance(ctx, call(nil))
	op.HandleAdvance(ctx, call(nil))

	result, _ = op.HandleRewind(ctx, call(nil))
	var ev runtime.Event
	if err := json.Unmarshal([]byte(resultText(t, result)), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != runtime.Rewound || ev.Position != 1 {
		t.Errorf("unexpected rewind event: %+v", ev)
	}

	op.HandleAdvance(ctx, call(nil))
	if d.calls != 2 {
		t.Errorf("replay should not dispatch, calls = %d", d.calls)
	}
	op.HandleRerun(ctx, call(nil))
	if d.calls != 3 {
		t.Errorf("rerun should dispatch, calls = %d", d.calls)
	}
}

func TestHandleStatusAndHistory(t *testing.T) {
	op, _ := newOperator(t)
	ctx := context.Background()
	op.HandleAdvance(ctx, call(nil))

	result, _ := op.HandleStatus(ctx, call(nil))
	var v statusView
	if err := json.Unmarshal([]byte(resultText(t, result)), &v); err != nil {
		t.Fatal(err)
	}
	if v.RunID != "mcp-run" || v.Position != 1 || v.Total != 3 {
		t.Errorf("unexpected status: %+v", v)
	}
	if v.Next == nil || v.Next.Action != "true" || v.Next.Kind != "command" || v.Next.Recorded {
		t.Errorf("unexpected next: %+v", v.Next)
	}
	if v.Current == nil || v.Current.Outcome.Kind != providers.Displayed {
		t.Errorf("unexpected current: %+v", v.Current)
	}

	result, _ = op.HandleHistory(ctx, call(nil))
	var history []runtime.Record
	if err := json.Unmarshal([]byte(resultText(t, result)), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Outcome.Text != "hi" {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestNewServer(t *testing.T) {
	if NewServer("test", nil) == nil {
		t.Fatal("expected server")
	}
	op, _ := newOperator(t)
	if NewServer("test", op.Cursor) == nil {
		t.Fatal("expected server")
	}
}
