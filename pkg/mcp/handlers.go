package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/autopilot/pkg/runtime"
	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// maxAdvance bounds a single advance call.
const maxAdvance = 100

// HandleValidate implements the autopilot/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	wf, errs := schema.ValidateFile(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	actions := 0
	for _, st := range wf.Stages {
		actions += len(st.Actions)
	}
	msg := fmt.Sprintf("✓ %s is valid (%d stages, %d actions)", path, len(wf.Stages), actions)
	if len(errs) > 0 {
		msg += "\nwarnings: " + formatErrors(errs)
	}
	return textResult(msg), nil
}

// HandleSchema implements the autopilot/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// Operator serves the cursor tools.
type Operator struct {
	Cursor *runtime.Cursor
}

// HandleAdvance implements the autopilot/advance MCP tool. It stops early at
// the end of the workflow.
func (o *Operator) HandleAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := 1
	if raw, ok := req.GetArguments()["steps"].(float64); ok {
		n = int(raw)
	}
	if n < 1 || n > maxAdvance {
		return errorResult(fmt.Sprintf("steps must be between 1 and %d", maxAdvance)), nil
	}

	var events []runtime.Event
	failed := false
	for i := 0; i < n; i++ {
		ev := o.Cursor.Advance(ctx)
		events = append(events, ev)
		if ev.Outcome.IsFailed() {
			failed = true
		}
		if !ev.Moved() || ctx.Err() != nil {
			break
		}
	}
	return jsonResult(events, failed), nil
}

// HandleRewind implements the autopilot/rewind MCP tool.
func (o *Operator) HandleRewind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(o.Cursor.Rewind(), false), nil
}

// HandleRerun implements the autopilot/rerun MCP tool.
func (o *Operator) HandleRerun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if o.Cursor.AtStart() {
		return errorResult("no step has been run yet"), nil
	}
	ev := o.Cursor.Rerun(ctx)
	return jsonResult(ev, ev.Outcome.IsFailed()), nil
}

// statusView is the autopilot/status response.
type statusView struct {
	RunID    string          `json:"run_id"`
	State    string          `json:"state"`
	Position int             `json:"position"`
	Total    int             `json:"total"`
	Failures int             `json:"failures"`
	Current  *runtime.Record `json:"current,omitempty"`
	Next     *nextView       `json:"next,omitempty"`
}

type nextView struct {
	Stage    string `json:"stage"`
	Action   string `json:"action"`
	Kind     string `json:"kind"`
	Recorded bool   `json:"recorded"`
}

// HandleStatus implements the autopilot/status MCP tool.
func (o *Operator) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := o.Cursor
	v := statusView{
		RunID:    c.RunID(),
		State:    string(c.State()),
		Position: c.Position(),
		Total:    c.Len(),
		Failures: c.Failures(),
	}
	if step, out, ok := c.Current(); ok {
		v.Current = &runtime.Record{Step: step, Outcome: out}
	}
	if step, recorded, ok := c.Next(); ok {
		a := c.Action(step)
		v.Next = &nextView{
			Stage:    c.StageName(step),
			Action:   a.Label(),
			Kind:     a.Kind().String(),
			Recorded: recorded,
		}
	}
	return jsonResult(v, false), nil
}

// HandleHistory implements the autopilot/history MCP tool.
func (o *Operator) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(o.Cursor.History(), false), nil
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %s", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
