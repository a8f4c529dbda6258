package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if RunID(ctx) != "" || Stage(ctx) != "" || Step(ctx) != -1 || Iteration(ctx) != -1 {
		t.Fatal("empty context should carry no values")
	}
	ctx = WithRunID(ctx, "20260101T000000-abcd1234")
	ctx = WithStep(ctx, "Deploy", 4, 0)
	if RunID(ctx) != "20260101T000000-abcd1234" {
		t.Errorf("RunID = %q", RunID(ctx))
	}
	if Stage(ctx) != "Deploy" || Step(ctx) != 4 || Iteration(ctx) != 0 {
		t.Errorf("step values = %q %d %d", Stage(ctx), Step(ctx), Iteration(ctx))
	}
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	ctx := WithStep(WithRunID(context.Background(), "run-1"), "Build", 2, 1)
	logger.InfoContext(ctx, "dispatch finished")

	out := buf.String()
	for _, want := range []string{`"run_id":"run-1"`, `"stage":"Build"`, `"step":2`, `"iteration":1`, "dispatch finished"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)
	logger.InfoContext(context.Background(), "bare log")

	out := buf.String()
	for _, absent := range []string{"run_id", "stage", "iteration"} {
		if strings.Contains(out, absent) {
			t.Errorf("unexpected %s in %s", absent, out)
		}
	}
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug).With(slog.String("component", "session"))
	logger.InfoContext(WithRunID(context.Background(), "run-2"), "connected")

	out := buf.String()
	if !strings.Contains(out, `"component":"session"`) || !strings.Contains(out, `"run_id":"run-2"`) {
		t.Errorf("got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
