package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TraceWriter writes cursor events to a JSONL trace file.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	runID  string
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path, runID string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
		runID:  runID,
	}, nil
}

// Write appends an Event as a JSONL record and flushes to disk.
func (tw *TraceWriter) Write(event Event) error {
	rec := TraceEvent{
		Type:      "cursor_event",
		Timestamp: time.Now(),
		RunID:     tw.runID,
		Event:     event,
	}
	if err := tw.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	// Flush and sync at step boundaries
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}

// ReadTrace loads every record of a JSONL trace file.
func ReadTrace(path string) ([]TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	var events []TraceEvent
	dec := json.NewDecoder(f)
	for dec.More() {
		var ev TraceEvent
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("decode trace event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	return events, nil
}
