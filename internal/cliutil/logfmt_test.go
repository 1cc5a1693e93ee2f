package cliutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wasmvisor/wasmvisor/internal/task"
)

func TestNewLogRecordLevels(t *testing.T) {
	tests := []struct {
		name     string
		event    task.Event
		expected string
	}{
		{name: "plainInfo", event: task.Event{Type: task.EventThreadStarted}, expected: "info"},
		{name: "droppedSignalWarns", event: task.Event{Type: task.EventSignalDropped}, expected: "warn"},
		{name: "errorWins", event: task.Event{Type: task.EventProcessTerminated, Err: errors.New("boom")}, expected: "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record := NewLogRecord(tc.event)
			if record.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, record.Level)
			}
		})
	}
}

func TestEncodeLogEvent(t *testing.T) {
	var out bytes.Buffer
	var errBuf bytes.Buffer

	event := task.Event{
		Timestamp: time.Unix(0, 0),
		PID:       4,
		TID:       9,
		Type:      task.EventThreadExited,
		Message:   "exit code 0",
	}

	EncodeLogEvent(json.NewEncoder(&out), &errBuf, event)

	if errBuf.Len() != 0 {
		t.Fatalf("unexpected stderr output: %s", errBuf.String())
	}

	var record LogRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal log record: %v", err)
	}
	if record.PID != 4 || record.TID != 9 {
		t.Fatalf("unexpected identifiers in record: %+v", record)
	}
	if record.Event != string(task.EventThreadExited) {
		t.Fatalf("expected event %q, got %q", task.EventThreadExited, record.Event)
	}
}

func TestEncodeLogEventStampsZeroTimestamp(t *testing.T) {
	var out bytes.Buffer
	var errBuf bytes.Buffer

	EncodeLogEvent(json.NewEncoder(&out), &errBuf, task.Event{Type: task.EventLog})

	var record LogRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal log record: %v", err)
	}
	if record.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be stamped")
	}
}

func TestFormatEvent(t *testing.T) {
	event := task.Event{
		Timestamp: time.Unix(120, 0).UTC(),
		PID:       3,
		TID:       5,
		Type:      task.EventSignalDropped,
		Message:   "tid 9 not found",
		Err:       errors.New("delivery failed"),
	}

	line := FormatEvent(event)
	for _, want := range []string{"pid=3", "tid=5", "signal-dropped", "tid 9 not found", `error="delivery failed"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected line to contain %q, got %q", want, line)
		}
	}
}
