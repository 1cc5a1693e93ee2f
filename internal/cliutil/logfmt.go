package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/wasmvisor/wasmvisor/internal/task"
)

// LogRecord represents a structured log event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	PID       uint32    `json:"pid"`
	TID       uint32    `json:"tid,omitempty"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	Message   string    `json:"msg,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewLogRecord converts a control-plane event into a structured log record.
func NewLogRecord(event task.Event) LogRecord {
	record := LogRecord{
		Timestamp: event.Timestamp,
		PID:       uint32(event.PID),
		TID:       uint32(event.TID),
		Level:     levelFor(event),
		Event:     string(event.Type),
		Message:   event.Message,
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	return record
}

func levelFor(event task.Event) string {
	if event.Err != nil {
		return "error"
	}
	if event.Type == task.EventSignalDropped {
		return "warn"
	}
	return "info"
}

// EncodeLogEvent encodes a log event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event task.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// FormatEvent renders a log event as a single human-readable line.
func FormatEvent(event task.Event) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s [%s] pid=%d", ts.Format(time.RFC3339), event.Type, event.PID)
	if event.TID != 0 {
		line += fmt.Sprintf(" tid=%d", event.TID)
	}
	if event.Message != "" {
		line += " " + event.Message
	}
	if event.Err != nil {
		line += fmt.Sprintf(" error=%q", event.Err.Error())
	}
	return line
}
