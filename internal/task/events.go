package task

import "time"

// EventType captures high level lifecycle notifications emitted by the
// control plane and the execution engine.
type EventType string

const (
	EventProcessCreated    EventType = "process-created"
	EventProcessTerminated EventType = "process-terminated"
	EventThreadStarted     EventType = "thread-started"
	EventThreadExited      EventType = "thread-exited"
	EventSignalDropped     EventType = "signal-dropped"
	EventCheckpoint        EventType = "checkpoint"
	EventLog               EventType = "log"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp time.Time
	PID       ProcessID
	TID       ThreadID
	Type      EventType
	Message   string
	Err       error
}

// emitEvent sends without blocking; a full or absent channel drops the
// event.
func emitEvent(events chan<- Event, evt Event) {
	if events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case events <- evt:
	default:
	}
}
