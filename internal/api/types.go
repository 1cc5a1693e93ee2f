package api

import (
	stdcontext "context"
	"errors"
	"time"
)

var (
	// ErrUnknownProcess reports a lookup for a PID the plane never
	// tracked.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrNotRunning reports that no control plane is live behind the
	// API surface.
	ErrNotRunning = errors.New("control plane not running")
)

// ThreadReport describes one thread of a process.
type ThreadReport struct {
	TID      uint32 `json:"tid" yaml:"tid"`
	Main     bool   `json:"main" yaml:"main"`
	Finished bool   `json:"finished" yaml:"finished"`
	ExitCode uint32 `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
}

// IntervalReport describes an installed signal-interval schedule.
type IntervalReport struct {
	Signal uint8  `json:"signal" yaml:"signal"`
	Every  string `json:"every" yaml:"every"`
	Repeat bool   `json:"repeat" yaml:"repeat"`
}

// ProcessReport describes the runtime state of a single process.
type ProcessReport struct {
	PID       uint32           `json:"pid" yaml:"pid"`
	PPID      uint32           `json:"ppid" yaml:"ppid"`
	Module    string           `json:"module" yaml:"module"`
	State     string           `json:"state" yaml:"state"`
	ExitCode  uint32           `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Threads   []ThreadReport   `json:"threads" yaml:"threads"`
	Children  []uint32         `json:"children" yaml:"children"`
	Intervals []IntervalReport `json:"intervals,omitempty" yaml:"intervals,omitempty"`
}

// StatusReport aggregates plane-wide status information.
type StatusReport struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	ActiveTasks int             `json:"active_tasks" yaml:"active_tasks"`
	Processes   []ProcessReport `json:"processes" yaml:"processes"`
}

// Controller exposes the plane inspection operations control servers need.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Process(stdcontext.Context, uint32) (*ProcessReport, error)
}
