package config

import (
	"time"

	"github.com/wasmvisor/wasmvisor/internal/task"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalText parses values like "500ms" or "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Manifest is the top-level plane definition file.
type Manifest struct {
	Plane     PlaneSpec            `yaml:"plane"`
	API       APISpec              `yaml:"api"`
	Workloads map[string]*Workload `yaml:"workloads"`
}

// PlaneSpec configures the control plane itself.
type PlaneSpec struct {
	// MaxTasks caps total live tasks (processes plus threads). Omitted
	// means unlimited.
	MaxTasks *int `yaml:"max_tasks"`
	// AsyncThreading opts in to spawning threads beyond each process's
	// main thread.
	AsyncThreading bool `yaml:"async_threading"`
	// CPUBackoff enables exponential CPU backoff for idle processes.
	CPUBackoff *BackoffSpec `yaml:"cpu_backoff"`
}

// BackoffSpec bounds the idle-CPU backoff window.
type BackoffSpec struct {
	Max     Duration `yaml:"max"`
	CoolOff Duration `yaml:"cool_off"`
}

// APISpec configures the HTTP control surface.
type APISpec struct {
	Listen string `yaml:"listen"`
}

// Workload declares a synthetic guest process run by the engine.
type Workload struct {
	// Module names the compiled artifact; it is hashed into the module
	// identity the plane tracks.
	Module string `yaml:"module"`
	// Threads is the number of execution threads, main included.
	Threads int `yaml:"threads"`
	// Lifespan is how long each thread runs before exiting on its own.
	// Zero means idle: run until a terminating signal arrives.
	Lifespan Duration `yaml:"lifespan"`
	// ExitCode is reported when the workload ends by itself.
	ExitCode uint32 `yaml:"exit_code"`
	// Intervals installs recurring signal deliveries on the process.
	Intervals []IntervalSpec `yaml:"intervals"`
	// Children are workloads supervised by this one.
	Children map[string]*Workload `yaml:"children"`
}

// IntervalSpec declares one signal-interval schedule.
type IntervalSpec struct {
	Signal uint8    `yaml:"signal"`
	Every  Duration `yaml:"every"`
	Repeat bool     `yaml:"repeat"`
}

// PlaneConfig maps the manifest onto the control plane's configuration.
func (m *Manifest) PlaneConfig() task.Config {
	cfg := task.Config{
		MaxTasks:       m.Plane.MaxTasks,
		AsyncThreading: m.Plane.AsyncThreading,
	}
	if spec := m.Plane.CPUBackoff; spec != nil {
		cfg.CPUBackoff = &task.BackoffConfig{
			Max:     spec.Max.Duration,
			CoolOff: spec.CoolOff.Duration,
		}
	}
	return cfg
}
