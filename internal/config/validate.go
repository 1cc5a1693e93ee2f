package config

import (
	"fmt"

	"github.com/wasmvisor/wasmvisor/internal/task"
)

// Validate checks the manifest for inconsistencies a running plane would
// only surface later.
func (m *Manifest) Validate() error {
	if m.Plane.MaxTasks != nil && *m.Plane.MaxTasks <= 0 {
		return fmt.Errorf("plane.max_tasks: must be positive, got %d", *m.Plane.MaxTasks)
	}
	if spec := m.Plane.CPUBackoff; spec != nil {
		if spec.Max.Duration < 0 {
			return fmt.Errorf("plane.cpu_backoff.max: must not be negative")
		}
		if spec.CoolOff.Duration < 0 {
			return fmt.Errorf("plane.cpu_backoff.cool_off: must not be negative")
		}
	}

	for name, wl := range m.Workloads {
		if err := m.validateWorkload(name, wl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manifest) validateWorkload(name string, wl *Workload) error {
	if wl == nil {
		return fmt.Errorf("workload %s: is empty", name)
	}
	if wl.Module == "" {
		return fmt.Errorf("workload %s: module is required", name)
	}
	if wl.Threads < 0 {
		return fmt.Errorf("workload %s: threads must not be negative", name)
	}
	if wl.Threads > 1 && !m.Plane.AsyncThreading {
		return fmt.Errorf("workload %s: %d threads requires plane.async_threading", name, wl.Threads)
	}
	if wl.Lifespan.Duration < 0 {
		return fmt.Errorf("workload %s: lifespan must not be negative", name)
	}
	for i, iv := range wl.Intervals {
		if !task.Signal(iv.Signal).Valid() {
			return fmt.Errorf("workload %s: intervals[%d]: signal %d outside the deliverable set", name, i, iv.Signal)
		}
		if iv.Every.Duration <= 0 {
			return fmt.Errorf("workload %s: intervals[%d]: every must be positive", name, i)
		}
	}
	for childName, child := range wl.Children {
		if err := m.validateWorkload(name+"."+childName, child); err != nil {
			return err
		}
	}
	return nil
}
