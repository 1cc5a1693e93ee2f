// Package engine drives synthetic guest workloads against the control
// plane. It is the minimal form of the execution-engine collaborator: it
// runs one goroutine per thread, drains pending signals between slices,
// fires due interval signals, consults the CPU backoff controller while
// idle, and settles thread statuses the way a real computation unit would.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wasmvisor/wasmvisor/internal/config"
	"github.com/wasmvisor/wasmvisor/internal/metrics"
	"github.com/wasmvisor/wasmvisor/internal/task"
)

const defaultSlice = 10 * time.Millisecond

// IntervalSetting schedules a recurring signal on a workload's process.
type IntervalSetting struct {
	Signal task.Signal
	Every  time.Duration
	Repeat bool
}

// WorkloadSpec describes one synthetic guest process.
type WorkloadSpec struct {
	Name      string
	Module    string
	Threads   int
	Lifespan  time.Duration
	ExitCode  task.ExitCode
	Intervals []IntervalSetting
	Children  []WorkloadSpec
}

// SpecsFromManifest flattens the manifest's workload table into specs,
// ordered by name so runs are reproducible.
func SpecsFromManifest(doc *config.Manifest) []WorkloadSpec {
	return specsFromWorkloads(doc.Workloads)
}

func specsFromWorkloads(workloads map[string]*config.Workload) []WorkloadSpec {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]WorkloadSpec, 0, len(names))
	for _, name := range names {
		wl := workloads[name]
		spec := WorkloadSpec{
			Name:     name,
			Module:   wl.Module,
			Threads:  wl.Threads,
			Lifespan: wl.Lifespan.Duration,
			ExitCode: task.ExitCode(wl.ExitCode),
			Children: specsFromWorkloads(wl.Children),
		}
		for _, iv := range wl.Intervals {
			spec.Intervals = append(spec.Intervals, IntervalSetting{
				Signal: task.Signal(iv.Signal),
				Every:  iv.Every.Duration,
				Repeat: iv.Repeat,
			})
		}
		specs = append(specs, spec)
	}
	return specs
}

// Option configures an Engine.
type Option func(*Engine)

// WithSlice overrides the guest slice quantum.
func WithSlice(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slice = d
		}
	}
}

// Engine runs workloads on a control plane.
type Engine struct {
	plane  *task.ControlPlane
	events chan<- task.Event

	slice time.Duration
	now   func() time.Time

	wg sync.WaitGroup
}

// New constructs an engine. events may be nil.
func New(plane *task.ControlPlane, events chan<- task.Event, opts ...Option) *Engine {
	e := &Engine{
		plane:  plane,
		events: events,
		slice:  defaultSlice,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartWorkload launches the workload and its children, returning the root
// process. Thread goroutines keep running until the workload ends, a
// terminating signal arrives, or ctx is cancelled.
func (e *Engine) StartWorkload(ctx context.Context, spec WorkloadSpec) (*task.Process, error) {
	return e.startWorkload(ctx, nil, spec)
}

func (e *Engine) startWorkload(ctx context.Context, parent *task.Process, spec WorkloadSpec) (*task.Process, error) {
	moduleHash := task.HashModule([]byte(spec.Module))

	var proc *task.Process
	var err error
	if parent == nil {
		proc, err = e.plane.NewProcess(moduleHash)
	} else {
		proc, err = parent.NewChildProcess(moduleHash)
	}
	if err != nil {
		return nil, fmt.Errorf("workload %s: create process: %w", spec.Name, err)
	}
	metrics.IncProcessesCreated()

	for _, iv := range spec.Intervals {
		proc.SetSignalInterval(iv.Signal, iv.Every, iv.Repeat)
	}

	threads := spec.Threads
	if threads < 1 {
		threads = 1
	}
	handles := make([]*task.ThreadHandle, 0, threads)
	for i := 0; i < threads; i++ {
		start := task.StartSpawn
		if i == 0 {
			start = task.StartMain
		}
		handle, err := proc.NewThread(start)
		if err != nil {
			metrics.IncAdmissionsRejected()
			for _, h := range handles {
				h.Thread().Status().Cancel(err)
				h.Close()
			}
			return nil, fmt.Errorf("workload %s: thread %d: %w", spec.Name, i, err)
		}
		handles = append(handles, handle)
	}

	for _, handle := range handles {
		e.wg.Add(1)
		go e.runThread(ctx, spec, proc, handle)
	}
	metrics.SetActiveTasks(e.plane.ActiveTasks())

	for _, child := range spec.Children {
		if _, err := e.startWorkload(ctx, proc, child); err != nil {
			return nil, err
		}
	}
	return proc, nil
}

// Wait blocks until every thread goroutine has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// WaitDone returns a channel closed once every thread goroutine finished.
func (e *Engine) WaitDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	return done
}

func (e *Engine) runThread(ctx context.Context, spec WorkloadSpec, proc *task.Process, handle *task.ThreadHandle) {
	defer e.wg.Done()
	defer handle.Close()
	defer metrics.SetActiveTasks(e.plane.ActiveTasks())

	thread := handle.Thread()
	metrics.IncThreadsStarted(spec.Name)

	busy := spec.Lifespan > 0
	if busy {
		token := proc.AcquireRunToken()
		defer token.Release()
	}
	deadline := e.now().Add(spec.Lifespan)

	for {
		// Terminate only settles bookkeeping; noticing it promptly
		// between slices is this loop's job.
		if res := thread.Status().TryResult(); res != nil {
			e.emitExit(spec, thread, *res)
			return
		}

		pending := thread.PendingSignals()
		metrics.AddSignalsDelivered(spec.Name, len(pending))
		for _, sig := range pending {
			if terminating(sig) {
				res := task.ExitResult{Code: 128 + task.ExitCode(sig)}
				thread.Status().Finish(res)
				e.emitExit(spec, thread, res)
				return
			}
		}

		if thread.IsMain() {
			for _, sig := range proc.DueIntervalSignals(e.now()) {
				proc.SignalThread(thread.TID(), sig)
			}
		}

		if busy && !e.now().Before(deadline) {
			res := task.ExitResult{Code: spec.ExitCode}
			thread.Status().Finish(res)
			e.emitExit(spec, thread, res)
			return
		}

		pause := e.slice
		if !busy {
			if p := proc.Backoff().NextPause(); p > 0 {
				pause = p
				metrics.ObserveBackoffPause(p)
			}
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			res := task.ExitResult{Code: task.ExitCodeCanceled, Err: ctx.Err()}
			thread.Status().Finish(res)
			e.emitExit(spec, thread, res)
			return
		case <-thread.SignalNotify():
			timer.Stop()
		case <-thread.Status().Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (e *Engine) emitExit(spec WorkloadSpec, thread *task.Thread, res task.ExitResult) {
	if e.events == nil {
		return
	}
	evt := task.Event{
		Timestamp: e.now(),
		PID:       thread.PID(),
		TID:       thread.TID(),
		Type:      task.EventThreadExited,
		Message:   fmt.Sprintf("%s exited with code %d", spec.Name, res.Code),
		Err:       res.Err,
	}
	select {
	case e.events <- evt:
	default:
	}
}

// terminating reports whether the signal ends the receiving thread.
func terminating(sig task.Signal) bool {
	switch sig {
	case task.Sigkill, task.Sigterm, task.Sigint, task.Sigquit:
		return true
	}
	return false
}
