package task

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"weak"
)

// Config carries the construction-time options for a control plane.
type Config struct {
	// MaxTasks caps the total number of live tasks (processes plus
	// threads) admitted across the plane. Nil disables enforcement.
	MaxTasks *int
	// AsyncThreading opts in to spawning additional threads beyond the
	// main thread of each process.
	AsyncThreading bool
	// CPUBackoff enables exponential CPU backoff for idle processes and
	// bounds the suggested pause. Nil disables backoff entirely.
	CPUBackoff *BackoffConfig
}

// ControlPlane is the owning handle for plane-wide state: the admission
// counter, the process ID allocator and the table of live processes.
type ControlPlane struct {
	state *planeState
}

type planeState struct {
	cfg    Config
	events chan<- Event

	// taskCount tracks live tasks across every process. It is atomic so
	// that admission never serialises behind per-process locks.
	taskCount atomic.Int64

	mu        sync.Mutex
	idSeed    uint32
	processes map[ProcessID]*Process
}

// Option configures a ControlPlane at construction.
type Option func(*planeState)

// WithEvents attaches a channel receiving lifecycle events. Sends never
// block; events are dropped when the channel is full.
func WithEvents(events chan<- Event) Option {
	return func(s *planeState) {
		s.events = events
	}
}

// New constructs an empty control plane: zero tasks, zero processes, ID
// seed 0.
func New(cfg Config, opts ...Option) *ControlPlane {
	state := &planeState{
		cfg:       cfg,
		processes: make(map[ProcessID]*Process),
	}
	for _, opt := range opts {
		opt(state)
	}
	return &ControlPlane{state: state}
}

// Config returns the configuration the plane was constructed with.
func (p *ControlPlane) Config() Config {
	return p.state.cfg
}

// Handle issues a weak, upgradeable reference to the plane. Processes hold
// handles rather than the plane itself so that finished planes are not kept
// alive through their own registry entries.
func (p *ControlPlane) Handle() Handle {
	return Handle{state: weak.Make(p.state)}
}

// ActiveTasks reports the current number of admitted tasks.
func (p *ControlPlane) ActiveTasks() int {
	return int(p.state.taskCount.Load())
}

// RegisterTask reserves one task slot and returns the guard that releases
// it. When the plane was configured with MaxTasks the reservation fails
// with a TaskLimitError once the cap is reached.
func (p *ControlPlane) RegisterTask() (*TaskCountGuard, error) {
	s := p.state
	if max := s.cfg.MaxTasks; max != nil {
		for {
			cur := s.taskCount.Load()
			if cur >= int64(*max) {
				return nil, &TaskLimitError{Max: *max}
			}
			if s.taskCount.CompareAndSwap(cur, cur+1) {
				break
			}
		}
	} else {
		s.taskCount.Add(1)
	}
	return &TaskCountGuard{count: &s.taskCount}, nil
}

// NewProcess allocates a process running the identified module, registers
// it and returns the shared handle. Allocation happens before the registry
// lock is taken; the ID mint and the map insert share one acquisition so
// no ID is ever issued without a matching entry.
func (p *ControlPlane) NewProcess(moduleHash ModuleHash) (*Process, error) {
	proc := newProcess(0, moduleHash, p.Handle(), p.state.cfg.CPUBackoff, p.state.events)

	s := p.state
	s.mu.Lock()
	pid, err := s.nextID()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	proc.setPID(pid)
	s.processes[pid] = proc
	s.mu.Unlock()

	emitEvent(s.events, Event{PID: pid, Type: EventProcessCreated, Message: "process created"})
	return proc, nil
}

// GenerateID mints a fresh ID from the shared process/thread namespace.
func (p *ControlPlane) GenerateID() (ProcessID, error) {
	s := p.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID()
}

// GetProcess looks up a tracked process by ID.
func (p *ControlPlane) GetProcess(pid ProcessID) *Process {
	s := p.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[pid]
}

// Processes returns a snapshot of every tracked process. Finished
// processes remain tracked; entries are never reclaimed.
func (p *ControlPlane) Processes() []*Process {
	s := p.state
	s.mu.Lock()
	defer s.mu.Unlock()
	procs := make([]*Process, 0, len(s.processes))
	for _, proc := range s.processes {
		procs = append(procs, proc)
	}
	return procs
}

func (s *planeState) nextID() (ProcessID, error) {
	// Terminated IDs are not recycled; running out of the 32-bit space is
	// a hard failure rather than a silent reuse.
	if s.idSeed == math.MaxUint32 {
		return 0, &TaskLimitError{Max: math.MaxUint32}
	}
	s.idSeed++
	return ProcessID(s.idSeed), nil
}

// Handle is a weak, upgradeable reference to a control plane. It lets a
// process call back into the plane without keeping it alive and without
// forming a reference cycle.
type Handle struct {
	state weak.Pointer[planeState]
}

// Upgrade resolves the handle, reporting false once the plane is gone.
func (h Handle) Upgrade() (*ControlPlane, bool) {
	state := h.state.Value()
	if state == nil {
		return nil, false
	}
	return &ControlPlane{state: state}, true
}

// MustUpgrade resolves the handle or panics. A missing plane during normal
// operation is a programmer error, not a recoverable state.
func (h Handle) MustUpgrade() *ControlPlane {
	plane, ok := h.Upgrade()
	if !ok {
		panic("task: control plane unavailable")
	}
	return plane
}

// TaskCountGuard proves one reserved slot in the plane-wide task count and
// gives it back on Release.
type TaskCountGuard struct {
	count *atomic.Int64
	once  sync.Once
}

// Release returns the reserved slot. It is safe to call more than once and
// on a nil guard.
func (g *TaskCountGuard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.count.Add(-1)
	})
}

// TaskLimitError reports that the maximum number of execution tasks has
// been reached.
type TaskLimitError struct {
	Max int
}

func (e *TaskLimitError) Error() string {
	return fmt.Sprintf("the maximum number of execution tasks has been reached (%d)", e.Max)
}

// Is makes the error match the ErrTaskLimit sentinel.
func (e *TaskLimitError) Is(target error) bool {
	return target == ErrTaskLimit
}
