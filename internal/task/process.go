package task

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

// Checkpoint is a process-wide freeze state used to coordinate whole-state
// operations (snapshots) with running threads.
type Checkpoint uint8

const (
	// CheckpointExecute is the normal state: no checkpoint takes place and
	// threads execute as usual.
	CheckpointExecute Checkpoint = iota
)

// Process is the externally shared handle for a logical process: identity,
// module identity, a weak link to its parent, the guarded state body, a
// weak handle back to the plane, and the completion object of its main
// thread (which is also the process's overall completion).
type Process struct {
	pid        ProcessID
	moduleHash ModuleHash
	parent     weak.Pointer[processState]
	state      *processState
	plane      Handle
	finished   *OwnedTaskStatus

	// waiting counts threads blocked in a join/wait call; signal routing
	// consults it to redirect delivery to supervised children.
	waiting *atomic.Int32
	// runTokens counts active reasons to keep the CPU unthrottled.
	runTokens *atomic.Int32
}

// processState is the mutable body of a process, guarded by one mutex plus
// a condition used for checkpoint transitions.
type processState struct {
	mu   sync.Mutex
	cond *sync.Cond

	pid     ProcessID
	waiting *atomic.Int32

	threads     map[ThreadID]*Thread
	threadCount uint32

	signalIntervals map[Signal]*IntervalSpec
	children        []*Process

	checkpoint                       Checkpoint
	disableJournalingAfterCheckpoint bool
	// wakers are pulsed once on the next checkpoint transition.
	wakers []chan<- struct{}

	backoff *CPUBackoff
	events  chan<- Event
}

// thread_count must track the table exactly; divergence is a programming
// bug, not a recoverable runtime state.
func (st *processState) assertThreadCount() {
	if st.threadCount != uint32(len(st.threads)) {
		panic(fmt.Sprintf("task: thread count %d diverged from table size %d", st.threadCount, len(st.threads)))
	}
}

// stateSignalBus re-broadcasts any signal received by the process's
// completion object into the process itself.
type stateSignalBus struct {
	state *processState
}

func (b stateSignalBus) DeliverSignal(sig Signal) error {
	if !sig.Valid() {
		return ErrSignalDelivery
	}
	signalProcessState(b.state, sig)
	return nil
}

func newProcess(pid ProcessID, moduleHash ModuleHash, plane Handle, backoff *BackoffConfig, events chan<- Event) *Process {
	waiting := new(atomic.Int32)
	runTokens := new(atomic.Int32)

	st := &processState{
		pid:             pid,
		waiting:         waiting,
		threads:         make(map[ThreadID]*Thread),
		signalIntervals: make(map[Signal]*IntervalSpec),
		checkpoint:      CheckpointExecute,
		backoff:         newCPUBackoff(backoff, runTokens),
		events:          events,
	}
	st.cond = sync.NewCond(&st.mu)

	return &Process{
		pid:        pid,
		moduleHash: moduleHash,
		state:      st,
		plane:      plane,
		finished:   NewTaskStatus(stateSignalBus{state: st}),
		waiting:    waiting,
		runTokens:  runTokens,
	}
}

// setPID stamps the registry-minted ID. Called exactly once, before the
// process is shared.
func (p *Process) setPID(pid ProcessID) {
	p.pid = pid
	p.state.pid = pid
}

// PID returns the process ID.
func (p *Process) PID() ProcessID { return p.pid }

// PPID returns the parent process ID, or 0 when there is no parent or the
// parent is already gone.
func (p *Process) PPID() ProcessID {
	parent := p.parent.Value()
	if parent == nil {
		return 0
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	return parent.pid
}

// ModuleHash identifies the compiled artifact this process runs.
func (p *Process) ModuleHash() ModuleHash { return p.moduleHash }

// Status returns the process's completion object. It is the main thread's
// status: terminating the main thread terminates the process.
func (p *Process) Status() *OwnedTaskStatus { return p.finished }

// NewChildProcess allocates and registers a process supervised by this
// one: the child holds a weak link back to this process's state and is
// appended to the child list.
func (p *Process) NewChildProcess(moduleHash ModuleHash) (*Process, error) {
	plane := p.plane.MustUpgrade()
	child, err := plane.NewProcess(moduleHash)
	if err != nil {
		return nil, err
	}
	child.parent = weak.Make(p.state)

	p.state.mu.Lock()
	p.state.children = append(p.state.children, child)
	p.state.mu.Unlock()
	return child, nil
}

// NewThread creates a thread. The main thread reuses the process ID as its
// thread ID; any other thread mints a fresh ID from the plane's shared
// namespace.
func (p *Process) NewThread(start StartKind) (*ThreadHandle, error) {
	plane := p.plane.MustUpgrade()

	var tid ThreadID
	if start == StartMain {
		tid = ThreadID(p.pid)
	} else {
		id, err := plane.GenerateID()
		if err != nil {
			return nil, err
		}
		tid = ThreadID(id)
	}
	return p.NewThreadWithID(start, tid)
}

// NewThreadWithID creates a thread under a caller-chosen ID. One task slot
// is reserved for the thread; failure to admit fails the whole call.
func (p *Process) NewThreadWithID(start StartKind, tid ThreadID) (*ThreadHandle, error) {
	plane := p.plane.MustUpgrade()
	guard, err := plane.RegisterTask()
	if err != nil {
		return nil, err
	}

	isMain := start == StartMain

	st := p.state
	st.mu.Lock()
	if _, exists := st.threads[tid]; exists {
		st.mu.Unlock()
		guard.Release()
		return nil, fmt.Errorf("%w: tid %d", ErrDuplicateThread, tid)
	}
	// The main thread's completion is the process's own; other threads
	// settle independently.
	status := p.finished
	if !isMain {
		status = NewTaskStatus(nil)
	}
	thread := newThread(p.pid, tid, isMain, status, guard, start)
	st.threads[tid] = thread
	st.threadCount++
	st.assertThreadCount()
	st.mu.Unlock()

	emitEvent(st.events, Event{PID: p.pid, TID: tid, Type: EventThreadStarted, Message: "thread started"})
	return newThreadHandle(thread, st), nil
}

// GetThread returns the identified thread, or nil.
func (p *Process) GetThread(tid ThreadID) *Thread {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.threads[tid]
}

// Threads returns a snapshot of the tracked threads.
func (p *Process) Threads() []*Thread {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	threads := make([]*Thread, 0, len(st.threads))
	for _, thread := range st.threads {
		threads = append(threads, thread)
	}
	slices.SortFunc(threads, func(a, b *Thread) int { return int(a.tid) - int(b.tid) })
	return threads
}

// ActiveThreads reports the number of threads currently tracked.
func (p *Process) ActiveThreads() uint32 {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.threadCount
}

// SignalThread delivers a signal to one thread. The sentinel TID resolves
// to the process itself. A missing target drops the signal; mismatches are
// expected traffic, not faults.
func (p *Process) SignalThread(tid ThreadID, sig Signal) {
	if tid == SentinelProcessTID {
		tid = ThreadID(p.pid)
	}

	st := p.state
	st.mu.Lock()
	thread := st.threads[tid]
	st.mu.Unlock()

	if thread == nil {
		emitEvent(st.events, Event{
			PID:     p.pid,
			TID:     tid,
			Type:    EventSignalDropped,
			Message: fmt.Sprintf("lost signal %d: no such thread", sig),
		})
		return
	}
	thread.Signal(sig)
}

// SignalProcess delivers a signal to the process as a whole: to its
// waiting children when it is blocked supervising them, otherwise to every
// thread in its table.
func (p *Process) SignalProcess(sig Signal) {
	signalProcessState(p.state, sig)
}

// DeliverSignal implements SignalBus.
func (p *Process) DeliverSignal(sig Signal) error {
	if !sig.Valid() {
		return ErrSignalDelivery
	}
	p.SignalProcess(sig)
	return nil
}

// signalProcessState routes a signal. A process with threads blocked in a
// wait call and live children is acting as a supervisor, so the signal is
// forwarded to the children it is waiting on instead of its own threads.
func signalProcessState(st *processState, sig Signal) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.waiting.Load() > 0 && len(st.children) > 0 {
		for _, child := range st.children {
			child.SignalProcess(sig)
		}
		return
	}

	for _, thread := range st.threads {
		thread.Signal(sig)
	}
}

// SetSignalInterval installs (or replaces) a schedule redelivering sig
// every interval, stamped against the monotonic clock.
func (p *Process) SetSignalInterval(sig Signal, interval time.Duration, repeat bool) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.signalIntervals[sig] = &IntervalSpec{
		Signal:     sig,
		Interval:   interval,
		LastSignal: time.Now(),
		Repeat:     repeat,
	}
}

// ClearSignalInterval removes any schedule for sig.
func (p *Process) ClearSignalInterval(sig Signal) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.signalIntervals, sig)
}

// SignalIntervals returns a snapshot of the installed schedules.
func (p *Process) SignalIntervals() []IntervalSpec {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	specs := make([]IntervalSpec, 0, len(st.signalIntervals))
	for _, spec := range st.signalIntervals {
		specs = append(specs, *spec)
	}
	slices.SortFunc(specs, func(a, b IntervalSpec) int { return int(a.Signal) - int(b.Signal) })
	return specs
}

// DueIntervalSignals returns every scheduled signal whose interval has
// elapsed at now, restamping repeating entries and retiring one-shot ones.
// The execution loop calls this between guest slices.
func (p *Process) DueIntervalSignals(now time.Time) []Signal {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()

	var due []Signal
	for sig, spec := range st.signalIntervals {
		if now.Sub(spec.LastSignal) < spec.Interval {
			continue
		}
		due = append(due, sig)
		if spec.Repeat {
			spec.LastSignal = now
		} else {
			delete(st.signalIntervals, sig)
		}
	}
	slices.Sort(due)
	return due
}

// beginWait marks one thread of this process as blocked waiting; the
// returned release is scope-bound and idempotent.
func (p *Process) beginWait() func() {
	p.waiting.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			p.waiting.Add(-1)
		})
	}
}

// Join suspends until the process's completion settles. While waiting the
// process counts as blocked-on-children for signal routing.
func (p *Process) Join(ctx context.Context) (ExitResult, error) {
	release := p.beginWait()
	defer release()
	return p.finished.AwaitTermination(ctx)
}

// TryJoin polls the completion without suspending; nil while pending.
func (p *Process) TryJoin() *ExitResult {
	return p.finished.TryResult()
}

// JoinChildren joins every child concurrently, removing each from the
// child list as its join settles, and returns the first result observed by
// the fan-in. A nil result with a nil error means there were no children
// at call time. The call returns only after every child has settled.
func (p *Process) JoinChildren(ctx context.Context) (*ExitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	release := p.beginWait()
	defer release()

	children := p.snapshotChildren()
	if len(children) == 0 {
		return nil, nil
	}

	plane := p.plane.MustUpgrade()
	results := make(chan ExitResult, len(children))
	var wg sync.WaitGroup
	for _, child := range children {
		proc := plane.GetProcess(child.PID())
		if proc == nil {
			continue
		}
		wg.Add(1)
		go func(proc *Process) {
			defer wg.Done()
			res, err := proc.Join(ctx)
			if err != nil {
				return
			}
			p.removeChild(proc.PID())
			results <- res
		}(proc)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case res := <-results:
		return &res, nil
	default:
		return nil, nil
	}
}

// JoinAnyChild races every child's join and reaps the first to settle,
// removing only that child from the list. With no children it fails with
// ErrNoChild. A child that settled with an error is reported through the
// exit code it carried, or the canceled code.
func (p *Process) JoinAnyChild(ctx context.Context) (ProcessID, ExitCode, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	release := p.beginWait()
	defer release()

	children := p.snapshotChildren()
	if len(children) == 0 {
		return 0, 0, ErrNoChild
	}

	type settled struct {
		pid ProcessID
		res ExitResult
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	plane := p.plane.MustUpgrade()
	ch := make(chan settled, len(children))
	started := 0
	for _, child := range children {
		proc := plane.GetProcess(child.PID())
		if proc == nil {
			continue
		}
		started++
		go func(proc *Process) {
			res, err := proc.Join(raceCtx)
			if err != nil {
				return
			}
			ch <- settled{pid: proc.PID(), res: res}
		}(proc)
	}
	if started == 0 {
		return 0, 0, ErrNoChild
	}

	select {
	case s := <-ch:
		p.removeChild(s.pid)
		code := s.res.Code
		if s.res.Err != nil {
			code = exitCodeOf(s.res.Err)
		}
		return s.pid, code, nil
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

func (p *Process) snapshotChildren() []*Process {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return slices.Clone(st.children)
}

// Children returns the live child list.
func (p *Process) Children() []*Process {
	return p.snapshotChildren()
}

func (p *Process) removeChild(pid ProcessID) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.children = slices.DeleteFunc(st.children, func(c *Process) bool {
		return c.PID() == pid
	})
}

// Terminate marks every currently tracked thread as finished with the
// given code. It only settles bookkeeping: in-flight execution must notice
// the finished status and stop on its own.
func (p *Process) Terminate(code ExitCode) {
	st := p.state
	st.mu.Lock()
	threads := make([]*Thread, 0, len(st.threads))
	for _, thread := range st.threads {
		threads = append(threads, thread)
	}
	st.mu.Unlock()

	for _, thread := range threads {
		thread.status.Finish(ExitResult{Code: code})
	}
	emitEvent(st.events, Event{PID: p.pid, Type: EventProcessTerminated, Message: fmt.Sprintf("terminated with code %d", code)})
}

// AcquireRunToken marks the process as having pending work, lifting any
// CPU throttling until the token is released.
func (p *Process) AcquireRunToken() *RunToken {
	p.runTokens.Add(1)
	p.state.backoff.reset()
	return &RunToken{tokens: p.runTokens}
}

// Backoff returns the process's CPU backoff controller.
func (p *Process) Backoff() *CPUBackoff {
	return p.state.backoff
}

// Checkpoint returns the current checkpoint state.
func (p *Process) Checkpoint() Checkpoint {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.checkpoint
}

// SetCheckpoint transitions the checkpoint state, waking the condition and
// pulsing every registered waker once.
func (p *Process) SetCheckpoint(c Checkpoint) {
	st := p.state
	st.mu.Lock()
	st.checkpoint = c
	wakers := st.wakers
	st.wakers = nil
	st.cond.Broadcast()
	st.mu.Unlock()

	for _, w := range wakers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	emitEvent(st.events, Event{PID: p.pid, Type: EventCheckpoint, Message: "checkpoint transition"})
}

// RegisterCheckpointWaker registers a channel pulsed on the next
// checkpoint transition. The channel should be buffered.
func (p *Process) RegisterCheckpointWaker(w chan<- struct{}) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.wakers = append(st.wakers, w)
}

// SetDisableJournalingAfterCheckpoint flags journaling to stop after the
// next checkpoint is taken.
func (p *Process) SetDisableJournalingAfterCheckpoint(disable bool) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.disableJournalingAfterCheckpoint = disable
}

// DisableJournalingAfterCheckpoint reads the journaling flag.
func (p *Process) DisableJournalingAfterCheckpoint() bool {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.disableJournalingAfterCheckpoint
}
