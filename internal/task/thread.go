package task

import (
	"context"
	"slices"
	"sync"
)

// StartKind identifies how a thread begins executing.
type StartKind uint8

const (
	// StartMain is the first thread of a process. Its thread ID equals
	// the process ID and its completion object is the process's own.
	StartMain StartKind = iota
	// StartSpawn is any additional thread created at runtime.
	StartSpawn
)

// Thread is an execution unit inside a process. It carries its completion
// object, the admission guard reserving its slot in the plane-wide task
// count, and a queue of pending signals drained by the execution engine.
type Thread struct {
	pid   ProcessID
	tid   ThreadID
	main  bool
	start StartKind

	status *OwnedTaskStatus
	guard  *TaskCountGuard

	mu      sync.Mutex
	pending []Signal
	// notify carries at most one wakeup; the engine selects on it between
	// guest slices.
	notify chan struct{}
}

func newThread(pid ProcessID, tid ThreadID, main bool, status *OwnedTaskStatus, guard *TaskCountGuard, start StartKind) *Thread {
	return &Thread{
		pid:    pid,
		tid:    tid,
		main:   main,
		start:  start,
		status: status,
		guard:  guard,
		notify: make(chan struct{}, 1),
	}
}

func (t *Thread) PID() ProcessID { return t.pid }

func (t *Thread) TID() ThreadID { return t.tid }

// IsMain reports whether this is the process's main thread.
func (t *Thread) IsMain() bool { return t.main }

func (t *Thread) Start() StartKind { return t.start }

// Status returns the thread's completion object. For the main thread this
// is the same object as the process's overall completion.
func (t *Thread) Status() *OwnedTaskStatus { return t.status }

// Signal queues the signal for the thread. Duplicate pending signals
// collapse into one delivery.
func (t *Thread) Signal(sig Signal) {
	t.mu.Lock()
	if !slices.Contains(t.pending, sig) {
		t.pending = append(t.pending, sig)
	}
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// DeliverSignal implements SignalBus.
func (t *Thread) DeliverSignal(sig Signal) error {
	if !sig.Valid() {
		return ErrSignalDelivery
	}
	t.Signal(sig)
	return nil
}

// PendingSignals drains and returns the queued signals in delivery order.
func (t *Thread) PendingSignals() []Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.pending
	t.pending = nil
	return pending
}

// SignalNotify returns the channel pulsed whenever a signal is queued.
func (t *Thread) SignalNotify() <-chan struct{} {
	return t.notify
}

// ThreadHandle is the joinable handle returned by thread creation. Closing
// it removes the thread from its process's table and releases the task
// slot it was admitted under.
type ThreadHandle struct {
	thread *Thread
	state  *processState
	once   sync.Once
}

func newThreadHandle(thread *Thread, state *processState) *ThreadHandle {
	return &ThreadHandle{thread: thread, state: state}
}

// Thread returns the underlying thread.
func (h *ThreadHandle) Thread() *Thread { return h.thread }

func (h *ThreadHandle) TID() ThreadID { return h.thread.tid }

// Join suspends until the thread's completion settles.
func (h *ThreadHandle) Join(ctx context.Context) (ExitResult, error) {
	return h.thread.status.AwaitTermination(ctx)
}

// Close removes the thread from the process and releases its admission
// guard. Safe to call more than once.
func (h *ThreadHandle) Close() error {
	h.once.Do(func() {
		st := h.state
		st.mu.Lock()
		if _, ok := st.threads[h.thread.tid]; ok {
			delete(st.threads, h.thread.tid)
			st.threadCount--
		}
		st.assertThreadCount()
		st.mu.Unlock()
		h.thread.guard.Release()
	})
	return nil
}
