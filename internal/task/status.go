package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ExitCode is the code a finished task reports.
type ExitCode uint32

const (
	// ExitCodeSuccess is the conventional clean exit.
	ExitCodeSuccess ExitCode = 0
	// ExitCodeCanceled is reported when a task was torn down before it
	// produced its own code.
	ExitCodeCanceled ExitCode = 11
)

// ExitResult is the settled outcome of a task: an exit code, or the error
// that ended it.
type ExitResult struct {
	Code ExitCode
	Err  error
}

// ExitError carries an exit code through an error chain so that join
// fan-ins can recover a code from a failed child.
type ExitError struct {
	Code  ExitCode
	Cause error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task exited with code %d: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("task exited with code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// exitCodeOf extracts the code carried by err, falling back to the
// canceled code.
func exitCodeOf(err error) ExitCode {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return ExitCodeCanceled
}

// TaskStatus is a point-in-time snapshot of a task's completion state.
type TaskStatus struct {
	Finished bool
	Result   ExitResult
}

// OwnedTaskStatus is a one-shot, multi-waiter completion primitive. It
// starts Pending and settles exactly once; every waiter parked in
// AwaitTermination is released on the transition.
//
// An attached SignalBus redirects "signal this task" to whatever owns the
// status, letting a process's main-thread completion double as the
// process's own signal sink.
type OwnedTaskStatus struct {
	bus SignalBus

	mu       sync.Mutex
	finished bool
	result   ExitResult
	done     chan struct{}
}

// NewTaskStatus constructs a pending status. bus may be nil when the task
// has no richer signal target.
func NewTaskStatus(bus SignalBus) *OwnedTaskStatus {
	return &OwnedTaskStatus{
		bus:  bus,
		done: make(chan struct{}),
	}
}

// Done returns the channel closed when the status settles.
func (s *OwnedTaskStatus) Done() <-chan struct{} {
	return s.done
}

// Status returns a snapshot without suspending.
func (s *OwnedTaskStatus) Status() TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TaskStatus{Finished: s.finished, Result: s.result}
}

// TryResult returns the settled result, or nil while still pending.
func (s *OwnedTaskStatus) TryResult() *ExitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		return nil
	}
	res := s.result
	return &res
}

// AwaitTermination suspends the caller until the status settles or the
// context ends. The returned error reports only the context; the task's
// own failure travels inside the ExitResult.
func (s *OwnedTaskStatus) AwaitTermination(ctx context.Context) (ExitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, nil
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

// Finish settles a still-pending status and reports whether this call
// performed the transition. Finishing an already-settled status is a
// no-op, which makes Finish safe for forced teardown paths that may race
// the task's own exit.
func (s *OwnedTaskStatus) Finish(res ExitResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	s.result = res
	close(s.done)
	return true
}

// SetFinished settles the status. Calling it twice is a programming error
// and panics; use Finish where a second settle is expected traffic.
func (s *OwnedTaskStatus) SetFinished(res ExitResult) {
	if !s.Finish(res) {
		panic("task: status already finished")
	}
}

// Cancel traps a still-pending task into the canceled exit code.
func (s *OwnedTaskStatus) Cancel(err error) bool {
	return s.Finish(ExitResult{Code: ExitCodeCanceled, Err: err})
}

// DeliverSignal forwards the signal to the attached bus. Without a bus the
// signal is dropped, mirroring a task with nobody left to interrupt.
func (s *OwnedTaskStatus) DeliverSignal(sig Signal) error {
	if !sig.Valid() {
		return ErrSignalDelivery
	}
	if s.bus == nil {
		return nil
	}
	return s.bus.DeliverSignal(sig)
}
