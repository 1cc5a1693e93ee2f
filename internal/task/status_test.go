package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTaskStatusConcurrentWaitersObserveOneResult(t *testing.T) {
	status := NewTaskStatus(nil)

	const waiters = 4
	results := make(chan ExitResult, waiters)
	var started sync.WaitGroup
	for i := 0; i < waiters; i++ {
		started.Add(1)
		go func() {
			started.Done()
			res, err := status.AwaitTermination(context.Background())
			if err != nil {
				t.Errorf("await: %v", err)
				return
			}
			results <- res
		}()
	}
	started.Wait()

	if got := status.Status(); got.Finished {
		t.Fatal("status finished before SetFinished")
	}

	status.SetFinished(ExitResult{Code: 42})

	deadline := time.After(time.Second)
	for i := 0; i < waiters; i++ {
		select {
		case res := <-results:
			if res.Code != 42 {
				t.Fatalf("waiter saw code %d, want 42", res.Code)
			}
		case <-deadline:
			t.Fatal("timed out waiting for waiters to settle")
		}
	}
}

func TestTaskStatusSetFinishedTwicePanics(t *testing.T) {
	status := NewTaskStatus(nil)
	status.SetFinished(ExitResult{Code: 1})

	defer func() {
		if recover() == nil {
			t.Fatal("second SetFinished did not panic")
		}
	}()
	status.SetFinished(ExitResult{Code: 2})
}

func TestTaskStatusFinishIsIdempotent(t *testing.T) {
	status := NewTaskStatus(nil)
	if !status.Finish(ExitResult{Code: 7}) {
		t.Fatal("first Finish reported no transition")
	}
	if status.Finish(ExitResult{Code: 9}) {
		t.Fatal("second Finish reported a transition")
	}
	if res := status.TryResult(); res == nil || res.Code != 7 {
		t.Fatalf("result = %v, want code 7", res)
	}
}

func TestTaskStatusCancel(t *testing.T) {
	status := NewTaskStatus(nil)
	cause := errors.New("torn down")
	if !status.Cancel(cause) {
		t.Fatal("cancel reported no transition")
	}
	res := status.TryResult()
	if res == nil || res.Code != ExitCodeCanceled || !errors.Is(res.Err, cause) {
		t.Fatalf("result = %+v, want canceled with cause", res)
	}
}

func TestTaskStatusAwaitRespectsContext(t *testing.T) {
	status := NewTaskStatus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := status.AwaitTermination(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("await error = %v, want context.Canceled", err)
	}
}

type recordingBus struct {
	mu   sync.Mutex
	sigs []Signal
}

func (b *recordingBus) DeliverSignal(sig Signal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sigs = append(b.sigs, sig)
	return nil
}

func (b *recordingBus) delivered() []Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Signal(nil), b.sigs...)
}

func TestTaskStatusSignalRedirection(t *testing.T) {
	bus := &recordingBus{}
	status := NewTaskStatus(bus)

	if err := status.DeliverSignal(Sigterm); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got := bus.delivered(); len(got) != 1 || got[0] != Sigterm {
		t.Fatalf("bus saw %v, want [Sigterm]", got)
	}

	if err := status.DeliverSignal(Signal(200)); !errors.Is(err, ErrSignalDelivery) {
		t.Fatalf("invalid signal error = %v, want ErrSignalDelivery", err)
	}
}

func TestTaskStatusWithoutBusDropsSignals(t *testing.T) {
	status := NewTaskStatus(nil)
	if err := status.DeliverSignal(Sigint); err != nil {
		t.Fatalf("deliver without bus: %v", err)
	}
}

func TestExitCodeOf(t *testing.T) {
	if got := exitCodeOf(errors.New("plain")); got != ExitCodeCanceled {
		t.Fatalf("plain error code = %d, want canceled", got)
	}
	err := &ExitError{Code: 77, Cause: errors.New("boom")}
	if got := exitCodeOf(err); got != 77 {
		t.Fatalf("exit error code = %d, want 77", got)
	}
}
