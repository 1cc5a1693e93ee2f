package task

import (
	"errors"
	"testing"
	"time"
)

func TestThreadSignalNotify(t *testing.T) {
	_, proc := newTestProcess(t)
	handle, err := proc.NewThread(StartMain)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	defer handle.Close()
	thread := handle.Thread()

	thread.Signal(Sigterm)
	select {
	case <-thread.SignalNotify():
	case <-time.After(time.Second):
		t.Fatal("no wakeup after signal")
	}

	if got := thread.PendingSignals(); len(got) != 1 || got[0] != Sigterm {
		t.Fatalf("pending = %v, want [Sigterm]", got)
	}
	if got := thread.PendingSignals(); len(got) != 0 {
		t.Fatalf("second drain = %v, want empty", got)
	}
}

func TestThreadPendingPreservesDeliveryOrder(t *testing.T) {
	_, proc := newTestProcess(t)
	handle, err := proc.NewThread(StartMain)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	defer handle.Close()
	thread := handle.Thread()

	thread.Signal(Sigusr1)
	thread.Signal(Sigusr2)
	thread.Signal(Sigusr1)

	got := thread.PendingSignals()
	if len(got) != 2 || got[0] != Sigusr1 || got[1] != Sigusr2 {
		t.Fatalf("pending = %v, want [Sigusr1 Sigusr2]", got)
	}
}

func TestThreadDeliverSignalValidates(t *testing.T) {
	_, proc := newTestProcess(t)
	handle, err := proc.NewThread(StartMain)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	defer handle.Close()

	if err := handle.Thread().DeliverSignal(Signal(99)); !errors.Is(err, ErrSignalDelivery) {
		t.Fatalf("error = %v, want ErrSignalDelivery", err)
	}
	if err := handle.Thread().DeliverSignal(Sigint); err != nil {
		t.Fatalf("valid delivery failed: %v", err)
	}
}

func TestSignalBusAcrossHeterogeneousTargets(t *testing.T) {
	_, proc := newTestProcess(t)
	handle, err := proc.NewThread(StartMain)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	defer handle.Close()

	// A thread, a process and a completion object all answer the same
	// capability.
	targets := []SignalBus{handle.Thread(), proc, proc.Status()}
	for _, bus := range targets {
		if err := bus.DeliverSignal(Sigterm); err != nil {
			t.Fatalf("deliver via %T: %v", bus, err)
		}
	}
	if got := handle.Thread().PendingSignals(); len(got) != 1 {
		t.Fatalf("pending = %v, want one collapsed Sigterm", got)
	}
}
