package task

import (
	"errors"
	"testing"
)

func testHash(name string) ModuleHash {
	return HashModule([]byte(name))
}

func TestNewProcessIDsStrictlyIncreasing(t *testing.T) {
	plane := New(Config{})

	var last ProcessID
	seen := make(map[ProcessID]bool)
	for i := 0; i < 100; i++ {
		proc, err := plane.NewProcess(testHash("mod"))
		if err != nil {
			t.Fatalf("new process: %v", err)
		}
		pid := proc.PID()
		if pid <= last {
			t.Fatalf("pid %d not greater than previous %d", pid, last)
		}
		if seen[pid] {
			t.Fatalf("pid %d issued twice", pid)
		}
		seen[pid] = true
		last = pid
	}
}

func TestGetProcess(t *testing.T) {
	plane := New(Config{})
	proc, err := plane.NewProcess(testHash("mod"))
	if err != nil {
		t.Fatalf("new process: %v", err)
	}

	if got := plane.GetProcess(proc.PID()); got != proc {
		t.Fatalf("GetProcess(%d) = %v, want the registered process", proc.PID(), got)
	}
	if got := plane.GetProcess(proc.PID() + 1000); got != nil {
		t.Fatalf("GetProcess(unknown) = %v, want nil", got)
	}
}

func TestGenerateIDSharesNamespace(t *testing.T) {
	plane := New(Config{})
	proc, err := plane.NewProcess(testHash("mod"))
	if err != nil {
		t.Fatalf("new process: %v", err)
	}
	id, err := plane.GenerateID()
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	if id <= proc.PID() {
		t.Fatalf("generated id %d not after pid %d", id, proc.PID())
	}
}

func TestRegisterTaskGuardReleasesExactlyOnce(t *testing.T) {
	plane := New(Config{})

	guard, err := plane.RegisterTask()
	if err != nil {
		t.Fatalf("register task: %v", err)
	}
	if got := plane.ActiveTasks(); got != 1 {
		t.Fatalf("active tasks = %d, want 1", got)
	}

	guard.Release()
	guard.Release()
	if got := plane.ActiveTasks(); got != 0 {
		t.Fatalf("active tasks after release = %d, want 0", got)
	}
}

func TestRegisterTaskEnforcesConfiguredLimit(t *testing.T) {
	max := 2
	plane := New(Config{MaxTasks: &max})

	first, err := plane.RegisterTask()
	if err != nil {
		t.Fatalf("first admission: %v", err)
	}
	if _, err := plane.RegisterTask(); err != nil {
		t.Fatalf("second admission: %v", err)
	}

	_, err = plane.RegisterTask()
	if !errors.Is(err, ErrTaskLimit) {
		t.Fatalf("third admission error = %v, want ErrTaskLimit", err)
	}
	var limitErr *TaskLimitError
	if !errors.As(err, &limitErr) || limitErr.Max != max {
		t.Fatalf("limit error = %#v, want max %d", err, max)
	}

	// Releasing a slot reopens admission.
	first.Release()
	if _, err := plane.RegisterTask(); err != nil {
		t.Fatalf("admission after release: %v", err)
	}
}

func TestRegisterTaskUnlimitedByDefault(t *testing.T) {
	plane := New(Config{})
	for i := 0; i < 1000; i++ {
		if _, err := plane.RegisterTask(); err != nil {
			t.Fatalf("admission %d failed: %v", i, err)
		}
	}
	if got := plane.ActiveTasks(); got != 1000 {
		t.Fatalf("active tasks = %d, want 1000", got)
	}
}

func TestHandleUpgrade(t *testing.T) {
	plane := New(Config{})
	handle := plane.Handle()

	upgraded, ok := handle.Upgrade()
	if !ok || upgraded == nil {
		t.Fatal("upgrade failed while plane is alive")
	}
	if upgraded.state != plane.state {
		t.Fatal("upgrade returned a different plane")
	}

	if handle.MustUpgrade().state != plane.state {
		t.Fatal("MustUpgrade returned a different plane")
	}
}

func TestHandleZeroValueDoesNotUpgrade(t *testing.T) {
	var handle Handle
	if _, ok := handle.Upgrade(); ok {
		t.Fatal("zero-value handle upgraded")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("MustUpgrade on a dead handle did not panic")
		}
	}()
	handle.MustUpgrade()
}

func TestProcessesSnapshot(t *testing.T) {
	plane := New(Config{})
	for i := 0; i < 3; i++ {
		if _, err := plane.NewProcess(testHash("mod")); err != nil {
			t.Fatalf("new process: %v", err)
		}
	}
	if got := len(plane.Processes()); got != 3 {
		t.Fatalf("processes = %d, want 3", got)
	}
}
