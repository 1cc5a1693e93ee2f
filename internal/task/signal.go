package task

import "time"

// Signal is a POSIX-style signal number delivered between tasks.
type Signal uint8

const (
	Sighup  Signal = 1
	Sigint  Signal = 2
	Sigquit Signal = 3
	Sigill  Signal = 4
	Sigtrap Signal = 5
	Sigabrt Signal = 6
	Sigbus  Signal = 7
	Sigfpe  Signal = 8
	Sigkill Signal = 9
	Sigusr1 Signal = 10
	Sigsegv Signal = 11
	Sigusr2 Signal = 12
	Sigpipe Signal = 13
	Sigalrm Signal = 14
	Sigterm Signal = 15
	Sigchld Signal = 16
	Sigcont Signal = 17
	Sigstop Signal = 18
	Sigtstp Signal = 19
	Sigttin Signal = 20
	Sigttou Signal = 21
	Sigurg  Signal = 22
	Sigxcpu Signal = 23
	Sigxfsz Signal = 24

	maxSignal Signal = 30
)

// Valid reports whether the signal is inside the deliverable set.
func (s Signal) Valid() bool {
	return s >= 1 && s <= maxSignal
}

// SignalBus is the capability a signalable unit exposes. Callers hold the
// interface so that "deliver signal X" works the same for a thread, a
// process, or a completion object without knowing which it is.
type SignalBus interface {
	DeliverSignal(sig Signal) error
}

// IntervalSpec schedules a signal for redelivery to the process every
// Interval, optionally repeating indefinitely.
type IntervalSpec struct {
	Signal     Signal
	Interval   time.Duration
	LastSignal time.Time
	Repeat     bool
}
