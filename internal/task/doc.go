// Package task is the process- and thread-lifecycle control plane for the
// sandbox. It emulates POSIX-style multiprocessing over single guest
// computation units: a plane-wide registry admits and tracks tasks, each
// process owns a thread table, a child list and signal routing, joins
// suspend on one-shot completion objects, and a CPU backoff controller
// throttles idle processes.
//
// The plane provides only cooperative primitives; nothing here interrupts
// in-flight guest execution. Signals and termination settle bookkeeping
// that the execution engine must observe promptly between guest slices.
// Ownership flows downward (plane owns registry entries, parents own
// children); every link pointing back up — child to parent, process to
// plane — is a weak reference resolved by explicit fallible upgrade.
package task
