package task

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
)

// Plane-level failure sentinels. TaskLimitError matches ErrTaskLimit so
// callers can test with errors.Is while still recovering the cap.
var (
	ErrTaskLimit       = errors.New("task limit reached")
	ErrNoChild         = errors.New("no child processes")
	ErrSignalDelivery  = errors.New("signal outside the deliverable set")
	ErrDuplicateThread = errors.New("thread id already in use")
)

// ProcessID identifies a process. Process and thread IDs share one
// namespace: the main thread of a process reuses the process ID, so the
// two value spaces must never overlap across the plane.
type ProcessID uint32

func (id ProcessID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ThreadID identifies a thread within the shared ID namespace.
type ThreadID uint32

func (id ThreadID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// SentinelProcessTID is the reserved thread ID meaning "the process
// itself". Guest code addresses the process through this value; it is
// resolved to the process's own ID before thread lookup.
const SentinelProcessTID ThreadID = 1073741823

// ModuleHash identifies the compiled artifact a process runs.
type ModuleHash [32]byte

// HashModule derives a module hash from raw module bytes or any other
// stable identifier.
func HashModule(data []byte) ModuleHash {
	return ModuleHash(sha256.Sum256(data))
}

func (h ModuleHash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns an abbreviated digest suitable for status output.
func (h ModuleHash) Short() string {
	return hex.EncodeToString(h[:4])
}
