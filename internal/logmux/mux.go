package logmux

import (
	"fmt"
	"sync"
	"time"

	"github.com/wasmvisor/wasmvisor/internal/task"
)

// Mux fans in lifecycle events from multiple producers and delivers them
// via a bounded channel. When downstream consumers cannot keep up and the
// output buffer would overflow, the mux drops events and emits a
// synthesized warning to surface the number of discarded entries.
type Mux struct {
	out chan task.Event

	mu     sync.Mutex
	drops  map[task.ProcessID]int
	inputs sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan task.Event, size),
		drops: make(map[task.ProcessID]int),
	}
}

// Output exposes the muxed event channel.
func (m *Mux) Output() <-chan task.Event {
	return m.out
}

// Add registers a new source channel. The mux consumes events until the
// source channel is closed.
func (m *Mux) Add(source <-chan task.Event) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for evt := range source {
			m.deliver(normalize(evt))
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop
// metadata, and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(evt task.Event) {
	if !m.flushPending(evt.PID) {
		m.recordDrop(evt.PID, 1)
		return
	}
	if m.trySend(evt) {
		return
	}
	m.recordDrop(evt.PID, 1)
}

func (m *Mux) flushPending(pid task.ProcessID) bool {
	for {
		count := m.takeDrops(pid)
		if count == 0 {
			return true
		}
		meta := synthesizeDropEvent(pid, count)
		if m.trySend(meta) {
			continue
		}
		m.recordDrop(pid, count)
		return false
	}
}

func (m *Mux) takeDrops(pid task.ProcessID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[pid]
	if count != 0 {
		delete(m.drops, pid)
	}
	return count
}

func (m *Mux) recordDrop(pid task.ProcessID, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[pid] += count
}

func (m *Mux) flushDrops() {
	pending := m.collectDrops()
	for pid, count := range pending {
		m.blockingSend(synthesizeDropEvent(pid, count))
	}
}

func (m *Mux) collectDrops() map[task.ProcessID]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drops) == 0 {
		return nil
	}
	dup := make(map[task.ProcessID]int, len(m.drops))
	for pid, count := range m.drops {
		if count == 0 {
			continue
		}
		dup[pid] = count
	}
	m.drops = make(map[task.ProcessID]int)
	return dup
}

func (m *Mux) trySend(evt task.Event) bool {
	select {
	case m.out <- evt:
		return true
	default:
		return false
	}
}

func (m *Mux) blockingSend(evt task.Event) {
	m.out <- evt
}

func normalize(evt task.Event) task.Event {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return evt
}

func synthesizeDropEvent(pid task.ProcessID, count int) task.Event {
	return task.Event{
		Timestamp: time.Now(),
		PID:       pid,
		Type:      task.EventLog,
		Message:   fmt.Sprintf("dropped=%d", count),
	}
}
