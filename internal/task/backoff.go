package task

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMaxBackoff = 30 * time.Second
	defaultCoolOff    = 500 * time.Millisecond
)

// BackoffConfig bounds the exponential CPU backoff applied to a process
// with no pending work.
type BackoffConfig struct {
	// Max caps the suggested pause. Zero means the 30s default.
	Max time.Duration
	// CoolOff is the floor: the first pause after work stops. Zero means
	// the 500ms default.
	CoolOff time.Duration
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Max <= 0 {
		c.Max = defaultMaxBackoff
	}
	if c.CoolOff <= 0 {
		c.CoolOff = defaultCoolOff
	}
	if c.Max < c.CoolOff {
		c.Max = c.CoolOff
	}
	return c
}

// CPUBackoff throttles the computation unit of an idle process. While no
// run tokens are held each consultation grows the suggested pause, from
// the cool-off floor up to the configured ceiling. Any token being held
// resets the pause to zero until work stops again.
type CPUBackoff struct {
	enabled bool
	cfg     BackoffConfig

	// runTokens counts active reasons to keep the CPU unthrottled. It is
	// shared with the owning process.
	runTokens *atomic.Int32

	mu      sync.Mutex
	current time.Duration
}

func newCPUBackoff(cfg *BackoffConfig, runTokens *atomic.Int32) *CPUBackoff {
	b := &CPUBackoff{
		enabled:   cfg != nil,
		cfg:       BackoffConfig{}.withDefaults(),
		runTokens: runTokens,
	}
	if cfg != nil {
		b.cfg = cfg.withDefaults()
	}
	return b
}

// NextPause returns the duration the execution loop should sleep before
// resuming guest code. Zero means run freely.
func (b *CPUBackoff) NextPause() time.Duration {
	if !b.enabled {
		return 0
	}
	if b.runTokens.Load() > 0 {
		b.reset()
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.current <= 0:
		b.current = b.cfg.CoolOff
	case b.current >= b.cfg.Max/2:
		b.current = b.cfg.Max
	default:
		b.current *= 2
	}
	return b.current
}

func (b *CPUBackoff) reset() {
	b.mu.Lock()
	b.current = 0
	b.mu.Unlock()
}

// RunToken is a counted reason the CPU backoff controller must not
// throttle. Releasing the last token lets backoff resume growing.
type RunToken struct {
	tokens *atomic.Int32
	once   sync.Once
}

// Release gives the token back. Safe to call more than once.
func (t *RunToken) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.tokens.Add(-1)
	})
}
