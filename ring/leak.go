package ring

import "fmt"

// LeakDetector is the optional shadow-accounting check from §4.5: it
// compares a pool's allocation counter against the caller's own
// expectation of occupancy and reports divergence. It is disabled by
// default (a nil *LeakDetector is valid and never checks).
type LeakDetector struct {
	pool     *Pool
	expected int
}

func NewLeakDetector(pool *Pool) *LeakDetector {
	return &LeakDetector{pool: pool}
}

// Expect records how many buffers the caller believes are currently
// allocated (outside the free list), e.g. sum of non-free ring slots
// plus in-flight-to-client handles.
func (l *LeakDetector) Expect(n int) { l.expected = n }

// Check compares the pool's live counter against the last Expect call
// and returns a descriptive error on divergence.
func (l *LeakDetector) Check() error {
	if l == nil {
		return nil
	}
	got := l.pool.Allocated()
	if got != l.expected {
		return fmt.Errorf("netcore/ring: leak detector divergence: pool reports %d allocated, expected %d", got, l.expected)
	}
	return nil
}

// CheckZeroAtShutdown is called from Core.Detach unconditionally,
// regardless of Config.LeakDetection; a nonzero count means
// LeakedAtShutdown (§7).
func CheckZeroAtShutdown(pool *Pool) error {
	if n := pool.Allocated(); n != 0 {
		return fmt.Errorf("netcore/ring: %d buffers still allocated at detach", n)
	}
	return nil
}
