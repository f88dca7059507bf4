package stats

import "time"

// RateSnapshot is a packets/errors-per-second reading over the window
// between two Tick calls.
type RateSnapshot struct {
	PacketsPerSec float64
	ErrorsPerSec  float64
}

// Monitor computes RateSnapshot from successive Snapshot reads,
// externally ticked rather than running its own goroutine - matching
// the teacher's preference for pure functions over supplied time
// instead of a library-owned time.Ticker.
type Monitor struct {
	lastTime     time.Time
	lastPackets  uint64
	lastErrors   uint64
	initialized  bool
}

// Tick folds in a new Snapshot taken at now and returns the rate over
// the interval since the previous Tick. The first call has no prior
// sample to compare against and returns a zero RateSnapshot.
func (m *Monitor) Tick(now time.Time, snap Snapshot) RateSnapshot {
	packets := snap.TxPackets + snap.RxPackets
	errs := snap.TxErrors + snap.RxErrors

	if !m.initialized {
		m.lastTime, m.lastPackets, m.lastErrors, m.initialized = now, packets, errs, true
		return RateSnapshot{}
	}

	elapsed := now.Sub(m.lastTime).Seconds()
	var rate RateSnapshot
	if elapsed > 0 {
		rate = RateSnapshot{
			PacketsPerSec: float64(delta(packets, m.lastPackets)) / elapsed,
			ErrorsPerSec:  float64(delta(errs, m.lastErrors)) / elapsed,
		}
	}
	m.lastTime, m.lastPackets, m.lastErrors = now, packets, errs
	return rate
}

// delta is cur-prev, clamped to 0 when a Reset between ticks made cur
// smaller than prev (counters only decrease via an explicit reset).
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
