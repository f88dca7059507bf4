package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netcore/netcore/chipops"
	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/frame"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

// Adaptive TX-start threshold tuning constants, literal from §4.6.
const (
	thresholdIncrementOnUnderrun = 64
	thresholdDecrementStep       = 8
	thresholdDecrementEvery      = 8
	thresholdMin                 = 16
)

// recoveryWindow/maxRecoveryAttempts are §4.7 step 2's bounded
// recovery: "up to 3 times over 30 s".
const (
	maxRecoveryAttempts = 3
	recoveryWindow       = 30 * time.Second
)

var (
	// ErrInvalidLength is returned by Transmit for a frame longer than
	// MaxFrameFCS; frames shorter than MinFrameFCS are zero-padded, not
	// rejected.
	ErrInvalidLength = fmt.Errorf("netcore/pipeline: frame length outside [%d, %d]", frame.MinFrameFCS, frame.MaxFrameFCS)
	// ErrControllerDead is returned once bounded recovery has been
	// exhausted (§4.7 step 2).
	ErrControllerDead = fmt.Errorf("netcore/pipeline: controller marked dead after exhausted recovery")
)

// Pipeline ties the ring engine, chip operations table, coherency
// selector and client table together into the transmit and
// interrupt/receive paths spec.md §4.6/§4.7 describe.
type Pipeline struct {
	ops      chipops.Ops
	txRing   *ring.Ring
	rxRing   *ring.Ring
	selector *coherency.Selector
	counters *stats.Counters
	clients  *ClientTable
	station  [6]byte

	// mu serializes ring-cursor mutation between the main path and the
	// interrupt path per I5; the scheduling model (§5) assumes exactly
	// one IRQ context and one main context per controller, so this is
	// a plain mutex, not a more elaborate concurrency structure.
	mu sync.Mutex

	txThreshold      int
	cleanSinceAdjust int

	// receiveMode mirrors whatever was last passed to SetReceiveMode,
	// so the RX dispatch path (§4.7 step 4b) knows whether to drop an
	// other-class frame or hand it to promiscuous clients only.
	receiveMode chipops.ReceiveMode

	dead bool
	recoveryAttempts []time.Time

	// ReinitRings is called during ADAPTER-FAILURE recovery, after a
	// soft reset, to rebuild both rings from scratch; owned by core.go
	// since only it knows how to reconstruct the pools/rings for this
	// controller.
	ReinitRings func(ctx context.Context) error

	// OnLinkChange is called on a LINK-CHANGE event to re-run media
	// resolution without resetting rings (§4.7 step 6); wired by
	// core.go to Controller.onLinkChange, which re-runs
	// media.DetectPHY/Negotiate.
	OnLinkChange func(ctx context.Context) error

	// OnDead is called exactly once, when recovery is exhausted and
	// the handle is marked dead, letting core.go transition controller
	// state and surface AdapterFailure to upcalls.
	OnDead func()

	// scratch is RxHarvest's reusable output slice (§5.5 supplement):
	// allocated once, reused every interrupt.
	scratch []ring.HarvestedRX
}

// New builds a Pipeline bound to an already-initialized operations
// table, TX/RX rings and coherency selector.
func New(ops chipops.Ops, txRing, rxRing *ring.Ring, selector *coherency.Selector, counters *stats.Counters, station [6]byte, clientCapacity int) *Pipeline {
	return &Pipeline{
		ops:         ops,
		txRing:      txRing,
		rxRing:      rxRing,
		selector:    selector,
		counters:    counters,
		clients:     NewClientTable(clientCapacity),
		station:     station,
		txThreshold: thresholdMin,
		scratch:     make([]ring.HarvestedRX, 0, ring.Size),
	}
}

// ReplaceRings swaps in freshly rebuilt TX/RX rings, used by core.go's
// ReinitRings hook after a soft reset during ADAPTER-FAILURE recovery.
// The old rings' outstanding buffers are the caller's concern (already
// surfaced through rx_no_buffer/leak accounting), not freed here.
func (p *Pipeline) ReplaceRings(txRing, rxRing *ring.Ring) {
	p.mu.Lock()
	p.txRing, p.rxRing = txRing, rxRing
	p.scratch = p.scratch[:0]
	p.mu.Unlock()
}

// Clients exposes the client table for registration/release.
func (p *Pipeline) Clients() *ClientTable { return p.clients }

// Dead reports whether recovery has been exhausted.
func (p *Pipeline) Dead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

// SetReceiveMode programs the device's receive filter and records it
// locally so the RX dispatch path knows whether an other-class frame
// should reach a promiscuous client or be dropped outright.
func (p *Pipeline) SetReceiveMode(ctx context.Context, mode chipops.ReceiveMode) error {
	if err := p.ops.SetReceiveMode(ctx, mode); err != nil {
		return err
	}
	p.mu.Lock()
	p.receiveMode = mode
	p.mu.Unlock()
	return nil
}
