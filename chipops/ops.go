// Package chipops implements C3: a uniform operations table (init,
// reset, start, stop, transmit, poll_receive, interrupt,
// set_receive_mode, get_mac, get_stats, close) with one implementation
// per chip family, selected by capability and immutable after attach
// except for the DisableBusMaster runtime swap (§4.8, §9).
//
// This is the Go rendering of the source's per-chip function-pointer
// jump table: a small init()-time registry keyed by
// capability.ChipFamily, the same "tagged variant, rejected on
// duplicate or unknown slot" discipline §9 calls for, in place of an
// array of raw function pointers.
package chipops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

// ReceiveMode mirrors spec.md §4.3's set_receive_mode enum.
type ReceiveMode int

const (
	ModeOff ReceiveMode = iota
	ModeDirect
	ModeBroadcastDirect
	ModeMulticastAbove
	ModePromiscuous
)

// InterruptEvent is a bitmask of the event sources an Interrupt call
// found set, abstracted away from any one family's actual status-
// register bit layout.
type InterruptEvent uint32

const (
	EventNone           InterruptEvent = 0
	EventTxComplete     InterruptEvent = 1 << iota
	EventRxComplete
	EventAdapterFailure
	EventLinkChange
)

// Ops is the operations table every chip family implements once. The
// Go type system already guarantees every slot is populated (an
// incomplete implementation fails to satisfy the interface at compile
// time) - attach-time validation in New/Register is limited to the one
// thing the type system can't check: that the requested family was
// actually registered, and exactly once.
type Ops interface {
	// Init resets the device, programs the station address, sets up
	// interrupt masking, and attaches counters - post-condition: link
	// state sampled, TX/RX disabled. cmdTimeout (Config.RegisterTimeout,
	// per §4.1) bounds the register.Command calls this family issues
	// from here on, except the global reset and Stop's TX/RX disable,
	// which use the family's fixed reset and drain budgets.
	Init(ctx context.Context, rf *register.RegisterFile, desc capability.ChipDescriptor, mac [6]byte, counters *stats.Counters, cmdTimeout time.Duration) error
	Reset(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Transmit hands one pool buffer to the hardware. PIO families copy
	// buf.Bytes() into the TX FIFO directly; bus-master families
	// program buf.PhysAddr into the download-list register and ring
	// the doorbell.
	Transmit(ctx context.Context, buf *ring.Buffer) error

	// PollReceive is non-blocking and only meaningful in PIO mode or
	// when IRQ is disabled (§4.3).
	PollReceive(ctx context.Context) (payload []byte, ok bool, err error)

	Interrupt(ctx context.Context) (InterruptEvent, error)
	SetReceiveMode(ctx context.Context, mode ReceiveMode) error
	GetMAC() [6]byte
	GetStats() stats.Snapshot

	// SetTxThreshold writes the adaptive TX-start threshold (§4.6) to
	// whatever register this family exposes it on.
	SetTxThreshold(ctx context.Context, bytes int) error

	// ReadMII and WriteMII give media.Negotiate direct access to this
	// family's MII management register (§4.4); every Ops value also
	// satisfies media.PHY, so core.go passes an attached Ops straight
	// to media.DetectPHY/Negotiate without a separate adapter type.
	ReadMII(ctx context.Context, phyAddr, reg int) (uint16, error)
	WriteMII(ctx context.Context, phyAddr, reg int, value uint16) error

	// DisableBusMaster is the §4.8/§9 runtime switch to FIFO-driven PIO
	// transmission on families whose silicon supports both paths.
	// core.go calls it at attach when the selected tier is
	// TierDisableBusMaster, from Controller.DisableBusMaster (Ready
	// state only), and from the coherency selector's demotion callback,
	// which runs inside Send while the controller is Active and is not
	// gated on controller state. Families with no DMA path to begin
	// with treat it as a no-op.
	DisableBusMaster(ctx context.Context) error

	Close(ctx context.Context) error
}

var (
	mu        sync.Mutex
	factories = map[capability.ChipFamily]func() Ops{}
)

// Register installs factory as the implementation for family. It must
// be called from an init() function in a family-specific file;
// registering the same family twice is a programming error and
// panics, matching Default3ComLike's treatment of duplicate table
// rows.
func Register(family capability.ChipFamily, factory func() Ops) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[family]; dup {
		panic(fmt.Sprintf("netcore/chipops: family %v registered twice", family))
	}
	factories[family] = factory
}

// New builds a fresh Ops for family, failing if no implementation was
// registered - the reserved-jump-table-slot treatment from §9.
func New(family capability.ChipFamily) (Ops, error) {
	mu.Lock()
	factory, ok := factories[family]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("netcore/chipops: no operations table registered for family %v", family)
	}
	return factory(), nil
}

