package chipops

import (
	"context"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

// Window/offset layout shared by every bus-master family on this chip
// generation: window 2 carries the station address, window 7 carries
// the DMA descriptor-list pointers.
const (
	windowStationAddr = 2
	windowBusMaster   = 7

	downListPtrOffset = 0x24
	upListPtrOffset   = 0x38

	// Status-register event bits read through register.CommandReg,
	// acknowledged by OR-writing the same bits back (§4.7 step 1).
	statusAdapterFailure uint16 = 1 << 1
	statusTxComplete     uint16 = 1 << 2
	statusRxComplete     uint16 = 1 << 4
	statusLinkChange     uint16 = 1 << 8

	defaultInterruptMask = statusAdapterFailure | statusTxComplete | statusRxComplete | statusLinkChange

	minTxThreshold = 16
	resetTimeout   = 1 * time.Millisecond // §4.2: "wait for not-busy (bounded 1 ms)"
	drainTimeout   = 2 * time.Millisecond

	// windowMII carries the MII management register pair, modeled on
	// the NXP ENET MMFR register other_examples/enet.go bit-bangs: one
	// command word (opcode|phyAddr|reg) and one data word, with a busy
	// bit that clears when the management frame completes.
	windowMII             = 4
	mmfrCmdOffset         = 0x08
	mmfrDataOffset        = 0x0A
	mmfrBusy       uint16 = 0x8000
	mmfrOpRead     uint16 = 0x4000
	mmfrTimeout           = 1 * time.Millisecond
)

func init() {
	Register(capability.FamilyBusMasterISA, func() Ops { return &busMasterOps{} })
	Register(capability.FamilyBusMasterPCI, func() Ops { return &busMasterOps{} })
}

// busMasterOps drives the DMA-capable families (ISA and PCI bus-master
// variants share identical register behavior on this chip generation;
// CardBus embeds this and adds power-management quirks in cardbus.go).
// Everything but Transmit, PollReceive, and DisableBusMaster comes from
// the embedded baseOps unchanged.
type busMasterOps struct {
	baseOps

	// pioFallback, once set by DisableBusMaster, routes Transmit
	// through the same FIFO word-at-a-time path pioOps uses instead of
	// programming the download-list register - real silicon in this
	// generation exposes both paths, DMA being the default.
	pioFallback bool
}

func (o *busMasterOps) Init(ctx context.Context, rf *register.RegisterFile, desc capability.ChipDescriptor, mac [6]byte, counters *stats.Counters, cmdTimeout time.Duration) error {
	return o.initCommon(ctx, rf, desc, mac, counters, cmdTimeout, "bus-master")
}

// Transmit programs buf's physical address into the download-list
// register; on this chip generation that write is itself the
// doorbell, since the DMA engine starts as soon as it sees a non-zero
// list pointer while idle.
func (o *busMasterOps) Transmit(ctx context.Context, buf *ring.Buffer) error {
	if o.pioFallback {
		return o.transmitPIO(buf)
	}
	return o.rf.With(windowBusMaster, func(r *register.RegisterFile) error {
		r.Write32(downListPtrOffset, buf.PhysAddr)
		return nil
	})
}

// transmitPIO pushes length then payload words into the shared TX FIFO
// window, the same register layout pioOps.Transmit drives - used once
// DisableBusMaster has taken DMA off the table.
func (o *busMasterOps) transmitPIO(buf *ring.Buffer) error {
	return o.rf.With(windowOperational, func(r *register.RegisterFile) error {
		payload := buf.Bytes()
		r.Write32(fifoOffset, uint32(len(payload)))
		for i := 0; i < len(payload); i += 4 {
			var word uint32
			for j := i; j < i+4 && j < len(payload); j++ {
				word |= uint32(payload[j]) << (8 * uint(j-i))
			}
			r.Write32(fifoOffset, word)
		}
		return nil
	})
}

// DisableBusMaster permanently routes this family's Transmit path
// through the FIFO fallback. core.go calls it at attach, from the
// Ready-only Controller.DisableBusMaster, and from the selector's
// demotion callback during Send.
func (o *busMasterOps) DisableBusMaster(ctx context.Context) error {
	o.pioFallback = true
	return nil
}

// PollReceive is a no-op for bus-master families: RX delivery is
// always interrupt- or DMA-driven here, never polled (§4.3).
func (o *busMasterOps) PollReceive(ctx context.Context) ([]byte, bool, error) {
	return nil, false, nil
}
