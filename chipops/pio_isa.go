package chipops

import (
	"context"
	"fmt"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

// windowOperational holds the shared TX/RX FIFO word register on this
// family: offset 0x10 services the TX FIFO on writes and the RX FIFO
// on reads - one physical register, direction selected by the bus
// cycle, not by address (the original PIO-ISA controllers shared the
// word this way to save register space).
const (
	windowOperational = 1
	fifoOffset        = 0x10
	rxStatusOffset    = 0x18

	rxIncomplete uint16 = 1 << 15
	rxLengthMask uint16 = 0x07FF
)

func init() {
	Register(capability.FamilyPIOISA, func() Ops { return &pioOps{} })
}

// pioOps drives the programmed-I/O family: no DMA, no descriptor
// rings at the hardware level - frames move one FIFO word at a time
// under direct CPU control. Everything but Transmit, PollReceive, and
// DisableBusMaster comes from the embedded baseOps unchanged.
type pioOps struct {
	baseOps
}

func (o *pioOps) Init(ctx context.Context, rf *register.RegisterFile, desc capability.ChipDescriptor, mac [6]byte, counters *stats.Counters, cmdTimeout time.Duration) error {
	return o.initCommon(ctx, rf, desc, mac, counters, cmdTimeout, "pio")
}

// Transmit pushes length followed by payload words into the TX FIFO;
// the chip starts transmitting once fill level reaches o.txThreshold,
// with no separate start command.
func (o *pioOps) Transmit(ctx context.Context, buf *ring.Buffer) error {
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

// PollReceive is PIO's primary RX path (§4.3): non-blocking, reads the
// RX status word, and if a complete frame is present drains it from
// the FIFO a word at a time before discarding the top-of-FIFO marker.
func (o *pioOps) PollReceive(ctx context.Context) ([]byte, bool, error) {
	if err := o.rf.Select(windowOperational); err != nil {
		return nil, false, err
	}
	status := o.rf.Read16(rxStatusOffset)
	if status&rxIncomplete != 0 {
		return nil, false, nil
	}
	length := int(status & rxLengthMask)
	if length == 0 {
		return nil, false, nil
	}

	payload := make([]byte, length)
	for i := 0; i < length; i += 4 {
		word := o.rf.Read32(fifoOffset)
		for j := 0; j < 4 && i+j < length; j++ {
			payload[i+j] = byte(word >> (8 * uint(j)))
		}
	}
	if err := o.rf.Command(ctx, register.OpRxDiscard, 0, o.cmdTimeout); err != nil {
		return nil, false, fmt.Errorf("netcore/chipops: discard top-of-fifo packet: %w", err)
	}
	return payload, true, nil
}

// DisableBusMaster is a no-op: this family has no DMA path to disable.
func (o *pioOps) DisableBusMaster(ctx context.Context) error { return nil }
