package chipops

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/stats"
)

// baseOps holds the register-level behavior identical across every
// family on this chip generation (reset, station-address programming,
// start/stop, status-register interrupt decoding, receive-mode and
// TX-threshold writes, MII access, and the counters/MAC accessors).
// busMasterOps and pioOps each embed it and override only the methods
// where DMA and PIO genuinely differ: Transmit, PollReceive, and
// DisableBusMaster.
type baseOps struct {
	rf          *register.RegisterFile
	desc        capability.ChipDescriptor
	mac         [6]byte
	counters    *stats.Counters
	txThreshold int
	started     bool

	// cmdTimeout bounds every register.Command call issued after Init
	// except the global reset (resetTimeout) and Stop's TX/RX disable
	// (drainTimeout), set from Config.RegisterTimeout (§4.1) - not hardware's own
	// busy-bit behavior, but the operator's policy on how long to wait
	// for it.
	cmdTimeout time.Duration
}

func (o *baseOps) initCommon(ctx context.Context, rf *register.RegisterFile, desc capability.ChipDescriptor, mac [6]byte, counters *stats.Counters, cmdTimeout time.Duration, errPrefix string) error {
	o.rf, o.desc, o.mac, o.counters, o.cmdTimeout = rf, desc, mac, counters, cmdTimeout
	o.txThreshold = minTxThreshold

	if err := o.Reset(ctx); err != nil {
		return fmt.Errorf("netcore/chipops: %s init: %w", errPrefix, err)
	}
	if err := o.programMAC(); err != nil {
		return fmt.Errorf("netcore/chipops: %s init: %w", errPrefix, err)
	}
	if err := o.rf.Command(ctx, register.OpSetInterrupts, defaultInterruptMask, o.cmdTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: program interrupt mask: %w", err)
	}
	return nil
}

func (o *baseOps) Reset(ctx context.Context) error {
	if err := o.rf.Command(ctx, register.OpGlobalReset, 0, resetTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: global reset: %w", err)
	}
	o.rf.InvalidateWindow()
	o.started = false
	return nil
}

func (o *baseOps) programMAC() error {
	return o.rf.With(windowStationAddr, func(r *register.RegisterFile) error {
		for i := 0; i < 3; i++ {
			word := binary.LittleEndian.Uint16(o.mac[i*2 : i*2+2])
			r.Write16(uint16(i*2), word)
		}
		return nil
	})
}

func (o *baseOps) Start(ctx context.Context) error {
	if err := o.rf.Command(ctx, register.OpRxEnable, 0, o.cmdTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: rx enable: %w", err)
	}
	if err := o.rf.Command(ctx, register.OpTxEnable, 0, o.cmdTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: tx enable: %w", err)
	}
	o.started = true
	return nil
}

func (o *baseOps) Stop(ctx context.Context) error {
	if err := o.rf.Command(ctx, register.OpSetInterrupts, 0, o.cmdTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: mask interrupts: %w", err)
	}
	if err := o.rf.Command(ctx, register.OpTxDisable, 0, drainTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: tx disable: %w", err)
	}
	if err := o.rf.Command(ctx, register.OpRxDisable, 0, drainTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: rx disable: %w", err)
	}
	o.started = false
	return nil
}

func (o *baseOps) Interrupt(ctx context.Context) (InterruptEvent, error) {
	status := o.rf.Read16(register.CommandReg)
	if status == 0 {
		return EventNone, nil
	}
	if err := o.rf.Command(ctx, register.OpAckInterrupts, status, o.cmdTimeout); err != nil {
		return 0, fmt.Errorf("netcore/chipops: acknowledge interrupts: %w", err)
	}
	o.counters.AddInterrupt()

	var ev InterruptEvent
	if status&statusAdapterFailure != 0 {
		ev |= EventAdapterFailure
	}
	if status&statusTxComplete != 0 {
		ev |= EventTxComplete
	}
	if status&statusRxComplete != 0 {
		ev |= EventRxComplete
	}
	if status&statusLinkChange != 0 {
		ev |= EventLinkChange
	}
	return ev, nil
}

func (o *baseOps) SetReceiveMode(ctx context.Context, mode ReceiveMode) error {
	if err := o.rf.Command(ctx, register.OpSetRxFilter, uint16(mode), o.cmdTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: set receive mode: %w", err)
	}
	return nil
}

func (o *baseOps) GetMAC() [6]byte { return o.mac }

func (o *baseOps) GetStats() stats.Snapshot { return o.counters.Snapshot() }

// SetTxThreshold clamps to [minTxThreshold, MaxFrame] per §4.6 before
// writing it, since a family implementation is the last line of
// defense against a caller-supplied out-of-range value.
func (o *baseOps) SetTxThreshold(ctx context.Context, bytes int) error {
	if bytes < minTxThreshold {
		bytes = minTxThreshold
	}
	if bytes > maxTxThreshold {
		bytes = maxTxThreshold
	}
	o.txThreshold = bytes
	if err := o.rf.Command(ctx, register.OpSetTxStart, uint16(bytes), o.cmdTimeout); err != nil {
		return fmt.Errorf("netcore/chipops: set tx threshold: %w", err)
	}
	return nil
}

func (o *baseOps) Close(ctx context.Context) error {
	if o.started {
		return o.Stop(ctx)
	}
	return nil
}

// ReadMII issues a management-frame read and waits for the busy bit to
// clear before sampling the data register. Every family on this
// generation shares the same window/offset layout, modeled on the NXP
// ENET MMFR register other_examples/enet.go bit-bangs.
func (o *baseOps) ReadMII(ctx context.Context, phyAddr, reg int) (uint16, error) {
	var val uint16
	err := o.rf.With(windowMII, func(r *register.RegisterFile) error {
		r.Write16(mmfrCmdOffset, mmfrOpRead|uint16(phyAddr)<<5|uint16(reg))
		if err := r.PollBit(ctx, mmfrCmdOffset, mmfrBusy, mmfrTimeout); err != nil {
			return err
		}
		val = r.Read16(mmfrDataOffset)
		return nil
	})
	return val, err
}

// WriteMII loads the data register before issuing the write-opcode
// command word, mirroring the read side's command-then-poll shape.
func (o *baseOps) WriteMII(ctx context.Context, phyAddr, reg int, value uint16) error {
	return o.rf.With(windowMII, func(r *register.RegisterFile) error {
		r.Write16(mmfrDataOffset, value)
		r.Write16(mmfrCmdOffset, uint16(phyAddr)<<5|uint16(reg))
		return r.PollBit(ctx, mmfrCmdOffset, mmfrBusy, mmfrTimeout)
	})
}

// maxTxThreshold mirrors frame.MaxFrame as a local constant; chipops
// does not import the frame package.
const maxTxThreshold = 1518
