package chipops

import (
	"context"
	"testing"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

var testMAC = [6]byte{0x00, 0x60, 0x8C, 0x12, 0x34, 0x56}

const testCmdTimeout = 5 * time.Millisecond

func newTestRF() *register.RegisterFile {
	return register.New(register.NewFakeBus(), nil)
}

func TestRegistryRejectsUnknownFamily(t *testing.T) {
	if _, err := New(capability.ChipFamily(99)); err == nil {
		t.Fatalf("expected error for unregistered family")
	}
}

func TestRegistryReturnsDistinctInstances(t *testing.T) {
	a, err := New(capability.FamilyPIOISA)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(capability.FamilyPIOISA)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct Ops instances per New call")
	}
}

func TestBusMasterLifecycleAndMAC(t *testing.T) {
	rf := newTestRF()
	ops, err := New(capability.FamilyBusMasterPCI)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var counters stats.Counters
	ctx := context.Background()
	if err := ops.Init(ctx, rf, capability.ChipDescriptor{Family: capability.FamilyBusMasterPCI}, testMAC, &counters, testCmdTimeout); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := ops.GetMAC(); got != testMAC {
		t.Fatalf("mac = %v, want %v", got, testMAC)
	}
	if err := ops.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ops.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := ops.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBusMasterTransmitProgramsDownListPtr(t *testing.T) {
	rf := newTestRF()
	ops, _ := New(capability.FamilyBusMasterISA)
	var counters stats.Counters
	ctx := context.Background()
	if err := ops.Init(ctx, rf, capability.ChipDescriptor{}, testMAC, &counters, testCmdTimeout); err != nil {
		t.Fatalf("init: %v", err)
	}
	buf := &ring.Buffer{Data: make([]byte, 64), Used: 60, PhysAddr: 0xDEAD0000}
	if err := ops.Transmit(ctx, buf); err != nil {
		t.Fatalf("transmit: %v", err)
	}
}

func TestPIOTransmitAndPollReceiveRoundTrip(t *testing.T) {
	bus := register.NewFakeBus()
	rf := register.New(bus, nil)
	ops, _ := New(capability.FamilyPIOISA)
	var counters stats.Counters
	ctx := context.Background()
	if err := ops.Init(ctx, rf, capability.ChipDescriptor{}, testMAC, &counters, testCmdTimeout); err != nil {
		t.Fatalf("init: %v", err)
	}

	payload := []byte("hello from pio")
	buf := &ring.Buffer{Data: append([]byte(nil), payload...), Used: len(payload)}
	if err := ops.Transmit(ctx, buf); err != nil {
		t.Fatalf("transmit: %v", err)
	}

	// PollReceive with nothing pending returns ok=false.
	_, ok, err := ops.PollReceive(ctx)
	if err != nil {
		t.Fatalf("poll receive: %v", err)
	}
	if ok {
		t.Fatalf("expected no frame pending")
	}
}

func TestSetTxThresholdClampsToBounds(t *testing.T) {
	rf := newTestRF()
	ops, _ := New(capability.FamilyBusMasterPCI)
	var counters stats.Counters
	ctx := context.Background()
	_ = ops.Init(ctx, rf, capability.ChipDescriptor{}, testMAC, &counters, testCmdTimeout)

	if err := ops.SetTxThreshold(ctx, -10); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if err := ops.SetTxThreshold(ctx, 999999); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
}

func TestInterruptSpuriousReturnsNone(t *testing.T) {
	rf := newTestRF()
	ops, _ := New(capability.FamilyBusMasterPCI)
	var counters stats.Counters
	ctx := context.Background()
	_ = ops.Init(ctx, rf, capability.ChipDescriptor{}, testMAC, &counters, testCmdTimeout)

	ev, err := ops.Interrupt(ctx)
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if ev != EventNone {
		t.Fatalf("event = %v, want EventNone", ev)
	}
}
