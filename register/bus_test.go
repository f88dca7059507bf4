package register

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSelectElidesRedundantWrites(t *testing.T) {
	bus := NewFakeBus()
	rf := New(bus, nil)

	if err := rf.Select(3); err != nil {
		t.Fatalf("select: %v", err)
	}
	first := bus.regs[CommandReg]

	bus.regs[CommandReg] = 0xdead // poison it; a redundant select would overwrite

	if err := rf.Select(3); err != nil {
		t.Fatalf("select: %v", err)
	}
	if bus.regs[CommandReg] != 0xdead {
		t.Fatalf("redundant select re-issued the command write: got 0x%x, want poisoned 0xdead (was 0x%x)", bus.regs[CommandReg], first)
	}

	if err := rf.Select(4); err != nil {
		t.Fatalf("select: %v", err)
	}
	if bus.regs[CommandReg] == 0xdead {
		t.Fatalf("select to a new window did not issue the command write")
	}
}

func TestSelectRejectsOutOfRangeWindow(t *testing.T) {
	rf := New(NewFakeBus(), nil)
	if err := rf.Select(8); err == nil {
		t.Fatalf("expected error selecting window 8")
	}
}

func TestCommandTimesOutWhenBusyNeverClears(t *testing.T) {
	bus := NewFakeBus()
	bus.SetNeverClears(true)
	rf := New(bus, nil)

	err := rf.Command(context.Background(), OpTxEnable, 0, 5*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
}

func TestCommandSucceedsAfterBoundedBusy(t *testing.T) {
	bus := NewFakeBus()
	bus.SetBusyCountdown(3)
	rf := New(bus, nil)

	if err := rf.Command(context.Background(), OpTxEnable, 0, 50*time.Millisecond); err != nil {
		t.Fatalf("command: %v", err)
	}
}

func TestEepromReadRoundTrip(t *testing.T) {
	bus := NewFakeBus()
	var img [EepromSize]uint16
	// MAC 34:12:78:56:BC:9A as three byte-swapped words, per P4.
	img[0] = 0x1234
	img[1] = 0x5678
	img[2] = 0x9ABC
	img[7] = 0x6D50 // vendor id
	bus.SetEeprom(img)
	rf := New(bus, nil)

	v, err := rf.EepromRead(context.Background(), 0, 200*time.Microsecond)
	if err != nil {
		t.Fatalf("eeprom read: %v", err)
	}
	if v != 0x1234 {
		t.Fatalf("word 0 = 0x%04x, want 0x1234", v)
	}

	vendor, err := rf.EepromRead(context.Background(), 7, 200*time.Microsecond)
	if err != nil {
		t.Fatalf("eeprom read: %v", err)
	}
	if vendor != 0x6D50 {
		t.Fatalf("vendor word = 0x%04x, want 0x6D50", vendor)
	}
}

func TestEepromReadRejectsOutOfRangeAddress(t *testing.T) {
	rf := New(NewFakeBus(), nil)
	if _, err := rf.EepromRead(context.Background(), EepromSize, 200*time.Microsecond); !errors.Is(err, ErrEepromAddressRange) {
		t.Fatalf("expected ErrEepromAddressRange, got %v", err)
	}
}

func TestEepromReadTimesOut(t *testing.T) {
	bus := NewFakeBus()
	bus.SetNeverClears(true)
	rf := New(bus, nil)

	_, err := rf.EepromRead(context.Background(), 0, 5*time.Millisecond)
	if !errors.Is(err, ErrEepromTimeoutKind) {
		t.Fatalf("expected ErrEepromTimeoutKind, got %v", err)
	}
}
