// Package register implements the window-banked register model common
// to this controller family (C1): bank selection through a command
// register, typed reads/writes at window-relative offsets, command
// polling with a bounded timeout, and the EEPROM bit-banged read
// state machine.
package register

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Bus is the raw I/O surface a RegisterFile is built on. A real
// attach wires this to port I/O (internal/ioport) or a memory-mapped
// BAR; tests wire it to FakeBus. Offsets are controller-relative, not
// window-relative - RegisterFile adds the window-select discipline on
// top.
type Bus interface {
	In8(offset uint16) uint8
	In16(offset uint16) uint16
	In32(offset uint16) uint32
	Out8(offset uint16, v uint8)
	Out16(offset uint16, v uint16)
	Out32(offset uint16, v uint32)
}

const (
	// CommandReg is the controller-relative offset of the shared
	// command/status register, present in every window.
	CommandReg = 0x0E

	// EepromCommandReg and EepromDataReg live in window 0 only.
	EepromCommandReg = 0x0A
	EepromDataReg    = 0x0C

	cmdInProgress = 0x1000 // status bit: command in progress
	eepromBusy    = 0x8000 // status bit: eeprom busy

	eepromOpRead = 0x0080 // EEPROM read opcode, OR'd with the address

	// NumWindows is the number of register banks this family exposes.
	NumWindows = 8
	// EepromSize is the number of addressable 16-bit EEPROM words.
	EepromSize = 64
)

// Opcode identifies a command register operation. The argument is
// OR'd into the low bits per §6: "command register writes are OR'd
// opcode+argument".
type Opcode uint16

const (
	OpSelectWindow  Opcode = 0x01 << 11
	OpStartCoax     Opcode = 0x02 << 11
	OpGlobalReset   Opcode = 0x00 << 11
	OpTxEnable      Opcode = 0x09 << 11
	OpTxDisable     Opcode = 0x0A << 11
	OpRxEnable      Opcode = 0x08 << 11
	OpRxDisable     Opcode = 0x0C << 11
	OpRxDiscard     Opcode = 0x07 << 11
	OpSetRxFilter   Opcode = 0x0D << 11
	OpSetInterrupts Opcode = 0x0E << 11
	OpAckInterrupts Opcode = 0x0D << 11
	OpSetTxStart    Opcode = 0x13 << 11
)

// RegisterFile owns one controller's banked register state. The
// cached window elides redundant select-window writes (§9's Design
// Notes): a sequence of accesses to the same window issues exactly
// one select command.
type RegisterFile struct {
	bus    Bus
	log    logrus.FieldLogger
	window int8 // -1 means "unknown, must select before next access"
}

// New wires a RegisterFile to bus. The cached window starts unknown
// so the first access always selects, regardless of the device's
// power-on window.
func New(bus Bus, log logrus.FieldLogger) *RegisterFile {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RegisterFile{bus: bus, log: log.WithField("component", "register"), window: -1}
}

// Select banks window w, skipping the command write if w is already
// the cached current window. Window-specific accesses must always be
// preceded by Select (directly or via With) per §4.1's ordering rule.
func (r *RegisterFile) Select(w int) error {
	if w < 0 || w >= NumWindows {
		return fmt.Errorf("netcore/register: window %d out of range 0..%d", w, NumWindows-1)
	}
	if r.window == int8(w) {
		return nil
	}
	r.bus.Out16(CommandReg, uint16(OpSelectWindow)|uint16(w))
	r.window = int8(w)
	return nil
}

// With selects window w and invokes fn, the scoped-acquisition
// pattern from §9's Design Notes: callers cannot forget to select
// because the window is an argument to the closure's call site, not
// ambient state.
func (r *RegisterFile) With(w int, fn func(*RegisterFile) error) error {
	if err := r.Select(w); err != nil {
		return err
	}
	return fn(r)
}

// InvalidateWindow forces the next Select to re-issue the command,
// used after a soft reset since the device's window reverts to an
// unspecified state.
func (r *RegisterFile) InvalidateWindow() {
	r.window = -1
}

func (r *RegisterFile) Read8(offset uint16) uint8   { return r.bus.In8(offset) }
func (r *RegisterFile) Read16(offset uint16) uint16 { return r.bus.In16(offset) }
func (r *RegisterFile) Read32(offset uint16) uint32 { return r.bus.In32(offset) }

func (r *RegisterFile) Write8(offset uint16, v uint8)   { r.bus.Out8(offset, v) }
func (r *RegisterFile) Write16(offset uint16, v uint16) { r.bus.Out16(offset, v) }
func (r *RegisterFile) Write32(offset uint16, v uint32) { r.bus.Out32(offset, v) }

// Command issues opcode|arg and polls the command-in-progress status
// bit until clear, bounded by timeout. A soft reset is the caller's
// responsibility when the busy bit never clears (§5's "partial
// commands are followed by a soft reset").
func (r *RegisterFile) Command(ctx context.Context, opcode Opcode, arg uint16, timeout time.Duration) error {
	r.bus.Out16(CommandReg, uint16(opcode)|arg)
	return r.pollClear(ctx, CommandReg, cmdInProgress, timeout)
}

func (r *RegisterFile) pollClear(ctx context.Context, offset uint16, mask uint16, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if r.bus.In16(offset)&mask == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeoutFor(offset)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// PollBit polls offset until mask clears, bounded by timeout - the
// same wait register.Command and EepromRead already use, exported so
// a family implementation with its own windowed command register (the
// MII management register, which doesn't share CommandReg's busy-bit
// semantics) can reuse the one poll loop instead of writing another.
func (r *RegisterFile) PollBit(ctx context.Context, offset uint16, mask uint16, timeout time.Duration) error {
	return r.pollClear(ctx, offset, mask, timeout)
}

// ErrTimeoutFor reports which polled register the bounded wait gave
// up on; core.go's reconcile maps it onto the module root's
// ErrCommandTimeout sentinel (EepromRead returns its own
// ErrEepromTimeoutKind instead) to keep the taxonomy centralized.
func ErrTimeoutFor(offset uint16) error {
	return &TimeoutError{Offset: offset}
}

// TimeoutError is returned by pollClear; offset lets the caller decide
// which sentinel (CommandTimeout vs EepromTimeout) applies.
type TimeoutError struct {
	Offset uint16
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("netcore/register: poll timeout on register 0x%02x", e.Offset)
}
