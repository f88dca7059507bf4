// Package ioport is the register package's one hardware-facing seam:
// reading and writing bytes/words at an I/O port address on the
// platforms that actually have one, behind a build-tag-gated
// implementation in the shape of the teacher's per-platform
// tcpinfo_linux.go/tcpinfo_darwin.go/tcpinfo_windows.go/tcpinfo_other.go
// split - one file per platform, a shared interface, no runtime
// branching inside any one file.
package ioport

import "errors"

// Port is a bounded window onto one device's I/O port range, opened at
// a base address and addressed thereafter by offset.
type Port interface {
	ReadByte(offset uint16) (uint8, error)
	WriteByte(offset uint16, v uint8) error
	ReadWord(offset uint16) (uint16, error)
	WriteWord(offset uint16, v uint16) error
	Close() error
}

// ErrUnsupportedPlatform is returned by Open on any platform without a
// real implementation (everything but linux, today - see
// ioport_other.go).
var ErrUnsupportedPlatform = errors.New("netcore/ioport: no I/O port access on this platform")

// Open opens a Port at the given I/O base address. The underlying
// mechanism is entirely platform-specific (openPort, implemented once
// per build-tag-gated file).
func Open(base uint16) (Port, error) {
	return openPort(base)
}
