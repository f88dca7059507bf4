//go:build linux

package ioport

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// linuxPort backs Port with /dev/port Pread/Pwrite calls, the standard
// unprivileged-adjacent (still root-only) route to raw I/O port access
// on Linux when no in-kernel driver owns the device - the same
// raw-fd-plus-positioned-syscall idiom GetTCPInfo uses for getsockopt,
// generalized from a fixed socket option to an arbitrary byte offset.
type linuxPort struct {
	fd   int
	base int64
}

func openPort(base uint16) (Port, error) {
	fd, err := unix.Open("/dev/port", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("netcore/ioport: open /dev/port: %w", err)
	}
	return &linuxPort{fd: fd, base: int64(base)}, nil
}

func (p *linuxPort) ReadByte(offset uint16) (uint8, error) {
	var buf [1]byte
	if _, err := unix.Pread(p.fd, buf[:], p.base+int64(offset)); err != nil {
		return 0, fmt.Errorf("netcore/ioport: read byte at %#x: %w", offset, err)
	}
	return buf[0], nil
}

func (p *linuxPort) WriteByte(offset uint16, v uint8) error {
	if _, err := unix.Pwrite(p.fd, []byte{v}, p.base+int64(offset)); err != nil {
		return fmt.Errorf("netcore/ioport: write byte at %#x: %w", offset, err)
	}
	return nil
}

func (p *linuxPort) ReadWord(offset uint16) (uint16, error) {
	var buf [2]byte
	if _, err := unix.Pread(p.fd, buf[:], p.base+int64(offset)); err != nil {
		return 0, fmt.Errorf("netcore/ioport: read word at %#x: %w", offset, err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (p *linuxPort) WriteWord(offset uint16, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	if _, err := unix.Pwrite(p.fd, buf[:], p.base+int64(offset)); err != nil {
		return fmt.Errorf("netcore/ioport: write word at %#x: %w", offset, err)
	}
	return nil
}

func (p *linuxPort) Close() error {
	return unix.Close(p.fd)
}
