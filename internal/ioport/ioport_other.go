//go:build !linux

package ioport

func openPort(base uint16) (Port, error) {
	return nil, ErrUnsupportedPlatform
}
