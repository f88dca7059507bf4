package ioport

import (
	"errors"
	"runtime"
	"testing"
)

func TestOpenOnUnsupportedPlatformReturnsSentinel(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Skip("linux opens a real /dev/port fd, not exercisable without root in a test sandbox")
	}
	_, err := Open(0x300)
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("Open() error = %v, want ErrUnsupportedPlatform", err)
	}
}
