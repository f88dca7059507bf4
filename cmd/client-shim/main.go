// client-shim demonstrates the external call-gate boundary spec.md §1
// and §6 describe without implementing the call gate itself (the real
// INT-vector packet-driver API is explicitly out of scope). Shim
// converts the external client interface's four handle-keyed
// operations - register/release/send/get_stats - into calls against
// one attached core.Controller, the same boundary-crossing role
// exporter_example2's http.Server ConnState callback plays between an
// HTTP connection lifecycle and Collector.Add/Remove.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/netcore/netcore"
	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/pipeline"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/stats"
)

// ErrUnknownHandle is returned for a shim handle that was never issued
// or has already been released.
var ErrUnknownHandle = errors.New("client-shim: unknown handle")

type binding struct {
	ctl *netcore.Controller
	h   pipeline.Handle
}

// Shim is the external call-gate stand-in: one opaque integer handle
// per registered client, multiplexed onto whichever controller
// register() was called against. A real call gate would hand this
// same handle back to DOS application code across an INT vector; here
// it is just a Go map key.
type Shim struct {
	mu       sync.Mutex
	next     int
	bindings map[int]binding
}

func NewShim() *Shim {
	return &Shim{bindings: make(map[int]binding)}
}

// Register matches spec.md §6's register(ethertype, mac_filter, mode,
// callback, context) -> handle.
func (s *Shim) Register(ctl *netcore.Controller, etherType uint16, macPrefix []byte, mode pipeline.ModeFilter, cb pipeline.Callback) (int, error) {
	h, err := ctl.RegisterClient(etherType, macPrefix, mode, cb)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	handle := s.next
	s.bindings[handle] = binding{ctl: ctl, h: h}
	return handle, nil
}

// Release matches release(handle): frees the slot via
// ClientTable.Release. It does not wait for callbacks already in
// flight: ClientTable.Dispatch invokes callbacks from a copy of the
// table taken before the calls, so a Dispatch that started before
// Release can still invoke this client's callback after Release returns.
func (s *Shim) Release(handle int) error {
	s.mu.Lock()
	b, ok := s.bindings[handle]
	if ok {
		delete(s.bindings, handle)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	return b.ctl.ReleaseClient(b.h)
}

// Send matches send(handle, bytes) -> Result, resolving handle to its
// controller before forwarding to §4.6's transmit path.
func (s *Shim) Send(ctx context.Context, handle int, payload []byte, checksums pipeline.ChecksumRequest) error {
	s.mu.Lock()
	b, ok := s.bindings[handle]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	return b.ctl.Send(ctx, payload, checksums)
}

// GetStats matches get_stats(handle) -> StatsSnapshot.
func (s *Shim) GetStats(handle int) (stats.Snapshot, error) {
	s.mu.Lock()
	b, ok := s.bindings[handle]
	s.mu.Unlock()
	if !ok {
		return stats.Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	return b.ctl.Stats(), nil
}

const (
	simVendorID = 0x10B7
	simDeviceID = 0x9055
)

func seededEEPROM(mac [6]byte, vendorID, deviceID uint16) [register.EepromSize]uint16 {
	var words [register.EepromSize]uint16
	words[0] = uint16(mac[0]) | uint16(mac[1])<<8
	words[1] = uint16(mac[2]) | uint16(mac[3])<<8
	words[2] = uint16(mac[4]) | uint16(mac[5])<<8
	words[3] = deviceID
	words[7] = vendorID
	var sum uint32
	for i := 0; i < 15; i++ {
		sum += uint32(words[i])
	}
	words[15] = uint16(-sum)
	return words
}

func main() {
	log := logrus.StandardLogger()
	core := netcore.NewCore(log)

	mac := [6]byte{0x00, 0x10, 0xA4, 0xC0, 0xFF, 0xEE}
	bus := register.NewFakeBus()
	bus.SetEeprom(seededEEPROM(mac, simVendorID, simDeviceID))

	ctx := context.Background()
	id, err := core.Attach(ctx, netcore.AttachParams{
		Bus:      bus,
		VendorID: simVendorID,
		DeviceID: simDeviceID,
		Config:   netcore.DefaultConfig(),
		Probe:    coherency.UnixProbe{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: attach: %v\n", err)
		os.Exit(1)
	}
	ctl, _ := core.Get(id)
	if err := ctl.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: start: %v\n", err)
		os.Exit(1)
	}

	shim := NewShim()
	handle, err := shim.Register(ctl, 0x0800, nil, pipeline.ModePromiscuous, func(payload []byte, etherType uint16) {
		fmt.Printf("delivered: ethertype=0x%04x bytes=%d\n", etherType, len(payload))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: register: %v\n", err)
		os.Exit(1)
	}

	frame := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, mac[:]...)
	frame = append(frame, 0x08, 0x00)
	frame = append(frame, []byte("hello from client-shim")...)
	if err := shim.Send(ctx, handle, frame, pipeline.ChecksumRequest{}); err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: send: %v\n", err)
		os.Exit(1)
	}

	snap, err := shim.GetStats(handle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: get_stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("tx_packets=%d tx_bytes=%d\n", snap.TxPackets, snap.TxBytes)

	if err := shim.Release(handle); err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: release: %v\n", err)
		os.Exit(1)
	}
	if err := core.Detach(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "client-shim: detach: %v\n", err)
		os.Exit(1)
	}
}
