package netcore

import (
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/media"
	"github.com/netcore/netcore/pipeline"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
)

const (
	testVendorID = 0x10B7
	testDeviceID = 0x9055 // Fast EtherLink XL (BusMaster PCI)
)

var testMAC = [6]byte{0x00, 0x10, 0xA4, 0xC0, 0xFF, 0xEE}

// seededEEPROM builds the same 16-word image cmd/attachsim and
// cmd/client-shim seed their FakeBus with: MAC/device/vendor in their
// documented word slots, word 15 chosen so the 16-word sum wraps to
// zero (the checksum capability.Identify checks).
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

// cleanProbe reports a fully healthy host: bus-master DMA works, the
// bus snoops it completely, so Analyze always lands on TierFallback -
// a deterministic, CPU-independent stand-in for coherency.UnixProbe in
// tests that don't care which tier got picked.
var cleanProbe = coherency.FixedProbe{BusMaster: coherency.BusMasterOK, Snoop: coherency.SnoopFull}

func attachTestController(t *testing.T, probe coherency.HostProbe, cfg Config) (*Core, AttachID, *Controller) {
	t.Helper()
	core := NewCore(nil)
	bus := register.NewFakeBus()
	bus.SetEeprom(seededEEPROM(testMAC, testVendorID, testDeviceID))

	id, err := core.Attach(context.Background(), AttachParams{
		Bus:      bus,
		VendorID: testVendorID,
		DeviceID: testDeviceID,
		Config:   cfg,
		Probe:    probe,
	})
	assert.NilError(t, err)

	ctl, ok := core.Get(id)
	assert.Assert(t, ok)
	return core, id, ctl
}

// TestAttachStartSendStopDetachLifecycle runs spec.md §8's S1
// end-to-end: attach a healthy bus-master chip against a FakeBus,
// start it, send a frame, stop, and detach cleanly with no leaked
// buffers.
func TestAttachStartSendStopDetachLifecycle(t *testing.T) {
	core, id, ctl := attachTestController(t, cleanProbe, DefaultConfig())

	assert.Equal(t, ctl.State(), StateReady)
	assert.Equal(t, ctl.MAC(), testMAC)

	assert.NilError(t, ctl.Start(context.Background()))
	assert.Equal(t, ctl.State(), StateActive)

	frame := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, testMAC[:]...)
	frame = append(frame, 0x08, 0x00)
	frame = append(frame, []byte("hello")...)
	assert.NilError(t, ctl.Send(context.Background(), frame, pipeline.ChecksumRequest{}))

	assert.NilError(t, ctl.Stop(context.Background()))
	assert.Equal(t, ctl.State(), StateReady)

	assert.NilError(t, core.Detach(context.Background(), id))
	assert.Equal(t, core.Len(), 0)
	_, ok := core.Get(id)
	assert.Assert(t, !ok)
}

// TestSendRejectsOversizeFrame exercises §4.6's length guard and its
// mapping onto the root taxonomy (ErrInvalidLength/KindParameter).
func TestSendRejectsOversizeFrame(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())
	assert.NilError(t, ctl.Start(context.Background()))

	oversize := make([]byte, 2000)
	err := ctl.Send(context.Background(), oversize, pipeline.ChecksumRequest{})
	assert.Assert(t, err != nil)
	assert.Assert(t, errors.Is(err, ErrInvalidLength))
	assert.Equal(t, Kind(err), KindParameter)
}

// TestSendBeforeStartIsInvalidState checks the state guard on Send: a
// Ready (not yet Active) controller must reject Send rather than
// silently queuing it.
func TestSendBeforeStartIsInvalidState(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())
	err := ctl.Send(context.Background(), []byte("too soon"), pipeline.ChecksumRequest{})
	assert.Assert(t, errors.Is(err, ErrInvalidState))
}

// TestAttachUnknownChipFails checks capability.Table.Lookup's miss
// path surfaces ErrUnknownChip rather than a generic error.
func TestAttachUnknownChipFails(t *testing.T) {
	core := NewCore(nil)
	bus := register.NewFakeBus()
	_, err := core.Attach(context.Background(), AttachParams{
		Bus:      bus,
		VendorID: 0xDEAD,
		DeviceID: 0xBEEF,
		Config:   DefaultConfig(),
		Probe:    cleanProbe,
	})
	assert.Assert(t, errors.Is(err, ErrUnknownChip))
}

// TestAttachRejectsInvalidConfig checks Attach fails when
// Config.Validate rejects an out-of-range BufferSize.
func TestAttachRejectsInvalidConfig(t *testing.T) {
	core := NewCore(nil)
	cfg := DefaultConfig()
	cfg.BufferSize = 999
	_, err := core.Attach(context.Background(), AttachParams{
		Bus:      register.NewFakeBus(),
		VendorID: testVendorID,
		DeviceID: testDeviceID,
		Config:   cfg,
		Probe:    cleanProbe,
	})
	assert.Assert(t, err != nil)
}

// TestStartStopStateGuards checks every illegal transition in the
// Ready/Active state machine returns ErrInvalidState instead of
// silently touching the device.
func TestStartStopStateGuards(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())

	assert.Assert(t, errors.Is(ctl.Stop(context.Background()), ErrInvalidState), "stop before start")

	assert.NilError(t, ctl.Start(context.Background()))
	assert.Assert(t, errors.Is(ctl.Start(context.Background()), ErrInvalidState), "double start")

	assert.NilError(t, ctl.Stop(context.Background()))
	assert.Assert(t, errors.Is(ctl.Stop(context.Background()), ErrInvalidState), "double stop")
}

// TestDisableBusMasterLegalStateGuard checks §4.8/§9's "only legal at
// init or during full stop" rule: DisableBusMaster must be rejected
// while Active and accepted while Ready.
func TestDisableBusMasterLegalStateGuard(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())

	assert.NilError(t, ctl.Start(context.Background()))
	err := ctl.DisableBusMaster(context.Background())
	assert.Assert(t, errors.Is(err, ErrInvalidState))

	assert.NilError(t, ctl.Stop(context.Background()))
	assert.NilError(t, ctl.DisableBusMaster(context.Background()))
}

// TestResetClearsCountersAndState checks Reset (§4's reset(handle))
// zeroes statistics and returns the controller to Ready even when
// called from Active.
func TestResetClearsCountersAndState(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())
	assert.NilError(t, ctl.Start(context.Background()))

	ctl.Counters().AddRx(3, 900)
	assert.Equal(t, ctl.Stats().RxPackets, uint64(3))

	assert.NilError(t, ctl.Reset(context.Background()))
	assert.Equal(t, ctl.State(), StateReady)
	assert.Equal(t, ctl.Stats().RxPackets, uint64(0))
}

// TestSetPromiscuousTogglesWithoutError checks the live-changeable
// counterpart to Config.Promiscuous (§6) works both directions without
// requiring detach/attach.
func TestSetPromiscuousTogglesWithoutError(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())
	assert.NilError(t, ctl.SetPromiscuous(context.Background(), true))
	assert.NilError(t, ctl.SetPromiscuous(context.Background(), false))
}

// TestPollLinkResolvesMedia checks the poll_link()-equivalent operation
// for PIO-only attaches with no link-change interrupt source: it must
// re-run media resolution and update MediaResult without touching
// rings or state.
func TestPollLinkResolvesMedia(t *testing.T) {
	_, _, ctl := attachTestController(t, cleanProbe, DefaultConfig())
	before := ctl.MediaResult()

	assert.NilError(t, ctl.PollLink(context.Background()))

	after := ctl.MediaResult()
	assert.Equal(t, after.Mode, before.Mode)
	assert.Equal(t, ctl.State(), StateReady)
}

// TestAttachBrokenBusMasterDisablesDMA runs spec.md §8's S6: a
// bus-master-capable chip whose bus-master probe comes back broken
// must end up with the PIO fallback ops-table swap already applied at
// attach, so a later Send never surfaces ErrDmaUnsupported even though
// the selected tier is DisableBusMaster from the very first Prepare.
func TestAttachBrokenBusMasterDisablesDMA(t *testing.T) {
	brokenProbe := coherency.FixedProbe{BusMaster: coherency.BusMasterBroken}
	_, _, ctl := attachTestController(t, brokenProbe, DefaultConfig())

	assert.NilError(t, ctl.Start(context.Background()))

	frame := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, testMAC[:]...)
	frame = append(frame, 0x08, 0x00)
	frame = append(frame, []byte("pio fallback")...)
	assert.NilError(t, ctl.Send(context.Background(), frame, pipeline.ChecksumRequest{}))
}

// TestReconcileErrorTaxonomy checks every sentinel reconcile maps,
// per §7's error-kind taxonomy, plus the register.TimeoutError
// fallback and the unmapped-error passthrough.
func TestReconcileErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name         string
		leaf         error
		wantSentinel error
		wantKind     ErrorKind
	}{
		{"eeprom address", register.ErrEepromAddressRange, ErrEepromAddress, KindParameter},
		{"eeprom timeout", register.ErrEepromTimeoutKind, ErrEepromTimeout, KindTimeout},
		{"buffer pool empty", ring.ErrBufferPoolEmpty, ErrBufferPoolEmpty, KindResource},
		{"ring full", ring.ErrRingFull, ErrRingFull, KindResource},
		{"bad descriptor", ring.ErrBadDescriptor, ErrBadDescriptor, KindIntegrity},
		{"controller dead", pipeline.ErrControllerDead, ErrAdapterFailure, KindHardware},
		{"invalid length", pipeline.ErrInvalidLength, ErrInvalidLength, KindParameter},
		{"out of handles", pipeline.ErrOutOfHandles, ErrOutOfHandles, KindParameter},
		{"dma unsupported", coherency.ErrDmaUnsupported, ErrDmaUnsupported, KindCoherency},
		{"no phy", media.ErrNoPHY, ErrHardwareAbsent, KindHardware},
		{"negotiation timeout", media.ErrNegotiationTimeout, ErrNegotiationTimeout, KindTimeout},
		{"register timeout", register.ErrTimeoutFor(register.CommandReg), ErrCommandTimeout, KindTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := reconcile(tc.leaf)
			assert.Assert(t, errors.Is(got, tc.wantSentinel), "reconcile(%v) = %v, want wrapping %v", tc.leaf, got, tc.wantSentinel)
			assert.Equal(t, Kind(got), tc.wantKind)
		})
	}

	assert.Assert(t, reconcile(nil) == nil)

	unmapped := errors.New("some other leaf error")
	got := reconcile(unmapped)
	assert.Assert(t, errors.Is(got, unmapped))
	assert.Equal(t, Kind(got), KindUnknown)
}
