package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/chipops"
	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/frame"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

// fakeOps is a test double satisfying chipops.Ops without touching any
// real register file, letting the pipeline tests drive interrupt
// events and transmit calls directly.
type fakeOps struct {
	mac        [6]byte
	events     []chipops.InterruptEvent
	resetCount int
	startCount int
	stopCount  int
	lastThresh int
	lastMode   chipops.ReceiveMode
	failReset  bool
}

func (f *fakeOps) Init(context.Context, *register.RegisterFile, capability.ChipDescriptor, [6]byte, *stats.Counters, time.Duration) error {
	return nil
}

func (f *fakeOps) ReadMII(ctx context.Context, phyAddr, reg int) (uint16, error) { return 0, nil }
func (f *fakeOps) WriteMII(ctx context.Context, phyAddr, reg int, value uint16) error {
	return nil
}
func (f *fakeOps) DisableBusMaster(ctx context.Context) error { return nil }

func (f *fakeOps) Reset(ctx context.Context) error {
	f.resetCount++
	if f.failReset {
		return errors.New("fake reset failed")
	}
	return nil
}
func (f *fakeOps) Start(ctx context.Context) error { f.startCount++; return nil }
func (f *fakeOps) Stop(ctx context.Context) error  { f.stopCount++; return nil }

func (f *fakeOps) Transmit(ctx context.Context, buf *ring.Buffer) error { return nil }

func (f *fakeOps) PollReceive(ctx context.Context) ([]byte, bool, error) { return nil, false, nil }

func (f *fakeOps) Interrupt(ctx context.Context) (chipops.InterruptEvent, error) {
	if len(f.events) == 0 {
		return chipops.EventNone, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeOps) SetReceiveMode(ctx context.Context, mode chipops.ReceiveMode) error {
	f.lastMode = mode
	return nil
}
func (f *fakeOps) GetMAC() [6]byte          { return f.mac }
func (f *fakeOps) GetStats() stats.Snapshot { return stats.Snapshot{} }
func (f *fakeOps) SetTxThreshold(ctx context.Context, bytes int) error {
	f.lastThresh = bytes
	return nil
}
func (f *fakeOps) Close(ctx context.Context) error { return nil }

var station = [6]byte{0x00, 0x10, 0x5A, 0x01, 0x02, 0x03}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeOps) {
	t.Helper()
	ops := &fakeOps{mac: station}
	txPool := ring.NewPool(ring.Size*2, frame.MaxFrame)
	rxPool := ring.NewPool(ring.Size*2, frame.MaxFrame)
	txRing := ring.NewRing(ring.KindTX, txPool, nil)
	rxRing := ring.NewRing(ring.KindRX, rxPool, nil)
	if err := rxRing.InitRX(); err != nil {
		t.Fatalf("InitRX: %v", err)
	}
	counters := &stats.Counters{}
	selector := coherency.NewSelector(coherency.Analyze(
		coherency.CPUFamily{Name: "test", HasCacheLineFlush: true, HasCacheManagement: true},
		coherency.CacheWriteBack, coherency.BusMasterOK, coherency.SnoopFull,
	), nil, nil)
	p := New(ops, txRing, rxRing, selector, counters, station, DefaultCapacity)
	return p, ops
}

func TestClientDispatchExactMatch(t *testing.T) {
	p, _ := newTestPipeline(t)

	var directCount, broadcastCount int
	if _, err := p.Clients().Register(frame.EtherTypeIPv4, station[:], ModeDirect, func(payload []byte, et uint16) {
		directCount++
	}); err != nil {
		t.Fatalf("Register direct: %v", err)
	}
	if _, err := p.Clients().Register(frame.EtherTypeIPv4, nil, ModeBroadcast, func(payload []byte, et uint16) {
		broadcastCount++
	}); err != nil {
		t.Fatalf("Register broadcast: %v", err)
	}

	f := frame.Frame{Dest: station, Src: [6]byte{1, 2, 3, 4, 5, 6}, Type: frame.EtherTypeIPv4, Payload: []byte("hi")}
	matched := p.Clients().Dispatch(f, frame.Classify(f.Dest, station))
	if matched != 2 {
		t.Fatalf("matched = %d, want 2", matched)
	}
	if directCount != 1 || broadcastCount != 1 {
		t.Fatalf("directCount=%d broadcastCount=%d, want 1/1", directCount, broadcastCount)
	}

	bcast := frame.Frame{Dest: [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Type: frame.EtherTypeIPv4}
	matched = p.Clients().Dispatch(bcast, frame.Classify(bcast.Dest, station))
	if matched != 1 {
		t.Fatalf("broadcast dispatch matched = %d, want 1 (direct client must not match)", matched)
	}
}

func TestAdaptiveThresholdIncrementsOnUnderrunAndDecrementsOnCleanRun(t *testing.T) {
	p, ops := newTestPipeline(t)
	start := p.TxThreshold()
	if start != thresholdMin {
		t.Fatalf("initial threshold = %d, want %d", start, thresholdMin)
	}

	buf := &ring.Buffer{Data: make([]byte, frame.MaxFrame), Used: frame.MinFrameFCS}
	if err := p.txRing.TxEnqueue(buf, 0); err != nil {
		t.Fatalf("TxEnqueue: %v", err)
	}
	p.txRing.CompleteTxAt(0, true) // underrun
	if err := p.reapTxCompletions(context.Background()); err != nil {
		t.Fatalf("reapTxCompletions: %v", err)
	}
	if got := p.TxThreshold(); got != thresholdMin+thresholdIncrementOnUnderrun {
		t.Fatalf("threshold after underrun = %d, want %d", got, thresholdMin+thresholdIncrementOnUnderrun)
	}
	if ops.lastThresh != p.TxThreshold() {
		t.Fatalf("ops.SetTxThreshold not called with new threshold")
	}

	for i := 0; i < thresholdDecrementEvery; i++ {
		if err := p.txRing.TxEnqueue(buf, 0); err != nil {
			t.Fatalf("TxEnqueue clean %d: %v", i, err)
		}
		cur, _ := p.txRing.Cursors()
		p.txRing.CompleteTxAt(cur-1, false)
	}
	if err := p.reapTxCompletions(context.Background()); err != nil {
		t.Fatalf("reapTxCompletions clean: %v", err)
	}
	want := thresholdMin + thresholdIncrementOnUnderrun - thresholdDecrementStep
	if got := p.TxThreshold(); got != want {
		t.Fatalf("threshold after clean run = %d, want %d", got, want)
	}
}

func TestRxErrorSubCountersIncrementOnHarvest(t *testing.T) {
	p, _ := newTestPipeline(t)

	cur, _ := p.rxRing.Cursors()
	p.rxRing.CompleteRxAt(cur-ring.Size, []byte("garbage"), ring.StatusError|ring.StatusCRCError)
	p.harvestRx()

	snap := p.counters.Snapshot()
	if snap.RxCRC != 1 {
		t.Fatalf("RxCRC = %d, want 1", snap.RxCRC)
	}
	if snap.RxErrors != 1 {
		t.Fatalf("RxErrors = %d, want 1", snap.RxErrors)
	}
}

func TestRxCleanFrameDeliveredToMatchingClient(t *testing.T) {
	p, _ := newTestPipeline(t)
	delivered := 0
	if _, err := p.Clients().Register(frame.EtherTypeIPv4, nil, ModePromiscuous, func(payload []byte, et uint16) {
		delivered++
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	raw := frame.Build(station, [6]byte{9, 9, 9, 9, 9, 9}, frame.EtherTypeIPv4, []byte("payload"))
	cur, _ := p.rxRing.Cursors()
	p.rxRing.CompleteRxAt(cur-ring.Size, raw, 0)
	p.harvestRx()

	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if snap := p.counters.Snapshot(); snap.RxPackets != 1 {
		t.Fatalf("RxPackets = %d, want 1", snap.RxPackets)
	}
}

func TestRecoveryMarksDeadAfterExhaustingAttempts(t *testing.T) {
	p, ops := newTestPipeline(t)
	var deadCalls int
	p.OnDead = func() { deadCalls++ }
	p.ReinitRings = func(ctx context.Context) error { return nil }

	fixed := time.Unix(1000, 0)
	old := recoveryClock
	recoveryClock = func() time.Time { return fixed }
	defer func() { recoveryClock = old }()

	for i := 0; i < maxRecoveryAttempts; i++ {
		ops.events = append(ops.events, chipops.EventAdapterFailure)
		if err := p.HandleInterrupt(context.Background()); err != nil {
			t.Fatalf("HandleInterrupt attempt %d: %v", i, err)
		}
		if p.Dead() {
			t.Fatalf("marked dead after only %d attempts", i+1)
		}
	}

	ops.events = append(ops.events, chipops.EventAdapterFailure)
	err := p.HandleInterrupt(context.Background())
	if !errors.Is(err, ErrControllerDead) {
		t.Fatalf("HandleInterrupt after exhausting recovery = %v, want ErrControllerDead", err)
	}
	if !p.Dead() {
		t.Fatalf("pipeline not marked dead")
	}
	if deadCalls != 1 {
		t.Fatalf("OnDead called %d times, want 1", deadCalls)
	}
	if ops.resetCount != maxRecoveryAttempts {
		t.Fatalf("resetCount = %d, want %d (no reset on the exhausting attempt)", ops.resetCount, maxRecoveryAttempts)
	}
}

func TestLinkChangeFiresHookWithoutTouchingRings(t *testing.T) {
	p, ops := newTestPipeline(t)
	var fired int
	p.OnLinkChange = func(ctx context.Context) error { fired++; return nil }
	ops.events = append(ops.events, chipops.EventLinkChange)

	if err := p.HandleInterrupt(context.Background()); err != nil {
		t.Fatalf("HandleInterrupt: %v", err)
	}
	if fired != 1 {
		t.Fatalf("OnLinkChange fired %d times, want 1", fired)
	}
	if ops.resetCount != 0 {
		t.Fatalf("resetCount = %d, want 0 (link change must not reset)", ops.resetCount)
	}
}
