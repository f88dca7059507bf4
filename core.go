// Package netcore implements C10: the controller handle, the
// multi-attachment registry, and the lifecycle state machine that
// wires C1-C9 together into the attach/start/send/stop/detach
// operations spec.md §4 describes end to end.
package netcore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/chipops"
	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/media"
	"github.com/netcore/netcore/pipeline"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/ring"
	"github.com/netcore/netcore/stats"
)

// AttachID names one attached controller, generated the same way the
// teacher's cmd/exporter_example2 names a per-connection collector
// entry: xid.New().String().
type AttachID string

// State is a controller's position in the §4 lifecycle: Uninitialized
// before Attach, Ready once attached but not transmitting/receiving,
// Active once Start has enabled TX/RX, Failed once bounded
// ADAPTER-FAILURE recovery (§4.7 step 2) has been exhausted. Detach
// removes the controller from the registry outright rather than
// modeling a fifth state for it.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Controller is one attached chip: the registers, operations table,
// rings, coherency selector, statistics and interrupt pipeline it
// owns, plus the state machine gating which operations are legal.
type Controller struct {
	id   AttachID
	desc capability.ChipDescriptor
	ident capability.Identity
	cfg  Config
	log  logrus.FieldLogger

	rf       *register.RegisterFile
	ops      chipops.Ops
	txPool   *ring.Pool
	rxPool   *ring.Pool
	txLeak   *ring.LeakDetector // nil unless Config.LeakDetection
	rxLeak   *ring.LeakDetector
	selector *coherency.Selector
	counters *stats.Counters
	pl       *pipeline.Pipeline

	mu    sync.Mutex
	state State
	mode  media.Result
}

// ID identifies this controller in its owning Core's registry.
func (c *Controller) ID() AttachID { return c.id }

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MAC returns the station address Identify extracted at attach.
func (c *Controller) MAC() [6]byte { return c.ident.MAC }

// MediaResult reports the outcome of the most recent auto-negotiation
// (initial attach, or a later LINK-CHANGE renegotiation).
func (c *Controller) MediaResult() media.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// PollLink re-runs media resolution outside the interrupt path - the
// §4.4-adjacent poll_link() operation for controllers with no
// link-change interrupt source to drive onLinkChange from. A real
// PIO-only attach has no other way to notice a link flap; cmd/attachsim
// calls this on a timer for exactly that case.
func (c *Controller) PollLink(ctx context.Context) error {
	return reconcile(c.onLinkChange(ctx))
}

// Stats takes a point-in-time snapshot of this controller's counters.
func (c *Controller) Stats() stats.Snapshot { return c.counters.Snapshot() }

// Counters exposes the live counters block, for wiring into a
// statsexport.Collector (which re-snapshots it on every scrape) rather
// than the one-shot copy Stats returns.
func (c *Controller) Counters() *stats.Counters { return c.counters }

// Pipeline exposes the packet pipeline for callers that need the
// lower-level Transmit/HandleInterrupt/Clients surface directly (e.g.
// cmd/attachsim driving a simulated IRQ loop); Core.Send/RegisterClient
// wrap the common cases.
func (c *Controller) Pipeline() *pipeline.Pipeline { return c.pl }

// Start transitions Ready -> Active, enabling TX/RX on the device.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return fmt.Errorf("netcore: start: %w (state=%s)", ErrInvalidState, c.state)
	}
	if err := c.ops.Start(ctx); err != nil {
		return reconcile(err)
	}
	c.state = StateActive
	return nil
}

// Stop transitions Active -> Ready, disabling TX/RX. It is also the
// only state from which DisableBusMaster may run.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return fmt.Errorf("netcore: stop: %w (state=%s)", ErrInvalidState, c.state)
	}
	if err := c.ops.Stop(ctx); err != nil {
		return reconcile(err)
	}
	c.state = StateReady
	return nil
}

// Reset runs §4's reset(handle) operation: soft reset with the station
// address and interrupt mask reprogrammed (by re-running the operations
// table's Init), rings re-initialized, statistics cleared. Idempotent, and the only way back to Ready from Failed -
// Start/Stop never clear stats, since §6 requires counters stay
// monotonic except across an explicit reset.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return fmt.Errorf("netcore: reset: %w (state=%s)", ErrInvalidState, c.state)
	}
	c.mu.Unlock()

	if err := c.ops.Init(ctx, c.rf, c.desc, c.ident.MAC, c.counters, c.cfg.RegisterTimeout); err != nil {
		return reconcile(err)
	}
	if err := c.reinitRings(ctx); err != nil {
		return reconcile(err)
	}
	c.counters.Reset()

	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()
	return nil
}

// DisableBusMaster runs the §4.8/§9 runtime ops-table swap, legal only
// while stopped: swapping the transfer mode out from under an active
// TX/RX path would race the doorbell closure against the FIFO path.
func (c *Controller) DisableBusMaster(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return fmt.Errorf("netcore: disable bus-master: %w (state=%s, want ready)", ErrInvalidState, c.state)
	}
	return reconcile(c.ops.DisableBusMaster(ctx))
}

// Send runs the §4.6 transmit path for one frame payload.
func (c *Controller) Send(ctx context.Context, payload []byte, checksums pipeline.ChecksumRequest) error {
	if c.State() != StateActive {
		return fmt.Errorf("netcore: send: %w (state=%s, want active)", ErrInvalidState, c.State())
	}
	return reconcile(c.pl.Transmit(ctx, payload, checksums))
}

// HandleInterrupt runs the §4.7 ISR dispatch for one interrupt event,
// demoting the controller to Failed if bounded recovery is exhausted.
func (c *Controller) HandleInterrupt(ctx context.Context) error {
	err := c.pl.HandleInterrupt(ctx)
	if errors.Is(err, pipeline.ErrControllerDead) {
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
	}
	return reconcile(err)
}

// SetReceiveMode programs the device's receive filter.
func (c *Controller) SetReceiveMode(ctx context.Context, mode chipops.ReceiveMode) error {
	return reconcile(c.pl.SetReceiveMode(ctx, mode))
}

// SetPromiscuous is the live-changeable counterpart to Config.Promiscuous
// (§6): switches between ModePromiscuous and the broadcast+direct default
// without requiring detach/attach.
func (c *Controller) SetPromiscuous(ctx context.Context, on bool) error {
	mode := chipops.ModeBroadcastDirect
	if on {
		mode = chipops.ModePromiscuous
	}
	return c.SetReceiveMode(ctx, mode)
}

// RegisterClient adds a packet-delivery client, per spec.md §3.
func (c *Controller) RegisterClient(etherType uint16, macPrefix []byte, mode pipeline.ModeFilter, cb pipeline.Callback) (pipeline.Handle, error) {
	h, err := c.pl.Clients().Register(etherType, macPrefix, mode, cb)
	return h, reconcile(err)
}

// ReleaseClient removes a previously registered client.
func (c *Controller) ReleaseClient(h pipeline.Handle) error {
	return reconcile(c.pl.Clients().Release(h))
}

// Detach stops the device if still active, closes the operations
// table, and reports a leaked-buffer error if either pool didn't drain
// back to empty - §7's KindShutdown family exists for exactly this.
// When Config.LeakDetection is set, each pool's LeakDetector (built at
// attach) runs its own Expect(0)/Check first; either way,
// ring.CheckZeroAtShutdown has the final say.
func (c *Controller) Detach(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateActive {
		if err := c.ops.Stop(ctx); err != nil {
			c.mu.Unlock()
			return reconcile(err)
		}
	}
	c.state = StateUninitialized
	c.mu.Unlock()

	if err := c.ops.Close(ctx); err != nil {
		return reconcile(err)
	}

	if c.txLeak != nil {
		c.txLeak.Expect(0)
		if err := c.txLeak.Check(); err != nil {
			return fmt.Errorf("netcore: detach: %w: tx: %v", ErrLeakedAtShutdown, err)
		}
	}
	if c.rxLeak != nil {
		c.rxLeak.Expect(0)
		if err := c.rxLeak.Check(); err != nil {
			return fmt.Errorf("netcore: detach: %w: rx: %v", ErrLeakedAtShutdown, err)
		}
	}

	if err := ring.CheckZeroAtShutdown(c.txPool); err != nil {
		return fmt.Errorf("netcore: detach: %w: tx: %v", ErrLeakedAtShutdown, err)
	}
	if err := ring.CheckZeroAtShutdown(c.rxPool); err != nil {
		return fmt.Errorf("netcore: detach: %w: rx: %v", ErrLeakedAtShutdown, err)
	}
	return nil
}

// reinitRings rebuilds both pools/rings from scratch and hands the new
// pair to the pipeline; wired as pipeline.Pipeline.ReinitRings, run
// during ADAPTER-FAILURE recovery after a soft reset.
func (c *Controller) reinitRings(ctx context.Context) error {
	txPool, rxPool, txRing, rxRing, err := buildRings(c.cfg, c.ops, c.log)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.txPool, c.rxPool = txPool, rxPool
	c.mu.Unlock()
	c.pl.ReplaceRings(txRing, rxRing)
	return nil
}

// onLinkChange re-runs media resolution without touching rings, per
// §4.7 step 6; wired as pipeline.Pipeline.OnLinkChange.
func (c *Controller) onLinkChange(ctx context.Context) error {
	res, err := negotiateMedia(ctx, c.ops, c.desc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = res
	c.mu.Unlock()
	c.log.WithField("mode", res.Mode).WithField("negotiated", res.Negotiated).Info("link change: media re-resolved")
	return nil
}

// onDead fires exactly once when bounded recovery is exhausted; wired
// as pipeline.Pipeline.OnDead.
func (c *Controller) onDead() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	c.log.Warn("adapter failure: bounded recovery exhausted, controller marked dead")
}

// Core is the top-level registry: every attached Controller, keyed by
// AttachID, guarded by one mutex (attach/detach are rare relative to
// the per-packet hot path, which never touches Core itself).
type Core struct {
	mu          sync.Mutex
	controllers map[AttachID]*Controller
	table       *capability.Table
	log         logrus.FieldLogger
}

// NewCore builds a registry over the built-in capability table. log
// may be nil, in which case logrus's standard logger is used, matching
// register.New's convention.
func NewCore(log logrus.FieldLogger) *Core {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Core{
		controllers: make(map[AttachID]*Controller),
		table:       capability.Default3ComLike(),
		log:         log,
	}
}

// AttachParams bundles attach-time inputs that aren't part of Config:
// the raw bus, the (vendor, device) pair to identify, and the host
// probe driving coherency tier selection. ProbeOverride, when
// non-nil, replaces Probe as the probe resolveCoherency reads;
// cfg.CoherencyOverride still applies on top of whichever probe is used.
type AttachParams struct {
	Bus           register.Bus
	VendorID      uint16
	DeviceID      uint16
	Config        Config
	Probe         coherency.HostProbe
	ProbeOverride coherency.HostProbe
}

// Attach runs the full §4.2-§4.4 attach sequence: capability lookup,
// EEPROM identification, operations-table construction and Init,
// coherency tier selection, ring/pool construction, PHY detection and
// auto-negotiation, and packet-pipeline assembly. It returns the new
// controller's AttachID once every step has succeeded.
func (core *Core) Attach(ctx context.Context, p AttachParams) (AttachID, error) {
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	desc, ok := core.table.Lookup(p.VendorID, p.DeviceID)
	if !ok {
		return "", fmt.Errorf("netcore: attach vendor=0x%04x device=0x%04x: %w", p.VendorID, p.DeviceID, ErrUnknownChip)
	}

	rf := register.New(p.Bus, core.log)
	ident, err := capability.Identify(ctx, rf, cfg.EepromTimeout)
	if err != nil {
		return "", reconcile(fmt.Errorf("netcore: attach: identify: %w", err))
	}
	if !ident.ChecksumOK {
		core.log.WithField("vendor", p.VendorID).WithField("device", p.DeviceID).Warn("eeprom checksum mismatch, proceeding with extracted MAC per policy")
	}

	ops, err := chipops.New(desc.Family)
	if err != nil {
		return "", err
	}
	counters := &stats.Counters{}
	if err := ops.Init(ctx, rf, desc, ident.MAC, counters, cfg.RegisterTimeout); err != nil {
		return "", reconcile(fmt.Errorf("netcore: attach: init: %w", err))
	}

	analysis := resolveCoherency(cfg, p, desc)
	if analysis.Tier == coherency.TierDisableBusMaster {
		// §4.8's decision table routes a broken bus-master straight to
		// DisableBusMaster with no higher tier to demote from, so the
		// ops-table swap has to happen here rather than waiting for a
		// runtime Prepare/Demote cycle that will never fire a first
		// fault. A tier that degrades after attach reaches
		// DisableBusMaster through Selector.Demote instead, whose
		// callback (wired below) calls ops.DisableBusMaster from inside
		// Send, while the controller is Active.
		if err := ops.DisableBusMaster(ctx); err != nil {
			return "", reconcile(fmt.Errorf("netcore: attach: disable bus-master: %w", err))
		}
	}

	var ctl *Controller
	onDemoteToPIO := func() {
		if ctl == nil {
			return
		}
		if err := ctl.ops.DisableBusMaster(context.Background()); err != nil {
			ctl.log.WithError(err).Error("bus-master demotion: disable fallback failed")
		}
	}
	selector := coherency.NewSelector(analysis, nil, onDemoteToPIO)

	txPool, rxPool, txRing, rxRing, err := buildRings(cfg, ops, core.log)
	if err != nil {
		return "", reconcile(err)
	}

	pl := pipeline.New(ops, txRing, rxRing, selector, counters, ident.MAC, pipeline.DefaultCapacity)

	mode, err := negotiateMedia(ctx, ops, desc)
	if err != nil {
		return "", reconcile(fmt.Errorf("netcore: attach: media: %w", err))
	}

	var txLeak, rxLeak *ring.LeakDetector
	if cfg.LeakDetection {
		txLeak = ring.NewLeakDetector(txPool)
		rxLeak = ring.NewLeakDetector(rxPool)
	}

	id := AttachID(xid.New().String())
	ctl = &Controller{
		id:       id,
		desc:     desc,
		ident:    ident,
		cfg:      cfg,
		log:      core.log.WithField("controller", string(id)),
		rf:       rf,
		ops:      ops,
		txPool:   txPool,
		rxPool:   rxPool,
		txLeak:   txLeak,
		rxLeak:   rxLeak,
		selector: selector,
		counters: counters,
		pl:       pl,
		state:    StateReady,
		mode:     mode,
	}
	pl.ReinitRings = ctl.reinitRings
	pl.OnLinkChange = ctl.onLinkChange
	pl.OnDead = ctl.onDead

	if cfg.Promiscuous {
		if err := ctl.SetPromiscuous(ctx, true); err != nil {
			return "", reconcile(err)
		}
	}

	core.mu.Lock()
	core.controllers[id] = ctl
	core.mu.Unlock()
	return id, nil
}

// Get looks up an attached controller by id.
func (core *Core) Get(id AttachID) (*Controller, bool) {
	core.mu.Lock()
	defer core.mu.Unlock()
	c, ok := core.controllers[id]
	return c, ok
}

// Detach removes the controller from the registry and then runs
// Controller.Detach. The entry is removed whatever Controller.Detach
// returns, a leaked-buffer error included: a stuck
// controller's handle shouldn't block every future attach from being
// visible in diagnostics.
func (core *Core) Detach(ctx context.Context, id AttachID) error {
	core.mu.Lock()
	c, ok := core.controllers[id]
	if ok {
		delete(core.controllers, id)
	}
	core.mu.Unlock()
	if !ok {
		return fmt.Errorf("netcore: detach %s: controller not attached", id)
	}
	return c.Detach(ctx)
}

// Len reports how many controllers are currently attached.
func (core *Core) Len() int {
	core.mu.Lock()
	defer core.mu.Unlock()
	return len(core.controllers)
}

// buildRings constructs a fresh pair of pools/rings sized per cfg, and
// the TX ring's doorbell closure. It is the one piece of ring-building
// logic shared between Attach and Controller.reinitRings, since
// ADAPTER-FAILURE recovery (§4.7 step 2) rebuilds rings the same way
// attach first built them.
func buildRings(cfg Config, ops chipops.Ops, log logrus.FieldLogger) (txPool, rxPool *ring.Pool, txRing, rxRing *ring.Ring, err error) {
	bufSize := int(cfg.BufferSize)
	txPool = ring.NewPool(ring.Size*2, bufSize)
	rxPool = ring.NewPool(ring.Size*2, bufSize)

	var tr *ring.Ring
	doorbell := func() {
		if tr == nil {
			return
		}
		cur, _ := tr.Cursors()
		buf := tr.SlotBuffer(cur - 1)
		if buf == nil {
			return
		}
		if err := ops.Transmit(context.Background(), buf); err != nil {
			log.WithError(err).Warn("transmit doorbell failed")
		}
	}
	tr = ring.NewRing(ring.KindTX, txPool, doorbell)
	txRing = tr

	rxRing = ring.NewRing(ring.KindRX, rxPool, nil)
	if err := rxRing.InitRX(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("netcore: init rx ring: %w", err)
	}
	return txPool, rxPool, txRing, rxRing, nil
}

// resolveCoherency turns Config.CoherencyOverride and the supplied
// probe(s) into the Analysis Attach seeds its Selector with (§4.8).
func resolveCoherency(cfg Config, p AttachParams, desc capability.ChipDescriptor) coherency.Analysis {
	probe := p.Probe
	if p.ProbeOverride != nil {
		probe = p.ProbeOverride
	}

	switch cfg.CoherencyOverride {
	case CoherencyForcePIO:
		return coherency.Analyze(probe.CPUFamily(), probe.CacheMode(), coherency.BusMasterBroken, probe.ProbeSnooping())
	case CoherencyForceTier:
		a := coherency.RunProbe(probe)
		a.Tier = coherency.Tier(cfg.ForcedTier)
		a.Confidence = 100
		return a
	default:
		return coherency.RunProbe(probe)
	}
}

// negotiateMedia runs §4.4: PHY detection and auto-negotiation when
// the chip descriptor advertises FeatureAutoNegotiation, falling back
// to the descriptor's forced default media otherwise or when no PHY
// answers. A negotiation timeout is not an attach error: the
// forced-10HD Result media.Negotiate reports is returned with a nil
// error, and the timeout itself is neither logged nor passed on.
func negotiateMedia(ctx context.Context, phy media.PHY, desc capability.ChipDescriptor) (media.Result, error) {
	if !desc.Features.Has(capability.FeatureAutoNegotiation) {
		return media.Result{Mode: forcedCapability(desc.DefaultMedia).Mode(), Negotiated: false, LinkUp: true}, nil
	}

	addr, err := media.DetectPHY(ctx, phy)
	if err != nil {
		if errors.Is(err, media.ErrNoPHY) {
			return media.Result{Mode: forcedCapability(desc.DefaultMedia).Mode(), Negotiated: false, LinkUp: true}, nil
		}
		return media.Result{}, err
	}

	res, err := media.Negotiate(ctx, phy, addr, mediaCapabilities(desc))
	if err != nil && !errors.Is(err, media.ErrNegotiationTimeout) {
		return media.Result{}, err
	}
	return res, nil
}

// mediaCapabilities maps a chip descriptor's forced default media and
// auto-negotiation capability onto the Capability bitmap Negotiate
// advertises.
func mediaCapabilities(desc capability.ChipDescriptor) media.Capability {
	caps := media.Cap10HD | media.Cap10FD
	switch desc.DefaultMedia {
	case capability.Media100HD, capability.Media100FD, capability.Media100T4:
		caps |= media.Cap100HD | media.Cap100FD
	}
	if desc.DefaultMedia == capability.Media100T4 {
		caps |= media.Cap100T4
	}
	return caps
}

func forcedCapability(m capability.MediaOption) media.Capability {
	switch m {
	case capability.Media10FD:
		return media.Cap10FD
	case capability.Media100HD:
		return media.Cap100HD
	case capability.Media100FD:
		return media.Cap100FD
	case capability.Media100T4:
		return media.Cap100T4
	default:
		return media.Cap10HD
	}
}

// reconcile translates a leaf package's local sentinel errors into the
// root ErrorKind taxonomy at the facade boundary, per the ledger's
// "leaf packages stay independent of the root error taxonomy" design
// decision. Errors with no mapping pass through unchanged - Kind(err)
// still reports KindUnknown for them rather than silently miscounting.
func reconcile(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, register.ErrEepromAddressRange):
		return fmt.Errorf("%w: %v", ErrEepromAddress, err)
	case errors.Is(err, register.ErrEepromTimeoutKind):
		return fmt.Errorf("%w: %v", ErrEepromTimeout, err)
	case errors.Is(err, ring.ErrBufferPoolEmpty):
		return fmt.Errorf("%w: %v", ErrBufferPoolEmpty, err)
	case errors.Is(err, ring.ErrRingFull):
		return fmt.Errorf("%w: %v", ErrRingFull, err)
	case errors.Is(err, ring.ErrBadDescriptor):
		return fmt.Errorf("%w: %v", ErrBadDescriptor, err)
	case errors.Is(err, pipeline.ErrControllerDead):
		return fmt.Errorf("%w: %v", ErrAdapterFailure, err)
	case errors.Is(err, pipeline.ErrInvalidLength):
		return fmt.Errorf("%w: %v", ErrInvalidLength, err)
	case errors.Is(err, pipeline.ErrOutOfHandles):
		return fmt.Errorf("%w: %v", ErrOutOfHandles, err)
	case errors.Is(err, coherency.ErrDmaUnsupported):
		return fmt.Errorf("%w: %v", ErrDmaUnsupported, err)
	case errors.Is(err, media.ErrNoPHY):
		return fmt.Errorf("%w: %v", ErrHardwareAbsent, err)
	case errors.Is(err, media.ErrNegotiationTimeout):
		return fmt.Errorf("%w: %v", ErrNegotiationTimeout, err)
	}
	var te *register.TimeoutError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %v", ErrCommandTimeout, err)
	}
	return err
}
