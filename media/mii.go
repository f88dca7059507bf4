// Package media implements C5: PHY discovery, auto-negotiation, and
// the forced-media fallback §4.4 requires when negotiation is
// unavailable or times out.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PHY is the MII bus a controller family exposes; chipops
// implementations wire this to their MMFR-style MII frame register
// (grounded on the NXP ENET driver's ENETx_MMFR, other_examples
// enet.go).
type PHY interface {
	ReadMII(ctx context.Context, phyAddr, reg int) (uint16, error)
	WriteMII(ctx context.Context, phyAddr, reg int, value uint16) error
}

// Standard MII register numbers (IEEE 802.3 clause 22).
const (
	RegBasicControl = 0
	RegBasicStatus  = 1
	RegAdvertise    = 4
	RegLinkPartner  = 5
)

// Basic status/control bits used by this driver.
const (
	bsAutoNegComplete = 1 << 5
	bsAutoNegAbility  = 1 << 3
	bsLinkStatus      = 1 << 2

	bcAutoNegEnable  = 1 << 12
	bcAutoNegRestart = 1 << 9
)

// Capability is one advertised/negotiated mode as a bit flag.
// Resolution order comes from the priority slice below, not from the
// bit values (Cap100T4's bit is above Cap100FD's).
type Capability uint16

const (
	Cap10HD Capability = 1 << iota
	Cap10FD
	Cap100HD
	Cap100FD
	Cap100T4
)

// advertiseBit maps a Capability onto its bit position in the MII
// advertisement/link-partner registers (bits 5..9).
var advertiseBit = map[Capability]uint16{
	Cap10HD:  1 << 5,
	Cap10FD:  1 << 6,
	Cap100HD: 1 << 7,
	Cap100FD: 1 << 8,
	Cap100T4: 1 << 9,
}

// priority is the resolution order from §4.4 step 6: 100-FD > 100-T4
// > 100-HD > 10-FD > 10-HD.
var priority = []Capability{Cap100FD, Cap100T4, Cap100HD, Cap10FD, Cap10HD}

// Mode is a resolved speed/duplex pair.
type Mode struct {
	SpeedMbps int
	FullDuplex bool
}

func (c Capability) Mode() Mode {
	switch c {
	case Cap100FD:
		return Mode{100, true}
	case Cap100T4:
		return Mode{100, false}
	case Cap100HD:
		return Mode{100, false}
	case Cap10FD:
		return Mode{10, true}
	default:
		return Mode{10, false}
	}
}

// Forced10HD is the fallback mode §4.4 step 5 drops to on negotiation
// timeout, and what §4.4 step 2 uses when the PHY cannot negotiate.
var Forced10HD = Mode{SpeedMbps: 10, FullDuplex: false}

var ErrNoPHY = errors.New("netcore/media: no MII PHY responded on any address")

// DetectPHY scans MII addresses 0-31 for a BasicStatus register that
// isn't all-ones (§4.4 step 1).
func DetectPHY(ctx context.Context, phy PHY) (int, error) {
	for addr := 0; addr < 32; addr++ {
		status, err := phy.ReadMII(ctx, addr, RegBasicStatus)
		if err != nil {
			continue
		}
		if status != 0xFFFF {
			return addr, nil
		}
	}
	return -1, ErrNoPHY
}

// Result is what a successful (or timed-out) negotiation produces.
type Result struct {
	Mode        Mode
	Negotiated  bool // false when forced fallback was used
	LinkUp      bool
}

// ErrNegotiationTimeout is returned (alongside a forced-10HD Result)
// when the negotiation-complete bit never sets within the bound.
var ErrNegotiationTimeout = errors.New("netcore/media: auto-negotiation timeout")

// pollInterval and pollBudget are the literal values from §4.4 step 5:
// poll every 10ms, up to 3s.
const (
	pollInterval = 10 * time.Millisecond
	pollBudget   = 3 * time.Second
)

// Negotiate runs §4.4 steps 2-7: it falls back to forced media when
// the PHY can't negotiate, otherwise advertises driverSupported in
// full (the PHY's ability bits in basic status are not consulted, so
// the advertisement is not narrowed to what the PHY supports),
// restarts negotiation, polls for completion, and resolves the highest
// common mode with the link partner. On timeout it programs Forced10HD
// and returns ErrNegotiationTimeout alongside a Result reporting the
// fallback; the netcore facade keeps that Result and discards the
// error rather than failing the attach.
func Negotiate(ctx context.Context, phy PHY, addr int, driverSupported Capability) (Result, error) {
	status, err := phy.ReadMII(ctx, addr, RegBasicStatus)
	if err != nil {
		return Result{}, fmt.Errorf("netcore/media: read basic status: %w", err)
	}
	if status&bsAutoNegAbility == 0 {
		return Result{Mode: Forced10HD, Negotiated: false, LinkUp: true}, nil
	}

	advertise := driverSupported // in the absence of a separate PHY-capability register read, advertise the driver's full supported set
	var advWord uint16
	for cap, bit := range advertiseBit {
		if advertise&cap != 0 {
			advWord |= bit
		}
	}
	if err := phy.WriteMII(ctx, addr, RegAdvertise, advWord); err != nil {
		return Result{}, fmt.Errorf("netcore/media: write advertisement: %w", err)
	}
	if err := phy.WriteMII(ctx, addr, RegBasicControl, bcAutoNegEnable|bcAutoNegRestart); err != nil {
		return Result{}, fmt.Errorf("netcore/media: restart auto-negotiation: %w", err)
	}

	deadline := time.Now().Add(pollBudget)
	for {
		bs, err := phy.ReadMII(ctx, addr, RegBasicStatus)
		if err != nil {
			return Result{}, fmt.Errorf("netcore/media: poll basic status: %w", err)
		}
		if bs&bsAutoNegComplete != 0 {
			break
		}
		if time.Now().After(deadline) {
			if werr := phy.WriteMII(ctx, addr, RegBasicControl, 0); werr != nil {
				return Result{}, fmt.Errorf("netcore/media: forcing fallback after timeout: %w", werr)
			}
			return Result{Mode: Forced10HD, Negotiated: false, LinkUp: true}, ErrNegotiationTimeout
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	partnerWord, err := phy.ReadMII(ctx, addr, RegLinkPartner)
	if err != nil {
		return Result{}, fmt.Errorf("netcore/media: read link partner ability: %w", err)
	}
	common := resolveCommon(advWord, partnerWord)
	mode := common.Mode()

	bs, err := phy.ReadMII(ctx, addr, RegBasicStatus)
	if err != nil {
		return Result{}, fmt.Errorf("netcore/media: read link status: %w", err)
	}
	return Result{Mode: mode, Negotiated: true, LinkUp: bs&bsLinkStatus != 0}, nil
}

// resolveCommon picks the highest-priority Capability present in both
// the advertised and partner words, defaulting to 10HD if nothing
// overlaps (shouldn't happen once both sides advertise 10HD, which
// every compliant PHY does).
func resolveCommon(advertised, partner uint16) Capability {
	for _, cap := range priority {
		bit := advertiseBit[cap]
		if advertised&bit != 0 && partner&bit != 0 {
			return cap
		}
	}
	return Cap10HD
}
