package media

import (
	"context"
	"testing"
)

// fakePHY is an in-memory MII register file with an optional partner
// side, enough to drive Negotiate through its full happy path.
type fakePHY struct {
	regs    [32]map[int]uint16
	noReply map[int]bool
	ticks   int
	completeAfter int
}

func newFakePHY() *fakePHY {
	p := &fakePHY{noReply: map[int]bool{}}
	for i := range p.regs {
		p.regs[i] = map[int]uint16{RegBasicStatus: 0xFFFF}
	}
	return p
}

func (p *fakePHY) ReadMII(ctx context.Context, addr, reg int) (uint16, error) {
	if reg == RegBasicStatus && p.regs[addr][RegBasicControl]&bcAutoNegRestart != 0 {
		p.ticks++
		if p.ticks >= p.completeAfter {
			return p.regs[addr][RegBasicStatus] | bsAutoNegComplete | bsLinkStatus, nil
		}
		return p.regs[addr][RegBasicStatus] &^ bsAutoNegComplete, nil
	}
	return p.regs[addr][reg], nil
}

func (p *fakePHY) WriteMII(ctx context.Context, addr, reg int, v uint16) error {
	p.regs[addr][reg] = v
	return nil
}

func TestDetectPHYFindsRespondingAddress(t *testing.T) {
	phy := newFakePHY()
	phy.regs[7][RegBasicStatus] = bsAutoNegAbility
	addr, err := DetectPHY(context.Background(), phy)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if addr != 7 {
		t.Fatalf("addr = %d, want 7", addr)
	}
}

func TestDetectPHYNoneFound(t *testing.T) {
	phy := newFakePHY()
	if _, err := DetectPHY(context.Background(), phy); err != ErrNoPHY {
		t.Fatalf("expected ErrNoPHY, got %v", err)
	}
}

func TestNegotiateResolvesHighestCommonMode(t *testing.T) {
	phy := newFakePHY()
	addr := 3
	phy.regs[addr][RegBasicStatus] = bsAutoNegAbility
	phy.regs[addr][RegLinkPartner] = advertiseBit[Cap100FD] | advertiseBit[Cap10HD]
	phy.completeAfter = 1

	result, err := Negotiate(context.Background(), phy, addr, Cap10HD|Cap10FD|Cap100HD|Cap100FD)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !result.Negotiated || result.Mode != (Mode{100, true}) {
		t.Fatalf("result = %+v, want negotiated 100FD", result)
	}
}

func TestNegotiateFallsBackWhenPHYCannotNegotiate(t *testing.T) {
	phy := newFakePHY()
	addr := 1
	phy.regs[addr][RegBasicStatus] = 0 // no auto-neg ability bit

	result, err := Negotiate(context.Background(), phy, addr, Cap10HD)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if result.Negotiated || result.Mode != Forced10HD {
		t.Fatalf("result = %+v, want forced 10HD", result)
	}
}

func TestResolveCommonPrefersHighestPriority(t *testing.T) {
	adv := advertiseBit[Cap100FD] | advertiseBit[Cap100HD] | advertiseBit[Cap10HD]
	partner := advertiseBit[Cap100HD] | advertiseBit[Cap10HD]
	if got := resolveCommon(adv, partner); got != Cap100HD {
		t.Fatalf("resolveCommon = %v, want Cap100HD", got)
	}
}
