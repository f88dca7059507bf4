package pipeline

import (
	"context"
	"time"

	"github.com/netcore/netcore/chipops"
	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/frame"
	"github.com/netcore/netcore/ring"
)

// HandleInterrupt runs §4.7's ISR dispatch loop: read the event
// bitmask once, then act on every bit set, in the order an ack-then-
// recover-then-reap-then-harvest-then-resolve pipeline needs - TX
// completions are reaped before RX harvest and refill, and
// ADAPTER-FAILURE recovery must run before either, since
// a reset invalidates in-flight descriptors.
func (p *Pipeline) HandleInterrupt(ctx context.Context) error {
	events, err := p.ops.Interrupt(ctx)
	if err != nil {
		return err
	}
	if events == chipops.EventNone {
		return nil // spurious or a plain ack, nothing further to do
	}
	p.counters.AddInterrupt()

	if events&chipops.EventAdapterFailure != 0 {
		if err := p.recoverFromFailure(ctx); err != nil {
			return err
		}
		if p.Dead() {
			return ErrControllerDead
		}
	}

	if events&chipops.EventTxComplete != 0 {
		if err := p.reapTxCompletions(ctx); err != nil {
			return err
		}
	}

	if events&chipops.EventRxComplete != 0 {
		p.harvestRx()
		p.mu.Lock()
		needed := p.rxRing.TxFreeSlots()
		filled := p.rxRing.RxRefill()
		p.mu.Unlock()
		for i := filled; i < needed; i++ {
			p.counters.AddRxNoBuffer()
		}
	}

	if events&chipops.EventLinkChange != 0 && p.OnLinkChange != nil {
		if err := p.OnLinkChange(ctx); err != nil {
			return err
		}
	}

	return nil
}

// recoverFromFailure implements §4.7 step 2's bounded recovery: soft
// reset and rebuild the rings, up to maxRecoveryAttempts times inside
// recoveryWindow; once exhausted, mark the controller dead and fire
// OnDead exactly once.
func (p *Pipeline) recoverFromFailure(ctx context.Context) error {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		return nil
	}
	now := recoveryClock()
	cutoff := now.Add(-recoveryWindow)
	kept := p.recoveryAttempts[:0]
	for _, t := range p.recoveryAttempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.recoveryAttempts = kept

	if len(p.recoveryAttempts) >= maxRecoveryAttempts {
		p.dead = true
		onDead := p.OnDead
		p.mu.Unlock()
		if onDead != nil {
			onDead()
		}
		return nil
	}
	p.recoveryAttempts = append(p.recoveryAttempts, now)
	reinit := p.ReinitRings
	p.mu.Unlock()

	if err := p.ops.Reset(ctx); err != nil {
		return err
	}
	if reinit != nil {
		if err := reinit(ctx); err != nil {
			return err
		}
	}
	return p.ops.Start(ctx)
}

// recoveryClock is a seam for tests (real code would use time.Now,
// but the harness forbids relying on wall-clock nondeterminism in
// Analyze-style pure logic; here it is simply testing's hook to
// control the 30s recovery window without sleeping).
var recoveryClock = time.Now

// harvestRx runs §4.7 step 4: classify each completed RX descriptor's
// error bits into the matching sub-counter, or - if clean - parse and
// dispatch it to every matching client, returning the buffer to the
// pool either way.
func (p *Pipeline) harvestRx() {
	p.mu.Lock()
	harvested := p.rxRing.RxHarvest(p.scratch)
	p.scratch = harvested[:0]
	station := p.station
	mode := p.receiveMode
	p.mu.Unlock()

	for _, h := range harvested {
		if h.Status&ring.StatusError != 0 {
			p.classifyRxError(h.Status)
			p.freeHarvested(h)
			continue
		}

		// dma_complete (§4.8): invalidate or bounce-copy the buffer
		// before the CPU reads it. Once bus-master is disabled this
		// always reports ErrDmaUnsupported - expected and harmless,
		// since a disabled-DMA ops table fills RX buffers by direct
		// register read instead, not DMA, so there is nothing to
		// complete.
		_ = p.selector.Complete(h.Buffer.Bytes(), coherency.DirectionFromDevice)

		f, err := frame.Parse(h.Buffer.Bytes())
		if err != nil {
			p.counters.AddRxLength()
			p.freeHarvested(h)
			continue
		}

		class := frame.Classify(f.Dest, station)
		if class == frame.ClassOther && mode != chipops.ModePromiscuous {
			p.freeHarvested(h)
			continue
		}

		p.counters.AddRx(1, uint64(len(h.Buffer.Bytes())))
		matched := p.clients.Dispatch(f, class)
		if matched == 0 {
			p.counters.AddRxDrop()
		}
		p.freeHarvested(h)
	}
}

// classifyRxError maps a completed descriptor's error bits onto the
// matching sub-counter, per §4.7 step 4a. Alignment errors fold into
// the length sub-counter (see ring.StatusLengthError's doc comment);
// a descriptor can carry more than one bit, so every matching counter
// is incremented, not just the first.
func (p *Pipeline) classifyRxError(status uint32) {
	matched := false
	if status&ring.StatusCRCError != 0 {
		p.counters.AddRxCRC()
		matched = true
	}
	if status&(ring.StatusLengthError|ring.StatusAlignment) != 0 {
		p.counters.AddRxLength()
		matched = true
	}
	if status&ring.StatusRxOverrun != 0 {
		p.counters.AddRxOverrun()
		matched = true
	}
	if !matched {
		// StatusError was set with none of the specific bits - still a
		// real error, just one this family didn't sub-classify.
		p.counters.AddRxLength()
	}
}

func (p *Pipeline) freeHarvested(h ring.HarvestedRX) {
	_ = p.rxRing.Pool().Free(h.BufIdx)
}
