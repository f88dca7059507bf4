package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/frame"
	"github.com/netcore/netcore/ring"
)

// ChecksumRequest is what a client asks for on Transmit; the pipeline
// sets the matching descriptor flag when the capability bitmap (not
// modeled at this layer - callers only ask for what capability.Feature
// already confirmed is available) advertises it.
type ChecksumRequest struct {
	IP  bool
	TCP bool
}

// Transmit runs §4.6's transmit path: validate/pad, dma_prepare,
// enqueue, and ring the doorbell (via chipops.Ops.Transmit, invoked
// from the ring's doorbell closure wired up by core.go). Clean sends
// are counted for the adaptive threshold loop later, when
// reapTxCompletions reaps them.
func (p *Pipeline) Transmit(ctx context.Context, payload []byte, checksums ChecksumRequest) error {
	if len(payload) > frame.MaxFrameFCS {
		return fmt.Errorf("netcore/pipeline: %w: %d bytes", ErrInvalidLength, len(payload))
	}
	padded := payload
	if len(padded) < frame.MinFrameFCS {
		padded = make([]byte, frame.MinFrameFCS)
		copy(padded, payload)
	}

	var flags ring.BufferFlags
	if checksums.IP {
		flags |= ring.FlagNeedsIPChecksum
	}
	if checksums.TCP {
		flags |= ring.FlagNeedsTCPChecksum
	}

	if err := p.selector.Prepare(padded, coherency.DirectionToDevice); err != nil {
		if !errors.Is(err, coherency.ErrDmaUnsupported) {
			return fmt.Errorf("netcore/pipeline: dma_prepare: %w", err)
		}
		// §4.8 fallback order: the selected tier's operation faulted at
		// runtime, so demote one step and retry exactly once before
		// giving up.
		p.selector.Demote()
		if err := p.selector.Prepare(padded, coherency.DirectionToDevice); err != nil && !errors.Is(err, coherency.ErrDmaUnsupported) {
			return fmt.Errorf("netcore/pipeline: dma_prepare: %w", err)
		}
		// A post-demotion ErrDmaUnsupported means the selector landed on
		// TierDisableBusMaster: bus-master is now off for good, and the
		// doorbell below runs ops.Transmit's PIO path directly, so there
		// is no DMA bookkeeping left to do - not a send failure.
	}

	src := &ring.Buffer{Data: padded, Used: len(padded), Flags: flags}

	p.mu.Lock()
	err := p.txRing.TxEnqueue(src, uint32(flags))
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return nil
}

// reapTxCompletions drains finished TX descriptors, updates
// statistics, and runs the adaptive threshold loop (§4.6's last
// paragraph). Called from the interrupt path on TX-COMPLETE.
func (p *Pipeline) reapTxCompletions(ctx context.Context) error {
	p.mu.Lock()
	count, bytesSent, underruns := p.txRing.TxReap()
	p.mu.Unlock()

	if count == 0 {
		return nil
	}
	p.counters.AddTx(uint64(count), uint64(bytesSent))

	for i := 0; i < underruns; i++ {
		p.counters.AddTxUnderrun()
	}

	if underruns > 0 {
		p.bumpThresholdUp(ctx)
		p.cleanSinceAdjust = 0
		return nil
	}

	p.cleanSinceAdjust += count
	if p.cleanSinceAdjust >= thresholdDecrementEvery {
		p.cleanSinceAdjust -= thresholdDecrementEvery
		p.bumpThresholdDown(ctx)
	}
	return nil
}

func (p *Pipeline) bumpThresholdUp(ctx context.Context) {
	p.txThreshold += thresholdIncrementOnUnderrun
	if p.txThreshold > maxTxBound() {
		p.txThreshold = maxTxBound()
	}
	_ = p.ops.SetTxThreshold(ctx, p.txThreshold)
	p.counters.AddTxRetry()
}

func (p *Pipeline) bumpThresholdDown(ctx context.Context) {
	p.txThreshold -= thresholdDecrementStep
	if p.txThreshold < thresholdMin {
		p.txThreshold = thresholdMin
	}
	_ = p.ops.SetTxThreshold(ctx, p.txThreshold)
}

func maxTxBound() int { return frame.MaxFrame }

// TxThreshold exposes the current adaptive threshold for diagnostics
// and tests.
func (p *Pipeline) TxThreshold() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txThreshold
}
