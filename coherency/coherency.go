// Package coherency implements C8: the cache-coherency tier selector.
// It classifies the host (CPU family, cache attributes, bus-master
// probe result, snooping result) into one of five DMA cache-management
// tiers per spec.md §4.8's decision table, exposes the dma_prepare/
// dma_complete hook points, and demotes on a caught DmaUnsupported
// failure.
package coherency

import (
	"errors"
	"fmt"
)

// BusMasterResult is the outcome of probing whether the platform's
// bus-master DMA actually works.
type BusMasterResult int

const (
	BusMasterOK BusMasterResult = iota
	BusMasterPartial
	BusMasterBroken
)

// Snooping is how completely the platform's bus snoops DMA traffic
// against CPU caches.
type Snooping int

const (
	SnoopFull Snooping = iota
	SnoopPartial
	SnoopNone
	SnoopUnknown
)

// CPUFamily abstracts just enough of the host CPU to drive tier
// selection: whether it can flush individual cache lines, and whether
// it has any cache-management instruction at all.
type CPUFamily struct {
	Name             string
	HasCacheLineFlush bool // CLFLUSH-equivalent
	HasCacheManagement bool // any cache writeback/invalidate instruction (e.g. WBINVD-equivalent)
}

// CacheMode is the host's cache write policy.
type CacheMode int

const (
	CacheWriteBack CacheMode = iota
	CacheWriteThrough
)

// Tier is one of the five DMA cache-management strategies spec.md
// §4.8 names.
type Tier int

const (
	TierCLFLUSH Tier = iota
	TierWBINVD
	TierSoftware
	TierFallback
	TierDisableBusMaster
)

func (t Tier) String() string {
	switch t {
	case TierCLFLUSH:
		return "CLFLUSH"
	case TierWBINVD:
		return "WBINVD"
	case TierSoftware:
		return "Software"
	case TierFallback:
		return "Fallback"
	case TierDisableBusMaster:
		return "DisableBusMaster"
	default:
		return "unknown"
	}
}

// Analysis is the coherency analysis record from §3: immutable once
// produced by Analyze.
type Analysis struct {
	CPU        CPUFamily
	CacheMode  CacheMode
	BusMaster  BusMasterResult
	Snoop      Snooping
	Tier       Tier
	Confidence int // 0-100
}

// ErrDmaUnsupported is the sentinel Demote reacts to (§7's Coherency
// family: "demotes tier and retries once").
var ErrDmaUnsupported = errors.New("netcore/coherency: dma operation unsupported at selected tier")

// Analyze runs the §4.8 decision table over cpu/cache/busMaster/snoop
// and returns a complete Analysis. P9 requires this to be a pure
// function of its inputs: identical inputs always select the same
// tier.
func Analyze(cpu CPUFamily, cacheMode CacheMode, busMaster BusMasterResult, snoop Snooping) Analysis {
	a := Analysis{CPU: cpu, CacheMode: cacheMode, BusMaster: busMaster, Snoop: snoop}

	switch {
	case busMaster == BusMasterBroken:
		a.Tier, a.Confidence = TierDisableBusMaster, 100
	case snoop == SnoopFull:
		a.Tier, a.Confidence = TierFallback, 100
	case cacheMode == CacheWriteBack && cpu.HasCacheLineFlush:
		a.Tier, a.Confidence = TierCLFLUSH, 90
	case cacheMode == CacheWriteBack && cpu.HasCacheManagement:
		a.Tier, a.Confidence = TierWBINVD, 80
	case !cpu.HasCacheManagement:
		a.Tier, a.Confidence = TierSoftware, 70
	default:
		// Not write-back, cache-management instructions available, no
		// full snoop coverage: the least-specific row of the table,
		// still safe under Software.
		a.Tier, a.Confidence = TierSoftware, 50
	}
	return a
}

// Direction is the transfer direction a dma_prepare/dma_complete call
// is bracketing.
type Direction int

const (
	DirectionToDevice Direction = iota
	DirectionFromDevice
)

// BounceBuffer is the pre-arranged non-cached region (or memcpy
// bounce target) the Software tier uses. A nil BounceBuffer makes
// Software behave as a no-op cache-management tier, which is still
// correct on a platform that happens to have coherent DMA despite no
// detected cache-management instruction - the tier exists for
// correctness, not performance, on such a platform.
type BounceBuffer interface {
	CopyIn(data []byte) error
	CopyOut(data []byte) error
}

// Selector owns the live (possibly demoted) Analysis for one attached
// controller and implements the dma_prepare/dma_complete hooks.
type Selector struct {
	analysis Analysis
	bounce   BounceBuffer
	onDemoteToPIO func()
}

// NewSelector wraps a freshly computed Analysis. onDemoteToPIO is
// called exactly once, the moment demotion reaches
// TierDisableBusMaster - core.go wires this to the chipops
// DisableBusMaster ops-table swap.
func NewSelector(a Analysis, bounce BounceBuffer, onDemoteToPIO func()) *Selector {
	return &Selector{analysis: a, bounce: bounce, onDemoteToPIO: onDemoteToPIO}
}

func (s *Selector) Tier() Tier { return s.analysis.Tier }

func (s *Selector) Analysis() Analysis { return s.analysis }

// Prepare runs dma_prepare for buf ahead of a transfer in the given
// direction (§4.8).
func (s *Selector) Prepare(buf []byte, dir Direction) error {
	switch s.analysis.Tier {
	case TierCLFLUSH:
		flushLines(buf)
		return nil
	case TierWBINVD:
		if dir == DirectionToDevice {
			writebackInvalidateAll()
		}
		return nil
	case TierSoftware:
		if dir == DirectionToDevice && s.bounce != nil {
			return s.bounce.CopyIn(buf)
		}
		return nil
	case TierFallback:
		return nil
	case TierDisableBusMaster:
		return fmt.Errorf("netcore/coherency: %w: bus-master disabled, no DMA prepare possible", ErrDmaUnsupported)
	default:
		return fmt.Errorf("netcore/coherency: unknown tier %v", s.analysis.Tier)
	}
}

// Complete runs dma_complete for buf after a transfer in the given
// direction.
func (s *Selector) Complete(buf []byte, dir Direction) error {
	switch s.analysis.Tier {
	case TierCLFLUSH:
		if dir == DirectionFromDevice {
			invalidateLines(buf)
		}
		return nil
	case TierWBINVD:
		return nil // writeback+invalidate already ran in Prepare, batched
	case TierSoftware:
		if dir == DirectionFromDevice && s.bounce != nil {
			return s.bounce.CopyOut(buf)
		}
		return nil
	case TierFallback:
		return nil
	case TierDisableBusMaster:
		return fmt.Errorf("netcore/coherency: %w", ErrDmaUnsupported)
	default:
		return fmt.Errorf("netcore/coherency: unknown tier %v", s.analysis.Tier)
	}
}

// Demote moves the selection one step down the fallback order
// (CLFLUSH -> WBINVD -> Software -> DisableBusMaster; Fallback ->
// DisableBusMaster) each time it is called, and the caller retries
// once after each call. Bus-master is disabled only when the chain
// reaches TierDisableBusMaster, so a selection that starts at CLFLUSH
// takes three calls to get there.
func (s *Selector) Demote() {
	prev := s.analysis.Tier
	next := demotionOrder(prev)
	s.analysis.Tier = next
	s.analysis.Confidence = 0
	if next == TierDisableBusMaster && prev != TierDisableBusMaster && s.onDemoteToPIO != nil {
		s.onDemoteToPIO()
	}
}

func demotionOrder(t Tier) Tier {
	switch t {
	case TierCLFLUSH:
		return TierWBINVD
	case TierWBINVD:
		return TierSoftware
	case TierSoftware:
		return TierDisableBusMaster
	case TierFallback:
		return TierDisableBusMaster
	default:
		return TierDisableBusMaster
	}
}
