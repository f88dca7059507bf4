package stats

import (
	"testing"
	"time"
)

func TestMonitorFirstTickIsZero(t *testing.T) {
	var m Monitor
	rate := m.Tick(time.Unix(0, 0), Snapshot{TxPackets: 100})
	if rate != (RateSnapshot{}) {
		t.Fatalf("first tick = %+v, want zero", rate)
	}
}

func TestMonitorComputesRateOverWindow(t *testing.T) {
	var m Monitor
	t0 := time.Unix(0, 0)
	m.Tick(t0, Snapshot{TxPackets: 100, RxErrors: 2})
	rate := m.Tick(t0.Add(2*time.Second), Snapshot{TxPackets: 300, RxErrors: 4})
	if rate.PacketsPerSec != 100 {
		t.Fatalf("packets/sec = %v, want 100", rate.PacketsPerSec)
	}
	if rate.ErrorsPerSec != 1 {
		t.Fatalf("errors/sec = %v, want 1", rate.ErrorsPerSec)
	}
}

func TestMonitorClampsOnCounterReset(t *testing.T) {
	var m Monitor
	t0 := time.Unix(0, 0)
	m.Tick(t0, Snapshot{TxPackets: 500})
	rate := m.Tick(t0.Add(time.Second), Snapshot{TxPackets: 10})
	if rate.PacketsPerSec != 0 {
		t.Fatalf("packets/sec after reset = %v, want 0", rate.PacketsPerSec)
	}
}
