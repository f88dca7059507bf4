package stats

import "testing"

func TestCountersSnapshotAndReset(t *testing.T) {
	var c Counters
	c.AddTx(3, 900)
	c.AddTxUnderrun()
	c.AddRx(2, 400)
	c.AddRxCRC()
	c.AddInterrupt()

	snap := c.Snapshot()
	if snap.TxPackets != 3 || snap.TxBytes != 900 {
		t.Fatalf("tx snapshot = %+v", snap)
	}
	if snap.TxErrors != 1 || snap.TxUnderrun != 1 {
		t.Fatalf("tx error snapshot = %+v", snap)
	}
	if snap.RxPackets != 2 || snap.RxBytes != 400 {
		t.Fatalf("rx snapshot = %+v", snap)
	}
	if snap.RxErrors != 1 || snap.RxCRC != 1 {
		t.Fatalf("rx error snapshot = %+v", snap)
	}
	if snap.Interrupts != 1 {
		t.Fatalf("interrupts = %d, want 1", snap.Interrupts)
	}

	c.Reset()
	if zero := c.Snapshot(); zero != (Snapshot{}) {
		t.Fatalf("snapshot after reset = %+v, want zero value", zero)
	}
}
