package ring

import "testing"

func newTestTxRing() (*Ring, *Pool) {
	pool := NewPool(Size*2, 1536)
	r := NewRing(KindTX, pool, nil)
	return r, pool
}

// TestCursorWraparound is P1's literal seed: cur=dirty=0xFFFE, enqueue
// 5, reap 3, used == 2, and 0 <= cur-dirty <= 16 throughout.
func TestCursorWraparound(t *testing.T) {
	r, pool := newTestTxRing()
	r.SeedCursors(0xFFFE, 0xFFFE)

	buf := &Buffer{Data: make([]byte, 64), Used: 64}
	for i := 0; i < 5; i++ {
		if err := r.TxEnqueue(buf, 0); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if f := r.InFlight(); f < 0 || f > Size {
			t.Fatalf("in-flight %d out of range after enqueue %d", f, i)
		}
	}

	cur, dirty := r.Cursors()
	if cur != 0x0003 { // 0xFFFE + 5 wraps to 0x0003
		t.Fatalf("cur = 0x%04x, want 0x0003", cur)
	}

	for i := 0; i < 3; i++ {
		r.CompleteTxAt(dirty+uint16(i), false)
	}
	n, _, _ := r.TxReap()
	if n != 3 {
		t.Fatalf("reaped %d, want 3", n)
	}
	if used := r.InFlight(); used != 2 {
		t.Fatalf("in-flight after reap = %d, want 2", used)
	}
	if pool.Allocated() != 2 {
		t.Fatalf("pool allocated = %d, want 2", pool.Allocated())
	}
}

func TestTxRingFullAndDrain(t *testing.T) {
	r, pool := newTestTxRing()
	buf := &Buffer{Data: make([]byte, 1024), Used: 1024}

	for i := 0; i < Size; i++ {
		if err := r.TxEnqueue(buf, 0); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if f := r.TxFreeSlots(); f != 0 {
		t.Fatalf("tx_free_slots = %d, want 0", f)
	}
	if err := r.TxEnqueue(buf, 0); err != ErrRingFull {
		t.Fatalf("expected ErrRingFull, got %v", err)
	}

	_, dirty := r.Cursors()
	for i := 0; i < Size; i++ {
		r.CompleteTxAt(dirty+uint16(i), false)
	}
	count, bytesSent, underruns := r.TxReap()
	if count != Size {
		t.Fatalf("reaped %d, want %d", count, Size)
	}
	if bytesSent != Size*1024 {
		t.Fatalf("bytes sent = %d, want %d", bytesSent, Size*1024)
	}
	if underruns != 0 {
		t.Fatalf("unexpected underruns: %d", underruns)
	}
	if f := r.TxFreeSlots(); f != Size {
		t.Fatalf("tx_free_slots after drain = %d, want %d", f, Size)
	}
	if pool.Allocated() != 0 {
		t.Fatalf("pool allocated after drain = %d, want 0", pool.Allocated())
	}
}

func TestRxInitAndRefill(t *testing.T) {
	pool := NewPool(Size*2, 1536)
	r := NewRing(KindRX, pool, nil)
	if err := r.InitRX(); err != nil {
		t.Fatalf("init rx: %v", err)
	}
	if f := r.InFlight(); f != Size {
		t.Fatalf("in-flight after init = %d, want %d", f, Size)
	}

	scratch := make([]HarvestedRX, 0, Size)
	r.CompleteRxAt(0, []byte("hello"), 0)
	got := r.RxHarvest(scratch)
	if len(got) != 1 {
		t.Fatalf("harvested %d, want 1", len(got))
	}
	if string(got[0].Buffer.Bytes()) != "hello" {
		t.Fatalf("payload = %q", got[0].Buffer.Bytes())
	}
	_ = pool.Free(got[0].BufIdx)

	if n := r.RxRefill(); n != 1 {
		t.Fatalf("refilled %d, want 1", n)
	}
}

// TestDetachZeroAllocated is half of P2: at detach, allocated == 0
// for every pool once every buffer has been returned.
func TestDetachZeroAllocated(t *testing.T) {
	pool := NewPool(Size*2, 1536)
	r := NewRing(KindTX, pool, nil)
	buf := &Buffer{Data: make([]byte, 60), Used: 60}
	_ = r.TxEnqueue(buf, 0)

	if err := CheckZeroAtShutdown(pool); err == nil {
		t.Fatalf("expected nonzero-allocation error before drain")
	}

	_, dirty := r.Cursors()
	r.CompleteTxAt(dirty, false)
	r.TxReap()

	if err := CheckZeroAtShutdown(pool); err != nil {
		t.Fatalf("expected zero allocation at shutdown: %v", err)
	}
}
