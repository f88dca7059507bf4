package ring

import "fmt"

// entry is one ring slot: a device-visible descriptor, the pool index
// of its buffer (or -1 when free), and an ownership tag.
type entry struct {
	desc   Descriptor
	bufIdx int
	owner  Owner
}

// Kind distinguishes a TX ring from an RX ring; cursor semantics
// differ slightly (§3) even though the mechanics are shared.
type Kind int

const (
	KindTX Kind = iota
	KindRX
)

func (k Kind) String() string {
	if k == KindRX {
		return "RX"
	}
	return "TX"
}

// Ring is one direction's descriptor ring: Size entries, a monotonic
// cur/dirty cursor pair (§3), and a reference to the shared pool its
// buffers come from.
type Ring struct {
	kind  Kind
	pool  *Pool
	slots [Size]entry

	cur   uint16
	dirty uint16

	doorbell func() // rings the hardware doorbell; nil in RX rings
}

// NewRing builds an empty ring of the given kind backed by pool.
// doorbell may be nil (RX rings don't ring one).
func NewRing(kind Kind, pool *Pool, doorbell func()) *Ring {
	r := &Ring{kind: kind, pool: pool, doorbell: doorbell}
	for i := range r.slots {
		r.slots[i].bufIdx = -1
		r.slots[i].owner = OwnerFree
	}
	return r
}

// index maps a monotonic cursor value onto a slot, per §3:
// "entry = counter & (SIZE-1)".
func index(counter uint16) int { return int(counter) & (Size - 1) }

// inFlight is cur-dirty under uint16 wraparound, which Go's unsigned
// subtraction gives for free.
func inFlight(cur, dirty uint16) int { return int(uint16(cur - dirty)) }

// InFlight returns the number of entries currently between dirty and
// cur (I1: always <= Size).
func (r *Ring) InFlight() int { return inFlight(r.cur, r.dirty) }

// TxFreeSlots is §4.5's tx_free_slots().
func (r *Ring) TxFreeSlots() int { return Size - r.InFlight() }

// InitRX installs a buffer in every RX slot and marks it device-owned,
// per §4.5's post-init_rings invariant for RX rings. TX rings start
// all-free and need no such call.
func (r *Ring) InitRX() error {
	if r.kind != KindRX {
		return fmt.Errorf("netcore/ring: InitRX called on a %v ring", r.kind)
	}
	for i := range r.slots {
		idx, buf, err := r.pool.Alloc(stateRX)
		if err != nil {
			return err
		}
		_ = buf
		r.slots[i].bufIdx = idx
		r.slots[i].owner = OwnerDevice
		r.slots[i].desc = Descriptor{}
	}
	r.cur = uint16(Size)
	r.dirty = 0
	return nil
}

// TxEnqueue writes buf's descriptor into the next TX slot and rings
// the doorbell, failing with ErrRingFull when no slot is free (§4.5).
// The descriptor's physical address comes from the pool-owned slot
// buffer's own PhysAddr (fixed for that buffer's lifetime), not from
// buf, which is only the payload source.
func (r *Ring) TxEnqueue(buf *Buffer, flags uint32) error {
	if r.TxFreeSlots() == 0 {
		return ErrRingFull
	}
	idx := index(r.cur)
	slot := &r.slots[idx]
	if slot.owner != OwnerFree {
		return fmt.Errorf("netcore/ring: %w: tx slot %d not free at cur=%d", ErrBadDescriptor, idx, r.cur)
	}

	bufIdx, _, err := r.pool.Alloc(stateTX)
	if err != nil {
		return err
	}
	// The caller's buf is the payload source; the slot borrows the
	// pool-owned backing array by copying in, keeping one owner per
	// pool buffer (I4) without aliasing the caller's own buffer.
	dest := r.pool.Buffer(bufIdx)
	copy(dest.Data, buf.Bytes())
	dest.Used = buf.Used

	slot.desc.SetFragment(dest.PhysAddr, buf.Used, flags|FlagLastFragment)
	slot.desc.Status = 0 // device sets the completion bit on TX
	slot.bufIdx = bufIdx
	slot.owner = OwnerDevice

	r.cur++
	if r.doorbell != nil {
		r.doorbell()
	}
	return nil
}

// TxReap drains every TX entry whose device-complete bit is set,
// returning pool buffers to the free list and advancing dirty past
// them (§4.5's clean_tx). It returns the count reaped and the sum of
// bytes transmitted, letting callers update tx_packets/tx_bytes in
// one pass.
func (r *Ring) TxReap() (count int, bytesSent int, underruns int) {
	for r.dirty != r.cur {
		idx := index(r.dirty)
		slot := &r.slots[idx]
		if slot.owner != OwnerDevice {
			break
		}
		if slot.desc.Status&StatusComplete == 0 {
			break
		}
		if slot.desc.Status&StatusUnderOver != 0 {
			underruns++
		}
		bytesSent += slot.desc.FragmentLength()
		_ = r.pool.Free(slot.bufIdx)
		slot.bufIdx = -1
		slot.owner = OwnerFree
		slot.desc = Descriptor{}
		r.dirty++
		count++
	}
	return count, bytesSent, underruns
}

// CompleteTxAt marks the TX slot at the given monotonic cursor value
// as device-complete; used by tests and by the pipeline's simulated
// hardware to drive TxReap.
func (r *Ring) CompleteTxAt(cursor uint16, underrun bool) {
	slot := &r.slots[index(cursor)]
	slot.desc.Status |= StatusComplete
	if underrun {
		slot.desc.Status |= StatusUnderOver
	}
}

// RxRefill installs a fresh pool buffer into every free RX slot at
// cur, advancing cur, per §4.5's refill_rx. It stops when the pool is
// exhausted rather than failing, since a partially refilled ring is
// still valid (fewer outstanding RX descriptors, not zero).
func (r *Ring) RxRefill() int {
	count := 0
	for {
		idx := index(r.cur)
		slot := &r.slots[idx]
		if slot.owner != OwnerFree {
			break
		}
		bufIdx, _, err := r.pool.Alloc(stateRX)
		if err != nil {
			break
		}
		slot.bufIdx = bufIdx
		slot.owner = OwnerDevice
		slot.desc = Descriptor{}
		r.cur++
		count++
	}
	return count
}

// HarvestedRX is one RX descriptor's delivered payload, handed to the
// caller with ownership transferred (the caller must eventually call
// Pool.Free or hand the buffer on to a client).
type HarvestedRX struct {
	BufIdx int
	Buffer *Buffer
	Status uint32
}

// RxHarvest yields every completed RX entry in arrival order,
// transferring ownership to the caller and marking the slot free so a
// subsequent RxRefill can reuse it (§4.5's rx_harvest). It reuses a
// single backing slice across calls (grounded on the Fuchsia eth
// client's tmpbuf/recvbuf reuse) so the interrupt path never
// allocates.
func (r *Ring) RxHarvest(scratch []HarvestedRX) []HarvestedRX {
	out := scratch[:0]
	for r.dirty != r.cur {
		idx := index(r.dirty)
		slot := &r.slots[idx]
		if slot.owner != OwnerDevice || slot.desc.Status&StatusComplete == 0 {
			break
		}
		out = append(out, HarvestedRX{BufIdx: slot.bufIdx, Buffer: r.pool.Buffer(slot.bufIdx), Status: slot.desc.Status})
		r.pool.Transfer(slot.bufIdx, stateClient)
		slot.bufIdx = -1
		slot.owner = OwnerFree
		slot.desc = Descriptor{}
		r.dirty++
	}
	return out
}

// CompleteRxAt marks the RX slot at cursor as device-complete with
// the given length and status flags; used by tests and the simulated
// hardware in cmd/attachsim.
func (r *Ring) CompleteRxAt(cursor uint16, payload []byte, status uint32) {
	idx := index(cursor)
	slot := &r.slots[idx]
	buf := r.pool.Buffer(slot.bufIdx)
	n := copy(buf.Data, payload)
	buf.Used = n
	slot.desc.Status = status | StatusComplete
	slot.desc.SetLength(n)
}

// SlotBuffer returns the pool buffer occupied by the slot at the given
// monotonic cursor value, letting a TX doorbell closure (supplied by
// the pipeline that owns both the ring and the chip operations table)
// find out which buffer it was just asked to ring the bell for,
// without the ring needing to know anything about hardware registers
// itself.
func (r *Ring) SlotBuffer(cursor uint16) *Buffer {
	idx := r.slots[index(cursor)].bufIdx
	if idx < 0 {
		return nil
	}
	return r.pool.Buffer(idx)
}

// Pool exposes the buffer pool this ring was built on, letting the
// pipeline release a harvested buffer back to the free list once it
// has delivered (or dropped) the frame that came in on it.
func (r *Ring) Pool() *Pool { return r.pool }

// Cursors exposes cur/dirty for property tests (P1) and diagnostics.
func (r *Ring) Cursors() (cur, dirty uint16) { return r.cur, r.dirty }

// SeedCursors lets tests exercise wraparound directly, per P1's literal
// seed (cur=dirty=0xFFFE).
func (r *Ring) SeedCursors(cur, dirty uint16) {
	r.cur, r.dirty = cur, dirty
}
