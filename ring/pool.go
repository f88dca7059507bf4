package ring

import (
	"fmt"
	"sync"
)

// BufferFlags marks per-buffer properties carried alongside the raw
// bytes, per §3.
type BufferFlags uint8

const (
	FlagNeedsIPChecksum BufferFlags = 1 << iota
	FlagNeedsTCPChecksum
	FlagLoopback
	FlagBroadcast
	FlagMulticast
)

// Buffer is one pool-owned, DMA-capable packet buffer.
type Buffer struct {
	Data     []byte // length == pool's configured buffer size
	Used     int    // bytes actually occupied
	PhysAddr uint32 // physical address, valid once dma_prepare has run
	Flags    BufferFlags
}

func (b *Buffer) Bytes() []byte { return b.Data[:b.Used] }

// bufferState tracks which of {free-list, TX-slot, RX-slot,
// client-in-flight} currently owns a pool buffer, per §3's single-
// owner invariant (I4).
type bufferState int

const (
	stateFree bufferState = iota
	stateTX
	stateRX
	stateClient
)

// Pool is a pre-allocated array of buffers sized ring-size*2 (§4.5's
// headroom for client hold-time), with an O(1) allocation counter
// rather than a full rescan - grounded on the disruptor ring buffer's
// O(1) cursor bookkeeping (other_examples ring_buffer.go) applied to
// buffer accounting instead of sequence numbers.
type Pool struct {
	mu        sync.Mutex
	bufs      []Buffer
	state     []bufferState
	freeList  []int // indices into bufs, LIFO
	allocated int    // count of slots not in stateFree
}

// dmaBase is the simulated start of the DMA-capable region this pool's
// buffers are carved from. There is no real bus behind it (cmd/attachsim
// models hardware entirely in software), but every buffer still needs a
// stable physical address for its whole lifetime, since real DMA-capable
// memory doesn't move once allocated - assigning it once here, rather
// than per-Alloc, is what makes that true.
const dmaBase = 0x10000

// NewPool allocates count buffers of bufSize bytes each, all free, each
// with a fixed simulated physical address assigned for its lifetime.
func NewPool(count, bufSize int) *Pool {
	p := &Pool{
		bufs:     make([]Buffer, count),
		state:    make([]bufferState, count),
		freeList: make([]int, count),
	}
	for i := range p.bufs {
		p.bufs[i].Data = make([]byte, bufSize)
		p.bufs[i].PhysAddr = uint32(dmaBase + i*bufSize)
		p.freeList[i] = count - 1 - i // arbitrary order, doesn't matter
	}
	return p
}

// Alloc removes one buffer from the free list and marks it owned by
// owner, failing with BufferPoolEmpty when none remain.
func (p *Pool) Alloc(owner bufferState) (idx int, buf *Buffer, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.freeList) == 0 {
		return -1, nil, errBufferPoolEmpty
	}
	n := len(p.freeList) - 1
	idx = p.freeList[n]
	p.freeList = p.freeList[:n]
	p.state[idx] = owner
	p.allocated++
	buf = &p.bufs[idx]
	buf.Used = 0
	buf.Flags = 0
	return idx, buf, nil
}

// Free returns idx to the free list. Calling Free on an already-free
// index is a programming error, reported rather than silently
// ignored, so leak-detector bugs surface immediately.
func (p *Pool) Free(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state[idx] == stateFree {
		return fmt.Errorf("netcore/ring: double free of pool buffer %d", idx)
	}
	p.state[idx] = stateFree
	p.allocated--
	p.freeList = append(p.freeList, idx)
	return nil
}

// Transfer reassigns idx's owner without touching the free list -
// used when a buffer moves from an RX slot to "client in flight"
// without ever becoming free.
func (p *Pool) Transfer(idx int, owner bufferState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state[idx] = owner
}

func (p *Pool) Buffer(idx int) *Buffer { return &p.bufs[idx] }

// Allocated is the running count backing I4 and the leak detector.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Cap returns the total number of buffers in the pool.
func (p *Pool) Cap() int { return len(p.bufs) }

var errBufferPoolEmpty = fmt.Errorf("netcore/ring: buffer pool exhausted")

// ErrBufferPoolEmpty lets callers errors.Is against the same sentinel
// Alloc returns.
var ErrBufferPoolEmpty = errBufferPoolEmpty
