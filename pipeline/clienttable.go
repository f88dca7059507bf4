// Package pipeline implements C7: the interrupt-driven packet
// pipeline - client registration/dispatch, the transmit path with its
// adaptive TX-start threshold, and the receive/interrupt path with
// bounded adapter-failure recovery.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/netcore/netcore/frame"
)

// ModeFilter is the per-client delivery filter from spec.md §3's
// client-registration record, a second dispatch key alongside
// EtherType (§5.6 supplement).
type ModeFilter int

const (
	ModeDirect ModeFilter = iota
	ModeBroadcast
	ModeMulticast
	ModePromiscuous
)

func accepts(mode ModeFilter, class frame.Class) bool {
	switch mode {
	case ModeDirect:
		return class == frame.ClassForUs
	case ModeBroadcast:
		return class == frame.ClassForUs || class == frame.ClassBroadcast
	case ModeMulticast:
		return class == frame.ClassForUs || class == frame.ClassBroadcast || class == frame.ClassMulticast
	case ModePromiscuous:
		return true
	default:
		return false
	}
}

// Callback is invoked at most once per delivered frame (I3), with the
// frame's payload (header stripped) and its EtherType.
type Callback func(payload []byte, etherType uint16)

type clientEntry struct {
	etherType uint16
	macPrefix []byte // nil means "match any destination"
	mode      ModeFilter
	callback  Callback
}

// ErrOutOfHandles is returned by Register once the table is full
// (spec.md §3: "Bounded capacity (at least 8)").
var ErrOutOfHandles = errors.New("netcore/pipeline: client table is full")

// ErrUnknownHandle is returned by Release for a handle that was never
// registered or was already released.
var ErrUnknownHandle = errors.New("netcore/pipeline: unknown client handle")

// Handle identifies one registered client for later Release.
type Handle int

// ClientTable is the EtherType + MAC-prefix + mode registration table
// from spec.md §3, with at least 8 slots (DefaultCapacity).
type ClientTable struct {
	mu      sync.Mutex
	entries []*clientEntry // nil entries are free slots
}

// DefaultCapacity is spec.md §3's floor ("at least 8").
const DefaultCapacity = 8

func NewClientTable(capacity int) *ClientTable {
	if capacity < DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &ClientTable{entries: make([]*clientEntry, capacity)}
}

// Register adds a client, failing with ErrOutOfHandles if every slot
// is occupied. macPrefix may be nil to match any destination.
func (t *ClientTable) Register(etherType uint16, macPrefix []byte, mode ModeFilter, cb Callback) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e == nil {
			t.entries[i] = &clientEntry{etherType: etherType, macPrefix: append([]byte(nil), macPrefix...), mode: mode, callback: cb}
			return Handle(i), nil
		}
	}
	return -1, ErrOutOfHandles
}

// Release removes a previously-registered client, freeing its slot.
func (t *ClientTable) Release(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) < 0 || int(h) >= len(t.entries) || t.entries[h] == nil {
		return fmt.Errorf("netcore/pipeline: release handle %d: %w", h, ErrUnknownHandle)
	}
	t.entries[h] = nil
	return nil
}

// Dispatch invokes every registered client whose EtherType, MAC-prefix
// and mode all match f's classification, returning the number
// matched. The MAC-class is computed once by the caller (§5.6
// supplement) so every candidate client is checked against the same
// classification.
func (t *ClientTable) Dispatch(f frame.Frame, class frame.Class) int {
	t.mu.Lock()
	entries := append([]*clientEntry(nil), t.entries...)
	t.mu.Unlock()

	matched := 0
	for _, e := range entries {
		if e == nil || e.etherType != f.Type {
			continue
		}
		if len(e.macPrefix) > 0 && !hasPrefix(f.Dest[:], e.macPrefix) {
			continue
		}
		if !accepts(e.mode, class) {
			continue
		}
		e.callback(f.Payload, f.Type)
		matched++
	}
	return matched
}

func hasPrefix(mac, prefix []byte) bool {
	if len(prefix) > len(mac) {
		return false
	}
	for i, b := range prefix {
		if mac[i] != b {
			return false
		}
	}
	return true
}
