// Package capability implements C2 (the static chip descriptor table)
// and C4 (EEPROM-based identification: MAC extraction and checksum
// verification).
package capability

import (
	"fmt"

	"github.com/netcore/netcore/chiprev"
)

// ChipFamily tags which operations-table implementation a descriptor
// selects (§9's tagged-variant strategy for the source's function
// tables).
type ChipFamily int

const (
	FamilyPIOISA ChipFamily = iota
	FamilyBusMasterISA
	FamilyBusMasterPCI
	FamilyCardBus
)

func (f ChipFamily) String() string {
	switch f {
	case FamilyPIOISA:
		return "PIO-ISA"
	case FamilyBusMasterISA:
		return "BusMaster-ISA"
	case FamilyBusMasterPCI:
		return "BusMaster-PCI"
	case FamilyCardBus:
		return "CardBus"
	default:
		return "unknown"
	}
}

// Feature is a bit in a chip's capability bitmap.
type Feature uint32

const (
	FeatureChecksumOffload Feature = 1 << iota
	FeatureAutoNegotiation
	FeatureBusMaster
)

func (f Feature) Has(bit Feature) bool { return f&bit != 0 }

// MediaOption enumerates the duplex/speed combinations a chip can be
// forced into when auto-negotiation is unavailable (§4.4 step 2).
type MediaOption int

const (
	Media10HD MediaOption = iota
	Media10FD
	Media100HD
	Media100FD
	Media100T4
)

// ChipDescriptor is one row of the static (vendor, device) table.
type ChipDescriptor struct {
	VendorID         uint16
	DeviceID         uint16
	Name             string
	Family           ChipFamily
	DefaultMedia     MediaOption
	PreferDMA        bool // transfer-method preference: true = bus-master DMA, false = PIO
	Features         Feature
	MinSiliconRev    chiprev.Revision // capability bits below this revision are not trusted
}

// Table is a small (<=64 entry), append-only static lookup.
type Table struct {
	rows []ChipDescriptor
}

// NewTable builds a lookup table from the given rows, rejecting
// duplicate (vendor, device) pairs - the "reserved jump-table slot"
// treatment from §9: unused or duplicate slots are rejected at
// attach, never silently aliased.
func NewTable(rows []ChipDescriptor) (*Table, error) {
	seen := make(map[[2]uint16]bool, len(rows))
	for _, row := range rows {
		key := [2]uint16{row.VendorID, row.DeviceID}
		if seen[key] {
			return nil, fmt.Errorf("netcore/capability: duplicate table entry for vendor=0x%04x device=0x%04x", row.VendorID, row.DeviceID)
		}
		seen[key] = true
	}
	return &Table{rows: append([]ChipDescriptor(nil), rows...)}, nil
}

// Lookup is O(n) over a small static table, per §4.2.
func (t *Table) Lookup(vendor, device uint16) (ChipDescriptor, bool) {
	for _, row := range t.rows {
		if row.VendorID == vendor && row.DeviceID == device {
			return row, true
		}
	}
	return ChipDescriptor{}, false
}

// Default3ComLike returns the built-in table for this controller
// family: a handful of vendor/device pairs spanning every ChipFamily,
// enough to exercise C3's family dispatch and C8's PIO-fallback path.
func Default3ComLike() *Table {
	t, err := NewTable([]ChipDescriptor{
		{
			VendorID: 0x10B7, DeviceID: 0x5900, Name: "EtherLink III (PIO ISA)",
			Family: FamilyPIOISA, DefaultMedia: Media10HD, PreferDMA: false,
			Features:      FeatureAutoNegotiation,
			MinSiliconRev: chiprev.Revision{Family: 3, Generation: 0, Stepping: 0},
		},
		{
			VendorID: 0x10B7, DeviceID: 0x9000, Name: "Fast EtherLink (BusMaster ISA)",
			Family: FamilyBusMasterISA, DefaultMedia: Media100HD, PreferDMA: true,
			Features:      FeatureAutoNegotiation | FeatureBusMaster,
			MinSiliconRev: chiprev.Revision{Family: 3, Generation: 90, Stepping: 0},
		},
		{
			VendorID: 0x10B7, DeviceID: 0x9055, Name: "Fast EtherLink XL (BusMaster PCI)",
			Family: FamilyBusMasterPCI, DefaultMedia: Media100FD, PreferDMA: true,
			Features:      FeatureAutoNegotiation | FeatureBusMaster | FeatureChecksumOffload,
			MinSiliconRev: chiprev.Revision{Family: 3, Generation: 90, Stepping: 55},
		},
		{
			VendorID: 0x10B7, DeviceID: 0x5157, Name: "Megahertz 10/100 (CardBus)",
			Family: FamilyCardBus, DefaultMedia: Media100FD, PreferDMA: true,
			Features:      FeatureAutoNegotiation | FeatureBusMaster,
			MinSiliconRev: chiprev.Revision{Family: 5, Generation: 1, Stepping: 57},
		},
	})
	if err != nil {
		panic(err) // built-in table; a duplicate here is a programming error
	}
	return t
}
