package capability

import (
	"context"
	"fmt"
	"time"
)

// EepromReader is the subset of register.RegisterFile that
// identification needs; kept as an interface here so this package
// doesn't import register and create a cycle.
type EepromReader interface {
	EepromRead(ctx context.Context, address int, timeout time.Duration) (uint16, error)
}

// EEPROM word offsets, per the map in §6: MAC[0..2]; device id;
// manufacturing date; manufacturing data; board-config word; vendor
// id; I/O config; IRQ config; padding; media config; reserved
// (12..14); checksum complement is the last word of the first 16.
const (
	wordMAC0          = 0
	wordMAC1          = 1
	wordMAC2          = 2
	wordDeviceID      = 3
	wordManufDate     = 4
	wordManufData     = 5
	wordBoardConfig   = 6
	wordVendorID      = 7
	wordIOConfig      = 8
	wordIRQConfig     = 9
	wordPadding       = 10
	wordMediaConfig   = 11
	wordReservedFirst = 12
	wordReservedLast  = 14
	wordChecksum      = 15
	identWordCount    = 16
)

// Identity is everything C4 extracts from the first 16 EEPROM words.
type Identity struct {
	MAC          [6]byte
	VendorID     uint16
	DeviceID     uint16
	ManufDate    uint16
	BoardConfig  uint16
	ChecksumOK   bool
}

// Identify reads the first 16 EEPROM words and extracts the MAC,
// vendor/device ids and checksum validity. A checksum mismatch is
// reported via ChecksumOK=false but never blocks identification - per
// §4.2, "the MAC is still returned; the caller decides policy."
func Identify(ctx context.Context, r EepromReader, timeout time.Duration) (Identity, error) {
	var words [identWordCount]uint16
	var sum uint32
	for i := range words {
		w, err := r.EepromRead(ctx, i, timeout)
		if err != nil {
			return Identity{}, fmt.Errorf("netcore/capability: eeprom word %d: %w", i, err)
		}
		words[i] = w
		sum += uint32(w)
	}

	id := Identity{
		VendorID:    words[wordVendorID],
		DeviceID:    words[wordDeviceID],
		ManufDate:   words[wordManufDate],
		BoardConfig: words[wordBoardConfig],
		ChecksumOK:  uint16(sum) == 0,
	}
	putMACWord(&id.MAC, 0, words[wordMAC0])
	putMACWord(&id.MAC, 1, words[wordMAC1])
	putMACWord(&id.MAC, 2, words[wordMAC2])
	return id, nil
}

// putMACWord stores a little-endian EEPROM word as two MAC octets,
// matching the byte-swap the real EEPROM applies per word (§4.2).
func putMACWord(mac *[6]byte, wordIndex int, w uint16) {
	mac[wordIndex*2] = byte(w)
	mac[wordIndex*2+1] = byte(w >> 8)
}
