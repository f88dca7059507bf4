// Package stats implements C9: the per-controller statistics block,
// monotonically increasing and reset only by an explicit reset
// operation (§4 table, §6).
//
// Snapshot follows the teacher's RawTCPInfo/TCPInfo split
// (pkg/linux/tcpinfo.go): a plain counter struct tagged for codegen
// and export, rather than the raw wire layout that split exists to
// decode - this family has no analogous raw/unpacked distinction since
// counters are accumulated in Go, not unpacked from a kernel struct,
// so Snapshot is the whole of it. The struct tags are kept anyway so
// statsexport's collector (and a future cmd/genmetrics, mirroring
// cmd/prom-metrics-gen) can derive gauge/counter names mechanically
// instead of hand-listing them twice.
package stats

import "sync/atomic"

// Snapshot is a point-in-time copy of a Counters block, safe to read
// without synchronization since it is a value, not a pointer into live
// state.
type Snapshot struct {
	TxPackets uint64 `netcore:"name=tx_packets,prom_type=counter,prom_help='Frames transmitted successfully.'"`
	TxBytes   uint64 `netcore:"name=tx_bytes,prom_type=counter,prom_help='Bytes transmitted successfully.'"`
	TxErrors  uint64 `netcore:"name=tx_errors,prom_type=counter,prom_help='Transmit errors, sum of the sub-counters below.'"`

	TxUnderrun     uint64 `netcore:"name=tx_underrun,prom_type=counter,prom_help='Transmit FIFO underruns.'"`
	TxCarrierLoss  uint64 `netcore:"name=tx_carrier_loss,prom_type=counter,prom_help='Transmit carrier-loss events.'"`
	TxCollisions   uint64 `netcore:"name=tx_collisions,prom_type=counter,prom_help='Transmit collisions.'"`

	RxPackets uint64 `netcore:"name=rx_packets,prom_type=counter,prom_help='Frames received and delivered.'"`
	RxBytes   uint64 `netcore:"name=rx_bytes,prom_type=counter,prom_help='Bytes received and delivered.'"`
	RxErrors  uint64 `netcore:"name=rx_errors,prom_type=counter,prom_help='Receive errors, sum of the sub-counters below.'"`

	RxCRC      uint64 `netcore:"name=rx_crc_errors,prom_type=counter,prom_help='Receive frames dropped for a CRC mismatch.'"`
	RxLength   uint64 `netcore:"name=rx_length_errors,prom_type=counter,prom_help='Receive frames dropped for an invalid length.'"`
	RxOverrun  uint64 `netcore:"name=rx_overrun,prom_type=counter,prom_help='Receive FIFO overruns.'"`
	RxNoBuffer uint64 `netcore:"name=rx_no_buffer,prom_type=counter,prom_help='Receive frames dropped for lack of a free buffer.'"`

	Interrupts uint64 `netcore:"name=interrupts,prom_type=counter,prom_help='Interrupts serviced.'"`
	TxRetries  uint64 `netcore:"name=tx_retries,prom_type=counter,prom_help='Transmit retries issued by the adaptive threshold loop.'"`
	RxDrops    uint64 `netcore:"name=rx_drops,prom_type=counter,prom_help='Receive frames dropped after harvest (no matching client).'"`
}

// Counters is the live, concurrently-updated form of Snapshot. Fields
// are atomic.Uint64 so the IRQ path and a concurrent Snapshot() call
// never race (§5's "ring cursors and descriptor fields are the only
// state shared between main and IRQ" carves out an exception for
// stats, which this family, like the teacher's exporter, updates from
// both contexts and reads from a third).
type Counters struct {
	txPackets, txBytes, txErrors                      atomic.Uint64
	txUnderrun, txCarrierLoss, txCollisions            atomic.Uint64
	rxPackets, rxBytes, rxErrors                       atomic.Uint64
	rxCRC, rxLength, rxOverrun, rxNoBuffer             atomic.Uint64
	interrupts, txRetries, rxDrops                     atomic.Uint64
}

func (c *Counters) AddTx(packets, bytes uint64) {
	c.txPackets.Add(packets)
	c.txBytes.Add(bytes)
}

func (c *Counters) AddTxUnderrun()    { c.txErrors.Add(1); c.txUnderrun.Add(1) }
func (c *Counters) AddTxCarrierLoss() { c.txErrors.Add(1); c.txCarrierLoss.Add(1) }
func (c *Counters) AddTxCollision()   { c.txErrors.Add(1); c.txCollisions.Add(1) }
func (c *Counters) AddTxRetry()       { c.txRetries.Add(1) }

func (c *Counters) AddRx(packets, bytes uint64) {
	c.rxPackets.Add(packets)
	c.rxBytes.Add(bytes)
}

func (c *Counters) AddRxCRC()      { c.rxErrors.Add(1); c.rxCRC.Add(1) }
func (c *Counters) AddRxLength()   { c.rxErrors.Add(1); c.rxLength.Add(1) }
func (c *Counters) AddRxOverrun()  { c.rxErrors.Add(1); c.rxOverrun.Add(1) }
func (c *Counters) AddRxNoBuffer() { c.rxErrors.Add(1); c.rxNoBuffer.Add(1) }
func (c *Counters) AddRxDrop()     { c.rxDrops.Add(1) }

func (c *Counters) AddInterrupt() { c.interrupts.Add(1) }

// Snapshot copies the live counters into an immutable value, per §6:
// "Monotonically increasing, reset only by explicit reset operation."
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TxPackets: c.txPackets.Load(), TxBytes: c.txBytes.Load(), TxErrors: c.txErrors.Load(),
		TxUnderrun: c.txUnderrun.Load(), TxCarrierLoss: c.txCarrierLoss.Load(), TxCollisions: c.txCollisions.Load(),
		RxPackets: c.rxPackets.Load(), RxBytes: c.rxBytes.Load(), RxErrors: c.rxErrors.Load(),
		RxCRC: c.rxCRC.Load(), RxLength: c.rxLength.Load(), RxOverrun: c.rxOverrun.Load(), RxNoBuffer: c.rxNoBuffer.Load(),
		Interrupts: c.interrupts.Load(), TxRetries: c.txRetries.Load(), RxDrops: c.rxDrops.Load(),
	}
}

// Reset zeroes every counter; only the explicit reset operation (C3's
// reset, via Core) may call this. Fields are stored individually
// rather than replacing *c wholesale, since Counters embeds
// atomic.Uint64 and whole-struct assignment would copy its no-copy
// guard.
func (c *Counters) Reset() {
	c.txPackets.Store(0)
	c.txBytes.Store(0)
	c.txErrors.Store(0)
	c.txUnderrun.Store(0)
	c.txCarrierLoss.Store(0)
	c.txCollisions.Store(0)
	c.rxPackets.Store(0)
	c.rxBytes.Store(0)
	c.rxErrors.Store(0)
	c.rxCRC.Store(0)
	c.rxLength.Store(0)
	c.rxOverrun.Store(0)
	c.rxNoBuffer.Store(0)
	c.interrupts.Store(0)
	c.txRetries.Store(0)
	c.rxDrops.Store(0)
}
