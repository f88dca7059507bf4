// Package chiprev compares silicon revisions the same way the
// teacher package compares kernel versions: a revision is "at least"
// another when this family's three-level ordering says so, and a
// capability is only trusted once the revision gate for it has
// passed. This is a direct rework of go-tcpinfo's pkg/linux/init.go,
// which gates tcp_info field availability on kernel version; here the
// gated quantity is which §4.2 capability bits the chip actually
// implements; nothing here handles TCP anymore.
package chiprev

import (
	"fmt"

	"github.com/docker/docker/pkg/parsers/kernel"
)

// Revision identifies a silicon stepping as Family.Generation.Stepping,
// mapped onto kernel.VersionInfo's three numeric fields so the
// existing comparator can be reused unmodified.
type Revision struct {
	Family     int
	Generation int
	Stepping   int
}

func (r Revision) versionInfo() kernel.VersionInfo {
	return kernel.VersionInfo{Kernel: r.Family, Major: r.Generation, Minor: r.Stepping}
}

func (r Revision) String() string {
	return fmt.Sprintf("%d.%d.%d", r.Family, r.Generation, r.Stepping)
}

// AtLeast reports whether have is the same revision as or newer than
// want, using the same ordering rules docker/pkg/parsers/kernel
// applies to kernel versions.
func AtLeast(have, want Revision) bool {
	return kernel.CompareKernelVersion(have.versionInfo(), want.versionInfo()) >= 0
}

// Gate is one entry in a capability-gating table: capabilities named
// in Flags are only trusted once the chip's reported revision is at
// least MinRevision. This mirrors the teacher's VersionedStructSize /
// tcpInfoSizes table exactly, generalized from "struct size at this
// kernel version" to "capability bits trusted at this silicon
// revision".
type Gate struct {
	MinRevision Revision
	Flags       CapabilityMask
}

// CapabilityMask is a bitmask of capability flags, see capability.Flags.
type CapabilityMask uint32

// Trusted walks gates from newest to oldest, same traversal order as
// adaptToKernelVersion, and returns the union of every gate's Flags
// whose MinRevision the chip's revision satisfies.
func Trusted(rev Revision, gates []Gate) CapabilityMask {
	var trusted CapabilityMask
	for i := len(gates) - 1; i >= 0; i-- {
		if AtLeast(rev, gates[i].MinRevision) {
			// Every earlier (lower-revision) gate is implied once a
			// later one is satisfied, exactly as adaptToKernelVersion
			// sets every earlier flag once the kernel is new enough.
			for j := i; j >= 0; j-- {
				trusted |= gates[j].Flags
			}
			return trusted
		}
	}
	return trusted
}
