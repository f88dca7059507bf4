//go:build amd64

package coherency

// On amd64 CLFLUSH/WBINVD are real instructions, but reaching them
// requires architecture-specific assembly this package does not ship
// (matching how cmd/attachsim's bus is entirely simulated - there is
// no real device behind these hooks to flush for). The hook points
// exist so a real attach can link in an asm implementation later
// without changing Selector's public surface; until then they
// perform no hardware action, behaving like Fallback while still
// reporting the tier the decision table selected.
func flushLines(buf []byte)          {}
func invalidateLines(buf []byte)     {}
func writebackInvalidateAll()        {}
