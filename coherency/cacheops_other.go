//go:build !amd64

package coherency

// Non-amd64 hosts have no CLFLUSH-equivalent this package targets;
// Analyze never selects TierCLFLUSH for a CPUFamily with
// HasCacheLineFlush=false, so these only run under a caller-supplied
// CPUFamily that lies about its own capability.
func flushLines(buf []byte)      {}
func invalidateLines(buf []byte) {}
func writebackInvalidateAll()    {}
