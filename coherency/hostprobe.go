package coherency

// HostProbe supplies the real-world facts Analyze needs: CPU family
// and cache-management capability, bus-master DMA health, and
// snooping coverage. It is kept fully swappable (real probe in
// cmd/attachsim, a fixed fake in tests) since it is the one place a
// real host fact, rather than a simulated one, could enter the core
// (§5's remark that the rest of the system is otherwise fully
// substitutable for testing).
type HostProbe interface {
	CPUFamily() CPUFamily
	CacheMode() CacheMode
	ProbeBusMaster() BusMasterResult
	ProbeSnooping() Snooping
}

// RunProbe is the one call site that turns a HostProbe into an
// Analysis, kept as a thin wrapper so callers don't need to remember
// the argument order Analyze expects.
func RunProbe(p HostProbe) Analysis {
	return Analyze(p.CPUFamily(), p.CacheMode(), p.ProbeBusMaster(), p.ProbeSnooping())
}

// FixedProbe is a HostProbe that always reports the same facts, for
// tests and for forced-tier configuration
// (Config.CoherencyOverride=force_tier).
type FixedProbe struct {
	CPU       CPUFamily
	Mode      CacheMode
	BusMaster BusMasterResult
	Snoop     Snooping
}

func (f FixedProbe) CPUFamily() CPUFamily            { return f.CPU }
func (f FixedProbe) CacheMode() CacheMode             { return f.Mode }
func (f FixedProbe) ProbeBusMaster() BusMasterResult { return f.BusMaster }
func (f FixedProbe) ProbeSnooping() Snooping          { return f.Snoop }
