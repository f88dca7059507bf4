package ring

import "errors"

// Local sentinels, mirrored onto netcore's exported taxonomy at the
// facade boundary (core.go), same split as register's local
// sentinels: this package stays independent of the root module.
var (
	ErrRingFull      = errors.New("netcore/ring: tx ring full")
	ErrBadDescriptor = errors.New("netcore/ring: descriptor invariant violated")
)
