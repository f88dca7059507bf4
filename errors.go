package netcore

import "errors"

// ErrorKind classifies an error from the core per the taxonomy in §7
// of the design: timeout, parameter, resource, integrity, hardware,
// coherency and shutdown families. Callers that care about recovery
// policy should switch on Kind(err) rather than string-matching.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindParameter
	KindResource
	KindIntegrity
	KindHardware
	KindCoherency
	KindShutdown
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindParameter:
		return "parameter"
	case KindResource:
		return "resource"
	case KindIntegrity:
		return "integrity"
	case KindHardware:
		return "hardware"
	case KindCoherency:
		return "coherency"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Sentinel errors. core.go's reconcile wraps leaf packages' local
// errors onto these (fmt.Errorf("%w: %v", ErrX, err)) so callers can
// still errors.Is against the sentinel after wrapping.
var (
	ErrCommandTimeout     = errors.New("netcore: command timeout")
	ErrEepromTimeout      = errors.New("netcore: eeprom busy-bit timeout")
	ErrResetTimeout       = errors.New("netcore: reset timeout")
	ErrNegotiationTimeout = errors.New("netcore: auto-negotiation timeout")

	ErrInvalidLength = errors.New("netcore: frame length out of range")
	ErrEepromAddress = errors.New("netcore: eeprom address out of range")
	ErrOutOfHandles  = errors.New("netcore: no free client handles")
	ErrUnknownChip   = errors.New("netcore: vendor/device id not in capability table")

	ErrRingFull         = errors.New("netcore: tx ring full")
	ErrBufferPoolEmpty  = errors.New("netcore: buffer pool exhausted")
	ErrResourceExhausted = errors.New("netcore: resource exhausted at attach")

	ErrEepromChecksum = errors.New("netcore: eeprom checksum mismatch")
	ErrBadDescriptor  = errors.New("netcore: descriptor invariant violated")

	ErrAdapterFailure = errors.New("netcore: adapter failure")
	ErrHardwareAbsent = errors.New("netcore: hardware absent at attach")

	ErrDmaUnsupported = errors.New("netcore: dma operation unsupported by host")

	ErrLeakedAtShutdown = errors.New("netcore: buffers leaked at detach")

	ErrInvalidState = errors.New("netcore: operation not valid in the controller's current state")
)

var kindOf = map[error]ErrorKind{
	ErrCommandTimeout:     KindTimeout,
	ErrEepromTimeout:      KindTimeout,
	ErrResetTimeout:       KindTimeout,
	ErrNegotiationTimeout: KindTimeout,

	ErrInvalidLength: KindParameter,
	ErrEepromAddress: KindParameter,
	ErrOutOfHandles:  KindParameter,
	ErrUnknownChip:   KindParameter,

	ErrRingFull:          KindResource,
	ErrBufferPoolEmpty:   KindResource,
	ErrResourceExhausted: KindResource,

	ErrEepromChecksum: KindIntegrity,
	ErrBadDescriptor:  KindIntegrity,

	ErrAdapterFailure: KindHardware,
	ErrHardwareAbsent: KindHardware,

	ErrDmaUnsupported: KindCoherency,

	ErrLeakedAtShutdown: KindShutdown,

	ErrInvalidState: KindParameter,
}

// Kind classifies err against the sentinel table, unwrapping as needed.
// Unrecognized errors report KindUnknown.
func Kind(err error) ErrorKind {
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
