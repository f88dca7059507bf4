package register

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EepromRead selects window 0, issues a read command for address, and
// polls the busy bit with the 162us-typical/200us-cap timeout from
// §4.1. Addresses at or beyond EepromSize fail without touching the
// bus.
func (r *RegisterFile) EepromRead(ctx context.Context, address int, timeout time.Duration) (uint16, error) {
	if address < 0 || address >= EepromSize {
		return 0, fmt.Errorf("netcore/register: eeprom address %d: %w", address, ErrEepromAddressRange)
	}
	if err := r.Select(0); err != nil {
		return 0, err
	}
	r.bus.Out16(EepromCommandReg, eepromOpRead|uint16(address))
	if err := r.pollClear(ctx, EepromCommandReg, eepromBusy, timeout); err != nil {
		return 0, ErrEepromTimeoutKind
	}
	return r.bus.In16(EepromDataReg), nil
}

// ErrEepromAddressRange and ErrEepromTimeoutKind are the register
// package's local sentinels; netcore wraps them with the exported
// EepromAddress/EepromTimeout kinds at the facade boundary so this
// package stays independent of the root module's error taxonomy.
var (
	ErrEepromAddressRange = errors.New("address beyond eeprom size")
	ErrEepromTimeoutKind  = errors.New("eeprom busy-bit never cleared")
)
