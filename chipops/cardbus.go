package chipops

import (
	"context"
	"fmt"
	"time"

	"github.com/netcore/netcore/capability"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/stats"
)

// cardBusPowerOffset is the CardBus-specific power-management register
// this family exposes on top of the shared bus-master layout (window
// 7, just past the descriptor-list pointers).
const cardBusPowerOffset = 0x40

func init() {
	Register(capability.FamilyCardBus, func() Ops { return &cardBusOps{} })
}

// cardBusOps embeds the shared bus-master implementation and adds the
// power-up/power-down sequencing CardBus sockets require around
// init/stop, which neither ISA nor desktop PCI variants need.
type cardBusOps struct {
	busMasterOps
}

func (o *cardBusOps) Init(ctx context.Context, rf *register.RegisterFile, desc capability.ChipDescriptor, mac [6]byte, counters *stats.Counters, cmdTimeout time.Duration) error {
	if err := o.powerUp(ctx, rf); err != nil {
		return fmt.Errorf("netcore/chipops: cardbus power-up: %w", err)
	}
	return o.busMasterOps.Init(ctx, rf, desc, mac, counters, cmdTimeout)
}

func (o *cardBusOps) Stop(ctx context.Context) error {
	if err := o.busMasterOps.Stop(ctx); err != nil {
		return err
	}
	return o.powerDown(ctx)
}

func (o *cardBusOps) powerUp(ctx context.Context, rf *register.RegisterFile) error {
	return rf.With(windowBusMaster, func(r *register.RegisterFile) error {
		r.Write16(cardBusPowerOffset, 1)
		return nil
	})
}

func (o *cardBusOps) powerDown(ctx context.Context) error {
	return o.rf.With(windowBusMaster, func(r *register.RegisterFile) error {
		r.Write16(cardBusPowerOffset, 0)
		return nil
	})
}
