package conveyor

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"invokeledger/core/events"
	"invokeledger/native/common"
)

var errNilBank = errors.New("conveyor: bank not configured")

// Conveyor relays every payment it receives to a fixed destination. It is
// registered on the bank as the receiver for its own address and is commonly
// used as a withdrawal redirect target.
type Conveyor struct {
	address     [20]byte
	destination [20]byte
	bank        common.Transferer
	emitter     events.Emitter
}

var _ common.Receiver = (*Conveyor)(nil)

// New returns a conveyor at address forwarding to destination.
func New(address, destination [20]byte, bank common.Transferer) *Conveyor {
	return &Conveyor{
		address:     address,
		destination: destination,
		bank:        bank,
		emitter:     events.NoopEmitter{},
	}
}

func (c *Conveyor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Conveyor) Address() [20]byte { return c.address }

func (c *Conveyor) Destination() [20]byte { return c.destination }

// OnReceive forwards the full amount to the destination.
func (c *Conveyor) OnReceive(ctx context.Context, from [20]byte, amount *big.Int) error {
	if c.bank == nil {
		return errNilBank
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	c.emitter.Emit(events.PaymentForwarded{
		Conveyor:    c.address,
		From:        from,
		Destination: c.destination,
		Amount:      new(big.Int).Set(amount),
	})
	if err := c.bank.Transfer(ctx, c.address, c.destination, amount); err != nil {
		return fmt.Errorf("conveyor: forward: %w", err)
	}
	return nil
}
