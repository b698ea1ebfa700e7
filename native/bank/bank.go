package bank

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"invokeledger/core/events"
	"invokeledger/native/common"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must not be negative")
	ErrCallDepthExceeded   = errors.New("bank: receiver call depth exceeded")
	errNilState            = errors.New("bank: state not configured")
)

// MaxCallDepth bounds how deeply receivers may nest transfers.
const MaxCallDepth = 64

type bankState interface {
	BankBalance(addr [20]byte) (*big.Int, error)
	SetBankBalance(addr [20]byte, amount *big.Int) error
}

type depthKey struct{}

// Bank holds the spendable balances of every account and implements the
// value-transfer primitive. Accounts with a registered Receiver get control
// after value has been credited to them.
type Bank struct {
	state     bankState
	emitter   events.Emitter
	mu        sync.RWMutex
	receivers map[[20]byte]common.Receiver
}

var _ common.Transferer = (*Bank)(nil)

// New constructs a bank over the supplied state.
func New(state bankState) *Bank {
	return &Bank{
		state:     state,
		emitter:   events.NoopEmitter{},
		receivers: make(map[[20]byte]common.Receiver),
	}
}

// SetEmitter configures the event emitter used by the bank.
func (b *Bank) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// RegisterReceiver attaches code to an account. Passing nil detaches it.
func (b *Bank) RegisterReceiver(addr [20]byte, r common.Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r == nil {
		delete(b.receivers, addr)
		return
	}
	b.receivers[addr] = r
}

func (b *Bank) receiver(addr [20]byte) common.Receiver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.receivers[addr]
}

// Balance returns the spendable balance of addr.
func (b *Bank) Balance(addr [20]byte) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	return b.state.BankBalance(addr)
}

// Deposit credits value entering the system from outside.
func (b *Bank) Deposit(to [20]byte, amount *big.Int) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	bal, err := b.state.BankBalance(to)
	if err != nil {
		return err
	}
	if err := b.state.SetBankBalance(to, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	b.emitter.Emit(events.BankDeposited{Account: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer debits from and credits to, then runs the receiver registered for
// the destination, if any. A receiver error fails the transfer; the caller is
// responsible for rolling back state.
func (b *Bank) Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromBal, err := b.state.BankBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to && amount.Sign() > 0 {
		if err := b.state.SetBankBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		toBal, err := b.state.BankBalance(to)
		if err != nil {
			return err
		}
		if err := b.state.SetBankBalance(to, new(big.Int).Add(toBal, amount)); err != nil {
			return err
		}
	}
	r := b.receiver(to)
	if r == nil {
		return nil
	}
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= MaxCallDepth {
		return ErrCallDepthExceeded
	}
	return r.OnReceive(context.WithValue(ctx, depthKey{}, depth+1), from, new(big.Int).Set(amount))
}
