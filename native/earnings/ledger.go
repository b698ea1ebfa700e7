package earnings

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"invokeledger/core/events"
	"invokeledger/native/common"
)

var (
	// ErrNoFundsAvailable is returned when a withdrawal finds a zero balance.
	ErrNoFundsAvailable = errors.New("earnings: no funds available")
	errNilState         = errors.New("earnings: state not configured")
	errNilBank          = errors.New("earnings: bank not configured")
	errInvalidAmount    = errors.New("earnings: amount must not be negative")
)

// PlatformFeePercent is the share of every credit retained by the platform.
const PlatformFeePercent = 5

// DefaultPlatformAccount is the identity that accrues the platform share when
// no explicit account is configured.
var DefaultPlatformAccount = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("invokeledger/platform"))[12:])
	return out
}()

type ledgerState interface {
	EarningsBalance(namespace string, beneficiary [20]byte) (*big.Int, error)
	SetEarningsBalance(namespace string, beneficiary [20]byte, amount *big.Int) error
}

// RedirectResolver chooses where a beneficiary's withdrawal is paid. Returning
// false pays the beneficiary itself.
type RedirectResolver interface {
	WithdrawalAddress(beneficiary [20]byte) ([20]byte, bool)
}

// NoRedirect pays every beneficiary directly.
type NoRedirect struct{}

func (NoRedirect) WithdrawalAddress([20]byte) ([20]byte, bool) { return [20]byte{}, false }

// StaticRedirect pays listed beneficiaries to a fixed destination.
type StaticRedirect map[[20]byte][20]byte

func (r StaticRedirect) WithdrawalAddress(beneficiary [20]byte) ([20]byte, bool) {
	dest, ok := r[beneficiary]
	return dest, ok
}

// SplitShares divides amount into the platform fee and the beneficiary share.
// The fee truncates, so the beneficiary share absorbs any remainder.
func SplitShares(amount *big.Int) (platform, user *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	platform = new(big.Int).Mul(amount, big.NewInt(PlatformFeePercent))
	platform.Quo(platform, big.NewInt(100))
	user = new(big.Int).Sub(amount, platform)
	return platform, user
}

// Ledger accrues earnings for beneficiaries and pays them out on request from
// the vault that holds the escrowed value.
type Ledger struct {
	namespace string
	state     ledgerState
	bank      common.Transferer
	vault     [20]byte
	platform  [20]byte
	redirect  RedirectResolver
	emitter   events.Emitter
}

// NewLedger returns a ledger storing balances under namespace.
func NewLedger(namespace string) *Ledger {
	return &Ledger{
		namespace: namespace,
		platform:  DefaultPlatformAccount,
		redirect:  NoRedirect{},
		emitter:   events.NoopEmitter{},
	}
}

func (l *Ledger) SetState(state ledgerState) { l.state = state }

func (l *Ledger) SetBank(bank common.Transferer) { l.bank = bank }

// SetVault configures the bank account that backs the ledger's balances.
func (l *Ledger) SetVault(vault [20]byte) { l.vault = vault }

// SetPlatform configures the identity that accrues the platform share.
func (l *Ledger) SetPlatform(platform [20]byte) { l.platform = platform }

func (l *Ledger) SetRedirect(r RedirectResolver) {
	if r == nil {
		l.redirect = NoRedirect{}
		return
	}
	l.redirect = r
}

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) Namespace() string { return l.namespace }

func (l *Ledger) Vault() [20]byte { return l.vault }

func (l *Ledger) Platform() [20]byte { return l.platform }

// Balance returns the accrued balance of beneficiary.
func (l *Ledger) Balance(beneficiary [20]byte) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	return l.state.EarningsBalance(l.namespace, beneficiary)
}

// Credit splits amount and adds each share to its recipient. The caller must
// already hold the value in the ledger vault.
func (l *Ledger) Credit(beneficiary [20]byte, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	platformShare, userShare := SplitShares(amount)
	if err := l.add(l.platform, platformShare); err != nil {
		return err
	}
	return l.add(beneficiary, userShare)
}

func (l *Ledger) add(who [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	current, err := l.state.EarningsBalance(l.namespace, who)
	if err != nil {
		return err
	}
	return l.state.SetEarningsBalance(l.namespace, who, new(big.Int).Add(current, amount))
}

// WithdrawAll pays out the caller's entire balance. The balance is zeroed
// before value leaves the vault.
func (l *Ledger) WithdrawAll(ctx context.Context, caller [20]byte) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	if l.bank == nil {
		return nil, errNilBank
	}
	balance, err := l.state.EarningsBalance(l.namespace, caller)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrNoFundsAvailable
	}
	if err := l.state.SetEarningsBalance(l.namespace, caller, big.NewInt(0)); err != nil {
		return nil, err
	}
	dest := caller
	if redirected, ok := l.redirect.WithdrawalAddress(caller); ok {
		dest = redirected
	}
	l.emitter.Emit(events.EarningsWithdrawn{
		Ledger:      l.namespace,
		Beneficiary: caller,
		Amount:      new(big.Int).Set(balance),
	})
	if err := l.bank.Transfer(ctx, l.vault, dest, balance); err != nil {
		return nil, fmt.Errorf("earnings: pay %s: %w", l.namespace, err)
	}
	return balance, nil
}

// WithdrawPlatform pays out the platform identity's balance.
func (l *Ledger) WithdrawPlatform(ctx context.Context) (*big.Int, error) {
	return l.WithdrawAll(ctx, l.platform)
}
