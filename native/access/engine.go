package access

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"invokeledger/core/events"
	"invokeledger/native/common"
	"invokeledger/native/earnings"
)

var (
	ErrPriceNotSet          = errors.New("access: price not set")
	ErrInsufficientAmount   = errors.New("access: value below price")
	ErrAlreadyPurchased     = errors.New("access: already purchased")
	ErrResponseDoesNotExist = errors.New("access: response does not exist")
	ErrInvalidAmount        = errors.New("access: amount must not be negative")

	errNilState  = errors.New("access engine: state not configured")
	errNilBank   = errors.New("access engine: bank not configured")
	errNilOracle = errors.New("access engine: occurrence oracle not configured")
)

// LedgerNamespace is the earnings ledger owned by the access engine.
const LedgerNamespace = "access"

type engineState interface {
	AccessPriceGet(assetID, seq uint64) (*big.Int, error)
	AccessPricePut(assetID, seq uint64, price *big.Int) error
	AccessPurchaseGet(assetID, seq uint64, buyer [20]byte) (*Purchase, bool, error)
	AccessPurchasePut(p *Purchase) error
	EarningsBalance(namespace string, beneficiary [20]byte) (*big.Int, error)
	SetEarningsBalance(namespace string, beneficiary [20]byte, amount *big.Int) error
}

// Engine sells one-time access to the result of an existing occurrence and
// credits the proceeds to the asset's controller.
type Engine struct {
	state    engineState
	bank     common.Transferer
	oracle   common.OccurrenceOracle
	keepers  common.KeeperGate
	ledger   *earnings.Ledger
	emitter  events.Emitter
	nowFn    func() int64
	vault    [20]byte
	treasury [20]byte
	redirect earnings.RedirectResolver
}

// NewEngine constructs an access engine with default dependencies.
func NewEngine() *Engine {
	e := &Engine{
		ledger:   earnings.NewLedger(LedgerNamespace),
		emitter:  events.NoopEmitter{},
		redirect: earnings.NoRedirect{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
	e.ledger.SetRedirect(e)
	return e
}

func (e *Engine) SetState(state engineState) {
	e.state = state
	e.ledger.SetState(state)
}

func (e *Engine) SetBank(bank common.Transferer) {
	e.bank = bank
	e.ledger.SetBank(bank)
}

func (e *Engine) SetOracle(oracle common.OccurrenceOracle) { e.oracle = oracle }

func (e *Engine) SetKeeperGate(gate common.KeeperGate) { e.keepers = gate }

func (e *Engine) SetVault(vault [20]byte) {
	e.vault = vault
	e.ledger.SetVault(vault)
}

func (e *Engine) SetPlatform(platform [20]byte) { e.ledger.SetPlatform(platform) }

func (e *Engine) SetTreasury(treasury [20]byte) { e.treasury = treasury }

func (e *Engine) SetRedirect(r earnings.RedirectResolver) {
	if r == nil {
		e.redirect = earnings.NoRedirect{}
		return
	}
	e.redirect = r
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	e.ledger.SetEmitter(emitter)
}

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) Ledger() *earnings.Ledger { return e.ledger }

func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) Treasury() [20]byte { return e.treasury }

// WithdrawalAddress implements earnings.RedirectResolver.
func (e *Engine) WithdrawalAddress(beneficiary [20]byte) ([20]byte, bool) {
	if beneficiary == e.ledger.Platform() && e.treasury != ([20]byte{}) {
		return e.treasury, true
	}
	return e.redirect.WithdrawalAddress(beneficiary)
}

// Purchase buys caller access to the result of occurrence seq. The entire
// attached value is credited to the controller, including any amount above
// the posted price.
func (e *Engine) Purchase(ctx context.Context, caller [20]byte, assetID, seq uint64, value *big.Int) (*Purchase, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if e.oracle == nil {
		return nil, errNilOracle
	}
	amount := big.NewInt(0)
	if value != nil {
		if value.Sign() < 0 {
			return nil, ErrInvalidAmount
		}
		amount.Set(value)
	}
	price, err := e.state.AccessPriceGet(assetID, seq)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, ErrPriceNotSet
	}
	if amount.Cmp(price) < 0 {
		return nil, ErrInsufficientAmount
	}
	if _, ok, err := e.state.AccessPurchaseGet(assetID, seq, caller); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyPurchased
	}
	result, err := e.oracle.Result(ctx, assetID, seq)
	if err != nil {
		return nil, fmt.Errorf("access: result %d/%d: %w", assetID, seq, err)
	}
	if !result.Recorded() {
		return nil, ErrResponseDoesNotExist
	}
	keeper, err := e.keepers.SolventKeeper(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(ctx, caller, e.vault, amount); err != nil {
		return nil, fmt.Errorf("access: collect payment: %w", err)
	}
	if err := e.ledger.Credit(keeper, amount); err != nil {
		return nil, err
	}
	record := &Purchase{
		AssetID:     assetID,
		Sequence:    seq,
		Buyer:       caller,
		Amount:      new(big.Int).Set(amount),
		PurchasedAt: e.nowFn(),
	}
	if err := e.state.AccessPurchasePut(record); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AccessPurchased{
		AssetID:  assetID,
		Sequence: seq,
		Buyer:    caller,
		Keeper:   keeper,
		Amount:   new(big.Int).Set(amount),
	})
	return record.Clone(), nil
}

// SetPrice offers access to occurrence seq at price. Zero withdraws the
// offering. Only the asset's current, solvent controller may call it.
func (e *Engine) SetPrice(ctx context.Context, caller [20]byte, assetID, seq uint64, price *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if price == nil || price.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.keepers.RequireKeeper(ctx, assetID, caller); err != nil {
		return err
	}
	if err := e.state.AccessPricePut(assetID, seq, price); err != nil {
		return err
	}
	e.emitter.Emit(events.AccessPriceUpdated{
		AssetID:  assetID,
		Sequence: seq,
		Keeper:   caller,
		Price:    new(big.Int).Set(price),
	})
	return nil
}

func (e *Engine) Price(assetID, seq uint64) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.AccessPriceGet(assetID, seq)
}

func (e *Engine) PurchaseRecord(assetID, seq uint64, buyer [20]byte) (*Purchase, bool, error) {
	if e.state == nil {
		return nil, false, errNilState
	}
	return e.state.AccessPurchaseGet(assetID, seq, buyer)
}

// HasAccess reports whether buyer purchased access to occurrence seq.
func (e *Engine) HasAccess(assetID, seq uint64, buyer [20]byte) (bool, error) {
	_, ok, err := e.PurchaseRecord(assetID, seq, buyer)
	return ok, err
}

func (e *Engine) Earnings(beneficiary [20]byte) (*big.Int, error) {
	return e.ledger.Balance(beneficiary)
}

func (e *Engine) WithdrawEarnings(ctx context.Context, caller [20]byte) (*big.Int, error) {
	return e.ledger.WithdrawAll(ctx, caller)
}

func (e *Engine) WithdrawPlatformEarnings(ctx context.Context) (*big.Int, error) {
	return e.ledger.WithdrawPlatform(ctx)
}
