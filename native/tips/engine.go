package tips

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
	ErrInsufficientTip          = errors.New("tips: tip below asset minimum")
	ErrInvocationAlreadyClaimed = errors.New("tips: invocation already claimed")
	ErrInvocationNotInvoked     = errors.New("tips: invocation not invoked")
	ErrInsufficientTips         = errors.New("tips: pool total below requested minimum")
	ErrTipNotFound              = errors.New("tips: no pledge to withdraw")
	ErrUnevenLengths            = errors.New("tips: asset and fingerprint lists differ in length")
	ErrInvalidAmount            = errors.New("tips: amount must not be negative")

	errNilState  = errors.New("tips engine: state not configured")
	errNilBank   = errors.New("tips engine: bank not configured")
	errNilOracle = errors.New("tips engine: occurrence oracle not configured")
)

// LedgerNamespace is the earnings ledger owned by the tip engine.
const LedgerNamespace = "tips"

type engineState interface {
	TipPoolGet(assetID uint64, fingerprint [32]byte) (*Pool, bool, error)
	TipPoolPut(pool *Pool) error
	TipPledgeGet(assetID uint64, fingerprint [32]byte, contributor [20]byte) (*big.Int, error)
	TipPledgePut(assetID uint64, fingerprint [32]byte, contributor [20]byte, amount *big.Int) error
	TipMinimumGet(assetID uint64) (*big.Int, error)
	TipMinimumPut(assetID uint64, amount *big.Int) error
	EarningsBalance(namespace string, beneficiary [20]byte) (*big.Int, error)
	SetEarningsBalance(namespace string, beneficiary [20]byte, amount *big.Int) error
}

// Engine escrows contributions toward a specific future action on an asset
// and releases them to whoever performs it.
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

// NewEngine constructs a tip engine with default dependencies.
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

// SetState configures the state backend used by the engine and its ledger.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.ledger.SetState(state)
}

// SetBank configures the value-transfer primitive.
func (e *Engine) SetBank(bank common.Transferer) {
	e.bank = bank
	e.ledger.SetBank(bank)
}

func (e *Engine) SetOracle(oracle common.OccurrenceOracle) { e.oracle = oracle }

func (e *Engine) SetKeeperGate(gate common.KeeperGate) { e.keepers = gate }

// SetVault configures the account that holds pledges and unpaid earnings.
func (e *Engine) SetVault(vault [20]byte) {
	e.vault = vault
	e.ledger.SetVault(vault)
}

func (e *Engine) SetPlatform(platform [20]byte) { e.ledger.SetPlatform(platform) }

// SetTreasury routes platform earnings withdrawals to treasury. The zero
// address pays the platform identity directly.
func (e *Engine) SetTreasury(treasury [20]byte) { e.treasury = treasury }

// SetRedirect installs a resolver consulted for every beneficiary other than
// the platform identity.
func (e *Engine) SetRedirect(r earnings.RedirectResolver) {
	if r == nil {
		e.redirect = earnings.NoRedirect{}
		return
	}
	e.redirect = r
}

// SetEmitter configures the event emitter used by the engine and its ledger.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	e.ledger.SetEmitter(emitter)
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Ledger exposes the engine's earnings ledger.
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

func (e *Engine) ready() error {
	if e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return nil
}

func (e *Engine) loadPool(assetID uint64, fingerprint [32]byte) (*Pool, error) {
	pool, ok, err := e.state.TipPoolGet(assetID, fingerprint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newPool(assetID, fingerprint, e.nowFn()), nil
	}
	return pool, nil
}

// Tip pledges value from caller toward the pool for (assetID, fingerprint).
func (e *Engine) Tip(ctx context.Context, caller [20]byte, assetID uint64, fingerprint [32]byte, value *big.Int) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	amount := big.NewInt(0)
	if value != nil {
		if value.Sign() < 0 {
			return nil, ErrInvalidAmount
		}
		amount.Set(value)
	}
	floor, err := e.state.TipMinimumGet(assetID)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(floor) < 0 {
		return nil, ErrInsufficientTip
	}
	pool, err := e.loadPool(assetID, fingerprint)
	if err != nil {
		return nil, err
	}
	if pool.Claimed() {
		return nil, ErrInvocationAlreadyClaimed
	}
	if err := e.bank.Transfer(ctx, caller, e.vault, amount); err != nil {
		return nil, fmt.Errorf("tips: collect tip: %w", err)
	}
	pledge, err := e.state.TipPledgeGet(assetID, fingerprint, caller)
	if err != nil {
		return nil, err
	}
	if err := e.state.TipPledgePut(assetID, fingerprint, caller, new(big.Int).Add(pledge, amount)); err != nil {
		return nil, err
	}
	pool.Total = new(big.Int).Add(pool.Total, amount)
	if amount.Sign() > 0 && !pool.hasContributor(caller) {
		pool.Contributors = append(pool.Contributors, caller)
	}
	if err := e.state.TipPoolPut(pool); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.TipPlaced{
		AssetID:     assetID,
		Fingerprint: fingerprint,
		Contributor: caller,
		Amount:      new(big.Int).Set(amount),
		PoolTotal:   new(big.Int).Set(pool.Total),
	})
	return pool.Clone(), nil
}

// Claim closes the pool matching the fingerprint of occurrence seq and credits
// its total to the actor that performed it. The pool is marked claimed before
// any value moves.
func (e *Engine) Claim(ctx context.Context, caller [20]byte, assetID, seq uint64, minimumTotal *big.Int) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.oracle == nil {
		return nil, errNilOracle
	}
	occ, err := e.oracle.Occurrence(ctx, assetID, seq)
	if err != nil {
		return nil, fmt.Errorf("tips: occurrence %d/%d: %w", assetID, seq, err)
	}
	if !occ.Performed() || seq == 0 {
		return nil, ErrInvocationNotInvoked
	}
	pool, err := e.loadPool(assetID, occ.Fingerprint)
	if err != nil {
		return nil, err
	}
	if pool.Claimed() {
		return nil, ErrInvocationAlreadyClaimed
	}
	if minimumTotal != nil && pool.Total.Cmp(minimumTotal) < 0 {
		return nil, ErrInsufficientTips
	}
	pool.ClaimedSeq = seq
	pool.ClaimedBy = occ.Actor
	pool.ClaimedAt = e.nowFn()
	if err := e.state.TipPoolPut(pool); err != nil {
		return nil, err
	}
	if err := e.ledger.Credit(occ.Actor, pool.Total); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.TipPoolClaimed{
		AssetID:     assetID,
		Fingerprint: occ.Fingerprint,
		Sequence:    seq,
		Actor:       occ.Actor,
		Caller:      caller,
		Amount:      new(big.Int).Set(pool.Total),
	})
	return pool.Clone(), nil
}

// WithdrawTip returns the caller's pledge from an open pool.
func (e *Engine) WithdrawTip(ctx context.Context, caller [20]byte, assetID uint64, fingerprint [32]byte) (*big.Int, error) {
	return e.WithdrawTips(ctx, caller, []uint64{assetID}, [][32]byte{fingerprint})
}

type withdrawal struct {
	pool   *Pool
	amount *big.Int
}

// WithdrawTips returns the caller's pledges from several open pools in one
// transfer. Every entry is validated before any state changes, so a failing
// entry leaves all pools untouched.
func (e *Engine) WithdrawTips(ctx context.Context, caller [20]byte, assetIDs []uint64, fingerprints [][32]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if len(assetIDs) != len(fingerprints) {
		return nil, ErrUnevenLengths
	}
	type poolKey struct {
		asset uint64
		fp    [32]byte
	}
	seen := make(map[poolKey]struct{}, len(assetIDs))
	plan := make([]withdrawal, 0, len(assetIDs))
	for i, assetID := range assetIDs {
		key := poolKey{asset: assetID, fp: fingerprints[i]}
		if _, dup := seen[key]; dup {
			return nil, ErrTipNotFound
		}
		seen[key] = struct{}{}
		pledge, err := e.state.TipPledgeGet(assetID, fingerprints[i], caller)
		if err != nil {
			return nil, err
		}
		if pledge.Sign() == 0 {
			return nil, ErrTipNotFound
		}
		pool, ok, err := e.state.TipPoolGet(assetID, fingerprints[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrTipNotFound
		}
		if pool.Claimed() {
			return nil, ErrInvocationAlreadyClaimed
		}
		plan = append(plan, withdrawal{pool: pool, amount: pledge})
	}

	total := big.NewInt(0)
	for _, w := range plan {
		if err := e.state.TipPledgePut(w.pool.AssetID, w.pool.Fingerprint, caller, big.NewInt(0)); err != nil {
			return nil, err
		}
		w.pool.Total = new(big.Int).Sub(w.pool.Total, w.amount)
		if err := e.state.TipPoolPut(w.pool); err != nil {
			return nil, err
		}
		total.Add(total, w.amount)
		e.emitter.Emit(events.TipWithdrawn{
			AssetID:     w.pool.AssetID,
			Fingerprint: w.pool.Fingerprint,
			Contributor: caller,
			Amount:      new(big.Int).Set(w.amount),
		})
	}
	if total.Sign() > 0 {
		if err := e.bank.Transfer(ctx, e.vault, caller, total); err != nil {
			return nil, fmt.Errorf("tips: return pledges: %w", err)
		}
	}
	return total, nil
}

// SetMinimumTip sets the per-asset tip floor. Only the asset's current,
// solvent controller may call it.
func (e *Engine) SetMinimumTip(ctx context.Context, caller [20]byte, assetID uint64, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.keepers.RequireKeeper(ctx, assetID, caller); err != nil {
		return err
	}
	if err := e.state.TipMinimumPut(assetID, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.MinimumTipUpdated{AssetID: assetID, Keeper: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

// Pool returns the pool for (assetID, fingerprint).
func (e *Engine) Pool(assetID uint64, fingerprint [32]byte) (*Pool, bool, error) {
	if e.state == nil {
		return nil, false, errNilState
	}
	return e.state.TipPoolGet(assetID, fingerprint)
}

func (e *Engine) Pledge(assetID uint64, fingerprint [32]byte, contributor [20]byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.TipPledgeGet(assetID, fingerprint, contributor)
}

func (e *Engine) MinimumTip(assetID uint64) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.TipMinimumGet(assetID)
}

// Earnings returns the beneficiary's balance in the tip ledger.
func (e *Engine) Earnings(beneficiary [20]byte) (*big.Int, error) {
	return e.ledger.Balance(beneficiary)
}

// WithdrawEarnings pays out the caller's tip earnings.
func (e *Engine) WithdrawEarnings(ctx context.Context, caller [20]byte) (*big.Int, error) {
	return e.ledger.WithdrawAll(ctx, caller)
}

// WithdrawPlatformEarnings pays out the platform share accrued by tips.
func (e *Engine) WithdrawPlatformEarnings(ctx context.Context) (*big.Int, error) {
	return e.ledger.WithdrawPlatform(ctx)
}
