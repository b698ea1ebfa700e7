package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"invokeledger/core/events"
	"invokeledger/core/state"
	"invokeledger/native/access"
	"invokeledger/native/bank"
	"invokeledger/native/common"
	"invokeledger/native/conveyor"
	"invokeledger/native/earnings"
	"invokeledger/native/tips"
	"invokeledger/observability"
	telemetry "invokeledger/observability/otel"
	"invokeledger/storage"
)

const (
	ModuleTips   = "tips"
	ModuleAccess = "access"
	ModuleBank   = "bank"
)

var (
	ErrUnknownLedger   = errors.New("settlement: unknown earnings ledger")
	ErrReservedAccount = errors.New("settlement: account is reserved")
	errNilDatabase     = errors.New("settlement: database required")
	errNilOracle       = errors.New("settlement: occurrence oracle required")
	errNilRegistry     = errors.New("settlement: controller registry and solvency oracle required")
)

// ConveyorConfig describes a payment conveyor installed at Address.
type ConveyorConfig struct {
	Address     [20]byte
	Destination [20]byte
}

// Config holds the static account layout of the settlement module.
type Config struct {
	Platform       [20]byte
	TipsVault      [20]byte
	TipsTreasury   [20]byte
	AccessVault    [20]byte
	AccessTreasury [20]byte
	Conveyors      []ConveyorConfig
	// Redirects pays the listed beneficiaries of either ledger elsewhere.
	Redirects map[[20]byte][20]byte
}

// Deps are the collaborators the module is wired to.
type Deps struct {
	DB       storage.Database
	Oracle   common.OccurrenceOracle
	Registry common.ControllerRegistry
	Solvency common.SolvencyOracle
	Pauses   common.PauseView
	// Emitter receives events after the operation that produced them commits.
	Emitter events.Emitter
	Logger  *slog.Logger
	Now     func() int64
}

type callKey struct{}

// Module owns the settlement state and runs every operation as one atomic
// unit. Top-level calls are serialised; calls made from inside a transfer
// receiver with the context it was handed run nested within the outer call.
//
// Receivers must pass the context they receive to any Module method they
// invoke. A fresh context blocks on the module lock.
type Module struct {
	mu        sync.Mutex
	state     *state.Manager
	bank      *bank.Bank
	tips      *tips.Engine
	access    *access.Engine
	conveyors map[[20]byte]*conveyor.Conveyor
	reserved  map[[20]byte]struct{}
	pauses    common.PauseView
	emitter   events.Emitter
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.SettlementMetrics
}

// New wires the engines, bank and conveyors over a fresh state manager.
func New(cfg Config, deps Deps) (*Module, error) {
	if deps.DB == nil {
		return nil, errNilDatabase
	}
	if deps.Oracle == nil {
		return nil, errNilOracle
	}
	if deps.Registry == nil || deps.Solvency == nil {
		return nil, errNilRegistry
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	platform := cfg.Platform
	if platform == ([20]byte{}) {
		platform = earnings.DefaultPlatformAccount
	}

	st := state.NewManager(deps.DB)
	b := bank.New(st)
	b.SetEmitter(st)
	gate := common.KeeperGate{Registry: deps.Registry, Solvency: deps.Solvency}
	var redirect earnings.RedirectResolver = earnings.NoRedirect{}
	if len(cfg.Redirects) > 0 {
		redirect = earnings.StaticRedirect(cfg.Redirects)
	}

	m := &Module{
		state:     st,
		bank:      b,
		tips:      tips.NewEngine(),
		access:    access.NewEngine(),
		conveyors: make(map[[20]byte]*conveyor.Conveyor),
		reserved:  make(map[[20]byte]struct{}),
		pauses:    deps.Pauses,
		emitter:   emitter,
		logger:    logger.With(slog.String("component", "settlement")),
		tracer:    telemetry.Tracer("invokeledger/settlement"),
		metrics:   observability.Settlement(),
	}

	m.tips.SetState(st)
	m.tips.SetBank(b)
	m.tips.SetOracle(deps.Oracle)
	m.tips.SetKeeperGate(gate)
	m.tips.SetVault(cfg.TipsVault)
	m.tips.SetPlatform(platform)
	m.tips.SetTreasury(cfg.TipsTreasury)
	m.tips.SetRedirect(redirect)
	m.tips.SetEmitter(st)
	m.tips.SetNowFunc(deps.Now)

	m.access.SetState(st)
	m.access.SetBank(b)
	m.access.SetOracle(deps.Oracle)
	m.access.SetKeeperGate(gate)
	m.access.SetVault(cfg.AccessVault)
	m.access.SetPlatform(platform)
	m.access.SetTreasury(cfg.AccessTreasury)
	m.access.SetRedirect(redirect)
	m.access.SetEmitter(st)
	m.access.SetNowFunc(deps.Now)

	m.reserved[cfg.TipsVault] = struct{}{}
	m.reserved[cfg.AccessVault] = struct{}{}
	for _, cc := range cfg.Conveyors {
		if _, dup := m.conveyors[cc.Address]; dup {
			return nil, fmt.Errorf("settlement: duplicate conveyor %x", cc.Address)
		}
		if _, taken := m.reserved[cc.Address]; taken {
			return nil, fmt.Errorf("settlement: conveyor %x collides with a vault: %w", cc.Address, ErrReservedAccount)
		}
		conv := conveyor.New(cc.Address, cc.Destination, b)
		conv.SetEmitter(st)
		b.RegisterReceiver(cc.Address, conv)
		m.conveyors[cc.Address] = conv
		m.reserved[cc.Address] = struct{}{}
	}
	return m, nil
}

// callFrame marks a context as belonging to a running top-level operation.
// A context that outlives the operation loses the mark.
type callFrame struct {
	owner *Module
	done  atomic.Bool
}

func (m *Module) reentrant(ctx context.Context) bool {
	frame, _ := ctx.Value(callKey{}).(*callFrame)
	return frame != nil && frame.owner == m && !frame.done.Load()
}

// execute runs fn as one atomic unit. Any error reverts every write and
// pending event made by fn. Top-level calls commit on success and only then
// publish their events downstream.
func (m *Module) execute(ctx context.Context, module, op string, fn func(context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.reentrant(ctx) {
		snap := m.state.Snapshot()
		err = fn(ctx)
		if err != nil {
			m.state.RevertToSnapshot(snap)
		}
		m.metrics.Observe(module, op, true, err, 0)
		m.logger.Debug("nested settlement call",
			slog.String("module", module),
			slog.String("operation", op),
			slog.Any("error", err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, module+"."+op, trace.WithAttributes(
		attribute.String("settlement.module", module),
		attribute.String("settlement.operation", op),
	))
	defer span.End()

	snap := m.state.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			m.state.RevertToSnapshot(snap)
			panic(r)
		}
	}()

	frame := &callFrame{owner: m}
	defer frame.done.Store(true)
	err = fn(context.WithValue(ctx, callKey{}, frame))
	var committed []events.Event
	if err == nil {
		committed, err = m.state.Commit()
		if err != nil {
			m.logger.Error("settlement commit failed",
				slog.String("module", module),
				slog.String("operation", op),
				slog.Any("error", err))
		}
	}
	m.metrics.Observe(module, op, false, err, time.Since(start))
	if err != nil {
		m.state.RevertToSnapshot(snap)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("settlement operation rejected",
			slog.String("module", module),
			slog.String("operation", op),
			slog.Any("error", err))
		return err
	}
	span.SetAttributes(attribute.Int("settlement.events", len(committed)))
	for _, evt := range committed {
		observability.Events().RecordCommitted(module, events.Render(evt))
		m.emitter.Emit(evt)
	}
	m.logger.Debug("settlement operation committed",
		slog.String("module", module),
		slog.String("operation", op),
		slog.Int("events", len(committed)))
	return nil
}

// view runs a read under the module lock unless it is nested in a call.
func (m *Module) view(ctx context.Context, fn func() error) error {
	if ctx != nil && m.reentrant(ctx) {
		return fn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

func (m *Module) ledger(name string) (*earnings.Ledger, error) {
	switch name {
	case ModuleTips:
		return m.tips.Ledger(), nil
	case ModuleAccess:
		return m.access.Ledger(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLedger, name)
	}
}

// Deposit credits value entering the system to account.
func (m *Module) Deposit(ctx context.Context, account [20]byte, amount *big.Int) error {
	return m.execute(ctx, ModuleBank, "deposit", func(context.Context) error {
		return m.bank.Deposit(account, amount)
	})
}

// RegisterReceiver attaches code to an account so it runs whenever the
// account is paid. Vaults and conveyors cannot be overridden.
func (m *Module) RegisterReceiver(account [20]byte, r common.Receiver) error {
	if _, ok := m.reserved[account]; ok {
		return ErrReservedAccount
	}
	m.bank.RegisterReceiver(account, r)
	return nil
}

func (m *Module) Tip(ctx context.Context, caller [20]byte, assetID uint64, fingerprint [32]byte, value *big.Int) (pool *tips.Pool, err error) {
	err = m.execute(ctx, ModuleTips, "tip", func(ctx context.Context) error {
		if err := common.Guard(m.pauses, ModuleTips); err != nil {
			return err
		}
		pool, err = m.tips.Tip(ctx, caller, assetID, fingerprint, value)
		return err
	})
	return pool, err
}

func (m *Module) ClaimTips(ctx context.Context, caller [20]byte, assetID, seq uint64, minimumTotal *big.Int) (pool *tips.Pool, err error) {
	err = m.execute(ctx, ModuleTips, "claim", func(ctx context.Context) error {
		pool, err = m.tips.Claim(ctx, caller, assetID, seq, minimumTotal)
		return err
	})
	return pool, err
}

func (m *Module) WithdrawTip(ctx context.Context, caller [20]byte, assetID uint64, fingerprint [32]byte) (amount *big.Int, err error) {
	err = m.execute(ctx, ModuleTips, "withdraw_tip", func(ctx context.Context) error {
		amount, err = m.tips.WithdrawTip(ctx, caller, assetID, fingerprint)
		return err
	})
	return amount, err
}

func (m *Module) WithdrawTips(ctx context.Context, caller [20]byte, assetIDs []uint64, fingerprints [][32]byte) (amount *big.Int, err error) {
	err = m.execute(ctx, ModuleTips, "withdraw_tips", func(ctx context.Context) error {
		amount, err = m.tips.WithdrawTips(ctx, caller, assetIDs, fingerprints)
		return err
	})
	return amount, err
}

func (m *Module) SetMinimumTip(ctx context.Context, caller [20]byte, assetID uint64, amount *big.Int) error {
	return m.execute(ctx, ModuleTips, "set_minimum_tip", func(ctx context.Context) error {
		return m.tips.SetMinimumTip(ctx, caller, assetID, amount)
	})
}

func (m *Module) Purchase(ctx context.Context, caller [20]byte, assetID, seq uint64, value *big.Int) (record *access.Purchase, err error) {
	err = m.execute(ctx, ModuleAccess, "purchase", func(ctx context.Context) error {
		if err := common.Guard(m.pauses, ModuleAccess); err != nil {
			return err
		}
		record, err = m.access.Purchase(ctx, caller, assetID, seq, value)
		return err
	})
	return record, err
}

func (m *Module) SetPrice(ctx context.Context, caller [20]byte, assetID, seq uint64, price *big.Int) error {
	return m.execute(ctx, ModuleAccess, "set_price", func(ctx context.Context) error {
		return m.access.SetPrice(ctx, caller, assetID, seq, price)
	})
}

// WithdrawEarnings pays out the caller's balance in the named ledger.
func (m *Module) WithdrawEarnings(ctx context.Context, ledgerName string, caller [20]byte) (amount *big.Int, err error) {
	ledger, err := m.ledger(ledgerName)
	if err != nil {
		return nil, err
	}
	err = m.execute(ctx, ledgerName, "withdraw_earnings", func(ctx context.Context) error {
		amount, err = ledger.WithdrawAll(ctx, caller)
		return err
	})
	return amount, err
}

// WithdrawPlatformEarnings pays out the platform share of the named ledger.
func (m *Module) WithdrawPlatformEarnings(ctx context.Context, ledgerName string) (amount *big.Int, err error) {
	ledger, err := m.ledger(ledgerName)
	if err != nil {
		return nil, err
	}
	err = m.execute(ctx, ledgerName, "withdraw_platform_earnings", func(ctx context.Context) error {
		amount, err = ledger.WithdrawPlatform(ctx)
		return err
	})
	return amount, err
}
