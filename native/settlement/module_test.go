package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"invokeledger/core/events"
	"invokeledger/native/access"
	"invokeledger/native/common"
	"invokeledger/native/earnings"
	"invokeledger/native/registry"
	"invokeledger/native/tips"
	"invokeledger/storage"
)

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

type receiverFunc func(ctx context.Context, from [20]byte, amount *big.Int) error

func (f receiverFunc) OnReceive(ctx context.Context, from [20]byte, amount *big.Int) error {
	return f(ctx, from, amount)
}

var (
	platform    = addr(0x50)
	tipsVault   = addr(0xe1)
	accessVault = addr(0xe2)
	keeper      = addr(0xaa)
	actor       = addr(0xac)
	alice       = addr(0x01)
	bob         = addr(0x02)
	fingerprint = tips.Fingerprint([]byte("summarise chapter two"))
)

type fixture struct {
	db       *storage.MemDB
	module   *Module
	registry *registry.Memory
	pauses   *common.PauseSet
	events   *events.Recorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	reg := registry.NewMemory()
	reg.SetController(1, keeper)
	pauses := common.NewPauseSet()
	rec := &events.Recorder{}
	if cfg.Platform == ([20]byte{}) {
		cfg.Platform = platform
	}
	cfg.TipsVault = tipsVault
	cfg.AccessVault = accessVault
	m, err := New(cfg, Deps{
		DB:       db,
		Oracle:   reg,
		Registry: reg,
		Solvency: reg,
		Pauses:   pauses,
		Emitter:  rec,
		Now:      func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)
	ctx := context.Background()
	for _, who := range [][20]byte{alice, bob} {
		require.NoError(t, m.Deposit(ctx, who, big.NewInt(1_000)))
	}
	rec.Reset()
	return &fixture{db: db, module: m, registry: reg, pauses: pauses, events: rec}
}

func (f *fixture) balance(t *testing.T, who [20]byte) int64 {
	t.Helper()
	bal, err := f.module.Balance(context.Background(), who)
	require.NoError(t, err)
	return bal.Int64()
}

func (f *fixture) earned(t *testing.T, ledger string, who [20]byte) int64 {
	t.Helper()
	bal, err := f.module.Earnings(context.Background(), ledger, who)
	require.NoError(t, err)
	return bal.Int64()
}

func TestTipClaimWithdrawFlow(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(100))
	require.NoError(t, err)
	_, err = f.module.Tip(ctx, bob, 1, fingerprint, big.NewInt(50))
	require.NoError(t, err)
	f.registry.RecordOccurrence(1, 3, common.Occurrence{Actor: actor, Fingerprint: fingerprint, Timestamp: 5})

	pool, err := f.module.ClaimTips(ctx, actor, 1, 3, big.NewInt(100))
	require.NoError(t, err)
	require.True(t, pool.Claimed())
	require.Equal(t, int64(143), f.earned(t, ModuleTips, actor))
	require.Equal(t, int64(7), f.earned(t, ModuleTips, platform))

	_, err = f.module.WithdrawTip(ctx, alice, 1, fingerprint)
	require.ErrorIs(t, err, tips.ErrInvocationAlreadyClaimed)
	_, err = f.module.WithdrawTips(ctx, bob, []uint64{1}, [][32]byte{fingerprint})
	require.ErrorIs(t, err, tips.ErrInvocationAlreadyClaimed)
	require.Equal(t, int64(950), f.balance(t, bob))

	paid, err := f.module.WithdrawEarnings(ctx, ModuleTips, actor)
	require.NoError(t, err)
	require.Equal(t, int64(143), paid.Int64())
	_, err = f.module.WithdrawPlatformEarnings(ctx, ModuleTips)
	require.NoError(t, err)
	require.Equal(t, int64(0), f.balance(t, tipsVault))
	require.Equal(t, int64(7), f.balance(t, platform))

	require.Equal(t, []string{
		events.TypeTipPlaced,
		events.TypeTipPlaced,
		events.TypeTipPoolClaimed,
		events.TypeEarningsWithdrawn,
		events.TypeEarningsWithdrawn,
	}, f.events.Types())
}

func TestPurchaseFlowKeepsOverpayment(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.registry.RecordResult(1, 2, common.Result{Fingerprint: fingerprint, Timestamp: 9})

	require.NoError(t, f.module.SetPrice(ctx, keeper, 1, 2, big.NewInt(10)))
	record, err := f.module.Purchase(ctx, alice, 1, 2, big.NewInt(15))
	require.NoError(t, err)
	require.Equal(t, int64(15), record.Amount.Int64())
	require.Equal(t, int64(15), f.earned(t, ModuleAccess, keeper))
	require.Equal(t, int64(0), f.earned(t, ModuleAccess, platform))

	_, err = f.module.Purchase(ctx, alice, 1, 2, big.NewInt(15))
	require.ErrorIs(t, err, access.ErrAlreadyPurchased)

	ok, err := f.module.HasAccess(ctx, 1, 2, alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(985), f.balance(t, alice))
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	before := f.db.Len()

	_, err := f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(5_000))
	require.Error(t, err)
	_, err = f.module.WithdrawTips(ctx, alice, []uint64{1}, nil)
	require.ErrorIs(t, err, tips.ErrUnevenLengths)
	_, err = f.module.WithdrawEarnings(ctx, ModuleTips, alice)
	require.ErrorIs(t, err, earnings.ErrNoFundsAvailable)
	_, err = f.module.WithdrawEarnings(ctx, "loans", alice)
	require.ErrorIs(t, err, ErrUnknownLedger)

	require.Equal(t, before, f.db.Len())
	require.Empty(t, f.events.Events())
	require.Equal(t, int64(1_000), f.balance(t, alice))
}

func TestReceiverFailureRevertsWithdrawal(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(40))
	require.NoError(t, err)
	f.events.Reset()

	boom := errors.New("receiver refused")
	require.NoError(t, f.module.RegisterReceiver(alice, receiverFunc(func(context.Context, [20]byte, *big.Int) error {
		return boom
	})))
	_, err = f.module.WithdrawTip(ctx, alice, 1, fingerprint)
	require.ErrorIs(t, err, boom)

	pledge, err := f.module.Pledge(ctx, 1, fingerprint, alice)
	require.NoError(t, err)
	require.Equal(t, int64(40), pledge.Int64())
	require.Equal(t, int64(40), f.balance(t, tipsVault))
	require.Empty(t, f.events.Events())
}

func TestHostileReceiverCannotDoubleWithdraw(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	mallory := addr(0x66)
	require.NoError(t, f.module.Deposit(ctx, mallory, big.NewInt(200)))
	_, err := f.module.Tip(ctx, mallory, 1, fingerprint, big.NewInt(100))
	require.NoError(t, err)
	_, err = f.module.Tip(ctx, bob, 1, fingerprint, big.NewInt(100))
	require.NoError(t, err)
	f.registry.RecordOccurrence(1, 1, common.Occurrence{Actor: mallory, Fingerprint: tips.Fingerprint([]byte("other"))})
	_, err = f.module.Tip(ctx, alice, 1, tips.Fingerprint([]byte("other")), big.NewInt(100))
	require.NoError(t, err)
	_, err = f.module.ClaimTips(ctx, bob, 1, 1, nil)
	require.NoError(t, err)

	var nested []error
	require.NoError(t, f.module.RegisterReceiver(mallory, receiverFunc(func(ctx context.Context, _ [20]byte, _ *big.Int) error {
		if len(nested) > 0 {
			return nil
		}
		_, err := f.module.WithdrawEarnings(ctx, ModuleTips, mallory)
		nested = append(nested, err)
		_, err = f.module.WithdrawTip(ctx, mallory, 1, fingerprint)
		nested = append(nested, err)
		_, err = f.module.ClaimTips(ctx, mallory, 1, 1, nil)
		nested = append(nested, err)
		return nil
	})))

	_, err = f.module.WithdrawEarnings(ctx, ModuleTips, mallory)
	require.NoError(t, err)
	require.Len(t, nested, 3)
	require.ErrorIs(t, nested[0], earnings.ErrNoFundsAvailable)
	require.NoError(t, nested[1])
	require.ErrorIs(t, nested[2], tips.ErrInvocationAlreadyClaimed)

	// 95 earned from the claim plus the 100 pledge reclaimed by the nested call.
	require.Equal(t, int64(100+95+100), f.balance(t, mallory))

	_, err = f.module.WithdrawTip(ctx, mallory, 1, fingerprint)
	require.ErrorIs(t, err, tips.ErrTipNotFound)

	// tips vault backs remaining balances plus open pledges
	bobPledge, err := f.module.Pledge(ctx, 1, fingerprint, bob)
	require.NoError(t, err)
	want := bobPledge.Int64() + f.earned(t, ModuleTips, platform) + f.earned(t, ModuleTips, mallory)
	require.Equal(t, want, f.balance(t, tipsVault))
}

func TestContextKeptByReceiverRunsAsTopLevelCall(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(100))
	require.NoError(t, err)
	f.registry.RecordOccurrence(1, 1, common.Occurrence{Actor: actor, Fingerprint: fingerprint})
	_, err = f.module.ClaimTips(ctx, actor, 1, 1, nil)
	require.NoError(t, err)

	var kept context.Context
	require.NoError(t, f.module.RegisterReceiver(actor, receiverFunc(func(ctx context.Context, _ [20]byte, _ *big.Int) error {
		kept = ctx
		return nil
	})))
	_, err = f.module.WithdrawEarnings(ctx, ModuleTips, actor)
	require.NoError(t, err)
	require.NotNil(t, kept)
	f.events.Reset()

	other := tips.Fingerprint([]byte("later occurrence"))
	before := f.db.Len()
	_, err = f.module.Tip(kept, bob, 1, other, big.NewInt(10))
	require.NoError(t, err)
	require.False(t, f.module.state.Dirty())
	require.Greater(t, f.db.Len(), before)
	require.Equal(t, []string{events.TypeTipPlaced}, f.events.Types())

	pledge, err := f.module.Pledge(ctx, 1, other, bob)
	require.NoError(t, err)
	require.Equal(t, int64(10), pledge.Int64())
	require.Equal(t, int64(990), f.balance(t, bob))
}

func TestPausedModulesRejectValueButAllowWithdrawals(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(10))
	require.NoError(t, err)

	f.pauses.Set(ModuleTips, true)
	f.pauses.Set(ModuleAccess, true)
	_, err = f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(10))
	require.ErrorIs(t, err, common.ErrModulePaused)
	_, err = f.module.Purchase(ctx, alice, 1, 2, big.NewInt(10))
	require.ErrorIs(t, err, common.ErrModulePaused)

	paid, err := f.module.WithdrawTip(ctx, alice, 1, fingerprint)
	require.NoError(t, err)
	require.Equal(t, int64(10), paid.Int64())
}

func TestAccountsListsConveyorsByAddress(t *testing.T) {
	f := newFixture(t, Config{
		Conveyors: []ConveyorConfig{
			{Address: addr(0xc3), Destination: addr(0xd3)},
			{Address: addr(0xc1), Destination: addr(0xd1)},
			{Address: addr(0xc2), Destination: addr(0xd2)},
		},
	})
	for i := 0; i < 5; i++ {
		accounts := f.module.Accounts()
		require.Equal(t, []ConveyorConfig{
			{Address: addr(0xc1), Destination: addr(0xd1)},
			{Address: addr(0xc2), Destination: addr(0xd2)},
			{Address: addr(0xc3), Destination: addr(0xd3)},
		}, accounts.Conveyors)
		require.Equal(t, tipsVault, accounts.TipsVault)
	}
}

func TestConveyorAndTreasuryRouting(t *testing.T) {
	conv := addr(0xc0)
	dest := addr(0xd0)
	treasury := addr(0x7e)
	f := newFixture(t, Config{
		TipsTreasury: treasury,
		Conveyors:    []ConveyorConfig{{Address: conv, Destination: dest}},
		Redirects:    map[[20]byte][20]byte{actor: conv},
	})
	ctx := context.Background()
	_, err := f.module.Tip(ctx, alice, 1, fingerprint, big.NewInt(100))
	require.NoError(t, err)
	f.registry.RecordOccurrence(1, 1, common.Occurrence{Actor: actor, Fingerprint: fingerprint})
	_, err = f.module.ClaimTips(ctx, actor, 1, 1, big.NewInt(0))
	require.NoError(t, err)

	_, err = f.module.WithdrawEarnings(ctx, ModuleTips, actor)
	require.NoError(t, err)
	_, err = f.module.WithdrawPlatformEarnings(ctx, ModuleTips)
	require.NoError(t, err)

	require.Equal(t, int64(95), f.balance(t, dest))
	require.Equal(t, int64(0), f.balance(t, conv))
	require.Equal(t, int64(5), f.balance(t, treasury))
	require.Contains(t, f.events.Types(), events.TypePaymentForwarded)

	require.ErrorIs(t, f.module.RegisterReceiver(conv, receiverFunc(nil)), ErrReservedAccount)
	require.ErrorIs(t, f.module.RegisterReceiver(tipsVault, receiverFunc(nil)), ErrReservedAccount)
}

func TestStatePersistsAcrossModules(t *testing.T) {
	db, err := storage.NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	reg := registry.NewMemory()
	cfg := Config{Platform: platform, TipsVault: tipsVault, AccessVault: accessVault}
	deps := Deps{DB: db, Oracle: reg, Registry: reg, Solvency: reg}

	first, err := New(cfg, deps)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, first.Deposit(ctx, alice, big.NewInt(30)))
	_, err = first.Tip(ctx, alice, 4, fingerprint, big.NewInt(30))
	require.NoError(t, err)

	second, err := New(cfg, deps)
	require.NoError(t, err)
	pool, ok, err := second.Pool(ctx, 4, fingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(30), pool.Total.Int64())
	require.Equal(t, []([20]byte){alice}, pool.Contributors)
}

func TestNewValidatesDependencies(t *testing.T) {
	reg := registry.NewMemory()
	_, err := New(Config{}, Deps{Oracle: reg, Registry: reg, Solvency: reg})
	require.Error(t, err)
	_, err = New(Config{TipsVault: tipsVault, Conveyors: []ConveyorConfig{{Address: tipsVault}}},
		Deps{DB: storage.NewMemDB(), Oracle: reg, Registry: reg, Solvency: reg})
	require.ErrorIs(t, err, ErrReservedAccount)
}
