package access_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"invokeledger/core/events"
	"invokeledger/core/state"
	"invokeledger/native/access"
	"invokeledger/native/bank"
	"invokeledger/native/common"
	"invokeledger/native/earnings"
	"invokeledger/native/registry"
	"invokeledger/storage"
)

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

var (
	vault  = addr(0xef)
	keeper = addr(0xaa)
	buyer  = addr(0x01)
)

type testEnv struct {
	bank     *bank.Bank
	registry *registry.Memory
	engine   *access.Engine
	events   *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	b := bank.New(st)
	reg := registry.NewMemory()
	reg.SetController(1, keeper)
	reg.RecordResult(1, 2, common.Result{Fingerprint: [32]byte{1}, Timestamp: 50})
	rec := &events.Recorder{}

	engine := access.NewEngine()
	engine.SetState(st)
	engine.SetBank(b)
	engine.SetOracle(reg)
	engine.SetKeeperGate(common.KeeperGate{Registry: reg, Solvency: reg})
	engine.SetVault(vault)
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() int64 { return 1_700_000_100 })

	if err := b.Deposit(buyer, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return &testEnv{bank: b, registry: reg, engine: engine, events: rec}
}

func (env *testEnv) setPrice(t *testing.T, seq uint64, price int64) {
	t.Helper()
	if err := env.engine.SetPrice(context.Background(), keeper, 1, seq, big.NewInt(price)); err != nil {
		t.Fatalf("set price: %v", err)
	}
}

func TestPurchaseCreditsEntireValue(t *testing.T) {
	env := newTestEnv(t)
	env.setPrice(t, 2, 10)

	record, err := env.engine.Purchase(context.Background(), buyer, 1, 2, big.NewInt(15))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if record.Amount.Int64() != 15 || record.PurchasedAt != 1_700_000_100 {
		t.Fatalf("unexpected record %+v", record)
	}
	earned, _ := env.engine.Earnings(keeper)
	platform, _ := env.engine.Earnings(earnings.DefaultPlatformAccount)
	if earned.Int64() != 15 || platform.Int64() != 0 {
		t.Fatalf("split mismatch: keeper=%s platform=%s", earned, platform)
	}
	ok, err := env.engine.HasAccess(1, 2, buyer)
	if err != nil || !ok {
		t.Fatalf("has access: %v %v", ok, err)
	}
	if _, err := env.engine.Purchase(context.Background(), buyer, 1, 2, big.NewInt(15)); !errors.Is(err, access.ErrAlreadyPurchased) {
		t.Fatalf("expected already purchased, got %v", err)
	}
	vaultBal, _ := env.bank.Balance(vault)
	if vaultBal.Int64() != 15 {
		t.Fatalf("vault holds %s", vaultBal)
	}
	if got := env.events.Types(); len(got) != 2 || got[1] != events.TypeAccessPurchased {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestPurchaseCheckOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Purchase(ctx, buyer, 1, 2, big.NewInt(5)); !errors.Is(err, access.ErrPriceNotSet) {
		t.Fatalf("expected price not set, got %v", err)
	}
	env.setPrice(t, 2, 10)
	if _, err := env.engine.Purchase(ctx, buyer, 1, 2, big.NewInt(9)); !errors.Is(err, access.ErrInsufficientAmount) {
		t.Fatalf("expected insufficient amount, got %v", err)
	}

	env.setPrice(t, 7, 10)
	if _, err := env.engine.Purchase(ctx, buyer, 1, 7, big.NewInt(10)); !errors.Is(err, access.ErrResponseDoesNotExist) {
		t.Fatalf("expected missing response, got %v", err)
	}

	env.registry.SetSolvent(1, false)
	if _, err := env.engine.Purchase(ctx, buyer, 1, 2, big.NewInt(10)); !errors.Is(err, common.ErrNotOwnedBySolventKeeper) {
		t.Fatalf("expected insolvent keeper, got %v", err)
	}
	env.registry.SetSolvent(1, true)
	env.registry.SetController(1, env.registry.RegistryAddress())
	if _, err := env.engine.Purchase(ctx, buyer, 1, 2, big.NewInt(10)); !errors.Is(err, common.ErrNotOwnedBySolventKeeper) {
		t.Fatalf("expected unclaimed asset, got %v", err)
	}
	bal, _ := env.bank.Balance(buyer)
	if bal.Int64() != 100 {
		t.Fatalf("failed purchases moved value: %s", bal)
	}
}

func TestPurchaseRequiresFunds(t *testing.T) {
	env := newTestEnv(t)
	env.setPrice(t, 2, 10)
	if _, err := env.engine.Purchase(context.Background(), buyer, 1, 2, big.NewInt(101)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestSetPriceRequiresSolventKeeper(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetPrice(context.Background(), buyer, 1, 2, big.NewInt(1)); !errors.Is(err, common.ErrNotKeeper) {
		t.Fatalf("expected not keeper, got %v", err)
	}
	env.registry.SetSolvent(1, false)
	if err := env.engine.SetPrice(context.Background(), keeper, 1, 2, big.NewInt(1)); !errors.Is(err, common.ErrNotKeeper) {
		t.Fatalf("expected not keeper for insolvent controller, got %v", err)
	}
	env.registry.SetSolvent(1, true)
	env.setPrice(t, 2, 10)
	env.setPrice(t, 2, 0)
	price, err := env.engine.Price(1, 2)
	if err != nil || price.Sign() != 0 {
		t.Fatalf("price withdrawn from sale: %v %v", price, err)
	}
}

func TestKeeperWithdrawsEarnings(t *testing.T) {
	env := newTestEnv(t)
	env.setPrice(t, 2, 40)
	if _, err := env.engine.Purchase(context.Background(), buyer, 1, 2, big.NewInt(40)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	paid, err := env.engine.WithdrawEarnings(context.Background(), keeper)
	if err != nil || paid.Int64() != 38 {
		t.Fatalf("withdraw: %v %v", paid, err)
	}
	if _, err := env.engine.WithdrawEarnings(context.Background(), keeper); !errors.Is(err, earnings.ErrNoFundsAvailable) {
		t.Fatalf("expected no funds, got %v", err)
	}
	if _, err := env.engine.WithdrawPlatformEarnings(context.Background()); err != nil {
		t.Fatalf("platform withdraw: %v", err)
	}
	vaultBal, _ := env.bank.Balance(vault)
	if vaultBal.Sign() != 0 {
		t.Fatalf("vault should be drained, holds %s", vaultBal)
	}
}
