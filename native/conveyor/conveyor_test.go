package conveyor

import (
	"context"
	"math/big"
	"testing"

	"invokeledger/core/events"
	"invokeledger/core/state"
	"invokeledger/native/bank"
	"invokeledger/native/earnings"
	"invokeledger/storage"
)

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func TestConveyorForwardsWithdrawals(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	b := bank.New(st)
	rec := &events.Recorder{}
	conv := New(addr(0xc0), addr(0xd0), b)
	conv.SetEmitter(rec)
	b.RegisterReceiver(conv.Address(), conv)

	ledger := earnings.NewLedger("tips")
	ledger.SetState(st)
	ledger.SetBank(b)
	ledger.SetVault(addr(0xee))
	ledger.SetEmitter(rec)
	ledger.SetRedirect(earnings.StaticRedirect{addr(1): conv.Address()})

	if err := b.Deposit(addr(0xee), big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Credit(addr(1), big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := ledger.WithdrawAll(context.Background(), addr(1)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	dest, _ := b.Balance(addr(0xd0))
	held, _ := b.Balance(conv.Address())
	if dest.Int64() != 95 || held.Sign() != 0 {
		t.Fatalf("conveyor did not forward: dest=%s held=%s", dest, held)
	}
	types := rec.Types()
	if len(types) != 2 || types[0] != events.TypeEarningsWithdrawn || types[1] != events.TypePaymentForwarded {
		t.Fatalf("unexpected events %v", types)
	}
}
