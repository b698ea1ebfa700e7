package settlement

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"invokeledger/native/access"
	"invokeledger/native/tips"
)

// Accounts describes the static account layout.
type Accounts struct {
	Platform       [20]byte
	TipsVault      [20]byte
	AccessVault    [20]byte
	TipsTreasury   [20]byte
	AccessTreasury [20]byte
	Conveyors      []ConveyorConfig
}

// Accounts returns the configured accounts with conveyors ordered by address.
func (m *Module) Accounts() Accounts {
	out := Accounts{
		Platform:       m.tips.Ledger().Platform(),
		TipsVault:      m.tips.Vault(),
		AccessVault:    m.access.Vault(),
		TipsTreasury:   m.tips.Treasury(),
		AccessTreasury: m.access.Treasury(),
	}
	for addr, conv := range m.conveyors {
		out.Conveyors = append(out.Conveyors, ConveyorConfig{Address: addr, Destination: conv.Destination()})
	}
	sort.Slice(out.Conveyors, func(i, j int) bool {
		return bytes.Compare(out.Conveyors[i].Address[:], out.Conveyors[j].Address[:]) < 0
	})
	return out
}

func (m *Module) Pool(ctx context.Context, assetID uint64, fingerprint [32]byte) (pool *tips.Pool, ok bool, err error) {
	err = m.view(ctx, func() error {
		pool, ok, err = m.tips.Pool(assetID, fingerprint)
		return err
	})
	return pool, ok, err
}

func (m *Module) Pledge(ctx context.Context, assetID uint64, fingerprint [32]byte, contributor [20]byte) (amount *big.Int, err error) {
	err = m.view(ctx, func() error {
		amount, err = m.tips.Pledge(assetID, fingerprint, contributor)
		return err
	})
	return amount, err
}

func (m *Module) MinimumTip(ctx context.Context, assetID uint64) (amount *big.Int, err error) {
	err = m.view(ctx, func() error {
		amount, err = m.tips.MinimumTip(assetID)
		return err
	})
	return amount, err
}

func (m *Module) Price(ctx context.Context, assetID, seq uint64) (price *big.Int, err error) {
	err = m.view(ctx, func() error {
		price, err = m.access.Price(assetID, seq)
		return err
	})
	return price, err
}

func (m *Module) PurchaseRecord(ctx context.Context, assetID, seq uint64, buyer [20]byte) (record *access.Purchase, ok bool, err error) {
	err = m.view(ctx, func() error {
		record, ok, err = m.access.PurchaseRecord(assetID, seq, buyer)
		return err
	})
	return record, ok, err
}

func (m *Module) HasAccess(ctx context.Context, assetID, seq uint64, buyer [20]byte) (bool, error) {
	_, ok, err := m.PurchaseRecord(ctx, assetID, seq, buyer)
	return ok, err
}

// Earnings returns the beneficiary's balance in the named ledger.
func (m *Module) Earnings(ctx context.Context, ledgerName string, beneficiary [20]byte) (amount *big.Int, err error) {
	ledger, err := m.ledger(ledgerName)
	if err != nil {
		return nil, err
	}
	err = m.view(ctx, func() error {
		amount, err = ledger.Balance(beneficiary)
		return err
	})
	return amount, err
}

// Balance returns the spendable bank balance of account.
func (m *Module) Balance(ctx context.Context, account [20]byte) (amount *big.Int, err error) {
	err = m.view(ctx, func() error {
		amount, err = m.bank.Balance(account)
		return err
	})
	return amount, err
}
