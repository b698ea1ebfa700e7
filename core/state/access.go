package state

import (
	"fmt"
	"math/big"

	"invokeledger/native/access"
)

func accessPriceKey(assetID, seq uint64) []byte {
	return kvKey(accessPricePrefix, u64Bytes(assetID), u64Bytes(seq))
}

func accessPurchaseKey(assetID, seq uint64, buyer [20]byte) []byte {
	return kvKey(accessPurchasePrefix, u64Bytes(assetID), u64Bytes(seq), buyer[:])
}

type storedPurchase struct {
	AssetID     uint64
	Sequence    uint64
	Buyer       [20]byte
	Amount      *big.Int
	PurchasedAt uint64
}

// AccessPriceGet returns the access price of an occurrence. Zero means not for sale.
func (m *Manager) AccessPriceGet(assetID, seq uint64) (*big.Int, error) {
	return m.loadAmount(accessPriceKey(assetID, seq))
}

// AccessPricePut sets the access price of an occurrence.
func (m *Manager) AccessPricePut(assetID, seq uint64, price *big.Int) error {
	return m.writeAmount(accessPriceKey(assetID, seq), price)
}

// AccessPurchaseGet loads the purchase record of buyer for the occurrence.
func (m *Manager) AccessPurchaseGet(assetID, seq uint64, buyer [20]byte) (*access.Purchase, bool, error) {
	stored := new(storedPurchase)
	ok, err := m.loadRecord(accessPurchaseKey(assetID, seq, buyer), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	out := &access.Purchase{
		AssetID:     stored.AssetID,
		Sequence:    stored.Sequence,
		Buyer:       stored.Buyer,
		Amount:      big.NewInt(0),
		PurchasedAt: int64(stored.PurchasedAt),
	}
	if stored.Amount != nil {
		out.Amount = new(big.Int).Set(stored.Amount)
	}
	return out, true, nil
}

// AccessPurchasePut persists a purchase record.
func (m *Manager) AccessPurchasePut(p *access.Purchase) error {
	if p == nil {
		return fmt.Errorf("state: nil purchase")
	}
	if err := CheckAmount(p.Amount); err != nil {
		return err
	}
	amount := big.NewInt(0)
	if p.Amount != nil {
		amount = new(big.Int).Set(p.Amount)
	}
	return m.writeRecord(accessPurchaseKey(p.AssetID, p.Sequence, p.Buyer), &storedPurchase{
		AssetID:     p.AssetID,
		Sequence:    p.Sequence,
		Buyer:       p.Buyer,
		Amount:      amount,
		PurchasedAt: uint64(p.PurchasedAt),
	})
}
