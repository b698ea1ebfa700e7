package events

import (
	"math/big"

	"invokeledger/core/types"
)

const (
	TypeAccessPurchased    = "access.purchased"
	TypeAccessPriceUpdated = "access.price.updated"
)

// AccessPurchased is emitted when a buyer acquires access to an occurrence result.
type AccessPurchased struct {
	AssetID  uint64
	Sequence uint64
	Buyer    [20]byte
	Keeper   [20]byte
	Amount   *big.Int
}

func (AccessPurchased) EventType() string { return TypeAccessPurchased }

func (e AccessPurchased) Event() *types.Event {
	return &types.Event{
		Type: TypeAccessPurchased,
		Attributes: map[string]string{
			"assetId":  uintToString(e.AssetID),
			"sequence": uintToString(e.Sequence),
			"buyer":    formatAddress(e.Buyer),
			"keeper":   formatAddress(e.Keeper),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// AccessPriceUpdated is emitted when a controller changes an occurrence's price.
type AccessPriceUpdated struct {
	AssetID  uint64
	Sequence uint64
	Keeper   [20]byte
	Price    *big.Int
}

func (AccessPriceUpdated) EventType() string { return TypeAccessPriceUpdated }

func (e AccessPriceUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeAccessPriceUpdated,
		Attributes: map[string]string{
			"assetId":  uintToString(e.AssetID),
			"sequence": uintToString(e.Sequence),
			"keeper":   formatAddress(e.Keeper),
			"price":    formatAmount(e.Price),
		},
	}
}
