package events

import (
	"math/big"

	"invokeledger/core/types"
)

const (
	TypeTipPlaced         = "tips.tip.placed"
	TypeTipWithdrawn      = "tips.tip.withdrawn"
	TypeTipPoolClaimed    = "tips.pool.claimed"
	TypeMinimumTipUpdated = "tips.minimum.updated"
)

// TipPlaced is emitted when a contributor pledges value toward a pool.
type TipPlaced struct {
	AssetID     uint64
	Fingerprint [32]byte
	Contributor [20]byte
	Amount      *big.Int
	PoolTotal   *big.Int
}

func (TipPlaced) EventType() string { return TypeTipPlaced }

func (e TipPlaced) Event() *types.Event {
	return &types.Event{
		Type: TypeTipPlaced,
		Attributes: map[string]string{
			"assetId":     uintToString(e.AssetID),
			"fingerprint": formatHash(e.Fingerprint),
			"contributor": formatAddress(e.Contributor),
			"amount":      formatAmount(e.Amount),
			"poolTotal":   formatAmount(e.PoolTotal),
		},
	}
}

// TipWithdrawn is emitted when a contributor reclaims a pledge from an open pool.
type TipWithdrawn struct {
	AssetID     uint64
	Fingerprint [32]byte
	Contributor [20]byte
	Amount      *big.Int
}

func (TipWithdrawn) EventType() string { return TypeTipWithdrawn }

func (e TipWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeTipWithdrawn,
		Attributes: map[string]string{
			"assetId":     uintToString(e.AssetID),
			"fingerprint": formatHash(e.Fingerprint),
			"contributor": formatAddress(e.Contributor),
			"amount":      formatAmount(e.Amount),
		},
	}
}

// TipPoolClaimed is emitted once per pool when the performing actor claims it.
type TipPoolClaimed struct {
	AssetID     uint64
	Fingerprint [32]byte
	Sequence    uint64
	Actor       [20]byte
	Caller      [20]byte
	Amount      *big.Int
}

func (TipPoolClaimed) EventType() string { return TypeTipPoolClaimed }

func (e TipPoolClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeTipPoolClaimed,
		Attributes: map[string]string{
			"assetId":     uintToString(e.AssetID),
			"fingerprint": formatHash(e.Fingerprint),
			"sequence":    uintToString(e.Sequence),
			"actor":       formatAddress(e.Actor),
			"caller":      formatAddress(e.Caller),
			"amount":      formatAmount(e.Amount),
		},
	}
}

// MinimumTipUpdated is emitted when a controller changes an asset's tip floor.
type MinimumTipUpdated struct {
	AssetID uint64
	Keeper  [20]byte
	Amount  *big.Int
}

func (MinimumTipUpdated) EventType() string { return TypeMinimumTipUpdated }

func (e MinimumTipUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeMinimumTipUpdated,
		Attributes: map[string]string{
			"assetId": uintToString(e.AssetID),
			"keeper":  formatAddress(e.Keeper),
			"amount":  formatAmount(e.Amount),
		},
	}
}
