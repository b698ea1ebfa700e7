package access

import "math/big"

// Purchase records that a buyer acquired access to an occurrence's result.
type Purchase struct {
	AssetID     uint64
	Sequence    uint64
	Buyer       [20]byte
	Amount      *big.Int
	PurchasedAt int64
}

// Clone returns a deep copy of the purchase record.
func (p *Purchase) Clone() *Purchase {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
