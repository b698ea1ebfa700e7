package tips

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pool aggregates the pledges made toward one not-yet-performed action on an
// asset, identified by the fingerprint of its intended content.
type Pool struct {
	AssetID     uint64
	Fingerprint [32]byte
	Total       *big.Int
	// ClaimedSeq is the occurrence sequence that claimed the pool. Zero means
	// the pool is still open; zero is never a valid occurrence sequence.
	ClaimedSeq   uint64
	ClaimedBy    [20]byte
	ClaimedAt    int64
	CreatedAt    int64
	Contributors [][20]byte
}

// Claimed reports whether the pool has been paid out.
func (p *Pool) Claimed() bool {
	return p != nil && p.ClaimedSeq != 0
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Total != nil {
		clone.Total = new(big.Int).Set(p.Total)
	} else {
		clone.Total = big.NewInt(0)
	}
	clone.Contributors = append([][20]byte(nil), p.Contributors...)
	return &clone
}

func (p *Pool) hasContributor(addr [20]byte) bool {
	for _, c := range p.Contributors {
		if c == addr {
			return true
		}
	}
	return false
}

func newPool(assetID uint64, fingerprint [32]byte, now int64) *Pool {
	return &Pool{
		AssetID:     assetID,
		Fingerprint: fingerprint,
		Total:       big.NewInt(0),
		CreatedAt:   now,
	}
}

// Fingerprint returns the content fingerprint used to key tip pools.
func Fingerprint(content []byte) [32]byte {
	return ethcrypto.Keccak256Hash(content)
}
