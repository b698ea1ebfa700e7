package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"invokeledger/native/tips"
)

func u64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func tipPoolKey(assetID uint64, fingerprint [32]byte) []byte {
	return kvKey(tipPoolPrefix, u64Bytes(assetID), fingerprint[:])
}

func tipPledgeKey(assetID uint64, fingerprint [32]byte, contributor [20]byte) []byte {
	return kvKey(tipPledgePrefix, u64Bytes(assetID), fingerprint[:], contributor[:])
}

func tipMinimumKey(assetID uint64) []byte {
	return kvKey(tipMinimumPrefix, u64Bytes(assetID))
}

type storedTipPool struct {
	AssetID      uint64
	Fingerprint  [32]byte
	Total        *big.Int
	ClaimedSeq   uint64
	ClaimedBy    [20]byte
	ClaimedAt    uint64
	CreatedAt    uint64
	Contributors [][20]byte
}

func newStoredTipPool(p *tips.Pool) *storedTipPool {
	total := big.NewInt(0)
	if p.Total != nil {
		total = new(big.Int).Set(p.Total)
	}
	return &storedTipPool{
		AssetID:      p.AssetID,
		Fingerprint:  p.Fingerprint,
		Total:        total,
		ClaimedSeq:   p.ClaimedSeq,
		ClaimedBy:    p.ClaimedBy,
		ClaimedAt:    uint64(p.ClaimedAt),
		CreatedAt:    uint64(p.CreatedAt),
		Contributors: append([][20]byte(nil), p.Contributors...),
	}
}

func (s *storedTipPool) toPool() *tips.Pool {
	out := &tips.Pool{
		AssetID:      s.AssetID,
		Fingerprint:  s.Fingerprint,
		Total:        big.NewInt(0),
		ClaimedSeq:   s.ClaimedSeq,
		ClaimedBy:    s.ClaimedBy,
		ClaimedAt:    int64(s.ClaimedAt),
		CreatedAt:    int64(s.CreatedAt),
		Contributors: append([][20]byte(nil), s.Contributors...),
	}
	if s.Total != nil {
		out.Total = new(big.Int).Set(s.Total)
	}
	return out
}

// TipPoolGet loads the pool for (assetID, fingerprint).
func (m *Manager) TipPoolGet(assetID uint64, fingerprint [32]byte) (*tips.Pool, bool, error) {
	stored := new(storedTipPool)
	ok, err := m.loadRecord(tipPoolKey(assetID, fingerprint), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toPool(), true, nil
}

// TipPoolPut persists the pool.
func (m *Manager) TipPoolPut(pool *tips.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil tip pool")
	}
	if err := CheckAmount(pool.Total); err != nil {
		return err
	}
	return m.writeRecord(tipPoolKey(pool.AssetID, pool.Fingerprint), newStoredTipPool(pool))
}

// TipPledgeGet returns the contributor's withdrawable pledge in the pool.
func (m *Manager) TipPledgeGet(assetID uint64, fingerprint [32]byte, contributor [20]byte) (*big.Int, error) {
	return m.loadAmount(tipPledgeKey(assetID, fingerprint, contributor))
}

// TipPledgePut overwrites the contributor's pledge in the pool.
func (m *Manager) TipPledgePut(assetID uint64, fingerprint [32]byte, contributor [20]byte, amount *big.Int) error {
	return m.writeAmount(tipPledgeKey(assetID, fingerprint, contributor), amount)
}

// TipMinimumGet returns the minimum accepted tip for the asset.
func (m *Manager) TipMinimumGet(assetID uint64) (*big.Int, error) {
	return m.loadAmount(tipMinimumKey(assetID))
}

// TipMinimumPut sets the minimum accepted tip for the asset.
func (m *Manager) TipMinimumPut(assetID uint64, amount *big.Int) error {
	return m.writeAmount(tipMinimumKey(assetID), amount)
}
