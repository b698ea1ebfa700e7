package state

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrAmountOverflow is returned when an amount does not fit in 256 bits.
	ErrAmountOverflow = errors.New("state: amount overflows 256 bits")
	// ErrNegativeAmount is returned when a negative amount is written.
	ErrNegativeAmount = errors.New("state: amount must not be negative")
)

func encodeAmount(v *big.Int) ([]byte, error) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAmountOverflow
	}
	if u.IsZero() {
		return []byte{}, nil
	}
	return u.Bytes(), nil
}

func decodeAmount(data []byte) *big.Int {
	if len(data) == 0 {
		return big.NewInt(0)
	}
	return new(uint256.Int).SetBytes(data).ToBig()
}

// CheckAmount validates that v is a representable unsigned amount.
func CheckAmount(v *big.Int) error {
	_, err := encodeAmount(v)
	return err
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	data, err := m.get(key)
	if err != nil {
		return nil, err
	}
	return decodeAmount(data), nil
}

func (m *Manager) writeAmount(key []byte, v *big.Int) error {
	encoded, err := encodeAmount(v)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}
