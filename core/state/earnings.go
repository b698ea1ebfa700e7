package state

import "math/big"

func earningsKey(namespace string, beneficiary [20]byte) []byte {
	return kvKey(earningsPrefix, []byte(namespace), []byte{':'}, beneficiary[:])
}

// EarningsBalance returns the accrued balance of beneficiary in the named
// earnings ledger. Accounts that were never credited report zero.
func (m *Manager) EarningsBalance(namespace string, beneficiary [20]byte) (*big.Int, error) {
	return m.loadAmount(earningsKey(namespace, beneficiary))
}

// SetEarningsBalance overwrites the accrued balance of beneficiary.
func (m *Manager) SetEarningsBalance(namespace string, beneficiary [20]byte, amount *big.Int) error {
	return m.writeAmount(earningsKey(namespace, beneficiary), amount)
}
