package state

import "math/big"

func bankAccountKey(addr [20]byte) []byte {
	return kvKey(bankAccountPrefix, addr[:])
}

// BankBalance returns the spendable balance held by addr.
func (m *Manager) BankBalance(addr [20]byte) (*big.Int, error) {
	return m.loadAmount(bankAccountKey(addr))
}

// SetBankBalance overwrites the spendable balance held by addr.
func (m *Manager) SetBankBalance(addr [20]byte, amount *big.Int) error {
	return m.writeAmount(bankAccountKey(addr), amount)
}
