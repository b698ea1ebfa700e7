package events

import (
	"math/big"

	"invokeledger/core/types"
)

const (
	TypeEarningsWithdrawn = "earnings.withdrawn"
	TypeBankDeposited     = "bank.deposited"
	TypePaymentForwarded  = "conveyor.forwarded"
)

// EarningsWithdrawn records a pull withdrawal from an earnings ledger. The
// beneficiary is always the account whose balance was paid, even when the
// funds were redirected elsewhere.
type EarningsWithdrawn struct {
	Ledger      string
	Beneficiary [20]byte
	Amount      *big.Int
}

func (EarningsWithdrawn) EventType() string { return TypeEarningsWithdrawn }

func (e EarningsWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeEarningsWithdrawn,
		Attributes: map[string]string{
			"ledger":      e.Ledger,
			"beneficiary": formatAddress(e.Beneficiary),
			"amount":      formatAmount(e.Amount),
		},
	}
}

// BankDeposited records value entering the system through the on-ramp.
type BankDeposited struct {
	Account [20]byte
	Amount  *big.Int
}

func (BankDeposited) EventType() string { return TypeBankDeposited }

func (e BankDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeBankDeposited,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// PaymentForwarded records a conveyor relaying received value.
type PaymentForwarded struct {
	Conveyor    [20]byte
	From        [20]byte
	Destination [20]byte
	Amount      *big.Int
}

func (PaymentForwarded) EventType() string { return TypePaymentForwarded }

func (e PaymentForwarded) Event() *types.Event {
	return &types.Event{
		Type: TypePaymentForwarded,
		Attributes: map[string]string{
			"conveyor":    formatAddress(e.Conveyor),
			"from":        formatAddress(e.From),
			"destination": formatAddress(e.Destination),
			"amount":      formatAmount(e.Amount),
		},
	}
}
