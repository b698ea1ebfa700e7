package config

// LedgerAccounts names the bank accounts backing one earnings ledger.
type LedgerAccounts struct {
	// Vault holds escrowed value and unpaid earnings.
	Vault string `toml:"Vault"`
	// Treasury receives platform withdrawals. Empty pays the platform account.
	Treasury string `toml:"Treasury,omitempty"`
}

// ConveyorConfig installs a payment conveyor.
type ConveyorConfig struct {
	Address     string `toml:"Address"`
	Destination string `toml:"Destination"`
}

// Redirect pays a beneficiary's withdrawals to another account.
type Redirect struct {
	Beneficiary string `toml:"Beneficiary"`
	Destination string `toml:"Destination"`
}
