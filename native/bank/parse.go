package bank

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const hashHexLength = 64

// ParseAccount normalises and validates an account address expressed as a hex
// string with or without the 0x prefix.
func ParseAccount(ref string) ([20]byte, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("bank: account required")
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("bank: invalid account %q", ref)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

// ParseHash normalises and validates a 32-byte hash expressed as a hex string.
func ParseHash(ref string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return hash, fmt.Errorf("bank: hash required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != hashHexLength {
		return hash, fmt.Errorf("bank: hash must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, fmt.Errorf("bank: decode hash: %w", err)
	}
	copy(hash[:], decoded)
	return hash, nil
}
