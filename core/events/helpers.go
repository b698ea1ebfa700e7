package events

import (
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

func formatHash(h [32]byte) string {
	return ethcommon.Hash(h).Hex()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
