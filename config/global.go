package config

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"invokeledger/native/earnings"
	"invokeledger/native/settlement"
)

var defaultPlatform = earnings.DefaultPlatformAccount

func defaultVault(ledger string) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("invokeledger/vault/" + ledger))[12:])
	return out
}

func formatAccount(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

func parseAccount(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("%s: invalid account %q", field, value)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseOptionalAccount(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAccount(field, value)
}

// Settlement converts the account layout into the settlement module config.
func (c *Config) Settlement() (settlement.Config, error) {
	var out settlement.Config
	var err error
	if out.Platform, err = parseOptionalAccount("PlatformAccount", c.PlatformAccount); err != nil {
		return out, err
	}
	if out.TipsVault, err = parseAccount("Tips.Vault", c.Tips.Vault); err != nil {
		return out, err
	}
	if out.TipsTreasury, err = parseOptionalAccount("Tips.Treasury", c.Tips.Treasury); err != nil {
		return out, err
	}
	if out.AccessVault, err = parseAccount("Access.Vault", c.Access.Vault); err != nil {
		return out, err
	}
	if out.AccessTreasury, err = parseOptionalAccount("Access.Treasury", c.Access.Treasury); err != nil {
		return out, err
	}
	for i, conv := range c.Conveyors {
		addr, err := parseAccount(fmt.Sprintf("Conveyors[%d].Address", i), conv.Address)
		if err != nil {
			return out, err
		}
		dest, err := parseAccount(fmt.Sprintf("Conveyors[%d].Destination", i), conv.Destination)
		if err != nil {
			return out, err
		}
		out.Conveyors = append(out.Conveyors, settlement.ConveyorConfig{Address: addr, Destination: dest})
	}
	if len(c.Redirects) > 0 {
		out.Redirects = make(map[[20]byte][20]byte, len(c.Redirects))
	}
	for i, r := range c.Redirects {
		from, err := parseAccount(fmt.Sprintf("Redirects[%d].Beneficiary", i), r.Beneficiary)
		if err != nil {
			return out, err
		}
		to, err := parseAccount(fmt.Sprintf("Redirects[%d].Destination", i), r.Destination)
		if err != nil {
			return out, err
		}
		out.Redirects[from] = to
	}
	return out, nil
}
