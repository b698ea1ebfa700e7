package config

import (
	"fmt"
	"strings"

	"invokeledger/native/settlement"
)

var pausableModules = map[string]struct{}{
	settlement.ModuleTips:   {},
	settlement.ModuleAccess: {},
}

// Validate checks accounts, duplicates and pause entries.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("backend: unsupported %q", c.Backend)
	}
	layout, err := c.Settlement()
	if err != nil {
		return err
	}
	if layout.TipsVault == ([20]byte{}) || layout.AccessVault == ([20]byte{}) {
		return fmt.Errorf("vaults: zero account not allowed")
	}
	if layout.TipsVault == layout.AccessVault {
		return fmt.Errorf("vaults: tips and access must use distinct accounts")
	}
	seen := map[[20]byte]string{
		layout.TipsVault:   "Tips.Vault",
		layout.AccessVault: "Access.Vault",
	}
	for i, conv := range layout.Conveyors {
		field := fmt.Sprintf("Conveyors[%d]", i)
		if prev, ok := seen[conv.Address]; ok {
			return fmt.Errorf("%s: address already used by %s", field, prev)
		}
		if conv.Address == conv.Destination {
			return fmt.Errorf("%s: conveyor cannot forward to itself", field)
		}
		seen[conv.Address] = field
	}
	if len(layout.Redirects) != len(c.Redirects) {
		return fmt.Errorf("redirects: duplicate beneficiary")
	}
	for _, module := range c.Paused {
		if _, ok := pausableModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("paused: unknown module %q", module)
		}
	}
	return nil
}
