package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settlement.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Tips.Vault != cfg.Tips.Vault || again.Access.Vault != cfg.Access.Vault {
		t.Fatalf("default vaults not persisted: %+v vs %+v", cfg, again)
	}
	layout, err := again.Settlement()
	if err != nil {
		t.Fatalf("settlement layout: %v", err)
	}
	if layout.TipsVault == layout.AccessVault {
		t.Fatalf("default vaults collide")
	}
}

func TestLoadParsesLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.toml")
	contents := `DataDir = "./data"
Backend = "memory"
PlatformAccount = "0x0000000000000000000000000000000000000050"
Paused = ["access"]

[Tips]
Vault = "0x00000000000000000000000000000000000000e1"
Treasury = "0x000000000000000000000000000000000000007e"

[Access]
Vault = "0x00000000000000000000000000000000000000e2"

[[Conveyors]]
Address = "0x00000000000000000000000000000000000000c0"
Destination = "0x00000000000000000000000000000000000000d0"

[[Redirects]]
Beneficiary = "0x00000000000000000000000000000000000000ac"
Destination = "0x00000000000000000000000000000000000000c0"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendMemory || len(cfg.Paused) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	layout, err := cfg.Settlement()
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if layout.Platform[19] != 0x50 || layout.TipsTreasury[19] != 0x7e || layout.AccessTreasury != ([20]byte{}) {
		t.Fatalf("unexpected accounts %+v", layout)
	}
	if len(layout.Conveyors) != 1 || layout.Conveyors[0].Destination[19] != 0xd0 {
		t.Fatalf("unexpected conveyors %+v", layout.Conveyors)
	}
	var actor [20]byte
	actor[19] = 0xac
	if layout.Redirects[actor][19] != 0xc0 {
		t.Fatalf("redirect not parsed: %+v", layout.Redirects)
	}
}

func TestValidateRejectsBadLayouts(t *testing.T) {
	cases := map[string]func(c *Config){
		"backend":     func(c *Config) { c.Backend = "postgres" },
		"same vaults": func(c *Config) { c.Access.Vault = c.Tips.Vault },
		"bad account": func(c *Config) { c.Tips.Treasury = "0x1234" },
		"conveyor on vault": func(c *Config) {
			c.Conveyors = []ConveyorConfig{{Address: c.Tips.Vault, Destination: c.PlatformAccount}}
		},
		"self conveyor": func(c *Config) {
			addr := "0x00000000000000000000000000000000000000c0"
			c.Conveyors = []ConveyorConfig{{Address: addr, Destination: addr}}
		},
		"duplicate redirect": func(c *Config) {
			r := Redirect{Beneficiary: c.PlatformAccount, Destination: c.Tips.Vault}
			c.Redirects = []Redirect{r, r}
		},
		"unknown pause": func(c *Config) { c.Paused = []string{"lending"} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.toml")
	body := Default()
	var sb strings.Builder
	sb.WriteString("ValidatorKey = \"legacy\"\n")
	sb.WriteString("[Tips]\nVault = \"" + body.Tips.Vault + "\"\n")
	sb.WriteString("[Access]\nVault = \"" + body.Access.Vault + "\"\n")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}
