package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the settlement node configuration.
type Config struct {
	DataDir         string           `toml:"DataDir"`
	Backend         string           `toml:"Backend"`
	PlatformAccount string           `toml:"PlatformAccount"`
	Tips            LedgerAccounts   `toml:"Tips"`
	Access          LedgerAccounts   `toml:"Access"`
	Conveyors       []ConveyorConfig `toml:"Conveyors"`
	Redirects       []Redirect       `toml:"Redirects"`
	Paused          []string         `toml:"Paused"`
}

const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./settlement-data"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = BackendLevelDB
	}
	if cfg.Conveyors == nil {
		cfg.Conveyors = []ConveyorConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written by Load for a missing file.
func Default() *Config {
	return &Config{
		DataDir:         "./settlement-data",
		Backend:         BackendLevelDB,
		PlatformAccount: formatAccount(defaultPlatform),
		Tips: LedgerAccounts{
			Vault: formatAccount(defaultVault("tips")),
		},
		Access: LedgerAccounts{
			Vault: formatAccount(defaultVault("access")),
		},
		Conveyors: []ConveyorConfig{},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
