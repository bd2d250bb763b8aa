package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	RPCToken    string `toml:"RPCToken"`
	DataDir     string `toml:"DataDir"`
	Owner       string `toml:"Owner"`
	NetworkName string `toml:"NetworkName"`
	Environment string `toml:"Environment"`
	// GenesisAllocations seeds account balances on the first start of a
	// fresh data directory. Keys are bech32 addresses, values decimal
	// amounts in base units.
	GenesisAllocations map[string]string `toml:"GenesisAllocations"`
}

// Load loads the configuration from the given path, writing a default file on
// first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./devmarket-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "devmarket-local"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Owner) == "" {
		return fmt.Errorf("config: Owner address is required")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	// The generated file still needs an Owner before the daemon can start;
	// surface that instead of returning a half-usable config.
	return nil, fmt.Errorf("config: wrote default config to %s; set Owner and restart", path)
}
