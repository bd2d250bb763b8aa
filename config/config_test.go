package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := "Owner = \"dvm1exampleowner\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("expected default RPC address, got %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "devmarket-local" {
		t.Fatalf("expected default network name, got %q", cfg.NetworkName)
	}
	if cfg.Owner == "" {
		t.Fatalf("owner must be preserved")
	}
}

func TestLoadRejectsMissingOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = \":9999\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing owner")
	}
}

func TestLoadWritesDefaultOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if _, err := Load(path); err == nil {
		t.Fatalf("first run must demand an owner")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file should have been written: %v", err)
	}
}
