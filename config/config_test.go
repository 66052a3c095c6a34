package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultcore/crypto"
	"vaultcore/native/token"
	"vaultcore/native/vault"
)

const testKeystorePassphrase = "test-passphrase"

func testAllocAddress(suffix byte) string {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0x42
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.VaultPrefix, raw).String()
}

func TestLoadParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "admin.keystore")
	contents := fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
AdminKeystorePath = "%s"
Environment = "staging"
LogFile = "./vault.log"

[genesis]
[[genesis.alloc]]
Address = "%s"
Amount = 5000000

[pauses]
Vault = true
Token = false

[rpc]
RatePerSecond = 12.5
RateBurst = 30
MaxBodyBytes = 2048
ReadTimeoutSeconds = 20
WriteTimeoutSeconds = 18
IdleTimeoutSeconds = 45

[telemetry]
OTLPEndpoint = "otel-collector:4318"
OTLPInsecure = true
OTLPHeaders = "x-team=vault"
Traces = true
Metrics = true
`, keystorePath, testAllocAddress(0x01))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected rpc address: %s", cfg.RPCAddress)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("unexpected environment: %s", cfg.Environment)
	}
	if cfg.LogFile != "./vault.log" {
		t.Fatalf("unexpected log file: %s", cfg.LogFile)
	}
	if cfg.RPC.RatePerSecond != 12.5 || cfg.RPC.RateBurst != 30 {
		t.Fatalf("unexpected rate limits: %+v", cfg.RPC)
	}
	if cfg.RPC.MaxBodyBytes != 2048 {
		t.Fatalf("unexpected body cap: %d", cfg.RPC.MaxBodyBytes)
	}
	if cfg.RPC.ReadTimeout != 20 || cfg.RPC.WriteTimeout != 18 || cfg.RPC.IdleTimeout != 45 {
		t.Fatalf("unexpected timeouts: %+v", cfg.RPC)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.OTLPEndpoint != "otel-collector:4318" {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}

	pauses := cfg.Pauses.Map()
	if !pauses[vault.ModuleName] || pauses[token.ModuleName] {
		t.Fatalf("unexpected pause map: %v", pauses)
	}

	allocs, err := cfg.Allocations()
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Amount != 5_000_000 {
		t.Fatalf("unexpected allocations: %+v", allocs)
	}

	// The keystore named by the config must exist after Load.
	if _, err := os.Stat(keystorePath); err != nil {
		t.Fatalf("keystore missing: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(keystorePath, testKeystorePassphrase); err != nil {
		t.Fatalf("keystore unreadable: %v", err)
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.RPCAddress != ":8545" {
		t.Fatalf("unexpected default rpc address: %s", cfg.RPCAddress)
	}
	if cfg.Environment != EnvDevelopment {
		t.Fatalf("unexpected default environment: %s", cfg.Environment)
	}
	if cfg.AdminKeystorePath == "" {
		t.Fatal("expected default keystore path")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := os.Stat(cfg.AdminKeystorePath); err != nil {
		t.Fatalf("keystore not written: %v", err)
	}

	// Loading again must reuse the persisted file and keystore.
	again, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if again.AdminKeystorePath != cfg.AdminKeystorePath {
		t.Fatalf("keystore path changed across loads: %s != %s", again.AdminKeystorePath, cfg.AdminKeystorePath)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = ":8545"
DataDir = "./data"
LegacyValidatorKey = "deadbeef"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase)); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg := &Config{RPCAddress: ":8545", DataDir: "./data", Environment: EnvDevelopment}
		applyDefaults(cfg)
		return cfg
	}

	cfg := base()
	cfg.Environment = "lab"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected environment error")
	}

	cfg = base()
	cfg.RPC.RatePerSecond = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected rate error")
	}

	cfg = base()
	cfg.Genesis.Alloc = []GenesisAlloc{{Address: "not-an-address", Amount: 1}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected genesis address error")
	}

	cfg = base()
	addr := testAllocAddress(0x02)
	cfg.Genesis.Alloc = []GenesisAlloc{{Address: addr, Amount: 1}, {Address: addr, Amount: 2}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected duplicate allocation error")
	}

	cfg = base()
	cfg.Genesis.Alloc = []GenesisAlloc{{Address: testAllocAddress(0x03), Amount: 0}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected zero amount error")
	}
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Environment: EnvProduction}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
	cfg.Environment = EnvDevelopment
	if cfg.IsProduction() {
		t.Fatal("development flagged as production")
	}
}
