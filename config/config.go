package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vaultcore/crypto"

	"github.com/BurntSushi/toml"
)

// KeystorePassphraseEnv names the environment variable consulted for the
// admin keystore passphrase when no explicit option is supplied.
const KeystorePassphraseEnv = "VAULT_KEYSTORE_PASS"

type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	DataDir           string `toml:"DataDir"`
	AdminKeystorePath string `toml:"AdminKeystorePath"`
	Environment       string `toml:"Environment"`
	LogFile           string `toml:"LogFile"`

	Genesis   Genesis   `toml:"genesis"`
	Pauses    Pauses    `toml:"pauses"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
}

type loadOptions struct {
	keystorePassphrase string
}

// Option adjusts how Load bootstraps missing artefacts.
type Option func(*loadOptions)

// WithKeystorePassphrase overrides the passphrase used when the admin
// keystore has to be created or re-encrypted during Load.
func WithKeystorePassphrase(pass string) Option {
	return func(o *loadOptions) {
		o.keystorePassphrase = pass
	}
}

// Load loads the configuration from the given path, creating a commented
// default alongside a fresh admin keystore when the file does not exist yet.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{keystorePassphrase: os.Getenv(KeystorePassphraseEnv)}
	for _, opt := range opts {
		opt(&options)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg, options); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.RPC.RatePerSecond == 0 {
		cfg.RPC.RatePerSecond = 25
	}
	if cfg.RPC.RateBurst == 0 {
		cfg.RPC.RateBurst = 50
	}
	if cfg.RPC.MaxBodyBytes == 0 {
		cfg.RPC.MaxBodyBytes = 1 << 20
	}
	if cfg.RPC.ReadTimeout == 0 {
		cfg.RPC.ReadTimeout = 15
	}
	if cfg.RPC.WriteTimeout == 0 {
		cfg.RPC.WriteTimeout = 15
	}
	if cfg.RPC.IdleTimeout == 0 {
		cfg.RPC.IdleTimeout = 60
	}
}

func ensureKeystore(configPath string, cfg *Config, options loadOptions) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, options.keystorePassphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options loadOptions) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, options.keystorePassphrase); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8545",
		DataDir:           "./vault-data",
		AdminKeystorePath: keystorePath,
		Environment:       EnvDevelopment,
	}
	applyDefaults(cfg)

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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
