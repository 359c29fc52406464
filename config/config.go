package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"stablevault/crypto"
	"stablevault/storage"
)

const (
	DefaultJWTSecretEnv  = "STABLEVAULT_RPC_SECRET"
	DefaultPassphraseEnv = "STABLEVAULT_OWNER_PASSPHRASE"
	DefaultWebhookEnv    = "STABLEVAULT_WEBHOOK_SECRET"
)

// keystoreScrypt is the cost used for keystores created by Load.
var keystoreScrypt = crypto.StandardScrypt

// LoadOption customises Load.
type LoadOption func(*Config)

// WithPassphraseSource resolves the owner keystore passphrase through get
// instead of reading OwnerPassphraseEnv directly.
func WithPassphraseSource(get func() (string, error)) LoadOption {
	return func(c *Config) { c.passphrase = get }
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		DataDir:            "./vault-data",
		Storage:            storage.BackendLevelDB,
		OwnerPassphraseEnv: DefaultPassphraseEnv,
		RPC: RPC{
			Address:           "127.0.0.1:8645",
			JWTSecretEnv:      DefaultJWTSecretEnv,
			Issuer:            "stablevault",
			ClockSkewSeconds:  120,
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Logging: Logging{
			Level:      "info",
			Env:        "dev",
			MaxSizeMB:  100,
			MaxAgeDays: 28,
			MaxBackups: 5,
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
		Indexer: Indexer{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "events.db",
		},
		Webhook: Webhook{SecretEnv: DefaultWebhookEnv, MaxAttempts: 5},
		System: System{
			StableToken:                    Asset{Name: "Stable Dollar", Symbol: "USDV", Decimals: 6},
			CollateralToken:                Asset{Name: "Collateral", Symbol: "COL", Decimals: 12},
			InitialPrice:                   "1000000",
			InterestRateStepE12:            "0",
			MaximumCollateralCoefficientE6: "2000000",
			CollateralStepValueE6:          "0",
			StableInterestRateStepE12:      "0",
		},
	}
}

// Load loads the configuration from path. A missing file is created with
// defaults, and a missing owner keystore is generated next to it.
func Load(path string, opts ...LoadOption) (*Config, error) {
	cfg := Default()
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, cfg)
	} else if err != nil {
		return nil, err
	}

	if err := decode(path, cfg); err != nil {
		return nil, err
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, cfg *Config) error {
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
		return nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config: %s: unknown field %s", path, undecoded[0].String())
	}
	return nil
}

// OwnerPassphrase returns the keystore passphrase from the source given to
// Load, falling back to the configured environment variable.
func (c *Config) OwnerPassphrase() (string, error) {
	if c.passphrase != nil {
		return c.passphrase()
	}
	if c.OwnerPassphraseEnv == "" {
		return "", nil
	}
	return os.Getenv(c.OwnerPassphraseEnv), nil
}

// LoadOwnerKey opens the owner keystore.
func (c *Config) LoadOwnerKey() (*crypto.PrivateKey, error) {
	pass, err := c.OwnerPassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(c.OwnerKeystorePath, pass)
}

// ResolvePath anchors a relative path under DataDir.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	if err := openKeystore(keystorePath, cfg); err != nil {
		return err
	}
	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func openKeystore(path string, cfg *Config) error {
	pass, err := cfg.OwnerPassphrase()
	if err != nil {
		return fmt.Errorf("config: owner passphrase: %w", err)
	}
	if _, _, err := crypto.LoadOrCreateKeystore(path, pass, keystoreScrypt); err != nil {
		return fmt.Errorf("config: owner keystore: %w", err)
	}
	return nil
}

// createDefault saves cfg, still holding defaults, to path.
func createDefault(path string, cfg *Config) (*Config, error) {
	cfg.OwnerKeystorePath = defaultKeystorePath(path)
	if err := openKeystore(cfg.OwnerKeystorePath, cfg); err != nil {
		return nil, err
	}
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
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
