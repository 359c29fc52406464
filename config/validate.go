package config

import (
	"errors"
	"fmt"
	"math/big"
	neturl "net/url"
	"os"
	"strings"

	"stablevault/storage"
)

var errMissingSecret = errors.New("rpc: JWT secret not configured")

// Validate reports the first setting that cannot be used as configured.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage)) {
	case "", storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage)
	}
	if strings.TrimSpace(c.DataDir) == "" && !strings.EqualFold(c.Storage, storage.BackendMemory) {
		return fmt.Errorf("DataDir required")
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		return fmt.Errorf("rpc: Address required")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.ClockSkewSeconds < 0 {
		return fmt.Errorf("rpc: ClockSkewSeconds must not be negative")
	}
	if c.Indexer.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
		case "", "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required")
		}
	}
	if url := strings.TrimSpace(c.Webhook.URL); url != "" {
		parsed, err := neturl.Parse(url)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("webhook: invalid URL %q", c.Webhook.URL)
		}
		if strings.TrimSpace(c.Webhook.SecretEnv) == "" {
			return fmt.Errorf("webhook: SecretEnv required")
		}
	}
	if c.Webhook.MaxAttempts < 0 {
		return fmt.Errorf("webhook: MaxAttempts must not be negative")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxAgeDays < 0 || c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if _, err := c.SystemConfig(); err != nil {
		return err
	}
	return nil
}

// JWTSecret resolves the RPC signing secret, preferring the environment
// variable over the literal value in the file.
func (c *Config) JWTSecret() (string, error) {
	if env := strings.TrimSpace(c.RPC.JWTSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value, nil
		}
	}
	if value := strings.TrimSpace(c.RPC.JWTSecret); value != "" {
		return value, nil
	}
	return "", errMissingSecret
}

// WebhookSecret reads the webhook signing secret from SecretEnv.
func (c *Config) WebhookSecret() (string, error) {
	env := strings.TrimSpace(c.Webhook.SecretEnv)
	if value := strings.TrimSpace(os.Getenv(env)); env != "" && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("webhook: secret not set in %q", env)
}

func parseUintAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("system: invalid %s %q", field, raw)
	}
	return value, nil
}
