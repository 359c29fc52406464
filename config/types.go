package config

// Config is the daemon configuration. It is read from TOML by default and
// from YAML when the file ends in .yaml or .yml.
type Config struct {
	DataDir            string `toml:"DataDir" yaml:"dataDir"`
	Storage            string `toml:"Storage" yaml:"storage"`
	OwnerKeystorePath  string `toml:"OwnerKeystorePath" yaml:"ownerKeystorePath"`
	OwnerPassphraseEnv string `toml:"OwnerPassphraseEnv" yaml:"ownerPassphraseEnv"`

	RPC       RPC       `toml:"rpc" yaml:"rpc"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
	Indexer   Indexer   `toml:"indexer" yaml:"indexer"`
	Webhook   Webhook   `toml:"webhook" yaml:"webhook"`
	System    System    `toml:"system" yaml:"system"`

	passphrase func() (string, error)
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	Address             string  `toml:"Address" yaml:"address"`
	JWTSecret           string  `toml:"JWTSecret,omitempty" yaml:"jwtSecret,omitempty"`
	JWTSecretEnv        string  `toml:"JWTSecretEnv" yaml:"jwtSecretEnv"`
	Issuer              string  `toml:"Issuer" yaml:"issuer"`
	ClockSkewSeconds    int     `toml:"ClockSkewSeconds" yaml:"clockSkewSeconds"`
	RequestsPerMinute   float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst               int     `toml:"Burst" yaml:"burst"`
	AllowAnonymousReads bool    `toml:"AllowAnonymousReads" yaml:"allowAnonymousReads"`
}

// Logging mirrors logging.Options.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	Env        string `toml:"Env" yaml:"env"`
	File       string `toml:"File,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers,omitempty" yaml:"headers,omitempty"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
}

// Indexer selects the SQL store committed events are written to.
type Indexer struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled"`
	Driver  string `toml:"Driver" yaml:"driver"`
	DSN     string `toml:"DSN" yaml:"dsn"`
}

// Webhook pushes committed events to an HTTP endpoint. Delivery is off
// while URL is empty.
type Webhook struct {
	URL         string   `toml:"URL" yaml:"url"`
	SecretEnv   string   `toml:"SecretEnv" yaml:"secretEnv"`
	Types       []string `toml:"Types,omitempty" yaml:"types,omitempty"`
	MaxAttempts int      `toml:"MaxAttempts" yaml:"maxAttempts"`
}

// Asset describes one fungible ledger of the deployment.
type Asset struct {
	Name     string `toml:"Name" yaml:"name"`
	Symbol   string `toml:"Symbol" yaml:"symbol"`
	Decimals uint8  `toml:"Decimals" yaml:"decimals"`
}

// System holds the parameters used the first time the daemon deploys the
// contracts. Amounts are base-10 integer strings.
type System struct {
	StableToken                    Asset  `toml:"StableToken" yaml:"stableToken"`
	CollateralToken                Asset  `toml:"CollateralToken" yaml:"collateralToken"`
	InitialPrice                   string `toml:"InitialPrice" yaml:"initialPrice"`
	OracleMaxAgeSeconds            uint64 `toml:"OracleMaxAgeSeconds" yaml:"oracleMaxAgeSeconds"`
	InterestRateStepE12            string `toml:"InterestRateStepE12" yaml:"interestRateStepE12"`
	MaximumCollateralCoefficientE6 string `toml:"MaximumCollateralCoefficientE6" yaml:"maximumCollateralCoefficientE6"`
	CollateralStepValueE6          string `toml:"CollateralStepValueE6" yaml:"collateralStepValueE6"`
	StableInterestRateStepE12      string `toml:"StableInterestRateStepE12" yaml:"stableInterestRateStepE12"`
}
