package config

import (
	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

// AppConfig is the top-level configuration for the engine.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Bitcoin  BitcoinConfig  `yaml:"bitcoin"`
	Solana   SolanaConfig   `yaml:"solana"`
}

// ServerConfig holds control-plane HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text — informational only, tint always renders console-style
}

// DatabaseConfig holds the Postgres DSN backing the Cursor Store and Sink.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the Redis connection used for Source Router preference
// persistence and the rescan-range queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EngineConfig holds run-level settings shared by every chain.
type EngineConfig struct {
	CycleIntervalSeconds int     `yaml:"cycle_interval_seconds"`
	MaxDurationMinutes   int     `yaml:"max_duration_minutes"` // 0 or absent becomes the default of 10; the time budget cannot be disabled from config
	MaxSizeGB            float64 `yaml:"max_size_gb"`
}

// BitcoinConfig holds Bitcoin-collector settings, including the Source
// Router's local-vs-public node selection. Enabled is a pointer so
// applyDefaults can tell "absent from the YAML" (defaults to true) apart
// from an explicit "enabled: false".
type BitcoinConfig struct {
	Enabled       *bool                 `yaml:"enabled"`
	UseLocalNode  bool                 `yaml:"use_local_node"`
	Mode          domain.CollectionMode `yaml:"mode"`
	StartPosition int64                 `yaml:"start_position"` // -1 = unset
	Parallelism   int                   `yaml:"parallelism"`
	TxLimit       int                   `yaml:"tx_limit"` // 0 = unlimited
	LocalRPC      RPCEndpointConfig     `yaml:"local_rpc"`
	PublicRPC     RPCEndpointConfig     `yaml:"public_rpc"`
}

// SolanaConfig holds Solana-collector settings. Solana is tip-follow only.
// Enabled is a pointer for the same reason as BitcoinConfig.Enabled.
type SolanaConfig struct {
	Enabled     *bool             `yaml:"enabled"`
	Parallelism int               `yaml:"parallelism"`
	TxLimit     int               `yaml:"tx_limit"`
	RPC         RPCEndpointConfig `yaml:"rpc"`
}

// RPCEndpointConfig holds connection details for one upstream RPC endpoint.
type RPCEndpointConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`     // Bitcoin JSON-RPC basic auth
	Password string `yaml:"password"` // Bitcoin JSON-RPC basic auth
}
