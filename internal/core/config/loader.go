package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
)

// Load reads configuration from a YAML file. It first loads a .env file
// from the working directory (if present) into the process environment,
// so secrets such as
// RPC credentials and database DSNs never need to live in the YAML file
// itself, then expands ${VAR} references in the YAML before parsing it.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Bitcoin.Enabled == nil {
		cfg.Bitcoin.Enabled = boolPtr(true)
	}
	if cfg.Solana.Enabled == nil {
		cfg.Solana.Enabled = boolPtr(true)
	}

	if cfg.Engine.CycleIntervalSeconds == 0 {
		cfg.Engine.CycleIntervalSeconds = 5
	}
	if cfg.Engine.MaxDurationMinutes == 0 {
		cfg.Engine.MaxDurationMinutes = 10
	}
	if cfg.Engine.MaxSizeGB == 0 {
		cfg.Engine.MaxSizeGB = 5
	}

	if cfg.Bitcoin.Mode == "" {
		cfg.Bitcoin.Mode = domain.ModeTip
	}
	if cfg.Bitcoin.StartPosition == 0 {
		cfg.Bitcoin.StartPosition = -1
	}
	if cfg.Bitcoin.Parallelism == 0 {
		if cfg.Bitcoin.Mode == domain.ModeBackfill {
			cfg.Bitcoin.Parallelism = 10
		} else {
			cfg.Bitcoin.Parallelism = 1
		}
	}
	if cfg.Solana.Parallelism == 0 {
		cfg.Solana.Parallelism = 1
	}
}

func boolPtr(b bool) *bool { return &b }
