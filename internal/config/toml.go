package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file. Unset keys stay nil.
type FileConfig struct {
	ESOLogs ESOLogsConfig `toml:"esologs"`
	Ledger  LedgerConfig  `toml:"ledger"`
	Retry   RetryConfig   `toml:"retry"`
	Log     LogConfig     `toml:"log"`
	Cache   CacheConfig   `toml:"cache"`
}

// ESOLogsConfig maps report source settings.
type ESOLogsConfig struct {
	APIKey  *string `toml:"api-key"`
	BaseURL *string `toml:"base-url"`
	Timeout *string `toml:"timeout"`
}

// LedgerConfig maps ledger storage settings.
type LedgerConfig struct {
	DBPath     *string `toml:"db-path"`
	Sheet      *string `toml:"sheet"`
	DateLayout *string `toml:"date-layout"`
	Timezone   *string `toml:"timezone"`
}

// RetryConfig maps the ledger store backoff.
type RetryConfig struct {
	Initial     *string `toml:"initial"`
	MaxInterval *string `toml:"max-interval"`
	MaxElapsed  *string `toml:"max-elapsed"`
}

// LogConfig maps logger settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// CacheConfig maps the report payload cache.
type CacheConfig struct {
	SizeMB *int    `toml:"size-mb"`
	TTL    *string `toml:"ttl"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
