// Package config loads daemon configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/aureliax/dexcore/internal/ledger"
)

// Config holds the dexcore daemon configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
	// DBPath is the sqlite ledger location; empty selects the in-memory
	// store.
	DBPath string `mapstructure:"db_path"`
	// ProgramID is the hex address under which the settlement program
	// derives market signers.
	ProgramID string `mapstructure:"program_id"`
}

// LoadConfig reads configuration from path (or ./config.yaml when empty),
// applying DEXCORE_-prefixed environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("DEXCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_path", "dexcore.db")
	// Registered with an empty default so the DEXCORE_PROGRAM_ID environment
	// override reaches Unmarshal; viper only overlays env onto known keys.
	v.SetDefault("program_id", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.ProgramID == "" {
		return nil, fmt.Errorf("program_id is required")
	}
	return &cfg, nil
}

// Program parses the configured program id.
func (c *Config) Program() (ledger.Address, error) {
	return ledger.AddressFromHex(c.ProgramID)
}
