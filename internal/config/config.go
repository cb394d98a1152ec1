// Package config loads and validates the mock PLC's configuration, the
// same viper-backed shape the teacher's config.go uses for its slave farm.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration tree for both the server and client
// reference CLIs.
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Ladder  LadderConfig  `json:"ladder" mapstructure:"ladder"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// ServerConfig configures the TCP listener and connection handling.
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Series          string        `json:"series" mapstructure:"series"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	GracefulTimeout time.Duration `json:"graceful_timeout" mapstructure:"graceful_timeout"`
}

// LadderConfig configures the scan engine and the program it loads.
type LadderConfig struct {
	ProgramFile string        `json:"program_file" mapstructure:"program_file"`
	ScanPeriod  time.Duration `json:"scan_period" mapstructure:"scan_period"`
	AutoStart   bool          `json:"auto_start" mapstructure:"auto_start"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	OutputPath string `json:"output_path" mapstructure:"output_path"`
}

// MetricsConfig configures the /metrics, /health, /ready HTTP endpoints.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the out-of-the-box configuration: 127.0.0.1:5000,
// Q-series, a 10ms scan period, info-level JSON logging to stdout.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			Series:          "Q",
			MaxConnections:  256,
			GracefulTimeout: 10 * time.Second,
		},
		Ladder: LadderConfig{
			ScanPeriod: 10 * time.Millisecond,
			AutoStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// LoadConfig loads configuration from configPath (or the default search
// path if empty), with MCMOCK_-prefixed environment variables overriding
// file values, and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mcmock/")
		v.AddConfigPath("$HOME/.mcmock/")
	}

	v.SetEnvPrefix("MCMOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Server.Port)
	}
	if c.Server.Series != "Q" && c.Server.Series != "iQ-R" {
		return fmt.Errorf("config: invalid series %q: must be \"Q\" or \"iQ-R\"", c.Server.Series)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("config: max_connections must be > 0")
	}
	if c.Ladder.ScanPeriod <= 0 {
		return fmt.Errorf("config: ladder.scan_period must be > 0")
	}
	return nil
}

// SaveConfig writes the configuration to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
