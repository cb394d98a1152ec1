package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "Q", cfg.Server.Series)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}, wantErr: false},
		{name: "invalid port - too low", modify: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid port - too high", modify: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "invalid series", modify: func(c *Config) { c.Server.Series = "L" }, wantErr: true},
		{name: "iQ-R series is valid", modify: func(c *Config) { c.Server.Series = "iQ-R" }, wantErr: false},
		{name: "zero max connections", modify: func(c *Config) { c.Server.MaxConnections = 0 }, wantErr: true},
		{name: "zero scan period", modify: func(c *Config) { c.Ladder.ScanPeriod = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 5020
	cfg.Ladder.ProgramFile = "seal-in.lad"

	require.NoError(t, cfg.SaveConfig(configPath))

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, cfg.Server.Port, loaded.Server.Port)
	assert.Equal(t, cfg.Ladder.ProgramFile, loaded.Ladder.ProgramFile)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("MCMOCK_SERVER_PORT", "6000")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "base-config.json")
	require.NoError(t, DefaultConfig().SaveConfig(configPath))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port, "env var should override the file value")
}
