package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoad_WritesDefaultConfigWhenMissing(t *testing.T) {
	req := require.New(t)
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(&logger, path)
	req.NoError(err)
	req.Equal(path, resolved)
	req.Equal(Default().Addr, cfg.Addr)
	req.Equal(BroadcastScopeAll, cfg.BroadcastScope)

	_, statErr := os.Stat(path)
	req.NoError(statErr, "default config should be written")
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	req := require.New(t)
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "config.yaml")

	content := "addr: \":9000\"\nbroadcast_scope: conversation\nkeepalive_interval: 30s\n"
	req.NoError(os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("MSGHUB_ADDR", ":9100")

	cfg, _, err := Load(&logger, path)
	req.NoError(err)
	req.Equal(":9100", cfg.Addr, "env overrides file")
	req.Equal(BroadcastScopeConversation, cfg.BroadcastScope)
	req.Equal(30*time.Second, cfg.KeepaliveInterval)
	req.Equal(DriverSQLite, cfg.DatabaseDriver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown scope", mutate: func(c *Config) { c.BroadcastScope = "room" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: true},
		{name: "jwt required without secret", mutate: func(c *Config) { c.JWTRequired = true }, wantErr: true},
		{name: "zero message size", mutate: func(c *Config) { c.MaxMessageBytes = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUpdateFrom_KeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1234", DatabaseDriver: DriverRedis})

	require.Equal(t, ":1234", cfg.Addr)
	require.Equal(t, DriverRedis, cfg.DatabaseDriver)
	require.Equal(t, Default().ShutdownTimeout, cfg.ShutdownTimeout)
}
