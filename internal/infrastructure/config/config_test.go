package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "50061", cfg.Server.GRPCPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout)

	assert.Empty(t, cfg.Boot.ManifestPath)
	assert.Equal(t, uint64(0x40000000), cfg.Window.Base)
	assert.Zero(t, cfg.Window.Bounce)
	assert.Equal(t, int64(64<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, uint64(2048), cfg.Upload.Slots)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.False(t, cfg.Logging.LevelEndpoint)

	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                "9000",
		"HOST":                "127.0.0.1",
		"GRPC_PORT":           "50099",
		"SHUTDOWN_TIMEOUT":    "3s",
		"READ_HEADER_TIMEOUT": "2s",
		"BOOT_MANIFEST":       "/etc/memmgr/boot.yaml",
		"WINDOW_BASE":         "0x7f000000",
		"WINDOW_BOUNCE":       "4000",
		"UPLOAD_MAX_BYTES":    "1048576",
		"UPLOAD_SLOTS":        "512",
		"LOG_LEVEL":           "debug",
		"LOG_DEV":             "true",
		"LOG_LEVEL_ENDPOINT":  "true",
		"RATE_LIMIT_RPS":      "500",
		"RATE_LIMIT_BURST":    "1000",
		"RATE_LIMIT_ENABLED":  "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, "127.0.0.1:50099", cfg.Server.GRPCAddr())
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, "/etc/memmgr/boot.yaml", cfg.Boot.ManifestPath)
	assert.Equal(t, uint64(0x7f000000), cfg.Window.Base)
	assert.Equal(t, uint64(4000), cfg.Window.Bounce)
	assert.Equal(t, int64(1<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, uint64(512), cfg.Upload.Slots)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.True(t, cfg.Logging.LevelEndpoint)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "50061", cfg.Server.GRPCPort)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"window base", "WINDOW_BASE", "high"},
		{"shutdown timeout", "SHUTDOWN_TIMEOUT", "soon"},
		{"rate limit", "RATE_LIMIT_RPS", "-x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}
