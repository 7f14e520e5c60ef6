package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Boot      BootConfig
	Window    WindowConfig
	Upload    UploadConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP and gRPC listener configuration.
type ServerConfig struct {
	Port              string        `envconfig:"PORT" default:"8000"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	GRPCPort          string        `envconfig:"GRPC_PORT" default:"50061"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"10s"`
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// GRPCAddr returns the gRPC listen address.
func (s ServerConfig) GRPCAddr() string {
	return net.JoinHostPort(s.Host, s.GRPCPort)
}

// BootConfig selects the boot manifest. An empty path boots the built-in
// default layout.
type BootConfig struct {
	ManifestPath string `envconfig:"BOOT_MANIFEST"`
}

// WindowConfig places the page window. Bounce 0 puts the bounce slot at
// the last empty slot of the top-level table.
type WindowConfig struct {
	Base   uint64 `envconfig:"WINDOW_BASE" default:"0x40000000"`
	Bounce uint64 `envconfig:"WINDOW_BOUNCE" default:"0"`
}

// UploadConfig bounds the image store.
type UploadConfig struct {
	MaxBytes int64 `envconfig:"UPLOAD_MAX_BYTES" default:"67108864"`
	// Slots is how many top-level slots are reserved for image frames.
	Slots uint64 `envconfig:"UPLOAD_SLOTS" default:"2048"`
}

// LogConfig holds logging configuration. LevelEndpoint mounts
// /debug/log-level, which lets any caller change the level.
type LogConfig struct {
	Level         string `envconfig:"LOG_LEVEL" default:"info"`
	Development   bool   `envconfig:"LOG_DEV" default:"false"`
	LevelEndpoint bool   `envconfig:"LOG_LEVEL_ENDPOINT" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "8000",
			Host:              "0.0.0.0",
			GRPCPort:          "50061",
			ShutdownTimeout:   10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Window: WindowConfig{
			Base: 0x40000000,
		},
		Upload: UploadConfig{
			MaxBytes: 64 << 20,
			Slots:    2048,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
