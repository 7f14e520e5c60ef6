// Package config provides 12-factor configuration for the memory manager.
//
// Configuration is loaded from environment variables with defaults; the
// server's CLI flags override it.
//
// Configuration Sections:
//   - Server: HTTP and gRPC listeners, shutdown timeout
//   - Boot: boot manifest path (YAML or TOML)
//   - Window: page window virtual address and bounce slot
//   - Upload: image size limit and reserved slots
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//
// Environment Variables:
//   - PORT, HOST, GRPC_PORT, SHUTDOWN_TIMEOUT
//   - BOOT_MANIFEST
//   - WINDOW_BASE, WINDOW_BOUNCE
//   - UPLOAD_MAX_BYTES, UPLOAD_SLOTS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
