// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output, debug level, stack traces
//
// Every entry carries the service name. The level is a zap.AtomicLevel;
// the server mounts it at /debug/log-level so operators can GET or PUT it
// without a restart.
//
// Domain packages take a plain *zap.Logger; pass Logger.Logger.
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", ":8000"))
//	alloc, err := memory.New(kern, info, memory.WithLogger(logger.Logger))
package logging
