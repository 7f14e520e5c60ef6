// Package main is the entry point for the memory manager server.
//
// The server boots a simulated microkernel from a manifest, hands its
// untyped regions to the allocator and serves it over HTTP and gRPC:
//
//	HTTP  /v1/alloc /v1/free /v1/stats /v1/debug /v1/uploads /metrics
//	gRPC  memmgr.MemoryManager (JSON codec)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Default machine
//	./server -port 8000 -grpc-port 50061
//
//	# Custom boot manifest, development logging
//	./server -manifest boot.yaml -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
