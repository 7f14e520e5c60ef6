/*
Package monitoring provides metrics collection for the memory manager.

# Overview

Metrics are registered on a private Prometheus registry so that several
servers (and tests) can coexist in one process.

# Features

- HTTP request metrics (latency, throughput, size)
- gRPC call metrics (latency, status codes)
- Allocator accounting exported on scrape by AllocatorCollector
- Operation counters labelled by result code

# Usage

	metrics := monitoring.NewMetrics()
	_ = metrics.RegisterAllocator(alloc)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "alloc")
	// ... perform operation ...
	timer.Stop(monitoring.ResultOK)
*/
package monitoring
