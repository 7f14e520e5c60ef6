/*
Package tracing provides lightweight request tracing.

# Overview

Each HTTP request and gRPC call gets a span; spans are logged through zap
by a background collector. Trace IDs are prefixed ULIDs and propagate via
the X-Trace-ID / X-Span-ID headers or the matching gRPC metadata keys.

# Usage

	tracer := tracing.New("memmgr", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
	)
*/
package tracing
