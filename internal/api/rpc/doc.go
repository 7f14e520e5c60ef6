/*
Package rpc exposes the memory manager as the gRPC service
memmgr.MemoryManager.

Messages are the wire package types encoded as JSON by a codec registered
under the "json" content-subtype, so no generated code is involved; the
service descriptor is written by hand. The capability table of Allocate and
Free travels in the x-cap-table request metadata.

Failed calls carry a status code (ResourceExhausted, InvalidArgument,
NotFound, Internal) and the stable wire error code in the x-error-code
trailer. Client rebuilds the matching sentinel, so errors.Is works across
the connection:

	client, err := rpc.Dial("localhost:50061")
	got, err := client.Allocate(ctx, bundle)
	if errors.Is(err, memory.ErrAllocFailed) {
		...
	}

Client calls go through a resilience.Breaker that only counts transport
failures.
*/
package rpc
