/*
Package memory is the untyped-memory allocator of the memory manager.

The allocator owns the untyped slabs handed over at boot and retypes them
into kernel objects placed in a caller-supplied capability table.

# Slab selection

Slabs are sorted once, largest first. Each descriptor of a request is
retyped from the slab under the cursor; when the kernel reports that the
slab is too small the cursor advances cyclically and the descriptor is
retried. A descriptor fails with ErrAllocFailed after every slab was tried
once. The cursor stays where the last descriptor succeeded so successive
requests continue from there instead of restarting at the largest slab.

A failing multi-descriptor request does not roll back descriptors that were
already retyped in the same call.

# Accounting

Stats reports allocated, free, requested and overhead bytes along with
fallback counters. Free deletes capabilities descriptor by descriptor; a
delete failure is logged and the descriptor skipped, and a descriptor that
would drive the allocated counters below zero is logged and not subtracted.

# Usage

	alloc, err := memory.New(kern, bootInfo, memory.WithLogger(logger))
	bundle, err := alloc.Alloc(objects.NewBundle(table, depth, descs...))
	defer alloc.Free(bundle)
*/
package memory
