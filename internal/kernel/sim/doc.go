// Package sim is an in-memory microkernel implementing kernel.Kernel.
//
// It models what the memory manager depends on: untyped objects with a
// watermark that is reset once all their children are gone, capability
// tables addressed by (table, index, depth), capability move and copy,
// revoke, and a single address space into which frames can be mapped.
// FailNext injects errors into individual invocations for tests.
package sim
