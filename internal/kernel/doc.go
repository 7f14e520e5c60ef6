// Package kernel defines the microkernel ABI the memory manager is written
// against: capability pointers, object types and their size classes, result
// codes, and the Kernel interface.
//
// The real kernel is reached through system calls that Go cannot issue on
// the target; package sim provides an in-memory implementation with the
// same object model that the service binary and the tests run on.
package kernel
