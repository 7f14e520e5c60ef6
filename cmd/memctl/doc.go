// Package main is memctl, a command line client for the memory manager.
//
// Usage:
//
//	memctl stats
//	memctl alloc -table 2 -depth 12 frame:4:100:12 endpoint:2:104
//	memctl free frame:4:100:12
//	memctl upload -zstd kernel.elf
//	memctl download -o kernel.elf upl_01J...
//
// The server address comes from -addr or MEMMGR_ADDR.
package main
