package kernel

import (
	"fmt"
	"strings"
)

// CPtr addresses a capability slot within a capability table.
type CPtr uint64

// Fixed kernel constants for the 64-bit configuration.
const (
	// SlotBits is log2 of the size of one capability slot.
	SlotBits = 5

	PageBits      = 12
	PageSize      = 1 << PageBits
	LargePageBits = 21

	MinUntypedBits = 4
	MaxUntypedBits = 47

	// RootCNodeSlot holds the component's capability to its own top-level table.
	RootCNodeSlot CPtr = 2
)

// ObjectType is a kernel object kind that untyped memory can be retyped into.
type ObjectType uint8

const (
	Untyped ObjectType = iota
	TCB
	Endpoint
	Notification
	CNode
	SchedContext
	Reply
	Frame
	PageTable
	VSpace
)

var objectTypeNames = map[ObjectType]string{
	Untyped:      "untyped",
	TCB:          "tcb",
	Endpoint:     "endpoint",
	Notification: "notification",
	CNode:        "cnode",
	SchedContext: "sched_context",
	Reply:        "reply",
	Frame:        "frame",
	PageTable:    "page_table",
	VSpace:       "vspace",
}

// fixedSizeBits are the intrinsic object sizes (log2 bytes). Types absent
// from the map are sized by the caller.
var fixedSizeBits = map[ObjectType]uint8{
	TCB:          11,
	Endpoint:     4,
	Notification: 5,
	SchedContext: 8,
	Reply:        5,
	PageTable:    12,
	VSpace:       12,
}

// String returns the wire name of the type
func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("object_type(%d)", uint8(t))
}

// Valid reports whether t is a known object type
func (t ObjectType) Valid() bool {
	_, ok := objectTypeNames[t]
	return ok
}

// FixedSizeBits returns the intrinsic size of t. The second result is false
// for caller-sized types (untyped, frame, cnode).
func (t ObjectType) FixedSizeBits() (uint8, bool) {
	bits, ok := fixedSizeBits[t]
	return bits, ok
}

// ParseObjectType resolves a wire name such as "frame" or "tcb".
func ParseObjectType(s string) (ObjectType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range objectTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown object type %q", s)
}

// UntypedInfo describes the current state of an untyped memory object.
type UntypedInfo struct {
	SizeBits  uint8
	FreeBytes uint64
	Paddr     uint64
	Device    bool
}

// UntypedRegion is one raw memory region handed over by the boot environment.
type UntypedRegion struct {
	Slot     CPtr
	SizeBits uint8
	Paddr    uint64
	Device   bool
	// Tainted regions were used by an earlier boot stage and must be
	// revoked before their free space can be trusted.
	Tainted bool
}

// Bytes returns the region size in bytes
func (r UntypedRegion) Bytes() uint64 {
	return uint64(1) << r.SizeBits
}

// SlotRange is the half-open slot interval [Start, End).
type SlotRange struct {
	Start CPtr
	End   CPtr
}

// Len returns the number of slots in the range
func (r SlotRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// BootInfo is what the boot environment hands to the memory manager.
type BootInfo struct {
	RootDepth uint8
	Untypeds  []UntypedRegion
	Empty     SlotRange
}

// Kernel is the subset of the microkernel ABI used by the memory manager.
//
// Capability tables are named by the top-level slot holding their CNode
// capability; RootCNodeSlot names the top-level table itself. depth must
// equal the radix of the named table. Untyped and frame capabilities are
// always top-level slots.
type Kernel interface {
	// UntypedRetype creates count objects in slots [offset, offset+count) of
	// the table root.
	UntypedRetype(untyped CPtr, typ ObjectType, sizeBits uint8, root CPtr, depth uint8, offset CPtr, count uint32) error
	UntypedDescribe(untyped CPtr) (UntypedInfo, error)

	Revoke(root, index CPtr, depth uint8) error
	Delete(root, index CPtr, depth uint8) error
	Move(destRoot, destIndex CPtr, destDepth uint8, srcRoot, srcIndex CPtr, srcDepth uint8) error

	PageMap(frame CPtr, vaddr uintptr) error
	PageUnmap(frame CPtr) error
	// View exposes n bytes of the page mapped at vaddr.
	View(vaddr uintptr, n int) ([]byte, error)
}
