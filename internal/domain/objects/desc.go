package objects

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

var (
	// ErrObjTypeInvalid indicates a type/size-class pair with no defined size.
	ErrObjTypeInvalid = errors.New("objects: object type invalid")

	// ErrObjCountInvalid indicates a descriptor with a zero object count.
	ErrObjCountInvalid = errors.New("objects: object count invalid")

	// ErrObjDescInvalid indicates descriptors whose slot ranges overlap or
	// fall outside the table they name.
	ErrObjDescInvalid = errors.New("objects: object descriptor invalid")
)

// Desc describes Count contiguous objects of one type occupying slots
// [Slot, Slot+Count) of a capability table.
//
// SizeClass is the caller-supplied size for frames (log2 bytes), cnodes
// (log2 slots) and untypeds (log2 bytes). Intrinsically sized types take 0
// or their intrinsic size.
type Desc struct {
	Type      kernel.ObjectType
	Count     uint32
	Slot      kernel.CPtr
	SizeClass uint8
}

// NewDesc returns a validated descriptor with its size class normalized.
func NewDesc(typ kernel.ObjectType, count uint32, slot kernel.CPtr, sizeClass uint8) (Desc, error) {
	d := Desc{Type: typ, Count: count, Slot: slot, SizeClass: sizeClass}
	if err := d.Validate(); err != nil {
		return Desc{}, err
	}
	return d.normalized(), nil
}

func (d Desc) normalized() Desc {
	if bits, ok := d.Type.FixedSizeBits(); ok {
		d.SizeClass = bits
	}
	return d
}

// Validate checks the count and the type/size-class pair.
func (d Desc) Validate() error {
	if d.Count == 0 {
		return fmt.Errorf("%w: %s", ErrObjCountInvalid, d)
	}
	if _, err := d.ObjectBits(); err != nil {
		return err
	}
	return nil
}

// RetypeSizeBits is the size_bits argument the kernel retype call expects.
func (d Desc) RetypeSizeBits() uint8 {
	if _, ok := d.Type.FixedSizeBits(); ok {
		return 0
	}
	return d.SizeClass
}

// ObjectBits returns log2 of the byte size of one object.
func (d Desc) ObjectBits() (uint8, error) {
	if bits, ok := d.Type.FixedSizeBits(); ok {
		if d.SizeClass != 0 && d.SizeClass != bits {
			return 0, fmt.Errorf("%w: %s size class %d", ErrObjTypeInvalid, d.Type, d.SizeClass)
		}
		return bits, nil
	}
	switch d.Type {
	case kernel.Frame:
		if d.SizeClass >= kernel.PageBits && d.SizeClass <= kernel.LargePageBits {
			return d.SizeClass, nil
		}
	case kernel.CNode:
		if d.SizeClass >= 1 && int(d.SizeClass)+kernel.SlotBits <= kernel.MaxUntypedBits {
			return d.SizeClass + kernel.SlotBits, nil
		}
	case kernel.Untyped:
		if d.SizeClass >= kernel.MinUntypedBits && d.SizeClass <= kernel.MaxUntypedBits {
			return d.SizeClass, nil
		}
	}
	return 0, fmt.Errorf("%w: %s size class %d", ErrObjTypeInvalid, d.Type, d.SizeClass)
}

// ObjectBytes returns the byte size of one object.
func (d Desc) ObjectBytes() (uint64, error) {
	bits, err := d.ObjectBits()
	if err != nil {
		return 0, err
	}
	return uint64(1) << bits, nil
}

// SizeBytes returns the byte size of all Count objects.
func (d Desc) SizeBytes() (uint64, error) {
	if d.Count == 0 {
		return 0, fmt.Errorf("%w: %s", ErrObjCountInvalid, d)
	}
	size, err := d.ObjectBytes()
	if err != nil {
		return 0, err
	}
	return size * uint64(d.Count), nil
}

// End returns the first slot after the descriptor's range.
func (d Desc) End() kernel.CPtr {
	return d.Slot + kernel.CPtr(d.Count)
}

// Overlaps reports whether the slot ranges of d and o intersect.
func (d Desc) Overlaps(o Desc) bool {
	return d.Slot < o.End() && o.Slot < d.End()
}

func (d Desc) String() string {
	return fmt.Sprintf("%s[%d]@%d/%d", d.Type, d.Count, d.Slot, d.SizeClass)
}

// SlotRef names a single capability slot.
type SlotRef struct {
	Table kernel.CPtr
	Index kernel.CPtr
	Depth uint8
}
