package objects

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// Bundle is a set of kernel objects living in one capability table at one
// addressing depth. Bundles move between components as a unit.
type Bundle struct {
	Table kernel.CPtr
	Depth uint8
	Objs  []Desc
}

// NewBundle creates a bundle in the given table.
func NewBundle(table kernel.CPtr, depth uint8, objs ...Desc) *Bundle {
	return &Bundle{
		Table: table,
		Depth: depth,
		Objs:  objs,
	}
}

// Append adds a descriptor at the tail.
func (b *Bundle) Append(d Desc) {
	b.Objs = append(b.Objs, d)
}

// Len returns the number of descriptors.
func (b *Bundle) Len() int {
	return len(b.Objs)
}

// CountObjects returns the number of objects across all descriptors.
func (b *Bundle) CountObjects() uint64 {
	var n uint64
	for _, d := range b.Objs {
		n += uint64(d.Count)
	}
	return n
}

// SizeBytes returns the total byte size of the bundle.
func (b *Bundle) SizeBytes() (uint64, error) {
	var total uint64
	for _, d := range b.Objs {
		size, err := d.SizeBytes()
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// Normalize sets the size class of intrinsically sized descriptors to
// their intrinsic size.
func (b *Bundle) Normalize() {
	for i, d := range b.Objs {
		b.Objs[i] = d.normalized()
	}
}

// Validate checks every descriptor, that each fits the table and that no
// two slot ranges overlap.
func (b *Bundle) Validate() error {
	for i, d := range b.Objs {
		if err := d.Validate(); err != nil {
			return err
		}
		if err := b.checkRange(d); err != nil {
			return err
		}
		for _, o := range b.Objs[:i] {
			if d.Overlaps(o) {
				return fmt.Errorf("%w: %s overlaps %s", ErrObjDescInvalid, d, o)
			}
		}
	}
	return nil
}

// CheckRanges verifies every descriptor addresses slots of a table of
// 2^Depth slots. It looks at slot ranges only.
func (b *Bundle) CheckRanges() error {
	for _, d := range b.Objs {
		if err := b.checkRange(d); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bundle) checkRange(d Desc) error {
	end := d.End()
	if end < d.Slot {
		return fmt.Errorf("%w: %s wraps the slot space", ErrObjDescInvalid, d)
	}
	if b.Depth < 64 && uint64(end) > uint64(1)<<b.Depth {
		return fmt.Errorf("%w: %s exceeds a table of depth %d", ErrObjDescInvalid, d, b.Depth)
	}
	return nil
}

// CombineAdjacent merges the last two descriptors when they have the same
// type and size class and the second-to-last ends where the last begins.
// It reports whether a merge happened.
func (b *Bundle) CombineAdjacent() bool {
	n := len(b.Objs)
	if n < 2 {
		return false
	}
	prev, last := b.Objs[n-2], b.Objs[n-1]
	if prev.Type != last.Type || prev.SizeClass != last.SizeClass || prev.End() != last.Slot {
		return false
	}
	prev.Count += last.Count
	b.Objs[n-2] = prev
	b.Objs = b.Objs[:n-1]
	return true
}

// Compact applies CombineAdjacent until the tail no longer merges.
func (b *Bundle) Compact() {
	for b.CombineAdjacent() {
	}
}

// Clone returns a deep copy.
func (b *Bundle) Clone() *Bundle {
	objs := make([]Desc, len(b.Objs))
	copy(objs, b.Objs)
	return &Bundle{Table: b.Table, Depth: b.Depth, Objs: objs}
}

// Frames returns the slots of every frame object in order.
func (b *Bundle) Frames() []SlotRef {
	var refs []SlotRef
	for _, d := range b.Objs {
		if d.Type != kernel.Frame {
			continue
		}
		for s := d.Slot; s < d.End(); s++ {
			refs = append(refs, SlotRef{Table: b.Table, Index: s, Depth: b.Depth})
		}
	}
	return refs
}

func (b *Bundle) String() string {
	parts := make([]string, len(b.Objs))
	for i, d := range b.Objs {
		parts[i] = d.String()
	}
	return fmt.Sprintf("bundle{table=%d depth=%d [%s]}", b.Table, b.Depth, strings.Join(parts, " "))
}
