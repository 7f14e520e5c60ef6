package memory

import (
	"fmt"
	"math/bits"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// AllocFrames allocates 4 KiB frames covering nbytes at contiguous slots
// starting at slot. Page writers grow their bundles through it.
func (a *Allocator) AllocFrames(table kernel.CPtr, depth uint8, slot kernel.CPtr, nbytes uint64) (*objects.Bundle, error) {
	pages := (nbytes + kernel.PageSize - 1) / kernel.PageSize
	if pages == 0 || pages > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d bytes", ErrObjCountInvalid, nbytes)
	}
	desc := objects.Desc{Type: kernel.Frame, Count: uint32(pages), Slot: slot, SizeClass: kernel.PageBits}
	return a.Alloc(objects.NewBundle(table, depth, desc))
}

// CNodeRadix returns the smallest table radix that holds n objects.
func CNodeRadix(n uint64) uint8 {
	if n <= 2 {
		return 1
	}
	return uint8(bits.Len64(n - 1))
}

// AllocInCNode allocates a capability table at cnodeSlot of the top-level
// table, sized for every object in descs, then allocates the objects into
// it from slot 0 in order. The descriptors' own slots are ignored. If the
// objects cannot be allocated the table is freed again.
func (a *Allocator) AllocInCNode(cnodeSlot kernel.CPtr, descs []objects.Desc) (_, _ *objects.Bundle, err error) {
	var total uint64
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, nil, err
		}
		total += uint64(d.Count)
	}
	if total == 0 {
		return nil, nil, fmt.Errorf("%w: empty request", ErrObjCountInvalid)
	}

	radix := CNodeRadix(total)
	table, err := a.Alloc(objects.NewBundle(kernel.RootCNodeSlot, a.rootDepth,
		objects.Desc{Type: kernel.CNode, Count: 1, Slot: cnodeSlot, SizeClass: radix}))
	if err != nil {
		return nil, nil, err
	}
	held := Own(a, table)
	defer func() {
		if cerr := held.Close(); cerr != nil {
			err = fmt.Errorf("%w (releasing table: %v)", err, cerr)
		}
	}()

	req := objects.NewBundle(cnodeSlot, radix)
	var next kernel.CPtr
	for _, d := range descs {
		d.Slot = next
		next += kernel.CPtr(d.Count)
		req.Append(d)
	}
	objs, err := a.Alloc(req)
	if err != nil {
		return nil, nil, err
	}
	return held.Take(), objs, nil
}
