package sim

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

var _ kernel.Kernel = (*Kernel)(nil)

// Op names a kernel invocation for fault injection.
type Op string

const (
	OpRetype    Op = "retype"
	OpDescribe  Op = "describe"
	OpRevoke    Op = "revoke"
	OpDelete    Op = "delete"
	OpMove      Op = "move"
	OpCopy      Op = "copy"
	OpPageMap   Op = "page_map"
	OpPageUnmap Op = "page_unmap"
)

// Region describes one untyped region of the simulated boot environment.
type Region struct {
	SizeBits uint8
	Paddr    uint64
	Device   bool
	Tainted  bool
	// UsedBytes is memory already consumed by the boot environment.
	UsedBytes uint64
}

// Options configures the simulated top-level capability table.
type Options struct {
	RootRadix        uint8
	FirstUntypedSlot kernel.CPtr
}

// DefaultOptions returns a 4096-slot top-level table with untypeds from slot 16.
func DefaultOptions() Options {
	return Options{
		RootRadix:        12,
		FirstUntypedSlot: 16,
	}
}

type untypedState struct {
	watermark uint64
	children  int
	bootUsed  bool
	paddr     uint64
	device    bool
}

type object struct {
	typ      kernel.ObjectType
	sizeBits uint8
	parent   *object
	refs     int

	ut    *untypedState
	table *cnode
	data  []byte

	mapped bool
	vaddr  uintptr
}

type capability struct {
	obj *object
}

type cnode struct {
	radix uint8
	slots map[kernel.CPtr]*capability
}

// Kernel is an in-memory microkernel with seL4-style untyped retype,
// capability tables and a single address space.
type Kernel struct {
	mu     sync.Mutex
	root   *cnode
	vspace map[uintptr]*object
	faults map[Op][]error
}

// New boots a simulated kernel holding one untyped capability per region.
func New(opts Options, regions []Region) (*Kernel, *kernel.BootInfo, error) {
	if opts.RootRadix == 0 {
		opts.RootRadix = DefaultOptions().RootRadix
	}
	if opts.FirstUntypedSlot == 0 {
		opts.FirstUntypedSlot = DefaultOptions().FirstUntypedSlot
	}
	capacity := kernel.CPtr(1) << opts.RootRadix
	if opts.FirstUntypedSlot <= kernel.RootCNodeSlot {
		return nil, nil, fmt.Errorf("first untyped slot %d overlaps reserved slots", opts.FirstUntypedSlot)
	}
	if opts.FirstUntypedSlot+kernel.CPtr(len(regions)) > capacity {
		return nil, nil, fmt.Errorf("%d regions do not fit a table of %d slots", len(regions), capacity)
	}

	k := &Kernel{
		root:   &cnode{radix: opts.RootRadix, slots: make(map[kernel.CPtr]*capability)},
		vspace: make(map[uintptr]*object),
		faults: make(map[Op][]error),
	}
	self := &object{typ: kernel.CNode, sizeBits: opts.RootRadix + kernel.SlotBits, table: k.root, refs: 1}
	k.root.slots[kernel.RootCNodeSlot] = &capability{obj: self}

	info := &kernel.BootInfo{RootDepth: opts.RootRadix}
	for i, r := range regions {
		if r.SizeBits < kernel.MinUntypedBits || r.SizeBits > kernel.MaxUntypedBits {
			return nil, nil, fmt.Errorf("region %d: size bits %d out of range", i, r.SizeBits)
		}
		size := uint64(1) << r.SizeBits
		if r.UsedBytes > size {
			return nil, nil, fmt.Errorf("region %d: used bytes %d exceed size %d", i, r.UsedBytes, size)
		}
		slot := opts.FirstUntypedSlot + kernel.CPtr(i)
		ut := &object{
			typ:      kernel.Untyped,
			sizeBits: r.SizeBits,
			refs:     1,
			ut: &untypedState{
				watermark: r.UsedBytes,
				bootUsed:  r.UsedBytes > 0 || r.Tainted,
				paddr:     r.Paddr,
				device:    r.Device,
			},
		}
		k.root.slots[slot] = &capability{obj: ut}
		info.Untypeds = append(info.Untypeds, kernel.UntypedRegion{
			Slot:     slot,
			SizeBits: r.SizeBits,
			Paddr:    r.Paddr,
			Device:   r.Device,
			Tainted:  r.Tainted,
		})
	}
	info.Empty = kernel.SlotRange{
		Start: opts.FirstUntypedSlot + kernel.CPtr(len(regions)),
		End:   capacity,
	}
	return k, info, nil
}

// FailNext makes the next invocation of op return err.
func (k *Kernel) FailNext(op Op, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.faults[op] = append(k.faults[op], err)
}

func (k *Kernel) fault(op Op) error {
	queue := k.faults[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	k.faults[op] = queue[1:]
	return err
}

// lookupTable resolves a table named by its top-level slot.
func (k *Kernel) lookupTable(root kernel.CPtr, depth uint8) (*cnode, error) {
	c, ok := k.root.slots[root]
	if !ok {
		return nil, kernel.ErrFailedLookup
	}
	if c.obj.typ != kernel.CNode {
		return nil, kernel.ErrInvalidCapability
	}
	if c.obj.table.radix != depth {
		return nil, kernel.ErrFailedLookup
	}
	return c.obj.table, nil
}

func (k *Kernel) lookupSlot(root, index kernel.CPtr, depth uint8) (*cnode, error) {
	table, err := k.lookupTable(root, depth)
	if err != nil {
		return nil, err
	}
	if index >= kernel.CPtr(1)<<table.radix {
		return nil, kernel.ErrRangeError
	}
	return table, nil
}

func (k *Kernel) topLevel(slot kernel.CPtr, typ kernel.ObjectType) (*object, error) {
	c, ok := k.root.slots[slot]
	if !ok {
		return nil, kernel.ErrFailedLookup
	}
	if c.obj.typ != typ {
		return nil, kernel.ErrInvalidCapability
	}
	return c.obj, nil
}

func objectBits(typ kernel.ObjectType, sizeBits uint8) (uint8, error) {
	if bits, ok := typ.FixedSizeBits(); ok {
		return bits, nil
	}
	switch typ {
	case kernel.Frame:
		if sizeBits < kernel.PageBits || sizeBits > kernel.LargePageBits {
			return 0, kernel.ErrInvalidArgument
		}
		return sizeBits, nil
	case kernel.CNode:
		if sizeBits < 1 || int(sizeBits)+kernel.SlotBits > kernel.MaxUntypedBits {
			return 0, kernel.ErrInvalidArgument
		}
		return sizeBits + kernel.SlotBits, nil
	case kernel.Untyped:
		if sizeBits < kernel.MinUntypedBits || sizeBits > kernel.MaxUntypedBits {
			return 0, kernel.ErrInvalidArgument
		}
		return sizeBits, nil
	}
	return 0, kernel.ErrInvalidArgument
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// UntypedRetype implements kernel.Kernel.
func (k *Kernel) UntypedRetype(untyped kernel.CPtr, typ kernel.ObjectType, sizeBits uint8, root kernel.CPtr, depth uint8, offset kernel.CPtr, count uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpRetype); err != nil {
		return err
	}
	ut, err := k.topLevel(untyped, kernel.Untyped)
	if err != nil {
		return err
	}
	if !typ.Valid() || count == 0 {
		return kernel.ErrInvalidArgument
	}
	if ut.ut.device && typ != kernel.Frame && typ != kernel.Untyped {
		return kernel.ErrInvalidArgument
	}
	bits, err := objectBits(typ, sizeBits)
	if err != nil {
		return err
	}

	table, err := k.lookupTable(root, depth)
	if err != nil {
		return err
	}
	if uint64(offset)+uint64(count) > uint64(1)<<table.radix {
		return kernel.ErrRangeError
	}
	for i := uint32(0); i < count; i++ {
		if _, busy := table.slots[offset+kernel.CPtr(i)]; busy {
			return kernel.ErrDeleteFirst
		}
	}

	state := ut.ut
	if state.children == 0 && !state.bootUsed {
		state.watermark = 0
	}
	size := uint64(1) << ut.sizeBits
	if bits > ut.sizeBits {
		return kernel.ErrNotEnoughMemory
	}
	objSize := uint64(1) << bits
	start := alignUp(state.watermark, objSize)
	if start > size || uint64(count) > (size-start)/objSize {
		return kernel.ErrNotEnoughMemory
	}

	for i := uint32(0); i < count; i++ {
		obj := &object{typ: typ, sizeBits: bits, parent: ut, refs: 1}
		switch typ {
		case kernel.Frame:
			obj.data = make([]byte, objSize)
		case kernel.CNode:
			obj.table = &cnode{radix: sizeBits, slots: make(map[kernel.CPtr]*capability)}
		case kernel.Untyped:
			obj.ut = &untypedState{paddr: state.paddr + start + uint64(i)*objSize, device: state.device}
		}
		table.slots[offset+kernel.CPtr(i)] = &capability{obj: obj}
		state.children++
	}
	state.watermark = start + uint64(count)*objSize
	return nil
}

// UntypedDescribe implements kernel.Kernel.
func (k *Kernel) UntypedDescribe(untyped kernel.CPtr) (kernel.UntypedInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpDescribe); err != nil {
		return kernel.UntypedInfo{}, err
	}
	ut, err := k.topLevel(untyped, kernel.Untyped)
	if err != nil {
		return kernel.UntypedInfo{}, err
	}
	size := uint64(1) << ut.sizeBits
	free := size - ut.ut.watermark
	if ut.ut.children == 0 && !ut.ut.bootUsed {
		free = size
	}
	return kernel.UntypedInfo{
		SizeBits:  ut.sizeBits,
		FreeBytes: free,
		Paddr:     ut.ut.paddr,
		Device:    ut.ut.device,
	}, nil
}

// Revoke implements kernel.Kernel. Revoking an untyped deletes every object
// retyped from it and discards any boot-time usage.
func (k *Kernel) Revoke(root, index kernel.CPtr, depth uint8) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpRevoke); err != nil {
		return err
	}
	table, err := k.lookupSlot(root, index, depth)
	if err != nil {
		return err
	}
	c, ok := table.slots[index]
	if !ok {
		return nil
	}
	target := c.obj
	k.walk(func(t *cnode, slot kernel.CPtr, other *capability) {
		if descends(other.obj, target) || (other.obj == target && other != c) {
			k.removeCap(t, slot)
		}
	})
	if target.ut != nil {
		target.ut.watermark = 0
		target.ut.bootUsed = false
	}
	return nil
}

func descends(obj, ancestor *object) bool {
	for p := obj.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// walk visits every capability reachable from the top-level table.
func (k *Kernel) walk(fn func(*cnode, kernel.CPtr, *capability)) {
	type entry struct {
		table *cnode
		slot  kernel.CPtr
		cap   *capability
	}
	var entries []entry
	seen := map[*cnode]bool{}
	var visit func(*cnode)
	visit = func(t *cnode) {
		if seen[t] {
			return
		}
		seen[t] = true
		for slot, c := range t.slots {
			entries = append(entries, entry{t, slot, c})
			if c.obj.table != nil {
				visit(c.obj.table)
			}
		}
	}
	visit(k.root)
	for _, e := range entries {
		if e.table.slots[e.slot] == e.cap {
			fn(e.table, e.slot, e.cap)
		}
	}
}

func (k *Kernel) removeCap(t *cnode, slot kernel.CPtr) {
	c, ok := t.slots[slot]
	if !ok {
		return
	}
	delete(t.slots, slot)
	c.obj.refs--
	if c.obj.refs == 0 {
		k.destroy(c.obj)
	}
}

func (k *Kernel) destroy(obj *object) {
	if obj.mapped {
		delete(k.vspace, obj.vaddr)
		obj.mapped = false
	}
	if obj.table != nil {
		for slot := range obj.table.slots {
			k.removeCap(obj.table, slot)
		}
	}
	if obj.parent != nil {
		obj.parent.ut.children--
	}
}

// Delete implements kernel.Kernel. Deleting an empty slot succeeds.
func (k *Kernel) Delete(root, index kernel.CPtr, depth uint8) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpDelete); err != nil {
		return err
	}
	table, err := k.lookupSlot(root, index, depth)
	if err != nil {
		return err
	}
	c, ok := table.slots[index]
	if !ok {
		return nil
	}
	if c.obj.table == k.root {
		return kernel.ErrIllegalOperation
	}
	if c.obj.refs == 1 && c.obj.ut != nil && c.obj.ut.children > 0 {
		return kernel.ErrRevokeFirst
	}
	k.removeCap(table, index)
	return nil
}

// Move implements kernel.Kernel.
func (k *Kernel) Move(destRoot, destIndex kernel.CPtr, destDepth uint8, srcRoot, srcIndex kernel.CPtr, srcDepth uint8) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpMove); err != nil {
		return err
	}
	src, dst, err := k.transferSlots(destRoot, destIndex, destDepth, srcRoot, srcIndex, srcDepth)
	if err != nil {
		return err
	}
	dst.slots[destIndex] = src.slots[srcIndex]
	delete(src.slots, srcIndex)
	return nil
}

// Copy duplicates a capability; both copies name the same object.
func (k *Kernel) Copy(destRoot, destIndex kernel.CPtr, destDepth uint8, srcRoot, srcIndex kernel.CPtr, srcDepth uint8) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpCopy); err != nil {
		return err
	}
	src, dst, err := k.transferSlots(destRoot, destIndex, destDepth, srcRoot, srcIndex, srcDepth)
	if err != nil {
		return err
	}
	obj := src.slots[srcIndex].obj
	obj.refs++
	dst.slots[destIndex] = &capability{obj: obj}
	return nil
}

func (k *Kernel) transferSlots(destRoot, destIndex kernel.CPtr, destDepth uint8, srcRoot, srcIndex kernel.CPtr, srcDepth uint8) (*cnode, *cnode, error) {
	src, err := k.lookupSlot(srcRoot, srcIndex, srcDepth)
	if err != nil {
		return nil, nil, err
	}
	dst, err := k.lookupSlot(destRoot, destIndex, destDepth)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := src.slots[srcIndex]; !ok {
		return nil, nil, kernel.ErrFailedLookup
	}
	if _, busy := dst.slots[destIndex]; busy {
		return nil, nil, kernel.ErrDeleteFirst
	}
	return src, dst, nil
}

// PageMap implements kernel.Kernel.
func (k *Kernel) PageMap(frame kernel.CPtr, vaddr uintptr) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpPageMap); err != nil {
		return err
	}
	obj, err := k.topLevel(frame, kernel.Frame)
	if err != nil {
		return err
	}
	if obj.mapped {
		return kernel.ErrInvalidCapability
	}
	if uint64(vaddr)%(uint64(1)<<obj.sizeBits) != 0 {
		return kernel.ErrAlignmentError
	}
	if _, busy := k.vspace[vaddr]; busy {
		return kernel.ErrDeleteFirst
	}
	k.vspace[vaddr] = obj
	obj.mapped = true
	obj.vaddr = vaddr
	return nil
}

// PageUnmap implements kernel.Kernel. Unmapping an unmapped frame succeeds.
func (k *Kernel) PageUnmap(frame kernel.CPtr) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.fault(OpPageUnmap); err != nil {
		return err
	}
	obj, err := k.topLevel(frame, kernel.Frame)
	if err != nil {
		return err
	}
	if !obj.mapped {
		return nil
	}
	delete(k.vspace, obj.vaddr)
	obj.mapped = false
	return nil
}

// View implements kernel.Kernel.
func (k *Kernel) View(vaddr uintptr, n int) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	obj, ok := k.vspace[vaddr]
	if !ok {
		return nil, kernel.ErrFailedLookup
	}
	if n < 0 || n > len(obj.data) {
		return nil, kernel.ErrRangeError
	}
	return obj.data[:n:n], nil
}
