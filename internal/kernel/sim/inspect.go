package sim

import "github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"

// ObjectInfo describes the object behind a capability.
type ObjectInfo struct {
	Type     kernel.ObjectType
	SizeBits uint8
	Mapped   bool
	Refs     int
}

// Inspect reports what the slot holds. ok is false for an empty or
// unreachable slot.
func (k *Kernel) Inspect(root, index kernel.CPtr, depth uint8) (ObjectInfo, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	table, err := k.lookupSlot(root, index, depth)
	if err != nil {
		return ObjectInfo{}, false
	}
	c, ok := table.slots[index]
	if !ok {
		return ObjectInfo{}, false
	}
	return ObjectInfo{
		Type:     c.obj.typ,
		SizeBits: c.obj.sizeBits,
		Mapped:   c.obj.mapped,
		Refs:     c.obj.refs,
	}, true
}

// FrameContents returns a copy of the bytes backing a frame capability.
func (k *Kernel) FrameContents(root, index kernel.CPtr, depth uint8) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	table, err := k.lookupSlot(root, index, depth)
	if err != nil {
		return nil, err
	}
	c, ok := table.slots[index]
	if !ok {
		return nil, kernel.ErrFailedLookup
	}
	if c.obj.typ != kernel.Frame {
		return nil, kernel.ErrInvalidCapability
	}
	out := make([]byte, len(c.obj.data))
	copy(out, c.obj.data)
	return out, nil
}

// Mappings returns the number of frames currently mapped.
func (k *Kernel) Mappings() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.vspace)
}
