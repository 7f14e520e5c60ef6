package memory

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// Scope confines remote callers to the slots of the service's own table
// that were set aside for them. The rest of that table holds the slabs,
// the image frames and the bounce slot. Bundles in other tables are not
// restricted.
type Scope struct {
	Table kernel.CPtr
	Slots kernel.SlotRange
}

// ClientScope scopes callers to slots of the top-level table.
func ClientScope(slots kernel.SlotRange) Scope {
	return Scope{Table: kernel.RootCNodeSlot, Slots: slots}
}

// Check rejects b if any descriptor in the scoped table leaves Slots.
func (s Scope) Check(b *objects.Bundle) error {
	if b.Table != s.Table {
		return nil
	}
	for _, d := range b.Objs {
		if err := s.CheckRange(d.Slot, d.Count); err != nil {
			return err
		}
	}
	return nil
}

// CheckRange rejects count slots from first unless all lie in Slots.
func (s Scope) CheckRange(first kernel.CPtr, count uint32) error {
	end := first + kernel.CPtr(count)
	if first < s.Slots.Start || end > s.Slots.End || end < first {
		return fmt.Errorf("%w: slots %d..%d outside client slots %d..%d",
			ErrObjDescInvalid, first, end, s.Slots.Start, s.Slots.End)
	}
	return nil
}
