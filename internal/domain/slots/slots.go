// Package slots hands out capability slots of one table.
package slots

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

var (
	// ErrNoSlots indicates no free run of the requested length exists.
	ErrNoSlots = errors.New("slots: no free slots")

	// ErrSlotRange indicates slots outside the allocator or not allocated.
	ErrSlotRange = errors.New("slots: slot out of range")
)

// Allocator is a first-fit allocator over the slot range [base, base+n).
type Allocator struct {
	name string
	base kernel.CPtr
	used []bool

	mu    sync.Mutex
	inUse int
}

// New creates an allocator for the given range.
func New(name string, r kernel.SlotRange) *Allocator {
	return &Allocator{
		name: name,
		base: r.Start,
		used: make([]bool, r.Len()),
	}
}

// Name returns the allocator name
func (a *Allocator) Name() string {
	return a.name
}

// Alloc reserves count contiguous slots and returns the first.
func (a *Allocator) Alloc(count int) (kernel.CPtr, error) {
	if count <= 0 {
		return 0, fmt.Errorf("%s: invalid slot count %d", a.name, count)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	run := 0
	for i, busy := range a.used {
		if busy {
			run = 0
			continue
		}
		run++
		if run == count {
			first := i - count + 1
			for j := first; j <= i; j++ {
				a.used[j] = true
			}
			a.inUse += count
			return a.base + kernel.CPtr(first), nil
		}
	}
	return 0, fmt.Errorf("%w: %s needs %d", ErrNoSlots, a.name, count)
}

// Next reserves a single slot.
func (a *Allocator) Next() (kernel.CPtr, error) {
	return a.Alloc(1)
}

// Free releases count slots starting at first.
func (a *Allocator) Free(first kernel.CPtr, count int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if first < a.base || count <= 0 || uint64(first-a.base)+uint64(count) > uint64(len(a.used)) {
		return fmt.Errorf("%w: %s [%d, %d)", ErrSlotRange, a.name, first, first+kernel.CPtr(count))
	}
	start := int(first - a.base)
	for i := start; i < start+count; i++ {
		if !a.used[i] {
			return fmt.Errorf("%w: %s slot %d not allocated", ErrSlotRange, a.name, a.base+kernel.CPtr(i))
		}
	}
	for i := start; i < start+count; i++ {
		a.used[i] = false
	}
	a.inUse -= count
	return nil
}

// Used returns the number of allocated slots.
func (a *Allocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Available returns the number of free slots.
func (a *Allocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.used) - a.inUse
}
