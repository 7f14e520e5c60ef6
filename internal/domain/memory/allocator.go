package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// Slab is one untyped region available for retyping. Its remaining space
// is always read from the kernel, never cached.
type Slab struct {
	Slot      kernel.CPtr
	SizeClass uint8
	Device    bool
}

// Bytes returns the slab size
func (s Slab) Bytes() uint64 {
	return uint64(1) << s.SizeClass
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger used for free-path and bookkeeping warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Allocator turns untyped slabs into typed kernel objects. All state is
// guarded by a single mutex.
type Allocator struct {
	kern      kernel.Kernel
	rootDepth uint8
	logger    *zap.Logger

	mu      sync.Mutex
	slabs   []Slab
	devices []Slab
	cursor  int

	totalBytes     uint64
	overheadBytes  uint64
	allocatedBytes uint64
	requestedBytes uint64
	allocatedObjs  uint64
	requestedObjs  uint64
	retypeTooSmall uint64
	outOfMemory    uint64
}

// New seeds an allocator from the boot environment's untyped regions.
// Tainted regions are revoked first; device regions are kept apart and
// never counted toward total or overhead bytes.
func New(kern kernel.Kernel, info *kernel.BootInfo, opts ...Option) (*Allocator, error) {
	a := &Allocator{
		kern:      kern,
		rootDepth: info.RootDepth,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, r := range info.Untypeds {
		slab := Slab{Slot: r.Slot, SizeClass: r.SizeBits, Device: r.Device}
		if r.Device {
			a.devices = append(a.devices, slab)
			continue
		}
		if r.Tainted {
			if err := kern.Revoke(kernel.RootCNodeSlot, r.Slot, info.RootDepth); err != nil {
				return nil, fmt.Errorf("revoke tainted untyped %d: %w", r.Slot, err)
			}
		}
		desc, err := kern.UntypedDescribe(r.Slot)
		if err != nil {
			return nil, fmt.Errorf("describe untyped %d: %w", r.Slot, err)
		}
		a.totalBytes += slab.Bytes()
		a.overheadBytes += slab.Bytes() - desc.FreeBytes
		a.slabs = append(a.slabs, slab)
	}

	sort.SliceStable(a.slabs, func(i, j int) bool {
		return a.slabs[i].SizeClass > a.slabs[j].SizeClass
	})

	a.logger.Info("untyped allocator ready",
		zap.Int("slabs", len(a.slabs)),
		zap.Int("device_slabs", len(a.devices)),
		zap.Uint64("total_bytes", a.totalBytes),
		zap.Uint64("overhead_bytes", a.overheadBytes),
	)
	return a, nil
}

// Alloc retypes every descriptor of req into req.Table and returns the
// populated bundle. req itself is not modified.
func (a *Allocator) Alloc(req *objects.Bundle) (*objects.Bundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	out := req.Clone()
	out.Normalize()
	size, err := out.SizeBytes()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.slabs) == 0 {
		a.outOfMemory++
		return nil, fmt.Errorf("%w: no untyped slabs", ErrAllocFailed)
	}
	for i, d := range out.Objs {
		if err := a.retype(out.Table, out.Depth, d); err != nil {
			if i > 0 {
				a.logger.Warn("allocation failed after partial retype",
					zap.Stringer("bundle", out),
					zap.Int("retyped_descriptors", i),
					zap.Error(err),
				)
			}
			return nil, err
		}
	}

	objs := out.CountObjects()
	a.allocatedBytes += size
	a.requestedBytes += size
	a.allocatedObjs += objs
	a.requestedObjs += objs
	return out, nil
}

// retype tries d against each slab once, starting at the cursor.
func (a *Allocator) retype(table kernel.CPtr, depth uint8, d objects.Desc) error {
	start := a.cursor
	for {
		slab := a.slabs[a.cursor]
		err := a.kern.UntypedRetype(slab.Slot, d.Type, d.RetypeSizeBits(), table, depth, d.Slot, d.Count)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kernel.ErrNotEnoughMemory) {
			return fmt.Errorf("%w: retype %s from untyped %d: %w", ErrUnknownMemory, d, slab.Slot, err)
		}

		a.retypeTooSmall++
		a.cursor = (a.cursor + 1) % len(a.slabs)
		if a.cursor == start {
			a.outOfMemory++
			return fmt.Errorf("%w: %s", ErrAllocFailed, d)
		}
	}
}

// Free deletes every capability of b and releases its bookkeeping.
// Descriptors whose capabilities cannot be deleted are logged and skipped.
// Bundles with slot ranges outside their table are rejected untouched.
func (a *Allocator) Free(b *objects.Bundle) error {
	_, err := a.Reclaim(b)
	return err
}

// Reclaim is Free that also returns the descriptors with at least one
// capability left undeleted. Their slots must not be reused.
func (a *Allocator) Reclaim(b *objects.Bundle) ([]objects.Desc, error) {
	if err := b.CheckRanges(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		leaked []objects.Desc
		errs   []error
	)
	for _, d := range b.Objs {
		if !a.deleteRange(b.Table, b.Depth, d) {
			leaked = append(leaked, d)
			continue
		}
		size, err := d.SizeBytes()
		if err != nil {
			a.logger.Warn("cannot size freed descriptor", zap.Stringer("desc", d), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if size > a.allocatedBytes || uint64(d.Count) > a.allocatedObjs {
			a.logger.Warn("free exceeds tracked allocation",
				zap.Stringer("desc", d),
				zap.Uint64("size_bytes", size),
				zap.Uint64("allocated_bytes", a.allocatedBytes),
				zap.Uint64("allocated_objs", a.allocatedObjs),
			)
			continue
		}
		a.allocatedBytes -= size
		a.allocatedObjs -= uint64(d.Count)
	}
	return leaked, errors.Join(errs...)
}

func (a *Allocator) deleteRange(table kernel.CPtr, depth uint8, d objects.Desc) bool {
	ok := true
	for slot := d.Slot; slot < d.End(); slot++ {
		if err := a.kern.Delete(table, slot, depth); err != nil {
			a.logger.Warn("capability delete failed",
				zap.Stringer("desc", d),
				zap.Uint64("slot", uint64(slot)),
				zap.Error(err),
			)
			ok = false
		}
	}
	return ok
}

// Cursor returns the index of the slab the next allocation starts from.
func (a *Allocator) Cursor() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// Slabs returns the slab list in selection order.
func (a *Allocator) Slabs() []Slab {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Slab, len(a.slabs))
	copy(out, a.slabs)
	return out
}

// DeviceSlabs returns the device-memory slabs, which are never allocated from.
func (a *Allocator) DeviceSlabs() []Slab {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Slab, len(a.devices))
	copy(out, a.devices)
	return out
}

// RootDepth returns the depth of the top-level table the allocator runs in.
func (a *Allocator) RootDepth() uint8 {
	return a.rootDepth
}
