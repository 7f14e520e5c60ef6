package memory

import "go.uber.org/zap"

// Stats is a point-in-time snapshot of allocator accounting.
type Stats struct {
	TotalBytes          uint64 `json:"total_bytes"`
	AllocatedBytes      uint64 `json:"allocated_bytes"`
	FreeBytes           uint64 `json:"free_bytes"`
	TotalRequestedBytes uint64 `json:"total_requested_bytes"`
	OverheadBytes       uint64 `json:"overhead_bytes"`
	AllocatedObjs       uint64 `json:"allocated_objs"`
	TotalRequestedObjs  uint64 `json:"total_requested_objs"`
	RetypeTooSmall      uint64 `json:"retype_too_small"`
	OutOfMemory         uint64 `json:"out_of_memory"`
}

// Stats returns the current accounting snapshot.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Stats{
		TotalBytes:          a.totalBytes,
		AllocatedBytes:      a.allocatedBytes,
		FreeBytes:           a.totalBytes - a.allocatedBytes,
		TotalRequestedBytes: a.requestedBytes,
		OverheadBytes:       a.overheadBytes,
		AllocatedObjs:       a.allocatedObjs,
		TotalRequestedObjs:  a.requestedObjs,
		RetypeTooSmall:      a.retypeTooSmall,
		OutOfMemory:         a.outOfMemory,
	}
}

// SlabInfo is the diagnostic view of one slab.
type SlabInfo struct {
	Slot           uint64 `json:"slot"`
	SizeClass      uint8  `json:"size_class"`
	Device         bool   `json:"device"`
	Current        bool   `json:"current"`
	TotalBytes     uint64 `json:"total_bytes"`
	FreeBytes      uint64 `json:"free_bytes"`
	AllocatedBytes uint64 `json:"allocated_bytes"`
	Error          string `json:"error,omitempty"`
}

// Debug inspects every slab for its remaining space and logs the result.
// Device slabs are listed after the allocatable ones.
func (a *Allocator) Debug() []SlabInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	infos := make([]SlabInfo, 0, len(a.slabs)+len(a.devices))
	for i, s := range a.slabs {
		infos = append(infos, a.inspect(s, i == a.cursor))
	}
	for _, s := range a.devices {
		infos = append(infos, a.inspect(s, false))
	}

	for _, info := range infos {
		a.logger.Info("untyped slab",
			zap.Uint64("slot", info.Slot),
			zap.Uint8("size_class", info.SizeClass),
			zap.Bool("device", info.Device),
			zap.Bool("current", info.Current),
			zap.Uint64("allocated_bytes", info.AllocatedBytes),
			zap.Uint64("free_bytes", info.FreeBytes),
		)
	}
	return infos
}

func (a *Allocator) inspect(s Slab, current bool) SlabInfo {
	info := SlabInfo{
		Slot:       uint64(s.Slot),
		SizeClass:  s.SizeClass,
		Device:     s.Device,
		Current:    current,
		TotalBytes: s.Bytes(),
	}
	desc, err := a.kern.UntypedDescribe(s.Slot)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.FreeBytes = desc.FreeBytes
	info.AllocatedBytes = info.TotalBytes - desc.FreeBytes
	return info
}
