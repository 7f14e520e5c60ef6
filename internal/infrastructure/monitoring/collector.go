package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
)

// StatsSource reports allocator accounting; *memory.Allocator implements it.
type StatsSource interface {
	Stats() memory.Stats
}

// AllocatorCollector exports allocator accounting on every scrape, so the
// metrics never drift from the allocator's own counters.
type AllocatorCollector struct {
	src StatsSource

	totalBytes     *prometheus.Desc
	allocatedBytes *prometheus.Desc
	freeBytes      *prometheus.Desc
	overheadBytes  *prometheus.Desc
	allocatedObjs  *prometheus.Desc
	requestedBytes *prometheus.Desc
	requestedObjs  *prometheus.Desc
	retypeTooSmall *prometheus.Desc
	outOfMemory    *prometheus.Desc
}

// NewAllocatorCollector creates a collector over src
func NewAllocatorCollector(src StatsSource) *AllocatorCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("memmgr_untyped_"+name, help, nil, nil)
	}
	return &AllocatorCollector{
		src:            src,
		totalBytes:     desc("total_bytes", "Bytes of allocatable untyped memory"),
		allocatedBytes: desc("allocated_bytes", "Bytes currently allocated"),
		freeBytes:      desc("free_bytes", "Bytes not currently allocated"),
		overheadBytes:  desc("overhead_bytes", "Bytes consumed before the allocator started"),
		allocatedObjs:  desc("allocated_objects", "Objects currently allocated"),
		requestedBytes: desc("requested_bytes_total", "Bytes ever allocated"),
		requestedObjs:  desc("requested_objects_total", "Objects ever allocated"),
		retypeTooSmall: desc("retype_too_small_total", "Retypes that fell through to the next slab"),
		outOfMemory:    desc("out_of_memory_total", "Descriptors no slab could satisfy"),
	}
}

// Describe implements prometheus.Collector
func (c *AllocatorCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.totalBytes, c.allocatedBytes, c.freeBytes, c.overheadBytes, c.allocatedObjs,
		c.requestedBytes, c.requestedObjs, c.retypeTooSmall, c.outOfMemory,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *AllocatorCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	gauge := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.totalBytes, s.TotalBytes)
	gauge(c.allocatedBytes, s.AllocatedBytes)
	gauge(c.freeBytes, s.FreeBytes)
	gauge(c.overheadBytes, s.OverheadBytes)
	gauge(c.allocatedObjs, s.AllocatedObjs)
	counter(c.requestedBytes, s.TotalRequestedBytes)
	counter(c.requestedObjs, s.TotalRequestedObjs)
	counter(c.retypeTooSmall, s.RetypeTooSmall)
	counter(c.outOfMemory, s.OutOfMemory)
}

// RegisterAllocator exports src's accounting on the metrics registry
func (m *Metrics) RegisterAllocator(src StatsSource) error {
	return m.registry.Register(NewAllocatorCollector(src))
}
