package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// Version is reported by Root.
const Version = "0.3.0"

// Layout describes how the service splits its capability table.
type Layout struct {
	RootDepth   uint8
	ClientSlots kernel.SlotRange
	UploadSlots kernel.SlotRange
	Bounce      kernel.CPtr
}

// Option configures Handlers.
type Option func(*Handlers)

// WithMetrics records operation metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLayout publishes the slot layout on /health and confines requests
// against the top-level table to its client slots.
func WithLayout(l Layout) Option {
	return func(h *Handlers) {
		h.layout = l
		h.scope = memory.ClientScope(l.ClientSlots)
	}
}

// Handlers contains all HTTP handlers
type Handlers struct {
	alloc   *memory.Allocator
	uploads *upload.Store
	layout  Layout
	scope   memory.Scope
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates a new handler set. Without WithLayout no slot of
// the top-level table is open to callers.
func NewHandlers(alloc *memory.Allocator, uploads *upload.Store, opts ...Option) *Handlers {
	h := &Handlers{
		alloc:   alloc,
		uploads: uploads,
		scope:   memory.ClientScope(kernel.SlotRange{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.POST("/v1/alloc", h.Alloc)
	r.POST("/v1/alloc/cnode", h.AllocCNode)
	r.POST("/v1/free", h.Free)
	r.GET("/v1/stats", h.Stats)
	r.GET("/v1/debug", h.Debug)

	r.POST("/v1/uploads", h.CreateUpload)
	r.GET("/v1/uploads", h.ListUploads)
	r.GET("/v1/uploads/:id", h.GetUpload)
	r.DELETE("/v1/uploads/:id", h.DeleteUpload)
}

// Root reports the service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "memmgr",
		"version": Version,
	})
}

// Health reports allocator totals and the slot layout
func (h *Handlers) Health(c *gin.Context) {
	stats := h.alloc.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"memory": gin.H{
			"total_bytes": stats.TotalBytes,
			"free_bytes":  stats.FreeBytes,
			"slabs":       len(h.alloc.Slabs()),
		},
		"uploads": h.uploads.Len(),
		"layout": gin.H{
			"root_depth":   h.layout.RootDepth,
			"client_slots": slotRange(h.layout.ClientSlots),
			"upload_slots": slotRange(h.layout.UploadSlots),
			"bounce":       uint64(h.layout.Bounce),
		},
	})
}

func slotRange(r kernel.SlotRange) gin.H {
	return gin.H{"start": uint64(r.Start), "end": uint64(r.End)}
}
