package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// requestBundle decodes the body bundle in the table named by the
// X-Cap-Table header and checks it against the client scope.
func (h *Handlers) requestBundle(c *gin.Context) (*objects.Bundle, error) {
	table, err := wire.ParseTable(c.GetHeader(wire.TableHeader))
	if err != nil {
		return nil, err
	}
	var req wire.Bundle
	if err := bind(c, &req); err != nil {
		return nil, err
	}
	b, err := req.Domain(table)
	if err != nil {
		return nil, err
	}
	if err := h.scope.Check(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Alloc retypes the requested objects into the caller's slots
func (h *Handlers) Alloc(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "alloc")

	req, err := h.requestBundle(c)
	if err == nil {
		req, err = h.alloc.Alloc(req)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header(wire.TableHeader, wire.FormatTable(req.Table))
	respond(c, http.StatusOK, wire.FromBundle(req))
}

// AllocCNode allocates a capability table in one of the caller's slots
// and the requested objects inside it
func (h *Handlers) AllocCNode(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "alloc_cnode")

	var (
		req         wire.CNodeRequest
		cnode, objs *objects.Bundle
	)
	err := bind(c, &req)
	if err == nil {
		cnode, objs, err = h.allocCNode(req)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header(wire.TableHeader, wire.FormatTable(objs.Table))
	respond(c, http.StatusOK, wire.NewCNodeResponse(cnode, objs))
}

func (h *Handlers) allocCNode(req wire.CNodeRequest) (*objects.Bundle, *objects.Bundle, error) {
	if err := h.scope.CheckRange(kernel.CPtr(req.CNodeSlot), 1); err != nil {
		return nil, nil, err
	}
	descs, err := req.Descs()
	if err != nil {
		return nil, nil, err
	}
	return h.alloc.AllocInCNode(kernel.CPtr(req.CNodeSlot), descs)
}

// Free deletes the described objects and returns their memory
func (h *Handlers) Free(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "free")

	req, err := h.requestBundle(c)
	if err == nil {
		err = h.alloc.Free(req)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"objects": req.CountObjects(),
	})
}

// Stats returns the allocator counters
func (h *Handlers) Stats(c *gin.Context) {
	respond(c, http.StatusOK, wire.StatsResponse(h.alloc.Stats()))
}

// Debug inspects every slab
func (h *Handlers) Debug(c *gin.Context) {
	respond(c, http.StatusOK, wire.DebugResponse{Slabs: h.alloc.Debug()})
}
