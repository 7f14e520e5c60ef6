// Package wire defines the payloads exchanged with memory manager clients.
//
// Bundles travel as {depth, objs}; the capability table they live in is
// carried out of band (the X-Cap-Table header, or x-cap-table gRPC
// metadata) because it names a slot of the caller's own table.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

const (
	// TableHeader carries the capability table over HTTP.
	TableHeader = "X-Cap-Table"
	// TableMetadataKey carries the capability table over gRPC.
	TableMetadataKey = "x-cap-table"
)

// ErrBadRequest indicates a payload that cannot be decoded.
var ErrBadRequest = errors.New("wire: bad request")

// API is the JSON configuration shared by the HTTP and gRPC codecs.
var API = sonic.ConfigStd

// Desc is an object descriptor on the wire.
type Desc struct {
	Type      string `json:"type"`
	Count     uint32 `json:"count"`
	Slot      uint64 `json:"slot"`
	SizeClass uint8  `json:"size_class,omitempty"`
}

// Bundle is an object bundle on the wire, without its table.
type Bundle struct {
	Depth uint8  `json:"depth"`
	Objs  []Desc `json:"objs"`
}

// FromBundle converts a domain bundle.
func FromBundle(b *objects.Bundle) Bundle {
	out := Bundle{Depth: b.Depth, Objs: make([]Desc, len(b.Objs))}
	for i, d := range b.Objs {
		out.Objs[i] = Desc{
			Type:      d.Type.String(),
			Count:     d.Count,
			Slot:      uint64(d.Slot),
			SizeClass: d.SizeClass,
		}
	}
	return out
}

// Domain converts to a domain bundle in table.
func (b Bundle) Domain(table kernel.CPtr) (*objects.Bundle, error) {
	out := objects.NewBundle(table, b.Depth)
	for i, d := range b.Objs {
		typ, err := kernel.ParseObjectType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: objs[%d]: %w", objects.ErrObjTypeInvalid, i, err)
		}
		out.Append(objects.Desc{Type: typ, Count: d.Count, Slot: kernel.CPtr(d.Slot), SizeClass: d.SizeClass})
	}
	return out, nil
}

// CNodeRequest asks for a fresh capability table at CNodeSlot of the
// caller's top-level table, filled with Objs from slot 0 in order.
// Descriptor slots are ignored.
type CNodeRequest struct {
	CNodeSlot uint64 `json:"cnode_slot"`
	Objs      []Desc `json:"objs"`
}

// Descs converts the requested descriptors.
func (r CNodeRequest) Descs() ([]objects.Desc, error) {
	b, err := Bundle{Objs: r.Objs}.Domain(kernel.RootCNodeSlot)
	if err != nil {
		return nil, err
	}
	return b.Objs, nil
}

// CNodeResponse holds the new table, which lives in the top-level table,
// and the objects inside it, which live in table Table.
type CNodeResponse struct {
	CNode   Bundle `json:"cnode"`
	Table   uint64 `json:"table"`
	Objects Bundle `json:"objects"`
}

// NewCNodeResponse converts the bundles returned by AllocInCNode.
func NewCNodeResponse(cnode, objs *objects.Bundle) CNodeResponse {
	return CNodeResponse{
		CNode:   FromBundle(cnode),
		Table:   uint64(objs.Table),
		Objects: FromBundle(objs),
	}
}

// ParseTable parses a table reference. Empty means the caller's own
// top-level table.
func ParseTable(s string) (kernel.CPtr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return kernel.RootCNodeSlot, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: table %q: %w", ErrBadRequest, s, err)
	}
	return kernel.CPtr(v), nil
}

// FormatTable formats a table reference for TableHeader.
func FormatTable(table kernel.CPtr) string {
	return strconv.FormatUint(uint64(table), 10)
}

// StatsResponse reports allocator counters.
type StatsResponse = memory.Stats

// DebugResponse is the per-slab dump.
type DebugResponse struct {
	Slabs []memory.SlabInfo `json:"slabs"`
}

// Upload describes a stored image.
type Upload struct {
	ID        string    `json:"id"`
	Length    int64     `json:"length"`
	Encoding  string    `json:"encoding"`
	Table     uint64    `json:"table"`
	Bundle    Bundle    `json:"bundle"`
	CreatedAt time.Time `json:"created_at"`
}

// FromImage converts a stored image.
func FromImage(img upload.Image) Upload {
	return Upload{
		ID:        img.ID.String(),
		Length:    img.Length,
		Encoding:  string(img.Encoding),
		Table:     uint64(img.Bundle.Table),
		Bundle:    FromBundle(img.Bundle),
		CreatedAt: img.CreatedAt,
	}
}

// UploadList is the response of the upload listing.
type UploadList struct {
	Uploads []Upload `json:"uploads"`
	Count   int      `json:"count"`
}

// Error is the body of every failed response.
type Error struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Err rebuilds the error described by the body.
func (e Error) Err() error {
	return CodeError(e.Code, e.Message)
}

// NewError builds the body for err.
func NewError(err error) Error {
	return Error{Code: Code(err), Message: err.Error()}
}
