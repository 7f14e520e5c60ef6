package rpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// Option configures Server.
type Option func(*Server)

// WithMetrics records operation metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScope confines calls against the top-level table to scope.
func WithScope(scope memory.Scope) Option {
	return func(s *Server) {
		s.scope = scope
	}
}

// Server implements MemoryManagerServer over an allocator. Without
// WithScope no slot of the top-level table is open to callers.
type Server struct {
	alloc   *memory.Allocator
	scope   memory.Scope
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

var _ MemoryManagerServer = (*Server)(nil)

// NewServer creates a server.
func NewServer(alloc *memory.Allocator, opts ...Option) *Server {
	s := &Server{
		alloc:  alloc,
		scope:  memory.ClientScope(kernel.SlotRange{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allocate retypes the requested objects into the caller's slots.
func (s *Server) Allocate(ctx context.Context, req *wire.Bundle) (*wire.Bundle, error) {
	timer := monitoring.NewTimer(s.metrics, "alloc")

	b, err := s.requestBundle(ctx, req)
	if err == nil {
		b, err = s.alloc.Alloc(b)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		return nil, s.toStatus(ctx, MethodAllocate, err)
	}

	resp := wire.FromBundle(b)
	return &resp, nil
}

// AllocateInCNode allocates a table in one of the caller's slots and the
// requested objects inside it.
func (s *Server) AllocateInCNode(ctx context.Context, req *wire.CNodeRequest) (*wire.CNodeResponse, error) {
	timer := monitoring.NewTimer(s.metrics, "alloc_cnode")

	var cnode, objs *objects.Bundle
	slot := kernel.CPtr(req.CNodeSlot)
	err := s.scope.CheckRange(slot, 1)
	if err == nil {
		var descs []objects.Desc
		if descs, err = req.Descs(); err == nil {
			cnode, objs, err = s.alloc.AllocInCNode(slot, descs)
		}
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		return nil, s.toStatus(ctx, MethodAllocateInCNode, err)
	}

	resp := wire.NewCNodeResponse(cnode, objs)
	return &resp, nil
}

// Free deletes the described objects.
func (s *Server) Free(ctx context.Context, req *wire.Bundle) (*FreeResponse, error) {
	timer := monitoring.NewTimer(s.metrics, "free")

	b, err := s.requestBundle(ctx, req)
	if err == nil {
		err = s.alloc.Free(b)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		return nil, s.toStatus(ctx, MethodFree, err)
	}
	return &FreeResponse{Objects: b.CountObjects()}, nil
}

// Stats returns the allocator counters.
func (s *Server) Stats(_ context.Context, _ *Empty) (*wire.StatsResponse, error) {
	stats := s.alloc.Stats()
	return &stats, nil
}

// Debug inspects every slab.
func (s *Server) Debug(_ context.Context, _ *Empty) (*wire.DebugResponse, error) {
	return &wire.DebugResponse{Slabs: s.alloc.Debug()}, nil
}

func (s *Server) requestBundle(ctx context.Context, req *wire.Bundle) (*objects.Bundle, error) {
	table, err := wire.ParseTable(tableFromContext(ctx))
	if err != nil {
		return nil, err
	}
	b, err := req.Domain(table)
	if err != nil {
		return nil, err
	}
	if err := s.scope.Check(b); err != nil {
		return nil, err
	}
	return b, nil
}

func tableFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(wire.TableMetadataKey); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// grpcCode maps an error to its gRPC status code
func grpcCode(err error) codes.Code {
	switch wire.KindOf(err) {
	case wire.KindExhausted, wire.KindTooLarge:
		return codes.ResourceExhausted
	case wire.KindInvalid:
		return codes.InvalidArgument
	case wire.KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// toStatus converts err to a status error and sends its wire code as a
// trailer so clients can rebuild the sentinel.
func (s *Server) toStatus(ctx context.Context, method string, err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		s.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	if terr := grpc.SetTrailer(ctx, metadata.Pairs(ErrorCodeKey, wire.Code(err))); terr != nil {
		s.logger.Debug("cannot set error trailer", zap.Error(terr))
	}
	return status.Error(code, err.Error())
}
