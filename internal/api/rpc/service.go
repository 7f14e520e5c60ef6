package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "memmgr.MemoryManager"

// Full method names
const (
	MethodAllocate        = "/" + ServiceName + "/Allocate"
	MethodAllocateInCNode = "/" + ServiceName + "/AllocateInCNode"
	MethodFree            = "/" + ServiceName + "/Free"
	MethodStats           = "/" + ServiceName + "/Stats"
	MethodDebug           = "/" + ServiceName + "/Debug"
)

// ErrorCodeKey is the trailer carrying the wire error code of a failed call.
const ErrorCodeKey = "x-error-code"

// Empty is the request of calls without arguments.
type Empty struct{}

// FreeResponse reports how many objects were deleted.
type FreeResponse struct {
	Objects uint64 `json:"objects"`
}

// MemoryManagerServer is the server API of the memory manager service.
// The capability table of Allocate and Free travels in the x-cap-table
// metadata.
type MemoryManagerServer interface {
	Allocate(context.Context, *wire.Bundle) (*wire.Bundle, error)
	AllocateInCNode(context.Context, *wire.CNodeRequest) (*wire.CNodeResponse, error)
	Free(context.Context, *wire.Bundle) (*FreeResponse, error)
	Stats(context.Context, *Empty) (*wire.StatsResponse, error)
	Debug(context.Context, *Empty) (*wire.DebugResponse, error)
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv MemoryManagerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](method string, call func(MemoryManagerServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		mm := srv.(MemoryManagerServer)
		if interceptor == nil {
			return call(mm, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(mm, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the memory manager service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MemoryManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Allocate", Handler: unary(MethodAllocate, MemoryManagerServer.Allocate)},
		{MethodName: "AllocateInCNode", Handler: unary(MethodAllocateInCNode, MemoryManagerServer.AllocateInCNode)},
		{MethodName: "Free", Handler: unary(MethodFree, MemoryManagerServer.Free)},
		{MethodName: "Stats", Handler: unary(MethodStats, MemoryManagerServer.Stats)},
		{MethodName: "Debug", Handler: unary(MethodDebug, MemoryManagerServer.Debug)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "memmgr/manager",
}
