package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// DefaultBreakerSettings trips after five consecutive transport failures.
// Errors the server answered with never count.
func DefaultBreakerSettings() resilience.Settings {
	return resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			switch status.Code(err) {
			case codes.Unavailable, codes.DeadlineExceeded:
				return false
			default:
				return true
			}
		},
	}
}

// Client calls a remote memory manager
type Client struct {
	conn    *grpc.ClientConn
	breaker *resilience.Breaker
	owned   bool
}

// Dial connects to addr
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(4*1024*1024),
		),
	}

	conn, err := grpc.NewClient(addr, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial memory manager: %w", err)
	}
	c := NewClient(conn, DefaultBreakerSettings())
	c.owned = true
	return c, nil
}

// NewClient wraps an existing connection
func NewClient(conn *grpc.ClientConn, settings resilience.Settings) *Client {
	return &Client{
		conn:    conn,
		breaker: resilience.New("memmgr", settings),
	}
}

// Close closes the connection if Dial opened it
func (c *Client) Close() error {
	if c.owned && c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Breaker exposes the circuit breaker state
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Allocate retypes req's descriptors into req.Table on the server.
func (c *Client) Allocate(ctx context.Context, req *objects.Bundle) (*objects.Bundle, error) {
	in := wire.FromBundle(req)
	var out wire.Bundle
	ctx = metadata.AppendToOutgoingContext(ctx, wire.TableMetadataKey, wire.FormatTable(req.Table))
	if err := c.invoke(ctx, MethodAllocate, &in, &out); err != nil {
		return nil, err
	}
	return out.Domain(req.Table)
}

// AllocateInCNode asks the server for a table at cnodeSlot of the
// top-level table holding descs. It returns the table's own bundle and the
// bundle of objects inside it.
func (c *Client) AllocateInCNode(ctx context.Context, cnodeSlot kernel.CPtr, descs []objects.Desc) (cnode, objs *objects.Bundle, err error) {
	in := wire.CNodeRequest{
		CNodeSlot: uint64(cnodeSlot),
		Objs:      wire.FromBundle(objects.NewBundle(kernel.RootCNodeSlot, 0, descs...)).Objs,
	}
	var out wire.CNodeResponse
	if err := c.invoke(ctx, MethodAllocateInCNode, &in, &out); err != nil {
		return nil, nil, err
	}
	if cnode, err = out.CNode.Domain(kernel.RootCNodeSlot); err != nil {
		return nil, nil, err
	}
	if objs, err = out.Objects.Domain(kernel.CPtr(out.Table)); err != nil {
		return nil, nil, err
	}
	return cnode, objs, nil
}

// Free deletes b's objects on the server.
func (c *Client) Free(ctx context.Context, b *objects.Bundle) error {
	in := wire.FromBundle(b)
	var out FreeResponse
	ctx = metadata.AppendToOutgoingContext(ctx, wire.TableMetadataKey, wire.FormatTable(b.Table))
	return c.invoke(ctx, MethodFree, &in, &out)
}

// Stats fetches the allocator counters.
func (c *Client) Stats(ctx context.Context) (memory.Stats, error) {
	var out wire.StatsResponse
	err := c.invoke(ctx, MethodStats, &Empty{}, &out)
	return out, err
}

// Debug fetches the per-slab dump.
func (c *Client) Debug(ctx context.Context) ([]memory.SlabInfo, error) {
	var out wire.DebugResponse
	if err := c.invoke(ctx, MethodDebug, &Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Slabs, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	var trailer metadata.MD
	err := c.breaker.Execute(func() error {
		return c.conn.Invoke(ctx, method, in, out,
			grpc.CallContentSubtype(CodecName),
			grpc.Trailer(&trailer),
		)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return fmt.Errorf("memory manager unavailable: %w", err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if vals := trailer.Get(ErrorCodeKey); len(vals) > 0 {
		return wire.CodeError(vals[0], st.Message())
	}
	return err
}
