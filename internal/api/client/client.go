package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/resilience"
)

// ErrUnavailable wraps breaker rejections.
var ErrUnavailable = errors.New("client: memory manager unavailable")

// Config configures a Client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries applies to transport errors, 429 and 503 responses.
	Retries   int
	RetryWait time.Duration
	// RateLimit bounds outgoing requests per second. Zero is unlimited.
	RateLimit rate.Limit
	Burst     int
	Breaker   resilience.Settings
}

// DefaultConfig returns the configuration used by memctl
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Timeout:   30 * time.Second,
		Retries:   2,
		RetryWait: 200 * time.Millisecond,
		Breaker: resilience.Settings{
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: answered,
		},
	}
}

// Client talks to the memory manager HTTP API
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// New creates a client for cfg.BaseURL
func New(cfg Config) *Client {
	// Pooled transport without retryablehttp's own retry loop; resty retries.
	transport := retryablehttp.NewClient().HTTPClient.Transport

	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10*cfg.RetryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil {
				return false
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
		}).
		SetTransport(transport).
		SetHeader("User-Agent", "memctl/1.0").
		SetJSONMarshaler(wire.API.Marshal).
		SetJSONUnmarshaler(wire.API.Unmarshal)

	limit, burst := cfg.RateLimit, cfg.Burst
	if limit == 0 {
		limit = rate.Inf
	}
	if burst == 0 {
		burst = 1
	}

	return &Client{
		resty:   r,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.New("memmgr-http", cfg.Breaker),
	}
}

// Breaker exposes the circuit breaker
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// StatusError is a non-2xx response. It unwraps to the error named by the
// response code, so errors.Is works with the domain sentinels.
type StatusError struct {
	Status int
	Code   string
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.Status, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// answered reports whether the server handled the request, even if it
// refused it. Only transport failures and server faults trip the breaker.
func answered(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status < http.StatusInternalServerError || se.Status == http.StatusInsufficientStorage
	}
	return false
}

// do sends the request built by send, decoding a 2xx body into out
func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error), out any) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *resty.Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = send(c.resty.R().SetContext(ctx))
		if err != nil {
			return err
		}
		if resp.IsError() {
			return statusError(resp.StatusCode(), resp.Body())
		}
		if out != nil {
			if err := wire.API.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, err
}

func statusError(code int, body []byte) error {
	var e wire.Error
	if err := wire.API.Unmarshal(body, &e); err != nil || e.Code == "" {
		return &StatusError{Status: code, Code: "unknown", Err: fmt.Errorf("unexpected response: %s", body)}
	}
	return &StatusError{Status: code, Code: e.Code, Err: e.Err()}
}

// Alloc retypes the objects described by b into the caller's table
func (c *Client) Alloc(ctx context.Context, b *objects.Bundle) (*objects.Bundle, error) {
	var out wire.Bundle
	resp, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader(wire.TableHeader, wire.FormatTable(b.Table)).
			SetBody(wire.FromBundle(b)).
			Post("/v1/alloc")
	}, &out)
	if err != nil {
		return nil, err
	}
	table, err := wire.ParseTable(resp.Header().Get(wire.TableHeader))
	if err != nil {
		return nil, err
	}
	return out.Domain(table)
}

// Free deletes the objects of b and returns how many were freed
func (c *Client) Free(ctx context.Context, b *objects.Bundle) (uint64, error) {
	var out struct {
		Objects uint64 `json:"objects"`
	}
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader(wire.TableHeader, wire.FormatTable(b.Table)).
			SetBody(wire.FromBundle(b)).
			Post("/v1/free")
	}, &out)
	return out.Objects, err
}

// Stats returns the allocator counters
func (c *Client) Stats(ctx context.Context) (memory.Stats, error) {
	var out wire.StatsResponse
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/v1/stats")
	}, &out)
	return out, err
}

// Debug returns the per-slab dump
func (c *Client) Debug(ctx context.Context) ([]memory.SlabInfo, error) {
	var out wire.DebugResponse
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/v1/debug")
	}, &out)
	return out.Slabs, err
}

// Upload stores data, already encoded with enc, as a new image
func (c *Client) Upload(ctx context.Context, data []byte, enc upload.Encoding) (wire.Upload, error) {
	var out wire.Upload
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		r.SetHeader("Content-Type", "application/octet-stream").SetBody(data)
		if enc != "" && enc != upload.Identity {
			r.SetHeader("Content-Encoding", string(enc))
		}
		return r.Post("/v1/uploads")
	}, &out)
	return out, err
}

// Uploads lists stored images
func (c *Client) Uploads(ctx context.Context) ([]wire.Upload, error) {
	var out wire.UploadList
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/v1/uploads")
	}, &out)
	return out.Uploads, err
}

// GetUpload returns an image's metadata
func (c *Client) GetUpload(ctx context.Context, uploadID string) (wire.Upload, error) {
	var out wire.Upload
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", uploadID).Get("/v1/uploads/{id}")
	}, &out)
	return out, err
}

// Download writes an image's bytes to w
func (c *Client) Download(ctx context.Context, uploadID string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", uploadID).
			SetHeader("Accept", "application/octet-stream").
			Get("/v1/uploads/{id}")
	}, nil)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(resp.Body())
	return int64(n), err
}

// DeleteUpload frees a stored image
func (c *Client) DeleteUpload(ctx context.Context, uploadID string) error {
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", uploadID).Delete("/v1/uploads/{id}")
	}, nil)
	return err
}
