package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/shared/id"
)

func newClient(t *testing.T) (*Client, *server.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	srv, err := server.New(cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown()
	})

	c := DefaultConfig(ts.URL)
	c.Retries = 0
	return New(c), srv
}

func TestAllocAndFree(t *testing.T) {
	c, srv := newClient(t)
	ctx := context.Background()

	req := objects.NewBundle(kernel.RootCNodeSlot, 12,
		objects.Desc{Type: kernel.Frame, Count: 4, Slot: 100, SizeClass: kernel.PageBits},
		objects.Desc{Type: kernel.Endpoint, Count: 2, Slot: 104},
	)
	got, err := c.Alloc(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, kernel.RootCNodeSlot, got.Table)
	assert.Equal(t, uint64(6), got.CountObjects())
	assert.Equal(t, uint64(6), srv.Allocator().Stats().AllocatedObjs)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.Allocator().Stats(), stats)

	slabs, err := c.Debug(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, slabs)

	n, err := c.Free(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n)
	assert.Zero(t, srv.Allocator().Stats().AllocatedObjs)
}

func TestErrorsMatchSentinels(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	huge := objects.NewBundle(kernel.RootCNodeSlot, 12,
		objects.Desc{Type: kernel.Frame, Count: 64, Slot: 100, SizeClass: kernel.LargePageBits})
	_, err := c.Alloc(ctx, huge)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrAllocFailed)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInsufficientStorage, se.Status)
	assert.Equal(t, "alloc_failed", se.Code)

	_, err = c.GetUpload(ctx, id.Default().NewUploadID().String())
	assert.ErrorIs(t, err, upload.ErrNotFound)

	assert.Equal(t, resilience.StateClosed, c.Breaker().State(), "answered errors do not trip the breaker")
}

func TestUploadRoundTrip(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	data := bytes.Repeat([]byte("image"), 2000)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(data, nil)
	require.NoError(t, enc.Close())

	img, err := c.Upload(ctx, compressed, upload.Zstd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), img.Length)
	assert.Equal(t, "zstd", img.Encoding)

	list, err := c.Uploads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, img.ID, list[0].ID)

	meta, err := c.GetUpload(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.Bundle, meta.Bundle)

	var buf bytes.Buffer
	n, err := c.Download(ctx, img.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())

	require.NoError(t, c.DeleteUpload(ctx, img.ID))
	assert.ErrorIs(t, c.DeleteUpload(ctx, img.ID), upload.ErrNotFound)
}

func TestRetriesOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_bytes":4096}`))
	}))
	defer ts.Close()

	cfg := DefaultConfig(ts.URL)
	cfg.RetryWait = time.Millisecond
	stats, err := New(cfg).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), stats.TotalBytes)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerOpensOnServerFaults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"code":"internal","error":"boom"}`))
	}))
	defer ts.Close()

	cfg := DefaultConfig(ts.URL)
	cfg.Retries = 0
	c := New(cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Stats(ctx)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "internal", se.Code)
	}
	assert.Equal(t, resilience.StateOpen, c.Breaker().State())

	_, err := c.Stats(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestRateLimitWaitHonorsContext(t *testing.T) {
	cfg := DefaultConfig("http://127.0.0.1:1")
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	c := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.True(t, c.limiter.Allow())

	_, err := c.Stats(ctx)
	assert.Error(t, err)
	assert.Equal(t, resilience.StateClosed, c.Breaker().State())
}
