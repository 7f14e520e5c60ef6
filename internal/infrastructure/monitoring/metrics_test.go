package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
)

type fixedStats memory.Stats

func (s fixedStats) Stats() memory.Stats { return memory.Stats(s) }

func TestAllocatorCollector(t *testing.T) {
	src := fixedStats{
		TotalBytes:     1 << 20,
		AllocatedBytes: 8192,
		FreeBytes:      1<<20 - 8192,
		AllocatedObjs:  2,
		RetypeTooSmall: 1,
	}
	c := NewAllocatorCollector(src)

	assert.Equal(t, 9, testutil.CollectAndCount(c))

	expected := `
# HELP memmgr_untyped_allocated_bytes Bytes currently allocated
# TYPE memmgr_untyped_allocated_bytes gauge
memmgr_untyped_allocated_bytes 8192
# HELP memmgr_untyped_retype_too_small_total Retypes that fell through to the next slab
# TYPE memmgr_untyped_retype_too_small_total counter
memmgr_untyped_retype_too_small_total 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"memmgr_untyped_allocated_bytes", "memmgr_untyped_retype_too_small_total"))
}

func TestMetricsAreIsolated(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()

	require.NoError(t, m1.RegisterAllocator(fixedStats{}))
	require.NoError(t, m2.RegisterAllocator(fixedStats{}))
	assert.Error(t, m1.RegisterAllocator(fixedStats{}), "duplicate collector on one registry")
}

func TestRecordOperation(t *testing.T) {
	m := NewMetrics()

	timer := NewTimer(m, "alloc")
	timer.Stop(ResultOK)
	m.RecordOperation("alloc", "alloc_failed", time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Operations.WithLabelValues("alloc", ResultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Operations.WithLabelValues("alloc", "alloc_failed")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Operations)
	assert.Equal(t, int64(1), snap.FailedOps)

	NewTimer(nil, "free").Stop(ResultOK)
}

func TestResult(t *testing.T) {
	code := func(error) string { return "boom" }
	assert.Equal(t, ResultOK, Result(nil, code))
	assert.Equal(t, "boom", Result(errors.New("x"), code))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/v1/stats", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/v1/stats", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memmgr_http_requests_total")
	assert.Contains(t, w.Body.String(), "memmgr_uptime_seconds")
}
