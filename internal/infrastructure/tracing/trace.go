package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/shared/id"
)

// Propagation headers and their gRPC metadata keys
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"

	traceMetadataKey = "x-trace-id"
	spanMetadataKey  = "x-span-id"
)

// spanBuffer bounds the spans waiting for the collector
const spanBuffer = 1000

type (
	TraceID string
	SpanID  string
)

// Span is one timed operation. Its tags are logged with it on Submit.
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Name     string

	start   time.Time
	elapsed time.Duration
	tags    []zap.Field
	err     error
}

// SetTag attaches a string attribute
func (s *Span) SetTag(key, value string) {
	s.tags = append(s.tags, zap.String(key, value))
}

func (s *Span) SetError(err error) {
	s.err = err
}

// Finish stops the span clock
func (s *Span) Finish() {
	s.elapsed = time.Since(s.start)
}

func (s *Span) fields(service string) []zap.Field {
	fields := make([]zap.Field, 0, len(s.tags)+7)
	fields = append(fields,
		zap.String("service", service),
		zap.String("trace_id", string(s.TraceID)),
		zap.String("span_id", string(s.SpanID)),
		zap.String("operation", s.Name),
		zap.Duration("duration", s.elapsed),
	)
	if s.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(s.ParentID)))
	}
	fields = append(fields, s.tags...)
	if s.err != nil {
		fields = append(fields, zap.Error(s.err))
	}
	return fields
}

// Tracer hands finished spans to a collector goroutine that logs them.
type Tracer struct {
	service string
	logger  *zap.Logger

	mu     sync.RWMutex
	queue  chan *Span
	closed bool
	wg     sync.WaitGroup
}

// New starts a tracer for service. A nil logger discards spans.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		queue:   make(chan *Span, spanBuffer),
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for span := range t.queue {
			t.emit(span)
		}
	}()
	return t
}

// StartSpan opens a span under the trace and span carried by ctx. Without
// an incoming trace a new request ID becomes the trace ID.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	trace := GetTraceID(ctx)
	if trace == "" {
		trace = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:  trace,
		SpanID:   SpanID(id.Default().Generate().String()),
		ParentID: GetSpanID(ctx),
		Name:     name,
		start:    time.Now(),
	}
	return span, WithTrace(ctx, trace, span.SpanID)
}

// Submit queues a finished span. It never blocks: spans are dropped when
// the queue is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}
	select {
	case t.queue <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
		)
	}
}

// Close drains the queue and waits for the collector. Safe to call twice.
func (t *Tracer) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Tracer) emit(span *Span) {
	if span.err != nil {
		t.logger.Warn("span completed with error", span.fields(t.service)...)
		return
	}
	t.logger.Debug("span completed", span.fields(t.service)...)
}

type ctxKey int

const (
	traceKey ctxKey = iota
	spanKey
)

// WithTrace stores a trace and parent span in ctx; empty values are skipped.
func WithTrace(ctx context.Context, trace TraceID, span SpanID) context.Context {
	if trace != "" {
		ctx = context.WithValue(ctx, traceKey, trace)
	}
	if span != "" {
		ctx = context.WithValue(ctx, spanKey, span)
	}
	return ctx
}

func GetTraceID(ctx context.Context) TraceID {
	v, _ := ctx.Value(traceKey).(TraceID)
	return v
}

func GetSpanID(ctx context.Context) SpanID {
	v, _ := ctx.Value(spanKey).(SpanID)
	return v
}
