package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("resilience: circuit breaker is open")
	ErrTooManyRequests = errors.New("resilience: too many half-open requests")
)

// State is the breaker position
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tunes a Breaker. Zero fields take defaults.
type Settings struct {
	// MaxRequests is the number of trial requests allowed, and the number of
	// successes needed to close, in half-open state
	MaxRequests uint32
	// Interval is the cyclic period of the closed state to clear counts
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration
	// ReadyToTrip decides, after a closed-state failure, whether to open
	ReadyToTrip func(counts Counts) bool
	// IsSuccessful decides whether err counts against the breaker. Errors
	// the remote side answered with, such as an exhausted allocator,
	// usually should not trip it. Defaults to err == nil.
	IsSuccessful func(err error) bool
	// OnStateChange observes every transition
	OnStateChange func(name string, from State, to State)
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Counts tallies requests within one generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) onRequest() {
	c.Requests++
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (s Settings) withDefaults() Settings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = time.Minute
	}
	if s.ReadyToTrip == nil {
		s.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool { return err == nil }
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

// Breaker guards calls to a remote memory manager. Counts are kept per
// generation; a generation ends on every transition and, while closed,
// every Interval. Results reported for an ended generation are ignored.
type Breaker struct {
	name string
	cfg  Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	deadline   time.Time
}

// New returns a closed breaker
func New(name string, settings Settings) *Breaker {
	cfg := settings.withDefaults()
	return &Breaker{
		name:     name,
		cfg:      cfg,
		deadline: cfg.Clock().Add(cfg.Interval),
	}
}

// Name identifies the breaker in OnStateChange callbacks
func (b *Breaker) Name() string {
	return b.name
}

// State reports the position, applying any due timeout first
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(b.cfg.Clock())
	return b.state
}

// Counts returns the tallies of the current generation
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Execute runs req if the breaker admits it and returns req's error.
// A panicking req counts as a failure and the panic is re-raised.
func (b *Breaker) Execute(req func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			b.record(gen, false)
			panic(p)
		}
	}()

	err = req()
	b.record(gen, b.cfg.IsSuccessful(err))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(b.cfg.Clock())
	if b.state == StateOpen {
		return 0, ErrCircuitOpen
	}
	if b.state == StateHalfOpen && b.counts.Requests >= b.cfg.MaxRequests {
		return 0, ErrTooManyRequests
	}
	b.counts.onRequest()
	return b.generation, nil
}

func (b *Breaker) record(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	b.refresh(now)
	if gen != b.generation {
		return
	}

	switch {
	case ok:
		b.counts.onSuccess()
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.MaxRequests {
			b.transition(StateClosed, now)
		}
	case b.state == StateHalfOpen:
		b.transition(StateOpen, now)
	default:
		b.counts.onFailure()
		if b.cfg.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	}
}

// refresh applies the time-driven moves: the closed interval rolling
// over, and an open breaker timing out into half-open.
func (b *Breaker) refresh(now time.Time) {
	if b.deadline.IsZero() || !now.After(b.deadline) {
		return
	}
	switch b.state {
	case StateClosed:
		b.reset(now)
	case StateOpen:
		b.transition(StateHalfOpen, now)
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.reset(now)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// reset starts a new generation and arms the deadline of the current state.
func (b *Breaker) reset(now time.Time) {
	b.generation++
	b.counts = Counts{}

	switch b.state {
	case StateClosed:
		b.deadline = now.Add(b.cfg.Interval)
	case StateOpen:
		b.deadline = now.Add(b.cfg.Timeout)
	default:
		b.deadline = time.Time{}
	}
}
