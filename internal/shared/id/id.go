// Package id generates the service's identifiers.
//
// All identifiers are ULIDs, optionally carrying a short type prefix
// (upl_*, req_*) so they are recognisable in logs. ULIDs sort by creation
// time, which the upload store relies on for listing order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// UploadID identifies an uploaded image held in a bundle
type UploadID string

// RequestID identifies an API request
type RequestID string

const (
	UploadPrefix  = "upl"
	RequestPrefix = "req"
)

// Generator generates ULIDs. Entropy is monotonic within a millisecond, so
// IDs from one generator are strictly increasing.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     time.Now,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewUploadID generates an upload ID from g
func (g *Generator) NewUploadID() UploadID {
	return UploadID(g.GenerateWithPrefix(UploadPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id UploadID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }

// ParseUploadID checks the prefix and ULID part of s
func ParseUploadID(s string) (UploadID, error) {
	prefix, rest, ok := strings.Cut(s, "_")
	if !ok || prefix != UploadPrefix {
		return "", fmt.Errorf("id: %q is not an upload id", s)
	}
	if _, err := ulid.Parse(rest); err != nil {
		return "", fmt.Errorf("id: %q: %w", s, err)
	}
	return UploadID(s), nil
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time of a bare or prefixed ULID
func Timestamp(id string) (time.Time, error) {
	if _, rest, ok := strings.Cut(id, "_"); ok {
		id = rest
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
