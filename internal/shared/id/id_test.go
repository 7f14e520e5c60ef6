package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if id1.Compare(id2) >= 0 {
		t.Errorf("IDs should increase: %s then %s", id1, id2)
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{UploadPrefix, RequestPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", prefix, id)
		}
		parts := strings.Split(id, "_")
		if len(parts) != 2 || !IsValid(parts[1]) {
			t.Errorf("Prefixed ID should have format 'prefix_ulid', got: %s", id)
		}
	}
}

func TestParseUploadID(t *testing.T) {
	gen := NewGenerator()
	valid := gen.NewUploadID()

	got, err := ParseUploadID(valid.String())
	if err != nil {
		t.Fatalf("valid upload id rejected: %v", err)
	}
	if got != valid {
		t.Errorf("ParseUploadID() = %s, want %s", got, valid)
	}

	invalid := []string{
		"",
		"upl",
		"upl_notaulid",
		"req_" + gen.Generate().String(),
		gen.Generate().String(),
	}
	for _, s := range invalid {
		if _, err := ParseUploadID(s); err == nil {
			t.Errorf("ParseUploadID(%q) should fail", s)
		}
	}
}

func TestRequestID(t *testing.T) {
	reqID := NewRequestID()
	if !strings.HasPrefix(reqID.String(), "req_") {
		t.Errorf("RequestID should start with 'req_', got: %s", reqID)
	}
}

func TestTimestamp(t *testing.T) {
	gen := NewGenerator()

	before := time.Now().Add(-time.Millisecond)
	id := gen.NewUploadID()
	after := time.Now().Add(time.Millisecond)

	ts, err := Timestamp(id.String())
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("Timestamp %v should be between %v and %v", ts, before, after)
	}

	if _, err := Timestamp("invalid"); err == nil {
		t.Error("Timestamp of an invalid id should fail")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const goroutines = 10
	const perGoroutine = 100

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := gen.GenerateWithPrefix(UploadPrefix)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*perGoroutine, len(seen))
	}
}
