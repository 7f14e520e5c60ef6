package memory

import "github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"

// Freer releases bundles; *Allocator implements it.
type Freer interface {
	Free(*objects.Bundle) error
}

// FreerFunc adapts a function to Freer.
type FreerFunc func(*objects.Bundle) error

func (f FreerFunc) Free(b *objects.Bundle) error {
	return f(b)
}

// Owned holds a bundle on behalf of a single owner and frees it on Close
// unless ownership was moved out with Take. It is not safe for concurrent use.
type Owned struct {
	freer  Freer
	bundle *objects.Bundle
}

// Own wraps b so that Close releases it through f.
func Own(f Freer, b *objects.Bundle) *Owned {
	return &Owned{freer: f, bundle: b}
}

// Bundle returns the held bundle, or nil once taken or closed.
func (o *Owned) Bundle() *objects.Bundle {
	return o.bundle
}

// Take moves the bundle out; the guard no longer frees it.
func (o *Owned) Take() *objects.Bundle {
	b := o.bundle
	o.bundle = nil
	return b
}

// Close frees the bundle. Later calls are no-ops.
func (o *Owned) Close() error {
	b := o.Take()
	if b == nil {
		return nil
	}
	return o.freer.Free(b)
}
