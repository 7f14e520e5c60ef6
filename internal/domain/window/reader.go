package window

import (
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
)

// Reader streams the bytes of a bundle's frames in slot order, one page at
// a time.
type Reader struct {
	win    *Window
	frames []objects.SlotRef
	next   int
	off    int
	state  State
}

var _ io.ReadCloser = (*Reader)(nil)

// NewReader returns a reader over the frames of b. Non-frame objects are
// skipped.
func NewReader(win *Window, b *objects.Bundle) *Reader {
	return &Reader{win: win, frames: b.Frames()}
}

// State returns the reader state.
func (r *Reader) State() State {
	return r.state
}

// Read implements io.Reader. Once the frames are exhausted every call
// returns io.EOF without touching the window.
func (r *Reader) Read(p []byte) (int, error) {
	if r.state == Finished {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.state == Idle || r.off == len(r.win.Bytes()) {
		if err := r.advance(); err != nil {
			return 0, err
		}
		if r.state == Finished {
			return 0, io.EOF
		}
	}

	n := copy(p, r.win.Bytes()[r.off:])
	r.off += n
	return n, nil
}

func (r *Reader) advance() error {
	if r.state == Mapped {
		if err := r.win.Unmap(); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		r.state = Idle
	}
	if r.next == len(r.frames) {
		r.state = Finished
		return nil
	}
	if err := r.win.MapFrom(r.frames[r.next]); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	r.next++
	r.off = 0
	r.state = Mapped
	return nil
}

// Close unmaps the current frame and returns it to its table. Reads after
// Close report io.EOF.
func (r *Reader) Close() error {
	r.state = Finished
	if err := r.win.Unmap(); err != nil {
		return errors.Join(ErrIO, err)
	}
	return nil
}
