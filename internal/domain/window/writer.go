package window

import (
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// ErrFinished is returned by writes after Finish.
var ErrFinished = errors.New("window: writer finished")

// FrameAllocator allocates the page frames a writer grows by.
type FrameAllocator interface {
	AllocFrames(table kernel.CPtr, depth uint8, slot kernel.CPtr, nbytes uint64) (*objects.Bundle, error)
}

// SlotSource hands out destination slots for new frames.
type SlotSource interface {
	Next() (kernel.CPtr, error)
	Free(first kernel.CPtr, count int) error
}

// Writer grows a bundle of page frames as bytes are written. Frames are
// allocated lazily, one per page, so the bundle never holds an unused page.
type Writer struct {
	win    *Window
	frames FrameAllocator
	slots  SlotSource
	bundle *objects.Bundle

	off    int
	length int64
	state  State
}

var _ io.Writer = (*Writer)(nil)

// NewWriter returns a writer that allocates frames into table at depth.
func NewWriter(win *Window, frames FrameAllocator, slots SlotSource, table kernel.CPtr, depth uint8) *Writer {
	return &Writer{
		win:    win,
		frames: frames,
		slots:  slots,
		bundle: objects.NewBundle(table, depth),
	}
}

// State returns the writer state.
func (w *Writer) State() State {
	return w.state
}

// Len returns the number of bytes written.
func (w *Writer) Len() int64 {
	return w.length
}

// Bundle returns the frames allocated so far. It stays owned by the writer
// until Finish.
func (w *Writer) Bundle() *objects.Bundle {
	return w.bundle
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.state == Finished {
		return 0, ErrFinished
	}

	var n int
	for len(p) > 0 {
		if w.state == Idle || w.off == w.win.Size() {
			if err := w.grow(); err != nil {
				return n, err
			}
		}
		c := copy(w.win.Bytes()[w.off:], p)
		w.off += c
		w.length += int64(c)
		n += c
		p = p[c:]
	}
	return n, nil
}

// grow unmaps the full page and maps a freshly allocated one.
func (w *Writer) grow() error {
	if w.state == Mapped {
		if err := w.win.Unmap(); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		w.state = Idle
		w.bundle.CombineAdjacent()
	}

	slot, err := w.slots.Next()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	got, err := w.frames.AllocFrames(w.bundle.Table, w.bundle.Depth, slot, kernel.PageSize)
	if err != nil {
		if ferr := w.slots.Free(slot, 1); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	w.bundle.Append(got.Objs[0])

	loc := objects.SlotRef{Table: w.bundle.Table, Index: slot, Depth: w.bundle.Depth}
	if err := w.win.MapFrom(loc); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	w.off = 0
	w.state = Mapped
	return nil
}

// Finish unmaps the last page, compacts the bundle and hands it to the
// caller. Its capacity is a whole number of pages; Len is the logical size.
func (w *Writer) Finish() (*objects.Bundle, error) {
	if w.state == Finished {
		return nil, ErrFinished
	}
	if err := w.win.Unmap(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	w.bundle.Compact()
	w.state = Finished
	return w.bundle, nil
}
