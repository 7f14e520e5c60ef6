package window

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

var (
	// ErrAlreadyMapped indicates Map was called while a frame is mapped.
	ErrAlreadyMapped = errors.New("window: frame already mapped")

	// ErrPageMapFailed indicates the kernel refused to map the frame.
	ErrPageMapFailed = errors.New("window: page map failed")

	// ErrPageUnmapFailed indicates the kernel refused to unmap the frame.
	ErrPageUnmapFailed = errors.New("window: page unmap failed")

	// ErrCapabilityMoveFailed indicates a frame could not be moved into or
	// out of the bounce slot.
	ErrCapabilityMoveFailed = errors.New("window: capability move failed")

	// ErrInvalidConfig indicates an unusable window configuration.
	ErrInvalidConfig = errors.New("window: invalid config")

	// ErrIO is returned by readers and writers for any window failure.
	ErrIO = errors.New("window: i/o failure")
)

// Config describes the virtual range and the top-level table a window
// maps frames from.
type Config struct {
	Base      uintptr
	Size      int
	Root      kernel.CPtr
	RootDepth uint8
	// Bounce is a free top-level slot used to map frames that live in
	// other tables. Zero disables bouncing.
	Bounce kernel.CPtr
}

// Window maps one frame at a time into a fixed virtual range.
// It is not safe for concurrent use.
type Window struct {
	kern kernel.Kernel
	cfg  Config

	mapped bool
	frame  kernel.CPtr
	view   []byte
	// origin is set while a bounced frame sits in the bounce slot.
	origin *objects.SlotRef
}

// New validates cfg and returns an unmapped window.
func New(kern kernel.Kernel, cfg Config) (*Window, error) {
	if cfg.Size == 0 {
		cfg.Size = kernel.PageSize
	}
	if cfg.Root == 0 {
		cfg.Root = kernel.RootCNodeSlot
	}
	if cfg.Size != kernel.PageSize {
		return nil, fmt.Errorf("%w: size %d is not one page", ErrInvalidConfig, cfg.Size)
	}
	if cfg.Base == 0 || uint64(cfg.Base)%kernel.PageSize != 0 {
		return nil, fmt.Errorf("%w: base %#x is not page aligned", ErrInvalidConfig, cfg.Base)
	}
	if cfg.RootDepth == 0 {
		return nil, fmt.Errorf("%w: root depth is zero", ErrInvalidConfig)
	}
	return &Window{kern: kern, cfg: cfg}, nil
}

// Config returns the window configuration.
func (w *Window) Config() Config {
	return w.cfg
}

// Size returns the window size in bytes.
func (w *Window) Size() int {
	return w.cfg.Size
}

// Mapped reports whether a frame is currently mapped.
func (w *Window) Mapped() bool {
	return w.mapped
}

// Bytes returns the mapped page, or nil when nothing is mapped. The slice
// must not be used after Unmap.
func (w *Window) Bytes() []byte {
	if !w.mapped {
		return nil
	}
	return w.view
}

// Map maps a frame held in the top-level table. An existing mapping is
// left untouched and ErrAlreadyMapped returned.
func (w *Window) Map(frame kernel.CPtr) error {
	if w.mapped || w.origin != nil {
		return ErrAlreadyMapped
	}
	return w.mapFrame(frame)
}

func (w *Window) mapFrame(frame kernel.CPtr) error {
	if err := w.kern.PageMap(frame, w.cfg.Base); err != nil {
		return fmt.Errorf("%w: frame %d at %#x: %w", ErrPageMapFailed, frame, w.cfg.Base, err)
	}
	view, err := w.kern.View(w.cfg.Base, w.cfg.Size)
	if err != nil {
		if uerr := w.kern.PageUnmap(frame); uerr != nil {
			return fmt.Errorf("%w: view: %w (unmap: %v)", ErrPageMapFailed, err, uerr)
		}
		return fmt.Errorf("%w: view: %w", ErrPageMapFailed, err)
	}
	w.mapped = true
	w.frame = frame
	w.view = view
	return nil
}

// MapFrom maps the frame at loc. Frames outside the top-level table are
// moved into the bounce slot first and moved back by Unmap.
func (w *Window) MapFrom(loc objects.SlotRef) error {
	if loc.Table == w.cfg.Root && loc.Depth == w.cfg.RootDepth {
		return w.Map(loc.Index)
	}
	if w.mapped || w.origin != nil {
		return ErrAlreadyMapped
	}
	if w.cfg.Bounce == 0 {
		return fmt.Errorf("%w: no bounce slot for table %d", ErrCapabilityMoveFailed, loc.Table)
	}

	if err := w.kern.Move(w.cfg.Root, w.cfg.Bounce, w.cfg.RootDepth, loc.Table, loc.Index, loc.Depth); err != nil {
		return fmt.Errorf("%w: %d/%d into bounce slot: %w", ErrCapabilityMoveFailed, loc.Table, loc.Index, err)
	}
	w.origin = &loc
	if err := w.mapFrame(w.cfg.Bounce); err != nil {
		if rerr := w.restore(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// restore moves a bounced frame back to where it came from.
func (w *Window) restore() error {
	if w.origin == nil {
		return nil
	}
	loc := *w.origin
	if err := w.kern.Move(loc.Table, loc.Index, loc.Depth, w.cfg.Root, w.cfg.Bounce, w.cfg.RootDepth); err != nil {
		return fmt.Errorf("%w: bounce slot back to %d/%d: %w", ErrCapabilityMoveFailed, loc.Table, loc.Index, err)
	}
	w.origin = nil
	return nil
}

// Unmap unmaps the current frame and returns a bounced frame to its
// origin. It is a no-op when nothing is mapped.
func (w *Window) Unmap() error {
	if w.mapped {
		if err := w.kern.PageUnmap(w.frame); err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrPageUnmapFailed, w.frame, err)
		}
		w.mapped = false
		w.view = nil
	}
	return w.restore()
}

// Close unmaps any mapped frame.
func (w *Window) Close() error {
	return w.Unmap()
}

// With maps loc, runs fn over the page and unmaps on every return path.
func (w *Window) With(loc objects.SlotRef, fn func(page []byte) error) (err error) {
	if err := w.MapFrom(loc); err != nil {
		return err
	}
	defer func() {
		if uerr := w.Unmap(); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()
	return fn(w.view)
}
