// Package upload keeps byte images streamed into frame bundles, such as
// program images pushed by an operator. Images live only in kernel frames;
// the store holds their bundles and logical lengths.
package upload

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/window"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/shared/id"
)

var (
	// ErrNotFound indicates an unknown upload ID.
	ErrNotFound = errors.New("upload: not found")

	// ErrTooLarge indicates a stream longer than the configured limit.
	ErrTooLarge = errors.New("upload: image too large")

	// ErrLeaked indicates frames whose capabilities could not be deleted.
	// Their slots are withheld from later uploads.
	ErrLeaked = errors.New("upload: frames not released")
)

// DefaultMaxBytes bounds a single image.
const DefaultMaxBytes = 64 << 20

// Allocator allocates and frees the frames images are stored in. Reclaim
// returns the descriptors it could not delete.
type Allocator interface {
	window.FrameAllocator
	Reclaim(b *objects.Bundle) ([]objects.Desc, error)
}

// Image is a stored upload.
type Image struct {
	ID        id.UploadID
	Bundle    *objects.Bundle
	Length    int64
	Encoding  Encoding
	CreatedAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBytes bounds the decoded size of one image.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithIDGenerator sets the generator used for upload IDs.
func WithIDGenerator(g *id.Generator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// Store streams images through a shared window into the window's
// top-level table. The window has a single owner: Receive, Delete and
// readers from Open hold winMu for as long as they use it. The image index
// has its own lock so lookups never wait on a stream.
type Store struct {
	winMu sync.Mutex
	win   *window.Window
	alloc Allocator
	slots window.SlotSource

	mu     sync.RWMutex
	images map[id.UploadID]*Image

	ids      *id.Generator
	maxBytes int64
	logger   *zap.Logger
}

// New creates an empty store.
func New(win *window.Window, alloc Allocator, slots window.SlotSource, opts ...Option) *Store {
	s := &Store{
		win:      win,
		alloc:    alloc,
		slots:    slots,
		images:   make(map[id.UploadID]*Image),
		ids:      id.Default(),
		maxBytes: DefaultMaxBytes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Receive decodes r and stores it as a new image.
func (s *Store) Receive(r io.Reader, enc Encoding) (Image, error) {
	src, err := decoder(r, enc)
	if err != nil {
		return Image{}, err
	}
	defer src.Close()

	s.winMu.Lock()
	defer s.winMu.Unlock()

	cfg := s.win.Config()
	w := window.NewWriter(s.win, s.alloc, s.slots, cfg.Root, cfg.RootDepth)
	held := memory.Own(memory.FreerFunc(s.release), w.Bundle())
	defer func() {
		if rerr := held.Close(); rerr != nil {
			s.logger.Warn("releasing failed upload", zap.Error(rerr))
		}
	}()

	n, err := io.Copy(w, io.LimitReader(src, s.maxBytes+1))
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if _, ferr := w.Finish(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err != nil {
		return Image{}, fmt.Errorf("receive: %w", err)
	}

	img := &Image{
		ID:        s.ids.NewUploadID(),
		Bundle:    held.Take(),
		Length:    w.Len(),
		Encoding:  enc,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.images[img.ID] = img
	s.mu.Unlock()

	s.logger.Info("upload stored",
		zap.Stringer("id", img.ID),
		zap.Int64("length", img.Length),
		zap.String("encoding", string(enc)),
		zap.Stringer("bundle", img.Bundle),
	)
	return *img, nil
}

// release frees the frames of b and returns the slots of every descriptor
// that was fully deleted. Slots still holding a capability stay taken.
func (s *Store) release(b *objects.Bundle) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	leaked, err := s.alloc.Reclaim(b)
	errs := []error{err}
	for _, d := range b.Objs {
		if slices.Contains(leaked, d) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrLeaked, d))
			continue
		}
		errs = append(errs, s.slots.Free(d.Slot, int(d.Count)))
	}
	return errors.Join(errs...)
}

// Get returns the image with the given ID.
func (s *Store) Get(uploadID id.UploadID) (Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[uploadID]
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}
	return *img, nil
}

// List returns every image, oldest first.
func (s *Store) List() []Image {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, *img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of stored images.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Delete frees an image's frames and forgets it. It waits for any
// stream using the window.
func (s *Store) Delete(uploadID id.UploadID) error {
	s.winMu.Lock()
	defer s.winMu.Unlock()

	s.mu.Lock()
	img, ok := s.images[uploadID]
	delete(s.images, uploadID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}

	if err := memory.Own(memory.FreerFunc(s.release), img.Bundle).Close(); err != nil {
		s.logger.Warn("upload release incomplete", zap.Stringer("id", uploadID), zap.Error(err))
		return err
	}
	s.logger.Info("upload deleted", zap.Stringer("id", uploadID))
	return nil
}

// Open returns a reader over the image's logical bytes. The window stays
// locked until the reader is closed.
func (s *Store) Open(uploadID id.UploadID) (io.ReadCloser, error) {
	if _, err := s.Get(uploadID); err != nil {
		return nil, err
	}

	s.winMu.Lock()
	img, err := s.Get(uploadID)
	if err != nil {
		s.winMu.Unlock()
		return nil, err
	}
	r := window.NewReader(s.win, img.Bundle)
	return &imageReader{
		r:      io.LimitReader(r, img.Length),
		closer: r,
		unlock: s.winMu.Unlock,
	}, nil
}

// Export copies an image to dst.
func (s *Store) Export(uploadID id.UploadID, dst io.Writer) (int64, error) {
	rc, err := s.Open(uploadID)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return n, err
}

type imageReader struct {
	r      io.Reader
	closer io.Closer
	once   sync.Once
	unlock func()
}

func (r *imageReader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *imageReader) Close() error {
	var err error
	r.once.Do(func() {
		err = r.closer.Close()
		r.unlock()
	})
	return err
}
