package upload

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/slots"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/window"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel/sim"
)

type fixture struct {
	store *Store
	alloc *memory.Allocator
	slots *slots.Allocator
	kern  *sim.Kernel
}

func newFixture(t *testing.T, sizeBits uint8, opts ...Option) *fixture {
	t.Helper()
	k, info, err := sim.New(sim.DefaultOptions(), []sim.Region{{SizeBits: sizeBits}})
	require.NoError(t, err)
	a, err := memory.New(k, info)
	require.NoError(t, err)
	win, err := window.New(k, window.Config{Base: 0x40000000, RootDepth: info.RootDepth})
	require.NoError(t, err)
	sl := slots.New("uploads", info.Empty)

	return &fixture{
		store: New(win, a, sl, opts...),
		alloc: a,
		slots: sl,
		kern:  k,
	}
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("memmgr-upload:"), n/14+1)[:n]
}

func readAll(t *testing.T, s *Store, img Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := s.Export(img.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, img.Length, n)
	return buf.Bytes()
}

func TestReceiveIdentity(t *testing.T) {
	f := newFixture(t, 20)
	data := payload(10000)

	img, err := f.store.Receive(bytes.NewReader(data), Identity)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), img.Length)
	assert.Equal(t, uint64(3), img.Bundle.CountObjects())
	assert.Equal(t, 1, img.Bundle.Len())
	assert.Equal(t, 0, f.kern.Mappings())
	assert.Equal(t, data, readAll(t, f.store, img))
}

func TestReceiveCompressed(t *testing.T) {
	data := payload(20000)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zstdData := enc.EncodeAll(data, nil)
	require.NoError(t, enc.Close())

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	tests := []struct {
		name string
		enc  Encoding
		body []byte
	}{
		{"zstd", Zstd, zstdData},
		{"gzip", Gzip, gz.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 20)

			img, err := f.store.Receive(bytes.NewReader(tt.body), tt.enc)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), img.Length)
			assert.Equal(t, tt.enc, img.Encoding)
			assert.Equal(t, data, readAll(t, f.store, img))
		})
	}
}

func TestReceiveCorruptStreamReleasesFrames(t *testing.T) {
	f := newFixture(t, 20)

	_, err := f.store.Receive(strings.NewReader("definitely not zstd"), Zstd)
	require.ErrorIs(t, err, ErrCorrupt)

	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, uint64(0), f.alloc.Stats().AllocatedBytes)
	assert.Equal(t, 0, f.slots.Used())
}

func TestReceiveTooLarge(t *testing.T) {
	f := newFixture(t, 20, WithMaxBytes(8192))

	_, err := f.store.Receive(bytes.NewReader(payload(8193)), Identity)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, uint64(0), f.alloc.Stats().AllocatedBytes)
	assert.Equal(t, 0, f.slots.Used())
	assert.Equal(t, 0, f.kern.Mappings())

	img, err := f.store.Receive(bytes.NewReader(payload(8192)), Identity)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), img.Bundle.CountObjects())
}

func TestReceiveOutOfMemory(t *testing.T) {
	f := newFixture(t, 13)

	_, err := f.store.Receive(bytes.NewReader(payload(3*kernel.PageSize)), Identity)
	assert.ErrorIs(t, err, memory.ErrAllocFailed)
	assert.ErrorIs(t, err, window.ErrIO)
	assert.Equal(t, uint64(0), f.alloc.Stats().AllocatedBytes)
	assert.Equal(t, 0, f.slots.Used())
}

func TestDeleteFreesFrames(t *testing.T) {
	f := newFixture(t, 20)

	img, err := f.store.Receive(bytes.NewReader(payload(5000)), Identity)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*kernel.PageSize), f.alloc.Stats().AllocatedBytes)

	require.NoError(t, f.store.Delete(img.ID))
	assert.Equal(t, uint64(0), f.alloc.Stats().AllocatedBytes)
	assert.Equal(t, 0, f.slots.Used())

	assert.ErrorIs(t, f.store.Delete(img.ID), ErrNotFound)
	_, err = f.store.Get(img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.Open(img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteWithholdsUndeletedSlots(t *testing.T) {
	f := newFixture(t, 20)

	img, err := f.store.Receive(bytes.NewReader(payload(5000)), Identity)
	require.NoError(t, err)
	require.Equal(t, 1, img.Bundle.Len())

	f.kern.FailNext(sim.OpDelete, kernel.ErrIllegalOperation)
	assert.ErrorIs(t, f.store.Delete(img.ID), ErrLeaked)
	assert.Equal(t, 2, f.slots.Used(), "slots of the undeleted frames stay taken")

	next, err := f.store.Receive(bytes.NewReader(payload(5000)), Identity)
	require.NoError(t, err)
	assert.NotEqual(t, img.Bundle.Objs[0].Slot, next.Bundle.Objs[0].Slot)
}

func TestLookupsDoNotWaitOnStreams(t *testing.T) {
	f := newFixture(t, 20)

	stored, err := f.store.Receive(strings.NewReader("stored"), Identity)
	require.NoError(t, err)

	pr, pw := io.Pipe()
	result := make(chan error, 1)
	go func() {
		_, err := f.store.Receive(pr, Identity)
		result <- err
	}()
	// The write returns once Receive is copying, so the window is held.
	_, err = pw.Write(payload(100))
	require.NoError(t, err)

	lookups := make(chan struct{})
	go func() {
		defer close(lookups)
		f.store.Len()
		f.store.List()
		_, _ = f.store.Get(stored.ID)
	}()
	select {
	case <-lookups:
	case <-time.After(2 * time.Second):
		t.Fatal("lookups blocked while an upload was streaming")
	}

	require.NoError(t, pw.Close())
	require.NoError(t, <-result)
	assert.Equal(t, 2, f.store.Len())
}

func TestListOrdersByCreation(t *testing.T) {
	f := newFixture(t, 20)

	var ids []string
	for i := 1; i <= 3; i++ {
		img, err := f.store.Receive(bytes.NewReader(payload(i*100)), Identity)
		require.NoError(t, err)
		ids = append(ids, img.ID.String())
	}

	list := f.store.List()
	require.Len(t, list, 3)
	for i, img := range list {
		assert.Equal(t, ids[i], img.ID.String())
		assert.Equal(t, int64((i+1)*100), img.Length)
	}
}

func TestOpenLimitsToLength(t *testing.T) {
	f := newFixture(t, 20)

	img, err := f.store.Receive(strings.NewReader("hello"), Identity)
	require.NoError(t, err)

	rc, err := f.store.Open(img.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())

	assert.Equal(t, "hello", string(got))
	assert.Equal(t, 0, f.kern.Mappings())

	// The store is usable again once the reader is closed.
	assert.Equal(t, 1, f.store.Len())
}

func TestEmptyUpload(t *testing.T) {
	f := newFixture(t, 20)

	img, err := f.store.Receive(bytes.NewReader(nil), Identity)
	require.NoError(t, err)
	assert.Equal(t, int64(0), img.Length)
	assert.Equal(t, 0, img.Bundle.Len())
	assert.Empty(t, readAll(t, f.store, img))
	require.NoError(t, f.store.Delete(img.ID))
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"", Identity, false},
		{"identity", Identity, false},
		{"ZSTD", Zstd, false},
		{" gzip ", Gzip, false},
		{"br", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEncoding(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
