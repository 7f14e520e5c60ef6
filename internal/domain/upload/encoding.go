package upload

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnsupportedEncoding indicates an unknown content encoding.
	ErrUnsupportedEncoding = errors.New("upload: unsupported encoding")

	// ErrCorrupt indicates a compressed stream that does not decode.
	ErrCorrupt = errors.New("upload: corrupt stream")
)

// Encoding is the transfer encoding of an upload stream.
type Encoding string

const (
	Identity Encoding = "identity"
	Zstd     Encoding = "zstd"
	Gzip     Encoding = "gzip"
)

// ParseEncoding accepts Content-Encoding style names. Empty means Identity.
func ParseEncoding(s string) (Encoding, error) {
	switch enc := Encoding(strings.ToLower(strings.TrimSpace(s))); enc {
	case "":
		return Identity, nil
	case Identity, Zstd, Gzip:
		return enc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEncoding, s)
	}
}

func decoder(r io.Reader, enc Encoding) (io.ReadCloser, error) {
	switch enc {
	case Identity, "":
		return io.NopCloser(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
		}
		return corruptOnError{dec.IOReadCloser(), enc}, nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrCorrupt, err)
		}
		return corruptOnError{zr, enc}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// corruptOnError marks decode failures with ErrCorrupt.
type corruptOnError struct {
	io.ReadCloser
	enc Encoding
}

func (c corruptOnError) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %s: %w", ErrCorrupt, c.enc, err)
	}
	return n, err
}
