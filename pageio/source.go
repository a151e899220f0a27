// Package pageio implements component A of the ESE reader: a paged,
// cached random-access view over a seekable byte source (spec.md §4.A).
package pageio

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ByteSource is the collaborator interface the core consumes (spec.md §6):
// a random-access byte provider with a known length. Both the default
// file-backed source and the optional memory-mapped source implement it.
type ByteSource interface {
	// ReadAt fills buf starting at the given absolute offset, exactly like
	// io.ReaderAt. Implementations must support concurrent ReadAt calls from
	// distinct Reader instances over distinct files; a single ByteSource is
	// not required to be safe for concurrent use by multiple Readers.
	ReadAt(buf []byte, off int64) (int, error)

	// Size returns the total length of the byte source in bytes.
	Size() (int64, error)

	// Close releases any resources (file descriptors, mappings) held by the
	// source.
	Close() error
}

// fileSource wraps an *os.File (or any io.ReaderAt + io.Closer) as a ByteSource.
type fileSource struct {
	r    io.ReaderAt
	c    io.Closer
	size int64
}

// NewFileSource opens path for reading and wraps it as a ByteSource.
func NewFileSource(path string) (ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &fileSource{r: f, c: f, size: fi.Size()}, nil
}

// NewReaderAtSource wraps an already-open io.ReaderAt (e.g. an *os.File the
// caller owns, or an in-memory reader) of the given size as a ByteSource.
// If r also implements io.Closer, Close forwards to it; otherwise Close is a
// no-op, leaving ownership of r with the caller.
func NewReaderAtSource(r io.ReaderAt, size int64) ByteSource {
	c, _ := r.(io.Closer)
	return &fileSource{r: r, c: c, size: size}
}

func (s *fileSource) ReadAt(buf []byte, off int64) (int, error) { return s.r.ReadAt(buf, off) }
func (s *fileSource) Size() (int64, error)                      { return s.size, nil }
func (s *fileSource) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// mmapSource memory-maps the whole file and serves reads directly out of the
// mapping, avoiding a kernel-to-userspace copy on every page fault the way a
// plain ReadAt would incur on repeated re-reads. Grounded in perkeep's use of
// github.com/edsrzf/mmap-go for its on-disk index files (see SPEC_FULL.md §3).
type mmapSource struct {
	f *os.File
	m mmap.MMap
}

// NewMmapSource memory-maps path read-only and wraps it as a ByteSource.
func NewMmapSource(path string) (ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mmapSource{f: f, m: m}, nil
}

func (s *mmapSource) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.m)) {
		return 0, io.EOF
	}

	n := copy(buf, s.m[off:])
	if n < len(buf) {
		return n, io.EOF
	}

	return n, nil
}

func (s *mmapSource) Size() (int64, error) { return int64(len(s.m)), nil }

func (s *mmapSource) Close() error {
	if err := s.m.Unmap(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
