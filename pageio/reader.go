package pageio

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/internal/leio"
)

// ProvisionalPageSize is the page size assumed before Header & Revision
// (package header) has parsed the real one, solely so the file header itself
// can be read (spec.md §4.A).
const ProvisionalPageSize = 2048

// Reader is component A: a random-read view over a ByteSource, chunked into
// page-size units and backed by a bounded, approximately-LRU cache. A single
// Reader is not safe for concurrent use (spec.md §5); distinct Readers over
// distinct sources may run concurrently in separate goroutines.
type Reader struct {
	src      ByteSource
	pageSize int
	cache    *lru.Cache[int64, []byte]
	entries  int
}

// NewReader creates a Reader over src with the given cache capacity (number
// of page-sized chunks retained), using the provisional page size until
// SetPageSize is called.
func NewReader(src ByteSource, cacheEntries int) (*Reader, error) {
	if cacheEntries <= 0 {
		cacheEntries = 64
	}

	c, err := lru.New[int64, []byte](cacheEntries)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:      src,
		pageSize: ProvisionalPageSize,
		cache:    c,
		entries:  cacheEntries,
	}, nil
}

// PageSize returns the chunk size the Reader currently reads/caches in.
func (r *Reader) PageSize() int { return r.pageSize }

// SetPageSize switches the Reader to the real, format-determined page size
// once Header & Revision has parsed it, flushing any chunks cached under the
// provisional size (spec.md §4.A).
func (r *Reader) SetPageSize(pageSize int) {
	if pageSize == r.pageSize {
		return
	}
	r.pageSize = pageSize
	r.cache.Purge()
}

// Size returns the total length of the underlying byte source.
func (r *Reader) Size() (int64, error) { return r.src.Size() }

// Close releases the underlying byte source.
func (r *Reader) Close() error { return r.src.Close() }

// chunk returns the cached page-sized buffer containing the given chunk
// index (absolute offset / r.pageSize), reading it from the source on a
// cache miss. The final chunk of a file may be short.
func (r *Reader) chunk(index int64) ([]byte, error) {
	if buf, ok := r.cache.Get(index); ok {
		return buf, nil
	}

	size, err := r.src.Size()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}

	start := index * int64(r.pageSize)
	if start >= size {
		return nil, fmt.Errorf("%w: chunk %d past end of source (size %d)", errs.ErrRange, index, size)
	}

	want := r.pageSize
	if start+int64(want) > size {
		want = int(size - start)
	}

	buf := make([]byte, want)
	n, err := r.src.ReadAt(buf, start)
	if err != nil && n < want {
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}

	r.cache.Add(index, buf)

	return buf, nil
}

// Read returns a copy of length len bytes starting at offset. offset and
// offset+len must fall within a single page-sized chunk; callers needing a
// span larger than one page (e.g. the whole-page reads in package page) ask
// for exactly one chunk at a time.
func (r *Reader) Read(offset int64, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("%w: negative offset or length", errs.ErrRange)
	}

	index := offset / int64(r.pageSize)
	chunkStart := index * int64(r.pageSize)
	localStart := int(offset - chunkStart)

	if localStart+length > r.pageSize {
		return nil, fmt.Errorf("%w: read [%d,%d) crosses page boundary at size %d",
			errs.ErrRange, offset, offset+int64(length), r.pageSize)
	}

	buf, err := r.chunk(index)
	if err != nil {
		return nil, err
	}

	if localStart+length > len(buf) {
		return nil, fmt.Errorf("%w: read past end of chunk", errs.ErrRange)
	}

	out := make([]byte, length)
	copy(out, buf[localStart:localStart+length])

	return out, nil
}

// ReadPage returns the full raw bytes of ESE logical page number pageNum.
// Per spec.md §3, logical page N starts at byte offset (N+1)*page_size; the
// primary file header sits at offset 0 and its backup at offset page_size
// (logical page 0), so callers of ReadPage pass pageNum >= 1 (page.Load
// enforces this through CheckPageNumber).
func (r *Reader) ReadPage(pageNum uint32) ([]byte, error) {
	offset := (int64(pageNum) + 1) * int64(r.pageSize)
	return r.Read(offset, r.pageSize)
}

// ReadU16LE reads a little-endian uint16 at offset.
func (r *Reader) ReadU16LE(offset int64) (uint16, error) {
	b, err := r.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return leio.U16(b), nil
}

// ReadU32LE reads a little-endian uint32 at offset.
func (r *Reader) ReadU32LE(offset int64) (uint32, error) {
	b, err := r.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return leio.U32(b), nil
}

// ReadU64LE reads a little-endian uint64 at offset.
func (r *Reader) ReadU64LE(offset int64) (uint64, error) {
	b, err := r.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return leio.U64(b), nil
}

// MaxPageNumber returns the highest valid ESE logical page number for a
// source of the given size and page size (spec.md §8 property 3:
// "1 ≤ N ≤ file_length/page_size − 1").
func MaxPageNumber(fileSize int64, pageSize int) uint32 {
	if pageSize <= 0 {
		return 0
	}
	total := fileSize / int64(pageSize)
	if total <= 1 {
		return 0
	}
	return uint32(total - 1)
}

// CheckPageNumber validates a page number against spec.md §8 property 3.
func CheckPageNumber(pageNum uint32, fileSize int64, pageSize int) error {
	max := MaxPageNumber(fileSize, pageSize)
	if pageNum < 1 || pageNum > max {
		return fmt.Errorf("%w: page %d not in [1,%d]", errs.ErrPageOutOfRange, pageNum, max)
	}
	return nil
}
