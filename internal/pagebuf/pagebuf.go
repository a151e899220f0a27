// Package pagebuf provides pooled, growable byte buffers used when
// reassembling data that does not fit in a single page: long-value segments
// (longvalue.Assemble). The compress package allocates its own output and
// does not use these buffers.
//
package pagebuf

import "sync"

const (
	// DefaultSize is the initial capacity handed out by the default pool.
	// Sized for a handful of LV segments or a decompressed tagged column.
	DefaultSize = 4096
	// MaxThreshold is the largest buffer the default pool will retain;
	// larger ones (e.g. an unusually large long value) are discarded after
	// use rather than pinned in the pool forever.
	MaxThreshold = 1024 * 1024
)

// Buffer is a growable []byte with explicit length/capacity control, used in
// place of bytes.Buffer where callers need direct slice access (Slice) or
// in-place extension (Extend) without a copy.
type Buffer struct {
	B []byte
}

// New creates a Buffer with the given initial capacity.
func New(size int) *Buffer {
	return &Buffer{B: make([]byte, 0, size)}
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte { return b.B }

// Len returns the length of the buffer.
func (b *Buffer) Len() int { return len(b.B) }

// Reset empties the buffer while retaining its backing array.
func (b *Buffer) Reset() { b.B = b.B[:0] }

// Append appends data to the buffer, growing it as needed.
func (b *Buffer) Append(data []byte) {
	b.B = append(b.B, data...)
}

// Slice returns b.B[start:end]. Panics on out-of-range indices: callers only
// ever pass offsets they have already validated against a known record/page
// size, so an out-of-range request indicates a programming error, not bad
// input.
func (b *Buffer) Slice(start, end int) []byte {
	if start < 0 || end < start || end > cap(b.B) {
		panic("pagebuf: invalid slice indices")
	}

	return b.B[start:end]
}

// Grow ensures the buffer can hold at least extra more bytes without
// reallocating, using a size-tiered growth policy: small buffers grow by a
// fixed chunk, large ones by a quarter of their current capacity.
func (b *Buffer) Grow(extra int) {
	available := cap(b.B) - len(b.B)
	if available >= extra {
		return
	}

	growBy := DefaultSize
	if cap(b.B) > 4*DefaultSize {
		growBy = cap(b.B) / 4
	}
	if growBy < extra {
		growBy = extra
	}

	newBuf := make([]byte, len(b.B), len(b.B)+growBy)
	copy(newBuf, b.B)
	b.B = newBuf
}

// Pool is a sync.Pool of Buffers with a maximum retained capacity.
type Pool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewPool creates a Pool handing out Buffers of defaultSize, discarding
// buffers larger than maxThreshold instead of returning them to the pool.
func NewPool(defaultSize, maxThreshold int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any { return New(defaultSize) },
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a reset Buffer from the pool.
func (p *Pool) Get() *Buffer {
	buf, _ := p.pool.Get().(*Buffer)
	return buf
}

// Put returns a Buffer to the pool, discarding it if it grew past the
// pool's maxThreshold.
func (p *Pool) Put(buf *Buffer) {
	if buf == nil {
		return
	}
	if p.maxThreshold > 0 && cap(buf.B) > p.maxThreshold {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

var defaultPool = NewPool(DefaultSize, MaxThreshold)

// Get retrieves a Buffer from the package-level default pool.
func Get() *Buffer { return defaultPool.Get() }

// Put returns a Buffer to the package-level default pool.
func Put(buf *Buffer) { defaultPool.Put(buf) }
