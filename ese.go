// Package goese reads Extensible Storage Engine ("Jet Blue") database
// files: the format behind Windows Search, Active Directory, Exchange, and
// a handful of other Windows subsystems. It is a read-only parser: no
// write, recovery, or index-traversal support (spec.md §1 Non-goals).
//
// # Basic usage
//
//	h, err := goese.Open("WebCacheV01.dat")
//	if err != nil { ... }
//	defer h.Close()
//
//	for _, name := range h.ListTables() {
//	    cur, _ := h.OpenCursor(name)
//	    for ok, _ := h.Move(cur, goese.MoveFirst()); ok; ok, _ = h.Move(cur, goese.MoveNext()) {
//	        // h.Get(cur, columnID) ...
//	    }
//	    h.CloseCursor(cur)
//	}
//
// This package provides thin convenience wrappers around the db package's
// public surface for the common path, leaving db, cursor, record, and
// friends available for direct use.
package goese

import (
	"github.com/essdb/goese/db"
	"github.com/essdb/goese/format"
	"github.com/essdb/goese/pageio"
)

// Handle is an open ESE database. It is not safe for concurrent use from
// multiple goroutines (spec.md §5); open a separate Handle per goroutine
// that needs one.
type Handle = db.DB

// ColumnInfo describes one column's metadata (spec.md §4.J columns).
type ColumnInfo = db.ColumnInfo

// MoveOp selects a cursor's next position (spec.md §4.I).
type MoveOp = format.MoveOp

// Re-exported move constructors, mirroring format's (spec.md §4.I).
var (
	MoveFirst = format.MoveFirst
	MoveLast  = format.MoveLast
	MoveNext  = format.MoveNext
	MovePrev  = format.MovePrev
	MoveBy    = format.MoveBy
)

// Open opens the ESE database file at path over ordinary file I/O
// (spec.md §4.A, §4.J open). Use OpenSource with pageio.NewMmapSource for
// an mmap-backed byte source instead.
func Open(path string, opts ...db.OpenOption) (*Handle, error) {
	src, err := pageio.NewFileSource(path)
	if err != nil {
		return nil, err
	}
	return db.Open(src, opts...)
}

// OpenSource opens an already-constructed byte source, for callers reading
// from something other than a local file (an in-memory buffer, an mmap'd
// region obtained elsewhere).
func OpenSource(src pageio.ByteSource, opts ...db.OpenOption) (*Handle, error) {
	return db.Open(src, opts...)
}

// WithCacheEntries overrides the Paged Reader's page cache capacity.
func WithCacheEntries(n int) db.OpenOption { return db.WithCacheEntries(n) }
