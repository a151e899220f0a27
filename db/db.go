// Package db wires components A-I behind the component-J public-surface
// contract: open a database, enumerate tables and columns, open cursors,
// move them, and read column values (spec.md §4.J).
package db

import (
	"fmt"
	"sync"

	"github.com/essdb/goese/catalog"
	"github.com/essdb/goese/cursor"
	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
	"github.com/essdb/goese/header"
	"github.com/essdb/goese/internal/options"
	"github.com/essdb/goese/longvalue"
	"github.com/essdb/goese/pageio"
	"github.com/essdb/goese/record"
)

// DefaultCacheEntries is the page cache size used when no CacheEntries
// option is supplied.
const DefaultCacheEntries = 64

// OpenConfig is the mutable configuration Options apply to (spec.md §2
// AMBIENT STACK: a generic functional-options pattern, same shape as
// internal/options is used for elsewhere in this module).
type OpenConfig struct {
	CacheEntries int
}

// OpenOption configures Open (spec.md §4.J open(source, cache_entries)).
type OpenOption = options.Option[*OpenConfig]

// WithCacheEntries overrides the Paged Reader's page cache capacity.
func WithCacheEntries(n int) OpenOption {
	return options.NoError[*OpenConfig](func(c *OpenConfig) { c.CacheEntries = n })
}

// ColumnInfo describes one column's metadata for callers (spec.md §4.J).
type ColumnInfo struct {
	Name     string
	ID       uint32
	Type     format.ColumnType
	MaxBytes int
	Codepage uint16
}

// table bundles one TableDefinition with its lazily-built Record Decoder and
// (if any) Long-Value Store.
type table struct {
	def *catalog.TableDefinition
	lv  *longvalue.Store
	dec *record.Decoder
}

// DB is an open ESE database handle: the page reader, the parsed header,
// the catalog, and the set of currently open cursors (spec.md §4.J, §5).
type DB struct {
	mu     sync.Mutex
	r      *pageio.Reader
	Header header.Header

	tablesByName map[string]*table
	tableOrder   []string

	cursors map[int]*cursor.Cursor
	nextID  int
	closed  bool
}

// Open parses the file header, loads the catalog, and returns a ready
// handle (spec.md §4.J open). The handle owns src for its lifetime; Close
// releases it.
func Open(src pageio.ByteSource, opts ...OpenOption) (*DB, error) {
	cfg := &OpenConfig{CacheEntries: DefaultCacheEntries}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	r, err := pageio.NewReader(src, cfg.CacheEntries)
	if err != nil {
		return nil, err
	}

	hdr, err := header.Load(r)
	if err != nil {
		return nil, err
	}
	r.SetPageSize(hdr.PageSize)

	defs, err := catalog.Load(r, hdr.FormatRevision, hdr.PageSize)
	if err != nil {
		return nil, err
	}

	d := &DB{
		r:            r,
		Header:       hdr,
		tablesByName: make(map[string]*table),
		cursors:      make(map[int]*cursor.Cursor),
	}
	for i := range defs {
		def := defs[i]
		d.tablesByName[def.Name] = &table{def: &def}
		d.tableOrder = append(d.tableOrder, def.Name)
	}

	return d, nil
}

// ListTables returns every user and system table name in catalog order
// (spec.md §4.J list_tables, §8 scenario S1).
func (d *DB) ListTables() []string {
	out := make([]string, len(d.tableOrder))
	copy(out, d.tableOrder)
	return out
}

// Columns returns table's column metadata in declaration order (spec.md
// §4.J columns).
func (d *DB) Columns(tableName string) ([]ColumnInfo, error) {
	t, ok := d.tablesByName[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownTable, tableName)
	}

	out := make([]ColumnInfo, len(t.def.Columns))
	for i, c := range t.def.Columns {
		maxBytes := c.Size
		if maxBytes == 0 {
			maxBytes = c.Type.FixedSize()
		}
		out[i] = ColumnInfo{Name: c.Name, ID: c.ID, Type: c.Type, MaxBytes: maxBytes, Codepage: c.Codepage}
	}
	return out, nil
}

// ensureLoaded lazily loads a table's Long-Value store and builds its
// Record Decoder on first use (spec.md §4.F "Load once per table open").
func (d *DB) ensureLoaded(t *table) error {
	if t.dec != nil {
		return nil
	}

	var lv *longvalue.Store
	if t.def.HasLongValueRoot() {
		loaded, err := longvalue.Load(d.r, d.Header.FormatRevision, d.Header.PageSize, t.def.LongValueRoot)
		if err != nil {
			return err
		}
		lv = loaded
	}

	t.lv = lv
	t.dec = record.New(t.def, d.Header.FormatRevision, d.Header.PageSize, lv)
	return nil
}

// OpenCursor opens a new cursor over tableName, positioned before the first
// row (spec.md §4.J open_cursor).
func (d *DB) OpenCursor(tableName string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tablesByName[tableName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errs.ErrUnknownTable, tableName)
	}
	if err := d.ensureLoaded(t); err != nil {
		return 0, err
	}

	c := cursor.New(d.r, d.Header.FormatRevision, d.Header.PageSize, t.def)
	d.nextID++
	id := d.nextID
	d.cursors[id] = c
	return id, nil
}

// CloseCursor releases a cursor; closing an already-closed or unknown id is
// a no-op (spec.md §4.J close_cursor).
func (d *DB) CloseCursor(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cursors, id)
}

func (d *DB) cursorByID(id int) (*cursor.Cursor, error) {
	c, ok := d.cursors[id]
	if !ok {
		return nil, fmt.Errorf("%w: cursor %d", errs.ErrClosed, id)
	}
	return c, nil
}

// Move performs op on cursor id, returning false (no error) if the move
// ran out of rows to land on (spec.md §4.J move, §4.I).
func (d *DB) Move(id int, op format.MoveOp) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.cursorByID(id)
	if err != nil {
		return false, err
	}

	switch {
	case op.IsFirst():
		return c.First()
	case op.IsLast():
		return c.Last()
	default:
		return c.MoveBy(op.Delta())
	}
}

// cursorTable resolves the TableDefinition a cursor was opened over, used by
// Get/GetMV to find the matching Record Decoder.
func (d *DB) cursorTable(c *cursor.Cursor) (*table, error) {
	for _, t := range d.tablesByName {
		if t.def == c.Table() {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: cursor's table no longer registered", errs.ErrUnknownTable)
}

// Get resolves columnID's value at cursor id's current row (spec.md §4.J
// get).
func (d *DB) Get(id int, columnID uint32) ([]byte, error) {
	return d.GetMV(id, columnID, 1)
}

// GetMV resolves columnID's value at cursor id's current row, selecting
// mvIndex's element if the column is multi-valued (spec.md §4.J get_mv).
func (d *DB) GetMV(id int, columnID uint32, mvIndex int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.cursorByID(id)
	if err != nil {
		return nil, err
	}
	if c.Page == nil {
		return nil, fmt.Errorf("%w: cursor %d has not been moved to a row", errs.ErrBadRecord, id)
	}

	t, err := d.cursorTable(c)
	if err != nil {
		return nil, err
	}

	return t.dec.GetMV(c.Page, c.TagIndex, columnID, mvIndex)
}

// Close releases the underlying byte source and invalidates every open
// cursor (spec.md §5 "closing the database closes all cursors").
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.cursors = make(map[int]*cursor.Cursor)
	return d.r.Close()
}
