// Package cursor implements component I: per-opened-table traversal state
// over a table's data B-tree — current leaf page, current tag index,
// direction, and a visited-page set for cycle detection (spec.md §4.I).
package cursor

import (
	"fmt"

	"github.com/essdb/goese/catalog"
	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/page"
	"github.com/essdb/goese/pageio"
)

// Direction is the cursor's last movement direction, which gates when the
// visited-page cycle-detection set resets (spec.md §3 Cursor, §8 property 6).
type Direction uint8

const (
	DirNone Direction = iota
	DirForward
	DirBackward
)

// Cursor walks one table's data B-tree leaf chain, tracking the row
// currently positioned on for Get/GetMV to read from (spec.md §3 Cursor,
// §4.I).
type Cursor struct {
	r        *pageio.Reader
	rev      uint32
	pageSize int
	table    *catalog.TableDefinition

	Direction Direction
	Page      *page.Page
	TagIndex  int

	visited map[uint32]bool
}

// New creates a Cursor over table, positioned before the first row. Call
// Move to position it.
func New(r *pageio.Reader, rev uint32, pageSize int, table *catalog.TableDefinition) *Cursor {
	return &Cursor{r: r, rev: rev, pageSize: pageSize, table: table}
}

// Table returns the TableDefinition this cursor was opened over.
func (c *Cursor) Table() *catalog.TableDefinition { return c.table }

func (c *Cursor) resetVisited() { c.visited = make(map[uint32]bool) }

func (c *Cursor) markVisited(pageNum uint32) error {
	if c.visited == nil {
		c.resetVisited()
	}
	if c.visited[pageNum] {
		return errs.ErrCircularPageReference
	}
	c.visited[pageNum] = true
	return nil
}

// walkToLeaf follows PARENT branch pointers from start to a LEAF page,
// taking the first branch tag (index 1) to go leftmost, or the last branch
// tag to go rightmost (spec.md §4.D's leftmost walk, generalized).
func (c *Cursor) walkToLeaf(start uint32, rightmost bool) (*page.Page, error) {
	current, err := page.Load(c.r, start, c.rev, c.pageSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]bool)
	for !current.IsLeaf() {
		if seen[current.Number] {
			return nil, errs.ErrCircularPageReference
		}
		seen[current.Number] = true

		if !current.IsParent() {
			return nil, fmt.Errorf("%w: page %d is neither leaf nor parent", errs.ErrBadPage, current.Number)
		}
		if len(current.Tags) < 2 {
			return nil, fmt.Errorf("%w: parent page %d has no branch tag", errs.ErrBadPage, current.Number)
		}

		branchIdx := 1
		if rightmost {
			branchIdx = len(current.Tags) - 1
		}

		payload, err := current.Payload(branchIdx)
		if err != nil {
			return nil, err
		}
		if len(payload) < 4 {
			return nil, fmt.Errorf("%w: parent page %d branch tag too short", errs.ErrBadPage, current.Number)
		}

		child := leio.U32(payload[len(payload)-4:])
		current, err = page.Load(c.r, child, c.rev, c.pageSize)
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

// firstDataTag returns the lowest (forward) or highest (backward) non-defunct
// data tag index on p, or ok=false if p has none (tag 0 is the common-key
// prefix, never a data row, per the same convention catalog.Load uses).
func firstDataTag(p *page.Page, backward bool) (int, bool) {
	if backward {
		for i := len(p.Tags) - 1; i >= 1; i-- {
			if !p.Tags[i].IsDefunct() {
				return i, true
			}
		}
		return 0, false
	}
	for i := 1; i < len(p.Tags); i++ {
		if !p.Tags[i].IsDefunct() {
			return i, true
		}
	}
	return 0, false
}

// First positions the cursor on the table's first row (spec.md §4.I
// Move(First)).
func (c *Cursor) First() (bool, error) {
	c.Direction = DirForward
	c.resetVisited()

	leaf, err := c.walkToLeaf(c.table.FDPPage, false)
	if err != nil {
		return false, err
	}
	_ = c.markVisited(leaf.Number)
	c.Page = leaf

	idx, ok := firstDataTag(leaf, false)
	if !ok {
		return c.stepForwardToData()
	}
	c.TagIndex = idx
	return true, nil
}

// Last positions the cursor on the table's last row (spec.md §4.I
// Move(Last)).
func (c *Cursor) Last() (bool, error) {
	c.Direction = DirBackward
	c.resetVisited()

	leaf, err := c.walkToLeaf(c.table.FDPPage, true)
	if err != nil {
		return false, err
	}
	_ = c.markVisited(leaf.Number)
	c.Page = leaf

	idx, ok := firstDataTag(leaf, true)
	if !ok {
		return c.stepBackwardToData()
	}
	c.TagIndex = idx
	return true, nil
}

// stepForwardToData advances page-by-page (skipping empty leaves) until a
// non-defunct data tag is found, or the leaf chain ends.
func (c *Cursor) stepForwardToData() (bool, error) {
	for {
		if c.Page.NextPage == 0 {
			return false, nil
		}
		next, err := page.Load(c.r, c.Page.NextPage, c.rev, c.pageSize)
		if err != nil {
			return false, err
		}
		if err := c.markVisited(next.Number); err != nil {
			return false, err
		}
		c.Page = next

		if idx, ok := firstDataTag(next, false); ok {
			c.TagIndex = idx
			return true, nil
		}
	}
}

func (c *Cursor) stepBackwardToData() (bool, error) {
	for {
		if c.Page.PrevPage == 0 {
			return false, nil
		}
		prev, err := page.Load(c.r, c.Page.PrevPage, c.rev, c.pageSize)
		if err != nil {
			return false, err
		}
		if err := c.markVisited(prev.Number); err != nil {
			return false, err
		}
		c.Page = prev

		if idx, ok := firstDataTag(prev, true); ok {
			c.TagIndex = idx
			return true, nil
		}
	}
}

// Next advances the cursor by one row (spec.md §4.I Move(Next)).
func (c *Cursor) Next() (bool, error) {
	if c.Page == nil {
		return c.First()
	}
	if c.Direction == DirBackward {
		c.resetVisited()
		_ = c.markVisited(c.Page.Number)
	}
	c.Direction = DirForward

	for i := c.TagIndex + 1; i < len(c.Page.Tags); i++ {
		if !c.Page.Tags[i].IsDefunct() {
			c.TagIndex = i
			return true, nil
		}
	}
	return c.stepForwardToData()
}

// Prev retreats the cursor by one row (spec.md §4.I Move(Prev)).
func (c *Cursor) Prev() (bool, error) {
	if c.Page == nil {
		return c.Last()
	}
	if c.Direction == DirForward {
		c.resetVisited()
		_ = c.markVisited(c.Page.Number)
	}
	c.Direction = DirBackward

	for i := c.TagIndex - 1; i >= 1; i-- {
		if !c.Page.Tags[i].IsDefunct() {
			c.TagIndex = i
			return true, nil
		}
	}
	return c.stepBackwardToData()
}

// MoveBy performs n repeats of Next (n > 0) or |n| repeats of Prev (n < 0),
// short-circuiting on the first false (spec.md §4.I Move(n)). MoveBy(0) is a
// no-op returning true.
func (c *Cursor) MoveBy(n int) (bool, error) {
	if n == 0 {
		return true, nil
	}
	if n > 0 {
		for ; n > 0; n-- {
			ok, err := c.Next()
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}
	for ; n < 0; n++ {
		ok, err := c.Prev()
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}
