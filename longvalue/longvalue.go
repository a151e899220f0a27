// Package longvalue implements component F: loading an LV (long-value) B-tree
// and assembling one key's segments into a contiguous byte sequence (spec.md
// §4.F).
package longvalue

import (
	"fmt"

	"github.com/essdb/goese/compress"
	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/internal/pagebuf"
	"github.com/essdb/goese/page"
	"github.com/essdb/goese/pageio"
)

// segment is one data-bearing LV leaf tag (spec.md §4.F): a slice of the
// value for Key at SegmentOffset within the assembled output.
type segment struct {
	Key           uint32
	SegmentOffset uint32
	Data          []byte
}

// Store is an LV B-tree loaded once per table open, ready to assemble any of
// its keys on demand.
type Store struct {
	segments []segment
}

// compositeKey derives (key, segmentOffset) from the common-page-key prefix
// and a tag's local key bytes, following spec.md §4.F's literal rule: if the
// two concatenate to exactly 8 bytes, read key||segment_offset big-endian
// from the concatenation; otherwise take whichever side is itself >= 8 bytes.
func compositeKey(common, local []byte) (uint32, uint32, error) {
	combined := append(append([]byte(nil), common...), local...)

	switch {
	case len(combined) == 8:
		return leio.BEU32(combined[0:4]), leio.BEU32(combined[4:8]), nil
	case len(local) >= 8:
		return leio.BEU32(local[0:4]), leio.BEU32(local[4:8]), nil
	case len(common) >= 8:
		return leio.BEU32(common[0:4]), leio.BEU32(common[4:8]), nil
	default:
		return 0, 0, fmt.Errorf("%w: LV page key split (%d common + %d local bytes) is not resolvable",
			errs.ErrBadRecord, len(common), len(local))
	}
}

// splitLocalKey separates a leaf tag's local key from its data, per the
// HasCommonKeySize convention also used by the catalog/record tag layouts:
// when the tag carries format.TagFlagHasCommonKeySize, its payload opens
// with a 2-byte local-key length, then that many key bytes, then data.
// Otherwise the tag contributes no local key and its whole payload is data.
func splitLocalKey(t page.Tag, payload []byte) (local, data []byte, err error) {
	if !t.Flags.Has(format.TagFlagHasCommonKeySize) {
		return nil, payload, nil
	}
	if len(payload) < 2 {
		return nil, nil, fmt.Errorf("%w: LV tag too short for local key length", errs.ErrBadRecord)
	}

	keyLen := int(leio.U16(payload[0:2]))
	if 2+keyLen > len(payload) {
		return nil, nil, fmt.Errorf("%w: LV tag local key length %d overruns payload", errs.ErrBadRecord, keyLen)
	}

	return payload[2 : 2+keyLen], payload[2+keyLen:], nil
}

// walkLeftmostLeaf follows PARENT tag-1 branch pointers from start until a
// LEAF page is reached, matching the catalog B-tree's traversal convention
// (spec.md §4.D, reused here per §4.F: "Walk the LV B-tree (PARENT->LEAF via
// tag 1 branch pointers)").
func walkLeftmostLeaf(r *pageio.Reader, rev uint32, pageSize int, start uint32) (*page.Page, error) {
	current, err := page.Load(r, start, rev, pageSize)
	if err != nil {
		return nil, err
	}

	visited := make(map[uint32]bool)

	for !current.IsLeaf() {
		if visited[current.Number] {
			return nil, errs.ErrCircularPageReference
		}
		visited[current.Number] = true

		if !current.IsParent() {
			return nil, fmt.Errorf("%w: LV page %d is neither leaf nor parent", errs.ErrBadRecord, current.Number)
		}
		if len(current.Tags) < 2 {
			return nil, fmt.Errorf("%w: LV parent page %d has no branch tag", errs.ErrBadRecord, current.Number)
		}

		payload, err := current.Payload(1)
		if err != nil {
			return nil, err
		}
		if len(payload) < 4 {
			return nil, fmt.Errorf("%w: LV parent page %d branch tag too short", errs.ErrBadRecord, current.Number)
		}

		child := leio.U32(payload[len(payload)-4:])
		current, err = page.Load(r, child, rev, pageSize)
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

// Load walks the LV B-tree rooted at rootPage and indexes every data segment
// it finds (spec.md §4.F). Metadata tags (whose post-key payload is exactly
// 8 bytes: key + total_size) are recognized and skipped, since only the
// restart-scan assembler needs the data segments.
func Load(r *pageio.Reader, rev uint32, pageSize int, rootPage uint32) (*Store, error) {
	leaf, err := walkLeftmostLeaf(r, rev, pageSize, rootPage)
	if err != nil {
		return nil, err
	}

	s := &Store{}
	visited := make(map[uint32]bool)

	for {
		if visited[leaf.Number] {
			return nil, errs.ErrCircularPageReference
		}
		visited[leaf.Number] = true

		common, err := leaf.Payload(0)
		if err != nil {
			return nil, err
		}

		for i := 1; i < len(leaf.Tags); i++ {
			if leaf.Tags[i].IsDefunct() {
				continue
			}

			payload, err := leaf.Payload(i)
			if err != nil {
				return nil, err
			}

			local, data, err := splitLocalKey(leaf.Tags[i], payload)
			if err != nil {
				return nil, err
			}

			key, segOff, err := compositeKey(common, local)
			if err != nil {
				return nil, err
			}

			if len(data) == 8 {
				// metadata tag (key + total_size): not a data segment.
				continue
			}

			s.segments = append(s.segments, segment{Key: key, SegmentOffset: segOff, Data: data})
		}

		if leaf.NextPage == 0 {
			break
		}
		leaf, err = page.Load(r, leaf.NextPage, rev, pageSize)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Assemble reassembles key's full value by repeatedly scanning for the
// segment whose SegmentOffset equals the output built so far, restarting
// after every append (spec.md §4.F). When compressed, each segment's bytes
// are decompressed individually before being appended.
func (s *Store) Assemble(key uint32, compressed bool) ([]byte, error) {
	out := pagebuf.New(pagebuf.DefaultSize)

	appended := true
	first := true
	for appended {
		appended = false

		for _, seg := range s.segments {
			if seg.Key != key || int(seg.SegmentOffset) != out.Len() {
				continue
			}

			chunk := seg.Data
			if compressed {
				decoded, err := compress.Decompress(chunk)
				if err != nil {
					return nil, err
				}
				chunk = decoded
			}

			out.Grow(len(chunk))
			out.Append(chunk)
			appended = true
			first = false
			break
		}
	}

	if first {
		return nil, fmt.Errorf("%w: key %d", errs.ErrLvKeyNotFound, key)
	}

	return append([]byte(nil), out.Bytes()...), nil
}
