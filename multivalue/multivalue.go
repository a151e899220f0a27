// Package multivalue implements component G: decoding a tagged column's
// MULTI_VALUE / MULTI_VALUE_OFFSET payload layouts into per-index slices,
// optionally dereferencing a long-value key (spec.md §4.G).
package multivalue

import (
	"fmt"

	"github.com/essdb/goese/compress"
	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/longvalue"
)

// element is one decoded multi-value slot: either an inline byte range
// (shift/size into the payload) or a reference into the long-value store
// (isLV).
type element struct {
	shift int
	isLV  bool
	size  int
}

// buildOffsetList decodes the MULTI_VALUE_OFFSET layout: a single split byte
// at payload[0] partitions the payload into exactly two inline elements
// (spec.md §4.G).
func buildOffsetList(payload []byte) ([]element, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: MULTI_VALUE_OFFSET payload is empty", errs.ErrBadMvLayout)
	}

	split := int(payload[0])
	if split+1 > len(payload) {
		return nil, fmt.Errorf("%w: MULTI_VALUE_OFFSET split %d exceeds payload size %d", errs.ErrBadMvLayout, split, len(payload))
	}

	return []element{
		{shift: 1, isLV: false, size: split},
		{shift: split + 1, isLV: false, size: len(payload) - split - 1},
	}, nil
}

// buildMultiValueList decodes the MULTI_VALUE layout: a leading array of
// 2-byte `offset | (lv_bit<<15)` entries, entry count derived from the first
// entry's low 15 bits, consecutive differences giving each element's size
// (spec.md §4.G).
func buildMultiValueList(payload []byte) ([]element, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: MULTI_VALUE payload too short for header word", errs.ErrBadMvLayout)
	}

	first := leio.U16(payload[0:2])
	count := int(first&0x7FFF) / 2
	if count <= 0 {
		return nil, fmt.Errorf("%w: MULTI_VALUE entry count %d is not positive", errs.ErrBadMvLayout, count)
	}
	if 2*count > len(payload) {
		return nil, fmt.Errorf("%w: MULTI_VALUE header claims %d entries, payload too short", errs.ErrBadMvLayout, count)
	}

	type raw struct {
		offset int
		lv     bool
	}
	entries := make([]raw, count)
	for i := 0; i < count; i++ {
		w := leio.U16(payload[2*i : 2*i+2])
		entries[i] = raw{offset: int(w & 0x7FFF), lv: w&0x8000 != 0}
	}

	elems := make([]element, count)
	for i := 0; i < count; i++ {
		var size int
		if i+1 < count {
			size = entries[i+1].offset - entries[i].offset
		} else {
			size = len(payload) - entries[i].offset
		}
		elems[i] = element{shift: entries[i].offset, isLV: entries[i].lv, size: size}
	}

	return elems, nil
}

// selectIndex applies spec.md §4.G's index rule: max(0, mvIndex-1), i.e.
// mvIndex 0 or 1 both select the first element.
func selectIndex(mvIndex int) int {
	i := mvIndex - 1
	if i < 0 {
		return 0
	}
	return i
}

// Decode resolves one element of a multi-value tagged column. offsetForm
// selects MULTI_VALUE_OFFSET (true) vs MULTI_VALUE (false) layout.
// compressed applies to inline bytes and is passed on to store.Assemble for
// LV elements. store may be nil when no
// element in the list can possibly be an LV reference; Decode returns
// ErrBadMvLayout if a dereference is required but store is nil.
func Decode(payload []byte, offsetForm bool, mvIndex int, compressed bool, store *longvalue.Store) ([]byte, error) {
	var elems []element
	var err error
	if offsetForm {
		elems, err = buildOffsetList(payload)
	} else {
		elems, err = buildMultiValueList(payload)
	}
	if err != nil {
		return nil, err
	}

	idx := selectIndex(mvIndex)
	if idx >= len(elems) {
		return nil, nil
	}
	e := elems[idx]

	if e.isLV {
		if store == nil {
			return nil, fmt.Errorf("%w: multi-value element %d is an LV reference but no LV store is loaded", errs.ErrBadMvLayout, idx)
		}
		if e.shift+4 > len(payload) {
			return nil, fmt.Errorf("%w: multi-value LV key at shift %d overruns payload", errs.ErrBadMvLayout, e.shift)
		}
		key := leio.U32(payload[e.shift : e.shift+4])
		return store.Assemble(key, compressed)
	}

	if e.shift < 0 || e.shift+e.size > len(payload) || e.size < 0 {
		return nil, fmt.Errorf("%w: multi-value element %d [%d,%d) out of payload bounds", errs.ErrBadMvLayout, idx, e.shift, e.shift+e.size)
	}
	raw := payload[e.shift : e.shift+e.size]

	if compressed {
		return compress.Decompress(raw)
	}
	return append([]byte(nil), raw...), nil
}
