// Package record implements component E: decoding one column's value out of
// a leaf-page record, walking the fixed, variable, and tagged regions in
// order and dispatching LONG_VALUE/MULTI_VALUE/COMPRESSED tagged columns to
// the longvalue/multivalue/compress packages (spec.md §4.E).
//
// Grounded on original_source/lib/src/parser/reader.rs's load_data: records
// carry no column count, so every Get call re-walks the table's declared
// columns from the start. Per the memoization Open Question decision
// (DESIGN.md), recomputing is correctness-neutral and this package has no
// per-cursor cache.
package record

import (
	"fmt"

	"github.com/essdb/goese/catalog"
	"github.com/essdb/goese/compress"
	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
	"github.com/essdb/goese/header"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/longvalue"
	"github.com/essdb/goese/multivalue"
	"github.com/essdb/goese/page"
)

const ddhSize = 4 // last_fixed(u8) + last_variable(u8) + variable_offset(u16)

// Decoder resolves column values for one table's records.
type Decoder struct {
	Table    *catalog.TableDefinition
	Rev      uint32
	PageSize int
	// LV is the long-value store backing this table's LONG_VALUE/MULTI_VALUE
	// tagged columns, or nil if the table has no LongValue catalog item.
	LV *longvalue.Store
}

// New builds a Decoder for table, with lv already loaded from
// table.LongValueRoot (or nil if the table has none).
func New(table *catalog.TableDefinition, rev uint32, pageSize int, lv *longvalue.Store) *Decoder {
	return &Decoder{Table: table, Rev: rev, PageSize: pageSize, LV: lv}
}

// Get resolves columnID's value for the row at p's tagIndex, as the first
// element of a multi-value column (spec.md §4.G: mv_index 0 and 1 are
// equivalent and both select the first element).
func (d *Decoder) Get(p *page.Page, tagIndex int, columnID uint32) ([]byte, error) {
	return d.GetMV(p, tagIndex, columnID, 1)
}

// splitLocalKey separates a leaf tag's local-key prefix from its record
// bytes. Mirrors longvalue.splitLocalKey's convention: a tag carrying
// format.TagFlagHasCommonKeySize opens with a 2-byte local-key length
// followed by that many key bytes (spec.md §4.E "skip its common/local
// page-key prefix").
func splitLocalKey(t page.Tag, payload []byte) ([]byte, error) {
	if !t.Flags.Has(format.TagFlagHasCommonKeySize) {
		return payload, nil
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: record tag too short for local key length", errs.ErrBadRecord)
	}
	keyLen := int(leio.U16(payload[0:2]))
	if 2+keyLen > len(payload) {
		return nil, fmt.Errorf("%w: record local key length %d overruns payload", errs.ErrBadRecord, keyLen)
	}
	return payload[2+keyLen:], nil
}

// taggedEntry is one parsed tagged-region index slot: tag_id, the masked
// offset used for size arithmetic, and the raw (unmasked) offset word whose
// bit 0x4000 signals a leading type-flags byte in the non-extended format
// (spec.md §4.E, §4.C).
type taggedEntry struct {
	id        uint16
	offset    int
	rawOffset uint16
}

func (d *Decoder) taggedMask() int {
	if d.Rev >= header.ExtendedPageHeaderRevision && d.PageSize >= 16384 {
		return 0x7FFF
	}
	return 0x3FFF
}

// parseTaggedIndex reads the tagged-region index in data[taggedBase:],
// inferring its entry count from the first entry's masked offset (the
// byte distance from the region's start to where the index ends and data
// begins), per spec.md §4.E.
func parseTaggedIndex(data []byte, taggedBase, mask int) ([]taggedEntry, error) {
	if taggedBase < 0 || taggedBase > len(data) {
		return nil, fmt.Errorf("%w: tagged region base %d out of bounds", errs.ErrBadRecord, taggedBase)
	}
	region := data[taggedBase:]
	if len(region) < 4 {
		return nil, nil
	}

	firstOffset := int(leio.U16(region[2:4])) & mask
	if firstOffset < 4 || firstOffset > len(region) {
		return nil, fmt.Errorf("%w: tagged index size %d out of range", errs.ErrBadRecord, firstOffset)
	}
	count := firstOffset / 4

	entries := make([]taggedEntry, count)
	for i := 0; i < count; i++ {
		rawOffset := leio.U16(region[4*i+2 : 4*i+4])
		entries[i] = taggedEntry{
			id:        leio.U16(region[4*i : 4*i+2]),
			offset:    int(rawOffset) & mask,
			rawOffset: rawOffset,
		}
	}
	return entries, nil
}

func columnByID(table *catalog.TableDefinition, id uint32) (catalog.ColumnDef, bool) {
	for _, c := range table.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return catalog.ColumnDef{}, false
}

// GetMV resolves columnID's value for the row at p's tagIndex, selecting
// mvIndex's element if the column turns out to carry a MULTI_VALUE or
// MULTI_VALUE_OFFSET tagged payload (spec.md §4.E, §4.G).
func (d *Decoder) GetMV(p *page.Page, tagIndex int, columnID uint32, mvIndex int) ([]byte, error) {
	target, ok := columnByID(d.Table, columnID)
	if !ok {
		return nil, fmt.Errorf("%w: column %d", errs.ErrUnknownColumn, columnID)
	}

	if tagIndex <= 0 || tagIndex >= len(p.Tags) {
		return nil, fmt.Errorf("%w: tag index %d out of range", errs.ErrBadRecord, tagIndex)
	}
	tag := p.Tags[tagIndex]
	payload, err := p.Payload(tagIndex)
	if err != nil {
		return nil, err
	}

	data, err := splitLocalKey(tag, payload)
	if err != nil {
		return nil, err
	}
	if len(data) < ddhSize {
		return nil, fmt.Errorf("%w: record too short for data definition header", errs.ErrBadRecord)
	}

	lastFixed := data[0]
	lastVariable := data[1]
	variableOffset := int(leio.U16(data[2:4]))

	bitmaskSize := (int(lastFixed) + 7) / 8
	bitmaskStart := variableOffset - bitmaskSize
	if bitmaskSize > 0 && (bitmaskStart < ddhSize || variableOffset > len(data)) {
		return nil, fmt.Errorf("%w: fixed null-bitmask bounds invalid", errs.ErrBadRecord)
	}
	var bitmask []byte
	if bitmaskSize > 0 {
		bitmask = data[bitmaskStart:variableOffset]
	}

	variableEntryCount := 0
	if lastVariable > 127 {
		variableEntryCount = int(lastVariable) - 127
	}
	offsetBase := variableOffset + 2*variableEntryCount

	fixedCursor := ddhSize
	variableEntryIdx := 0
	prevVariableSize := 0
	var taggedEntries []taggedEntry
	taggedBuilt := false

	for colPos, c := range d.Table.Columns {
		switch {
		case c.ID <= 127:
			if c.ID <= uint32(lastFixed) {
				isNull := len(bitmask) > 0 && colPos/8 < len(bitmask) && bitmask[colPos/8]&(1<<uint(colPos%8)) != 0
				start := fixedCursor
				fixedCursor += c.Size
				if c.ID == columnID {
					if isNull {
						return defaultOrNil(target), nil
					}
					if start+c.Size > len(data) {
						return nil, fmt.Errorf("%w: fixed column %d out of bounds", errs.ErrBadRecord, c.ID)
					}
					return append([]byte(nil), data[start:start+c.Size]...), nil
				}
			} else if c.ID == columnID {
				return defaultOrNil(target), nil
			}

		case c.ID <= uint32(lastVariable):
			if variableEntryIdx >= variableEntryCount {
				if c.ID == columnID {
					return defaultOrNil(target), nil
				}
				continue
			}

			entryOff := variableOffset + 2*variableEntryIdx
			if entryOff+2 > len(data) {
				return nil, fmt.Errorf("%w: variable end-offset entry out of bounds", errs.ErrBadRecord)
			}
			raw := leio.U16(data[entryOff : entryOff+2])
			variableEntryIdx++
			empty := raw&0x8000 != 0
			curSize := int(raw & 0x7FFF)

			if c.ID == columnID {
				if empty {
					return defaultOrNil(target), nil
				}
				start := offsetBase + prevVariableSize
				end := offsetBase + curSize
				if start < 0 || end > len(data) || end < start {
					return nil, fmt.Errorf("%w: variable column %d out of bounds", errs.ErrBadRecord, c.ID)
				}
				return append([]byte(nil), data[start:end]...), nil
			}
			if !empty {
				prevVariableSize = curSize
			}

		default:
			if !taggedBuilt {
				taggedBase := offsetBase + prevVariableSize
				entries, err := parseTaggedIndex(data, taggedBase, d.taggedMask())
				if err != nil {
					return nil, err
				}
				taggedEntries = entries
				taggedBuilt = true
			}

			if c.ID != columnID {
				continue
			}

			val, found, err := d.resolveTagged(data, offsetBase+prevVariableSize, taggedEntries, target, mvIndex)
			if err != nil {
				return nil, err
			}
			if found {
				return val, nil
			}
			return defaultOrNil(target), nil
		}
	}

	return nil, fmt.Errorf("%w: column %d", errs.ErrUnknownColumn, columnID)
}

// resolveTagged finds col.ID within entries and decodes its payload
// (spec.md §4.E step "Else (tagged)").
func (d *Decoder) resolveTagged(data []byte, taggedBase int, entries []taggedEntry, col catalog.ColumnDef, mvIndex int) ([]byte, bool, error) {
	mask := d.taggedMask()
	extended := d.Rev >= header.ExtendedPageHeaderRevision && d.PageSize >= 16384

	for i, e := range entries {
		if uint32(e.id) != col.ID {
			continue
		}

		var size int
		if i+1 < len(entries) {
			size = entries[i+1].offset - e.offset
		} else {
			size = len(data) - taggedBase - e.offset
		}
		if size < 0 || taggedBase+e.offset+size > len(data) {
			return nil, false, fmt.Errorf("%w: tagged column %d payload out of bounds", errs.ErrBadRecord, col.ID)
		}

		start := taggedBase + e.offset
		valueSize := size
		hasFlagsByte := extended || e.rawOffset&0x4000 != 0

		var flags format.RecordFlag
		if hasFlagsByte {
			if valueSize < 1 {
				return nil, false, fmt.Errorf("%w: tagged column %d missing flags byte", errs.ErrBadRecord, col.ID)
			}
			flags = format.RecordFlag(data[start])
			start++
			valueSize--
		}
		if valueSize <= 0 {
			return nil, true, nil
		}

		raw := data[start : start+valueSize]
		compressed := col.Flags.Has(format.ColumnFlagCompressed)

		switch {
		case flags.Has(format.RecordFlagLongValue):
			if len(raw) < 4 {
				return nil, false, fmt.Errorf("%w: LV key too short", errs.ErrBadRecord)
			}
			if d.LV == nil {
				return nil, false, fmt.Errorf("%w: column %d is a long value but table has no LV store", errs.ErrBadRecord, col.ID)
			}
			key := leio.U32(raw[0:4])
			v, err := d.LV.Assemble(key, compressed)
			return v, err == nil, err

		case flags.Has(format.RecordFlagMultiValue), flags.Has(format.RecordFlagMultiValueOffset):
			v, err := multivalue.Decode(raw, flags.Has(format.RecordFlagMultiValueOffset), mvIndex, compressed, d.LV)
			return v, err == nil, err

		case flags.Has(format.RecordFlagCompressed):
			v, err := compress.Decompress(raw)
			return v, err == nil, err

		default:
			return append([]byte(nil), raw...), true, nil
		}
	}

	return nil, false, nil
}

func defaultOrNil(col catalog.ColumnDef) []byte {
	if len(col.Default) > 0 {
		return append([]byte(nil), col.Default...)
	}
	return nil
}
