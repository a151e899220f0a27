// Package catalog implements component D: walking the catalog B-tree rooted
// at fixed page 4 and assembling it into ordered TableDefinitions (spec.md
// §4.D).
package catalog

import (
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/page"
	"github.com/essdb/goese/pageio"
)

// ddhSize is DataDefinitionHeader's size: last_fixed_size_data_type(u8) +
// last_variable_size_data_type(u8) + variable_size_data_types_offset(u16)
// (ese_db.rs's DataDefinitionHeader; same convention record.Decoder.GetMV
// uses for ordinary records, since a catalog leaf item is just an ordinary
// record whose fixed columns happen to be the 11 DataDefinition fields).
const ddhSize = 4

// RootPage is the fixed logical page number the catalog B-tree is rooted at
// (spec.md §3).
const RootPage = 4

// ColumnDef is one table's column metadata entry, in declaration order
// (spec.md §3 "Column metadata").
type ColumnDef struct {
	Name     string
	ID       uint32
	Type     format.ColumnType
	Size     int
	Codepage uint16
	Flags    format.ColumnFlag
	Default  []byte
}

// HasLongValueRoot reports whether this table carries a LongValue catalog
// item (its LONG_TEXT/LONG_BINARY columns have an LV store backing them).
func (t *TableDefinition) HasLongValueRoot() bool { return t.LongValueRoot != 0 }

// TableDefinition is one catalog-assembled table: its own Table item plus the
// Column (and optional LongValue) items that followed it contiguously in
// catalog order (spec.md §3 "Catalog", §4.D).
type TableDefinition struct {
	Name          string
	FDPPage       uint32
	Columns       []ColumnDef
	LongValueRoot uint32
}

// Column looks up a column by name, returning ok=false if the table has none
// by that name.
func (t *TableDefinition) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// dataDefinitionFixedSize is the fixed-field region of one catalog leaf
// item's DataDefinition struct (ese_db.rs's DataDefinition, data type
// identifiers 1-11), immediately following the DataDefinitionHeader and laid
// out little-endian:
//
//	0:  father_data_page_object_identifier uint32
//	4:  data_type                          uint16 (format.CatalogItemType)
//	6:  identifier                         uint32 (column id / index id; 0 for Table)
//	10: coltyp_or_fdp                      uint32 (ColumnType for Column; FDP page for Table/LongValue)
//	14: space_usage                        uint32 (declared byte size / max size)
//	18: flags                              uint32 (format.ColumnFlag bits)
//	22: pages_or_locale                    uint32 (codepage, for Column items)
//	26: root_flag                          uint8
//	27: record_offset                      uint16
//	29: lc_map_flags                       uint32
//	33: key_most                           uint16
//
// Name (data type 128) and DefaultValue (131) follow in the variable region,
// decoded with the same cumulative end-offset convention
// record.Decoder.GetMV uses for ordinary records' variable columns (spec.md
// §4.D, §4.E).
const dataDefinitionFixedSize = 35

// firstVariableDataType is the data type identifier the variable region's
// first entry always represents (ese_db.rs DataDefinition's comments list
// 128=Name, 129=Stats, 130=TemplateTable, 131=DefaultValue, ...); entries are
// numbered positionally from there, not by an encoded field id.
const firstVariableDataType = 128

const (
	fieldName         = 128
	fieldDefaultValue = 131
)

type item struct {
	fdpObjectID     uint32
	itemType        format.CatalogItemType
	identifier      uint32
	columnTypeOrFDP uint32
	spaceUsage      uint32
	flags           uint32
	codepage        uint16
	name            string
	defaultValue    []byte
}

// splitLocalKey strips a leaf tag's local-key prefix, the same
// format.TagFlagHasCommonKeySize convention record.Decoder.GetMV's
// splitLocalKey applies to ordinary record tags (spec.md §4.D, §4.E).
func splitLocalKey(t page.Tag, payload []byte) ([]byte, error) {
	if !t.Flags.Has(format.TagFlagHasCommonKeySize) {
		return payload, nil
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: catalog item tag too short for local key length", errs.ErrBadCatalog)
	}
	keyLen := int(leio.U16(payload[0:2]))
	if 2+keyLen > len(payload) {
		return nil, fmt.Errorf("%w: catalog item local key length %d overruns payload", errs.ErrBadCatalog, keyLen)
	}
	return payload[2+keyLen:], nil
}

func parseItem(t page.Tag, payload []byte) (item, error) {
	data, err := splitLocalKey(t, payload)
	if err != nil {
		return item{}, err
	}
	if len(data) < ddhSize+dataDefinitionFixedSize {
		return item{}, fmt.Errorf("%w: catalog item is %d bytes, want at least %d", errs.ErrBadCatalog, len(data), ddhSize+dataDefinitionFixedSize)
	}

	lastVariable := data[1]
	variableOffset := int(leio.U16(data[2:4]))

	dd := data[ddhSize : ddhSize+dataDefinitionFixedSize]
	it := item{
		fdpObjectID:     leio.U32(dd[0:]),
		itemType:        format.CatalogItemType(leio.U16(dd[4:])),
		identifier:      leio.U32(dd[6:]),
		columnTypeOrFDP: leio.U32(dd[10:]),
		spaceUsage:      leio.U32(dd[14:]),
		flags:           leio.U32(dd[18:]),
		codepage:        uint16(leio.U32(dd[22:])),
	}

	variableCount := 0
	if lastVariable > firstVariableDataType-1 {
		variableCount = int(lastVariable) - (firstVariableDataType - 1)
	}
	if variableCount == 0 {
		return it, nil
	}

	valuesStart := variableOffset + 2*variableCount
	if valuesStart > len(data) {
		return item{}, fmt.Errorf("%w: catalog item variable region out of bounds", errs.ErrBadCatalog)
	}

	prevSize := 0
	for i := 0; i < variableCount; i++ {
		dataType := firstVariableDataType + i
		entryOff := variableOffset + 2*i
		if entryOff+2 > len(data) {
			return item{}, fmt.Errorf("%w: catalog item variable end-offset entry out of bounds", errs.ErrBadCatalog)
		}
		raw := leio.U16(data[entryOff : entryOff+2])
		empty := raw&0x8000 != 0
		curSize := int(raw & 0x7FFF)

		if !empty {
			size := curSize - prevSize
			start := valuesStart + prevSize
			if size < 0 || start+size > len(data) {
				return item{}, fmt.Errorf("%w: catalog item variable field %d out of bounds", errs.ErrBadCatalog, dataType)
			}
			value := data[start : start+size]

			switch dataType {
			case fieldName:
				it.name = string(value)
			case fieldDefaultValue:
				it.defaultValue = append([]byte(nil), value...)
			}

			prevSize = curSize
		}
	}

	return it, nil
}

// walkLeftmostLeaf follows PARENT tag-1 branch pointers from start until a
// LEAF page is reached (spec.md §4.D).
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
			return nil, fmt.Errorf("%w: page %d is neither leaf nor parent", errs.ErrBadCatalog, current.Number)
		}
		if len(current.Tags) < 2 {
			return nil, fmt.Errorf("%w: parent page %d has no branch tag", errs.ErrBadCatalog, current.Number)
		}

		payload, err := current.Payload(1)
		if err != nil {
			return nil, err
		}
		if len(payload) < 4 {
			return nil, fmt.Errorf("%w: parent page %d branch tag too short", errs.ErrBadCatalog, current.Number)
		}

		child := leio.U32(payload[len(payload)-4:])
		current, err = page.Load(r, child, rev, pageSize)
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

// Load walks the catalog B-tree from RootPage and returns every table it
// defines, in catalog order (spec.md §4.D).
func Load(r *pageio.Reader, rev uint32, pageSize int) ([]TableDefinition, error) {
	leaf, err := walkLeftmostLeaf(r, rev, pageSize, RootPage)
	if err != nil {
		return nil, err
	}

	var tables []TableDefinition
	var current *TableDefinition
	visited := make(map[uint32]bool)

	for {
		if visited[leaf.Number] {
			return nil, errs.ErrCircularPageReference
		}
		visited[leaf.Number] = true

		for i := 1; i < len(leaf.Tags); i++ {
			if leaf.Tags[i].IsDefunct() {
				continue
			}

			payload, err := leaf.Payload(i)
			if err != nil {
				return nil, err
			}

			it, err := parseItem(leaf.Tags[i], payload)
			if err != nil {
				return nil, err
			}

			switch it.itemType {
			case format.CatalogItemTable:
				if current != nil {
					tables = append(tables, *current)
				}
				// A table's actual B-tree root is its coltyp_or_fdp union
				// field (father_data_page_number), not the DataDefinition's
				// own father_data_page_object_identifier.
				current = &TableDefinition{Name: it.name, FDPPage: it.columnTypeOrFDP}

			case format.CatalogItemColumn:
				if current == nil {
					return nil, fmt.Errorf("%w: column item before any table", errs.ErrBadCatalog)
				}
				current.Columns = append(current.Columns, ColumnDef{
					Name:     it.name,
					ID:       it.identifier,
					Type:     format.ColumnType(it.columnTypeOrFDP),
					Size:     int(it.spaceUsage),
					Codepage: it.codepage,
					Flags:    format.ColumnFlag(it.flags),
					Default:  it.defaultValue,
				})

			case format.CatalogItemLongValue:
				if current == nil {
					return nil, fmt.Errorf("%w: long-value item before any table", errs.ErrBadCatalog)
				}
				current.LongValueRoot = it.columnTypeOrFDP

			case format.CatalogItemIndex, format.CatalogItemCallback:
				// accepted but ignored, per spec.md §4.D.

			default:
				return nil, fmt.Errorf("%w: unknown catalog item type %d", errs.ErrBadCatalog, it.itemType)
			}
		}

		if leaf.NextPage == 0 {
			break
		}

		leaf, err = page.Load(r, leaf.NextPage, rev, pageSize)
		if err != nil {
			return nil, err
		}
	}

	if current != nil {
		tables = append(tables, *current)
	}

	return tables, nil
}
