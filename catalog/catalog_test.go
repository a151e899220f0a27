package catalog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/essdb/goese/format"
	"github.com/essdb/goese/header"
	"github.com/essdb/goese/pageio"
)

const testPageSize = 4096

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// encodeItem builds one catalog leaf item: a DataDefinitionHeader, the fixed
// 35-byte DataDefinition region, and (if name/defaultValue are present) a
// variable region using the same cumulative end-offset entries
// record.Decoder.GetMV expects for ordinary records (spec.md §4.D, §4.E).
func encodeItem(fdpObjectID uint32, itemType format.CatalogItemType, identifier, columnTypeOrFDP, spaceUsage, flags uint32, codepage uint16, name string, defaultValue []byte) []byte {
	dd := make([]byte, dataDefinitionFixedSize)
	putU32(dd[0:], fdpObjectID)
	putU16(dd[4:], uint16(itemType))
	putU32(dd[6:], identifier)
	putU32(dd[10:], columnTypeOrFDP)
	putU32(dd[14:], spaceUsage)
	putU32(dd[18:], flags)
	putU32(dd[22:], uint32(codepage))

	type field struct {
		dataType int
		value    []byte
	}
	var fields []field
	if name != "" {
		fields = append(fields, field{fieldName, []byte(name)})
	}
	if defaultValue != nil {
		fields = append(fields, field{fieldDefaultValue, defaultValue})
	}

	lastVariable := 0
	if len(fields) > 0 {
		lastVariable = fields[len(fields)-1].dataType
	}

	ddh := make([]byte, ddhSize)
	ddh[0] = 11 // last_fixed_size_data_type: the full DataDefinition is present
	ddh[1] = byte(lastVariable)
	putU16(ddh[2:], uint16(ddhSize+dataDefinitionFixedSize))

	var buf bytes.Buffer
	buf.Write(ddh)
	buf.Write(dd)

	if len(fields) > 0 {
		count := lastVariable - (firstVariableDataType - 1)
		sizes := make([]byte, 2*count)
		var values bytes.Buffer
		cum := 0
		fi := 0
		for i := 0; i < count; i++ {
			dataType := firstVariableDataType + i
			if fi < len(fields) && fields[fi].dataType == dataType {
				cum += len(fields[fi].value)
				values.Write(fields[fi].value)
				putU16(sizes[2*i:], uint16(cum))
				fi++
			} else {
				putU16(sizes[2*i:], uint16(cum)|0x8000)
			}
		}
		buf.Write(sizes)
		buf.Write(values.Bytes())
	}

	return buf.Bytes()
}

// pageBuilder accumulates tag payloads and emits one raw ESE page, replaying
// the same bit layout page.Load expects (spec.md §4.C, 8-byte-prefix
// 0x0b-revision shape, non-extended tag mask).
type pageBuilder struct {
	flags   format.PageFlag
	prev    uint32
	next    uint32
	fdp     uint32
	tags    [][]byte
	tagFlag []format.TagFlag
}

func (pb *pageBuilder) addTag(payload []byte, flags format.TagFlag) {
	pb.tags = append(pb.tags, payload)
	pb.tagFlag = append(pb.tagFlag, flags)
}

func (pb *pageBuilder) build() []byte {
	buf := make([]byte, testPageSize)
	const prefixSize = 8
	const commonHeaderSize = 32
	common := buf[prefixSize : prefixSize+commonHeaderSize]
	putU32(common[16:], pb.fdp)
	putU32(common[8:], pb.prev)
	putU32(common[12:], pb.next)
	putU16(common[26:], uint16(len(pb.tags)))
	putU32(common[28:], uint32(pb.flags))

	bodyOffset := prefixSize + commonHeaderSize
	offset := 0
	for i, payload := range pb.tags {
		copy(buf[bodyOffset+offset:], payload)

		entryOff := testPageSize - 4*(i+1)
		offsetWord := uint16(offset)&0x1FFF | uint16(pb.tagFlag[i])<<13
		putU16(buf[entryOff:], uint16(len(payload)))
		putU16(buf[entryOff+2:], offsetWord)

		offset += len(payload)
	}

	return buf
}

type memReaderAt []byte

func (m memReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(m).ReadAt(p, off)
}

func openReaderFromPages(t *testing.T, pagesByNumber map[uint32][]byte, maxPage uint32) *pageio.Reader {
	t.Helper()

	full := make([]byte, (int(maxPage)+2)*testPageSize)
	for num, raw := range pagesByNumber {
		copy(full[(int(num)+1)*testPageSize:], raw)
	}

	src := pageio.NewReaderAtSource(memReaderAt(full), int64(len(full)))
	r, err := pageio.NewReader(src, 16)
	require.NoError(t, err)
	r.SetPageSize(testPageSize)

	return r
}

func TestLoadSingleLeafCatalog(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0) // tag 0: common-key prefix, unused by Load

	pb.addTag(encodeItem(10, format.CatalogItemTable, 1, 10, 0, 0, 0, "MSysObjects", nil), 0)
	pb.addTag(encodeItem(0, format.CatalogItemColumn, 1, uint32(format.ColTypeText), 255, uint32(format.ColumnFlagNotNull), 1252, "Name", nil), 0)
	pb.addTag(encodeItem(0, format.CatalogItemColumn, 2, uint32(format.ColTypeLong), 4, 0, 0, "Id", nil), 0)

	pb.addTag(encodeItem(20, format.CatalogItemTable, 2, 20, 0, 0, 0, "TestTable", nil), 0)
	pb.addTag(encodeItem(0, format.CatalogItemColumn, 1, uint32(format.ColTypeBit), 1, 0, 0, "Bit", nil), 0)
	pb.addTag(encodeItem(0, format.CatalogItemLongValue, 0, 99, 0, 0, 0, "", nil), 0)

	raw := pb.build()
	r := openReaderFromPages(t, map[uint32][]byte{RootPage: raw}, RootPage)

	tables, err := Load(r, header.NewRecordFormatRevision, testPageSize)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	require.Equal(t, "MSysObjects", tables[0].Name)
	require.Equal(t, uint32(10), tables[0].FDPPage)
	require.Len(t, tables[0].Columns, 2)
	require.Equal(t, "Name", tables[0].Columns[0].Name)
	require.Equal(t, format.ColTypeText, tables[0].Columns[0].Type)
	require.True(t, tables[0].Columns[0].Flags.Has(format.ColumnFlagNotNull))

	require.Equal(t, "TestTable", tables[1].Name)
	require.Equal(t, uint32(99), tables[1].LongValueRoot)
	require.True(t, tables[1].HasLongValueRoot())

	col, ok := tables[1].Column("Bit")
	require.True(t, ok)
	require.Equal(t, format.ColTypeBit, col.Type)
}

func TestLoadRejectsColumnBeforeTable(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0)
	pb.addTag(encodeItem(0, format.CatalogItemColumn, 1, uint32(format.ColTypeLong), 4, 0, 0, "Orphan", nil), 0)

	raw := pb.build()
	r := openReaderFromPages(t, map[uint32][]byte{RootPage: raw}, RootPage)

	_, err := Load(r, header.NewRecordFormatRevision, testPageSize)
	require.Error(t, err)
}

func TestLoadSkipsDefunctTags(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0)
	pb.addTag(encodeItem(10, format.CatalogItemTable, 1, 10, 0, 0, 0, "T", nil), 0)
	pb.addTag(encodeItem(0, format.CatalogItemColumn, 1, uint32(format.ColTypeLong), 4, 0, 0, "Defunct", nil), format.TagFlagIsDefunct)
	pb.addTag(encodeItem(0, format.CatalogItemColumn, 2, uint32(format.ColTypeLong), 4, 0, 0, "Live", nil), 0)

	raw := pb.build()
	r := openReaderFromPages(t, map[uint32][]byte{RootPage: raw}, RootPage)

	tables, err := Load(r, header.NewRecordFormatRevision, testPageSize)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Columns, 1)
	require.Equal(t, "Live", tables[0].Columns[0].Name)
}

func TestLoadFollowsParentBranchToLeaf(t *testing.T) {
	leafPB := &pageBuilder{flags: format.PageFlagLeaf}
	leafPB.addTag([]byte{}, 0)
	leafPB.addTag(encodeItem(10, format.CatalogItemTable, 1, 10, 0, 0, 0, "T", nil), 0)

	const leafPageNum = 50
	leafRaw := leafPB.build()

	branchPayload := make([]byte, 4)
	putU32(branchPayload, leafPageNum)

	parentPB := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagParent}
	parentPB.addTag([]byte{}, 0)
	parentPB.addTag(branchPayload, 0)
	parentRaw := parentPB.build()

	r := openReaderFromPages(t, map[uint32][]byte{
		RootPage:    parentRaw,
		leafPageNum: leafRaw,
	}, leafPageNum)

	tables, err := Load(r, header.NewRecordFormatRevision, testPageSize)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "T", tables[0].Name)
}
