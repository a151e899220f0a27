package longvalue

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
func putBEU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// pageBuilder replays the same bit layout page.Load expects (8-byte-prefix
// 0x0b-revision shape, non-extended tag mask), mirroring catalog_test.go's helper.
type pageBuilder struct {
	flags   format.PageFlag
	next    uint32
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

// lvTag builds one LV leaf tag: an 8-byte big-endian (key, segment_offset)
// local key (no common prefix used, so the combined length is exactly 8 —
// spec.md §4.F's "splitting common+local key equals 8 bytes" case) followed
// by data bytes, behind the 2-byte local-key-length prefix that
// format.TagFlagHasCommonKeySize marks as present.
func lvTag(key, segOff uint32, data []byte) []byte {
	out := make([]byte, 2+8+len(data))
	putU16(out[0:], 8)
	putBEU32(out[2:], key)
	putBEU32(out[6:], segOff)
	copy(out[10:], data)
	return out
}

func lvMetaTag(key, totalSize uint32) []byte {
	out := make([]byte, 2+8+8)
	putU16(out[0:], 8)
	putBEU32(out[2:], key)
	putBEU32(out[6:], 0)
	putBEU32(out[10:], key)
	putBEU32(out[14:], totalSize)
	return out
}

const rootLVPage = 7

func TestAssembleSingleSegment(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0) // tag 0: common-key prefix, empty here
	pb.addTag(lvMetaTag(1, 5), format.TagFlagHasCommonKeySize)
	pb.addTag(lvTag(1, 0, []byte("hello")), format.TagFlagHasCommonKeySize)

	r := openReaderFromPages(t, map[uint32][]byte{rootLVPage: pb.build()}, rootLVPage)

	store, err := Load(r, header.NewRecordFormatRevision, testPageSize, rootLVPage)
	require.NoError(t, err)

	out, err := store.Assemble(1, false)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

func TestAssembleMultipleSegmentsOutOfOrder(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0)
	// segments deliberately out of segment_offset order.
	pb.addTag(lvTag(2, 5, []byte("world")), format.TagFlagHasCommonKeySize)
	pb.addTag(lvTag(2, 0, []byte("hello")), format.TagFlagHasCommonKeySize)

	r := openReaderFromPages(t, map[uint32][]byte{rootLVPage: pb.build()}, rootLVPage)

	store, err := Load(r, header.NewRecordFormatRevision, testPageSize, rootLVPage)
	require.NoError(t, err)

	out, err := store.Assemble(2, false)
	require.NoError(t, err)
	require.Equal(t, []byte("helloworld"), out)
}

func TestAssembleUnknownKeyFails(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0)
	pb.addTag(lvTag(3, 0, []byte("x")), format.TagFlagHasCommonKeySize)

	r := openReaderFromPages(t, map[uint32][]byte{rootLVPage: pb.build()}, rootLVPage)

	store, err := Load(r, header.NewRecordFormatRevision, testPageSize, rootLVPage)
	require.NoError(t, err)

	_, err = store.Assemble(404, false)
	require.Error(t, err)
}

func TestAssembleIsIdempotent(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0)
	pb.addTag(lvTag(9, 0, []byte("abc")), format.TagFlagHasCommonKeySize)
	pb.addTag(lvTag(9, 3, []byte("def")), format.TagFlagHasCommonKeySize)

	r := openReaderFromPages(t, map[uint32][]byte{rootLVPage: pb.build()}, rootLVPage)

	store, err := Load(r, header.NewRecordFormatRevision, testPageSize, rootLVPage)
	require.NoError(t, err)

	first, err := store.Assemble(9, false)
	require.NoError(t, err)
	second, err := store.Assemble(9, false)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "abcdef", string(first))
}

func TestLoadSkipsDefunctSegments(t *testing.T) {
	pb := &pageBuilder{flags: format.PageFlagRoot | format.PageFlagLeaf}
	pb.addTag([]byte{}, 0)
	pb.addTag(lvTag(4, 0, []byte("keep")), format.TagFlagHasCommonKeySize)
	pb.addTag(lvTag(4, 4, []byte("drop")), format.TagFlagHasCommonKeySize|format.TagFlagIsDefunct)

	r := openReaderFromPages(t, map[uint32][]byte{rootLVPage: pb.build()}, rootLVPage)

	store, err := Load(r, header.NewRecordFormatRevision, testPageSize, rootLVPage)
	require.NoError(t, err)

	// "drop" is defunct and skipped at load time, so assembly appends "keep"
	// then stalls at segment_offset 4 with no error (the first append did
	// succeed; only a wholly-unmatched key fails).
	out, err := store.Assemble(4, false)
	require.NoError(t, err)
	require.Equal(t, []byte("keep"), out)
}
