// Package page implements component C: parsing one ESE page into its header
// fields and its page-tag directory, including the revision/page-size
// dependent bit masking spec.md §3 and §4.C describe (the four page-header
// shapes, and the two tag-directory flag/offset/size encodings).
package page

import (
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
	"github.com/essdb/goese/header"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/pageio"
)

// Shape identifies which of the four page-header variants a page uses
// (spec.md §4.C).
type Shape uint8

const (
	// ShapeOld: revision < header.NewRecordFormatRevision. XOR checksum +
	// page number prefix.
	ShapeOld Shape = iota
	// Shape0B: header.NewRecordFormatRevision <= revision <
	// header.ExtendedPageHeaderRevision. XOR checksum + ECC checksum prefix.
	Shape0B
	// Shape11: revision >= header.ExtendedPageHeaderRevision. 64-bit
	// checksum prefix, with an additional extended header when page_size >
	// 8KiB.
	Shape11
)

const (
	prefixSize = 8 // all three header-prefix shapes are 8 bytes, semantics differ

	// commonHeaderSize is PageHeaderCommon's size: database_modification_time
	// (DateTime, 8) + previous_page (4) + next_page (4) +
	// father_data_page_object_identifier (4) + available_data_size (2) +
	// available_uncommitted_data_size (2) + available_data_offset (2) +
	// available_page_tag (2) + page_flags (4) = 32 bytes.
	commonHeaderSize = 32

	extendedHeaderSize              = 40
	extendedHeaderPageSizeThreshold = 8192
	largeTagMaskPageSizeThreshold   = 16384

	tagEntrySize = 4
)

// common header field offsets, relative to the start of the common header
// (i.e. after the 8-byte shape-specific prefix).
const (
	offPrevPage      = 8
	offNextPage      = 12
	offFDPPageNumber = 16
	offTagCount      = 26 // available_page_tag
	offPageFlags     = 28
)

// Tag is one entry of a page's tag directory (spec.md §3).
type Tag struct {
	Offset int // byte offset of the payload, relative to the start of the page body
	Size   int
	Flags  format.TagFlag
}

// IsDefunct reports whether this tag is marked defunct and should be skipped
// during traversal (spec.md §4.D, §4.I).
func (t Tag) IsDefunct() bool { return t.Flags.Has(format.TagFlagIsDefunct) }

// Page is a fully parsed ESE page: its shape-independent common fields, its
// tag directory, and the raw bytes needed to slice out tag payloads.
type Page struct {
	Number        uint32
	Shape         Shape
	Flags         format.PageFlag
	FDPPageNumber uint32
	PrevPage      uint32
	NextPage      uint32
	Tags          []Tag

	raw        []byte
	bodyOffset int
}

// IsRoot, IsLeaf, IsParent, IsLongValue report the corresponding page flags
// (spec.md §3).
func (p *Page) IsRoot() bool      { return p.Flags.Has(format.PageFlagRoot) }
func (p *Page) IsLeaf() bool      { return p.Flags.Has(format.PageFlagLeaf) }
func (p *Page) IsParent() bool    { return p.Flags.Has(format.PageFlagParent) }
func (p *Page) IsLongValue() bool { return p.Flags.Has(format.PageFlagLongValue) }
func (p *Page) IsEmpty() bool     { return p.Flags.Has(format.PageFlagEmpty) }

// Payload returns the raw bytes of tag index i, or an error if i is out of
// range or the computed span escapes the page.
func (p *Page) Payload(i int) ([]byte, error) {
	if i < 0 || i >= len(p.Tags) {
		return nil, fmt.Errorf("%w: tag index %d out of range (page %d has %d tags)",
			errs.ErrBadPage, i, p.Number, len(p.Tags))
	}

	t := p.Tags[i]
	start := p.bodyOffset + t.Offset
	end := start + t.Size

	if t.Offset < 0 || t.Size < 0 || end > len(p.raw) {
		return nil, fmt.Errorf("%w: page %d tag %d payload [%d,%d) out of page bounds",
			errs.ErrBadPage, p.Number, i, start, end)
	}

	return p.raw[start:end], nil
}

func shapeFor(rev uint32) Shape {
	switch {
	case rev < header.NewRecordFormatRevision:
		return ShapeOld
	case rev < header.ExtendedPageHeaderRevision:
		return Shape0B
	default:
		return Shape11
	}
}

// Load reads ESE logical page pageNum and parses its header and tag
// directory according to the format's revision and page size (spec.md §4.C).
func Load(r *pageio.Reader, pageNum uint32, rev uint32, pageSize int) (*Page, error) {
	size, err := r.Size()
	if err != nil {
		return nil, err
	}
	if err := pageio.CheckPageNumber(pageNum, size, pageSize); err != nil {
		return nil, err
	}

	raw, err := r.ReadPage(pageNum)
	if err != nil {
		return nil, err
	}
	if len(raw) != pageSize {
		return nil, fmt.Errorf("%w: page %d read %d bytes, want %d", errs.ErrBadPage, pageNum, len(raw), pageSize)
	}

	shape := shapeFor(rev)

	bodyOffset := prefixSize + commonHeaderSize
	if shape == Shape11 && pageSize > extendedHeaderPageSizeThreshold {
		bodyOffset += extendedHeaderSize
	}
	if bodyOffset >= pageSize {
		return nil, fmt.Errorf("%w: page %d header larger than page size", errs.ErrBadPage, pageNum)
	}

	common := raw[prefixSize : prefixSize+commonHeaderSize]
	tagCount := int(leio.U16(common[offTagCount:]))

	p := &Page{
		Number:        pageNum,
		Shape:         shape,
		FDPPageNumber: leio.U32(common[offFDPPageNumber:]),
		PrevPage:      leio.U32(common[offPrevPage:]),
		NextPage:      leio.U32(common[offNextPage:]),
		raw:           raw,
		bodyOffset:    bodyOffset,
	}
	p.Flags = format.PageFlag(leio.U32(common[offPageFlags:]))

	extended := shape == Shape11 && pageSize >= largeTagMaskPageSizeThreshold

	var offsetMask, sizeMask uint16
	if extended {
		offsetMask, sizeMask = 0x7FFF, 0x7FFF
	} else {
		offsetMask, sizeMask = 0x1FFF, 0x1FFF
	}

	p.Tags = make([]Tag, 0, tagCount)
	for i := 0; i < tagCount; i++ {
		entryOff := pageSize - tagEntrySize*(i+1)
		if entryOff < bodyOffset {
			return nil, fmt.Errorf("%w: page %d tag directory overruns body (tag %d)", errs.ErrBadPage, pageNum, i)
		}

		sizeWord := leio.U16(raw[entryOff : entryOff+2])
		offsetWord := leio.U16(raw[entryOff+2 : entryOff+4])

		offset := int(offsetWord & offsetMask)
		sz := int(sizeWord & sizeMask)

		var tagFlags format.TagFlag
		if extended {
			payloadStart := bodyOffset + offset
			if payloadStart+2 > len(raw) {
				return nil, fmt.Errorf("%w: page %d tag %d flags byte out of range", errs.ErrBadPage, pageNum, i)
			}
			firstWord := leio.U16(raw[payloadStart : payloadStart+2])
			tagFlags = format.TagFlag(firstWord >> 13)
		} else {
			tagFlags = format.TagFlag(offsetWord >> 13)
		}

		if bodyOffset+offset+sz > entryOff {
			return nil, fmt.Errorf("%w: page %d tag %d offset/size overruns tag directory", errs.ErrBadPage, pageNum, i)
		}

		p.Tags = append(p.Tags, Tag{Offset: offset, Size: sz, Flags: tagFlags})
	}

	return p, nil
}
