// Package compress implements component H: the three ESE-specific
// decompressors (7-bit ASCII, 7-bit Unicode, LZXPRESS Plain), selected by the
// identifier carried in the high 5 bits of byte 0 of a compressed payload
// (spec.md §4.H).
//
// Only decompression is implemented: this library is read-only, so there is
// no need for a matching Compressor side.
package compress

import (
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
)

// Decompressor turns a compressed on-disk payload back into its original
// bytes.
type Decompressor interface {
	Decompress(src []byte) ([]byte, error)
}

// Codec identifies and decompresses one ESE compression scheme.
type Codec interface {
	ID() format.CompressionID
	Decompressor
}

var registry = map[format.CompressionID]Codec{
	format.CompressionAscii7:   ascii7Codec{},
	format.CompressionUnicode7: unicode7Codec{},
	format.CompressionLZXPRESS: lzxpressCodec{},
}

// GetCodec returns the Codec registered for id, or ErrBadCompressionID.
func GetCodec(id format.CompressionID) (Codec, error) {
	c, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errs.ErrBadCompressionID, id)
	}
	return c, nil
}

// Decompress reads the compression identifier from the top 5 bits of src[0]
// and dispatches to the matching Codec (spec.md §4.H).
func Decompress(src []byte) ([]byte, error) {
	if len(src) < 1 {
		return nil, fmt.Errorf("%w: empty compressed payload", errs.ErrCorruptedData)
	}

	id := format.CompressionID(src[0] >> 3)
	codec, err := GetCodec(id)
	if err != nil {
		return nil, err
	}

	return codec.Decompress(src)
}
