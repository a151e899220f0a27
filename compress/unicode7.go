package compress

import (
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
)

// unicode7Codec unpacks ESE's 7-bit Unicode compression: identical 7-bit
// packing to ascii7Codec, but each unpacked byte is then widened to UTF-16LE
// by interleaving a zero high byte (spec.md §4.H).
type unicode7Codec struct{}

func (unicode7Codec) ID() format.CompressionID { return format.CompressionUnicode7 }

func (unicode7Codec) Decompress(src []byte) ([]byte, error) {
	if len(src) < 2 {
		return nil, fmt.Errorf("%w: 7-bit Unicode payload too short", errs.ErrCorruptedData)
	}

	finalBits := int(src[0]&0x07) + 1
	stream := src[1:]

	n := ((len(src)-2)*8 + finalBits) / 7
	out := make([]byte, 2*n)

	for i := 0; i < n; i++ {
		out[2*i] = read7Bits(stream, i*7) & 0x7F
		out[2*i+1] = 0
	}

	return out, nil
}
