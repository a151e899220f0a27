package compress

import (
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
)

// ascii7Codec unpacks ESE's 7-bit ASCII compression: byte 0's top 5 bits are
// the identifier (1), its low 3 bits give final_bits (stored_value + 1), and
// the remaining bytes are a little-endian bitstream of 7-bit groups (spec.md
// §4.H).
type ascii7Codec struct{}

func (ascii7Codec) ID() format.CompressionID { return format.CompressionAscii7 }

func (ascii7Codec) Decompress(src []byte) ([]byte, error) {
	if len(src) < 2 {
		return nil, fmt.Errorf("%w: 7-bit ASCII payload too short", errs.ErrCorruptedData)
	}

	finalBits := int(src[0]&0x07) + 1
	stream := src[1:]

	n := ((len(src)-2)*8 + finalBits) / 7
	out := make([]byte, n)

	for i := 0; i < n; i++ {
		out[i] = read7Bits(stream, i*7) & 0x7F
	}

	return out, nil
}

// read7Bits gathers 7 bits from a little-endian bitstream starting at
// bitOffset, returned right-aligned in the low 7 bits of the result.
func read7Bits(stream []byte, bitOffset int) byte {
	byteIdx := bitOffset / 8
	bitIdx := bitOffset % 8

	var v uint16
	if byteIdx < len(stream) {
		v = uint16(stream[byteIdx])
	}
	if byteIdx+1 < len(stream) {
		v |= uint16(stream[byteIdx+1]) << 8
	}

	return byte(v >> uint(bitIdx))
}
