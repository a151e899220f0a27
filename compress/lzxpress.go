package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/format"
)

// lzxpressCodec decompresses the LZXPRESS Plain variant ([MS-XCA] §2.4.4)
// ESE uses for tagged-column compression. Bytes 1-2 of the payload give the
// decompressed length as a little-endian uint16; the remainder is a flag-word
// driven LZ77 stream (spec.md §4.H).
type lzxpressCodec struct{}

func (lzxpressCodec) ID() format.CompressionID { return format.CompressionLZXPRESS }

func (lzxpressCodec) Decompress(src []byte) ([]byte, error) {
	if len(src) < 3 {
		return nil, fmt.Errorf("%w: LZXPRESS payload too short", errs.ErrCorruptedData)
	}

	size := int(binary.LittleEndian.Uint16(src[1:3]))
	return lz77Decompress(src[3:], size)
}

// lz77Decompress implements the [MS-XCA] §2.4.4 LZ77+DIRECT2 plain-LZ77
// match/literal stream: a little-endian 32-bit flag word precedes every 32
// tokens, one flag bit per token (MSB first within the word via a
// down-counting bit index), 0 = literal byte, 1 = length/offset match.
func lz77Decompress(in []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	outPos := 0
	inPos := 0

	var flags uint32
	var flagCount uint32
	lastLenPos := -1

	for inPos < len(in) {
		if flagCount == 0 {
			if inPos+4 > len(in) {
				return nil, fmt.Errorf("%w: truncated flag word", errs.ErrCorruptedData)
			}
			flags = binary.LittleEndian.Uint32(in[inPos:])
			inPos += 4
			flagCount = 32
		}

		flagCount--

		if flags&(1<<flagCount) == 0 {
			if inPos >= len(in) {
				return nil, fmt.Errorf("%w: truncated literal", errs.ErrCorruptedData)
			}
			if outPos >= len(out) {
				return nil, fmt.Errorf("%w: decompressed output overflow", errs.ErrCorruptedData)
			}
			out[outPos] = in[inPos]
			inPos++
			outPos++
			continue
		}

		if inPos == len(in) {
			break
		}
		if inPos+2 > len(in) {
			return nil, fmt.Errorf("%w: truncated match token", errs.ErrCorruptedData)
		}

		value := int(binary.LittleEndian.Uint16(in[inPos:]))
		inPos += 2

		offset := value/8 + 1
		length := value % 8

		if length == 7 {
			if lastLenPos < 0 {
				if inPos >= len(in) {
					return nil, fmt.Errorf("%w: truncated nibble length", errs.ErrCorruptedData)
				}
				length = int(in[inPos] % 16)
				lastLenPos = inPos
				inPos++
			} else {
				if lastLenPos >= len(in) {
					return nil, fmt.Errorf("%w: stale nibble length reference", errs.ErrCorruptedData)
				}
				length = int(in[lastLenPos] / 16)
				lastLenPos = -1
			}

			if length == 15 {
				if inPos >= len(in) {
					return nil, fmt.Errorf("%w: truncated byte length", errs.ErrCorruptedData)
				}
				length = int(in[inPos])
				inPos++

				if length == 255 {
					if inPos+2 > len(in) {
						return nil, fmt.Errorf("%w: truncated word length", errs.ErrCorruptedData)
					}
					length = int(binary.LittleEndian.Uint16(in[inPos:]))
					inPos += 2

					if length == 0 {
						if inPos+4 > len(in) {
							return nil, fmt.Errorf("%w: truncated dword length", errs.ErrCorruptedData)
						}
						length = int(binary.LittleEndian.Uint32(in[inPos:]))
						inPos += 4
					}

					if length < 15+7 {
						return nil, fmt.Errorf("%w: length escalation underflow", errs.ErrCorruptedData)
					}
					length -= 15 + 7
				}
				length += 15
			}
			length += 7
		}
		length += 3

		for i := 0; i < length; i++ {
			if offset > outPos {
				return nil, fmt.Errorf("%w: back-reference before start of output", errs.ErrCorruptedData)
			}
			if outPos >= len(out) {
				return nil, fmt.Errorf("%w: decompressed output overflow", errs.ErrCorruptedData)
			}
			out[outPos] = out[outPos-offset]
			outPos++
		}
	}

	return out, nil
}
