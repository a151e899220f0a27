// Package compress decompresses the three compression schemes an ESE
// database can apply to a tagged-column value: 7-bit ASCII packing, 7-bit
// Unicode packing, and LZXPRESS Plain (the [MS-XCA] §2.4.4 LZ77 variant).
//
// # Identification
//
// A compressed payload's first byte carries the scheme in its top 5 bits
// (byte 0 >> 3):
//
//	1 — 7-bit ASCII.   Packs 7 bits per output byte; low 3 bits of byte 0,
//	                   plus one, give how many of the final byte's bits are
//	                   valid.
//	2 — 7-bit Unicode. Same packing, each unpacked byte is then widened to
//	                   UTF-16LE by interleaving a zero high byte.
//	3 — LZXPRESS Plain. A flag-word-driven LZ77 stream; bytes 1..3 give the
//	                    decompressed length.
//
// Any other identifier is rejected with ErrBadCompressionID.
//
// # Usage
//
//	out, err := compress.Decompress(rawTaggedValueBytes)
//
// Decompress dispatches on the identifier and returns the original bytes, or
// ErrCorruptedData if the stream is malformed (truncated match, out-of-range
// back-reference, length mismatch).
package compress
