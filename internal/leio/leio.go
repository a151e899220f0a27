// Package leio provides the little-endian decode helpers the ESE file format
// is built on, plus the one big-endian helper the long-value composite page
// key needs (spec.md §3, §4.F: "Little-endian throughout except the LV
// composite-key derivation").
//
// ESE itself is never byte-order-configurable, so this package skips a
// generic ByteOrder abstraction and exposes the two concrete orders it
// actually needs as plain functions.
package leio

import "encoding/binary"

// U16 reads a little-endian uint16 at offset 0 of b.
func U16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// U32 reads a little-endian uint32 at offset 0 of b.
func U32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// U64 reads a little-endian uint64 at offset 0 of b.
func U64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// PutU16 writes v as little-endian into b.
func PutU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// PutU32 writes v as little-endian into b.
func PutU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// PutU64 writes v as little-endian into b.
func PutU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// BEU32 reads a big-endian uint32 at offset 0 of b. Used only for the
// long-value composite key's key/segment-offset fields (spec.md §3).
func BEU32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// PutBEU32 writes v as big-endian into b.
func PutBEU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
