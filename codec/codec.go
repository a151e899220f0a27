// Package codec provides typed decode helpers layered above component J's
// raw-bytes contract (SPEC_FULL.md §4 "ColumnType -> Go value decoding
// helpers"). None of these functions are load-bearing for the core parser:
// every db.DB.Get/GetMV caller is free to interpret raw bytes itself: these
// exist purely as the "output encoding helpers" spec.md §1 calls out as
// external collaborators.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/essdb/goese/errs"
)

// Bool decodes a Bit column's raw byte (non-zero is true, per spec.md §3
// ColTypeBit's one-byte on-disk width).
func Bool(raw []byte) (bool, error) {
	if len(raw) != 1 {
		return false, fmt.Errorf("%w: Bool wants 1 byte, got %d", errs.ErrBadRecord, len(raw))
	}
	return raw[0] != 0, nil
}

func checkLen(raw []byte, want int, name string) error {
	if len(raw) != want {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", errs.ErrBadRecord, name, want, len(raw))
	}
	return nil
}

// Int8 decodes a one-byte signed integer.
func Int8(raw []byte) (int8, error) {
	if err := checkLen(raw, 1, "Int8"); err != nil {
		return 0, err
	}
	return int8(raw[0]), nil
}

// UInt8 decodes a one-byte unsigned integer.
func UInt8(raw []byte) (uint8, error) {
	if err := checkLen(raw, 1, "UInt8"); err != nil {
		return 0, err
	}
	return raw[0], nil
}

// Int16 decodes a little-endian two-byte signed integer (ColTypeShort).
func Int16(raw []byte) (int16, error) {
	if err := checkLen(raw, 2, "Int16"); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(raw)), nil
}

// UInt16 decodes a little-endian two-byte unsigned integer (ColTypeUnsignedShort).
func UInt16(raw []byte) (uint16, error) {
	if err := checkLen(raw, 2, "UInt16"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(raw), nil
}

// Int32 decodes a little-endian four-byte signed integer (ColTypeLong).
func Int32(raw []byte) (int32, error) {
	if err := checkLen(raw, 4, "Int32"); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(raw)), nil
}

// UInt32 decodes a little-endian four-byte unsigned integer (ColTypeUnsignedLong).
func UInt32(raw []byte) (uint32, error) {
	if err := checkLen(raw, 4, "UInt32"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// Int64 decodes a little-endian eight-byte signed integer (ColTypeLongLong).
func Int64(raw []byte) (int64, error) {
	if err := checkLen(raw, 8, "Int64"); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(raw)), nil
}

// UInt64 decodes a little-endian eight-byte unsigned integer (ColTypeUnsignedLongLong).
func UInt64(raw []byte) (uint64, error) {
	if err := checkLen(raw, 8, "UInt64"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// Float32 decodes a little-endian IEEE-754 single (ColTypeIEEESingle).
func Float32(raw []byte) (float32, error) {
	if err := checkLen(raw, 4, "Float32"); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(raw)), nil
}

// Float64 decodes a little-endian IEEE-754 double (ColTypeIEEEDouble).
func Float64(raw []byte) (float64, error) {
	if err := checkLen(raw, 8, "Float64"); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
}

// Currency decodes an eight-byte fixed-point value scaled by 1/10000
// (ColTypeCurrency, the COM CURRENCY convention).
func Currency(raw []byte) (float64, error) {
	v, err := Int64(raw)
	if err != nil {
		return 0, err
	}
	return float64(v) / 10000, nil
}

// oleAutomationEpoch is the zero point OLE Automation dates count days from
// (December 30, 1899), so that day 2 is January 1, 1900 and negative values
// predate the epoch.
var oleAutomationEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// DateTime decodes an eight-byte OLE Automation date (ColTypeDateTime): a
// float64 whose integer part is days since oleAutomationEpoch and whose
// fractional part is the time of day.
func DateTime(raw []byte) (time.Time, error) {
	days, err := Float64(raw)
	if err != nil {
		return time.Time{}, err
	}
	wholeDays := math.Trunc(days)
	fraction := math.Abs(days - wholeDays)
	d := oleAutomationEpoch.AddDate(0, 0, int(wholeDays))
	return d.Add(time.Duration(fraction * 24 * float64(time.Hour))), nil
}

// GUID decodes a sixteen-byte column as a uuid.UUID (ColTypeGUID). ESE
// stores GUIDs as Windows GUID structs: Data1/Data2/Data3 little-endian,
// Data4 as-is. uuid.FromBytes expects the RFC 4122 big-endian layout, so the
// first three fields are byte-swapped before handing off.
func GUID(raw []byte) (uuid.UUID, error) {
	if err := checkLen(raw, 16, "GUID"); err != nil {
		return uuid.UUID{}, err
	}

	rfc := make([]byte, 16)
	rfc[0], rfc[1], rfc[2], rfc[3] = raw[3], raw[2], raw[1], raw[0]
	rfc[4], rfc[5] = raw[5], raw[4]
	rfc[6], rfc[7] = raw[7], raw[6]
	copy(rfc[8:], raw[8:])

	return uuid.FromBytes(rfc)
}

// Text decodes a variable/long-text column's raw bytes as a string,
// honoring its declared codepage: 1200 is UTF-16LE, 1252 is Windows-1252,
// and 65001/0 are treated as already-UTF-8 (spec.md §3 Codepage).
func Text(raw []byte, codepage uint16) (string, error) {
	switch codepage {
	case 0, 65001:
		return string(raw), nil
	case 1200:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: UTF-16LE decode: %v", errs.ErrCorruptedData, err)
		}
		return string(out), nil
	case 1252:
		dec := charmap.Windows1252.NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: Windows-1252 decode: %v", errs.ErrCorruptedData, err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: unsupported codepage %d", errs.ErrCorruptedData, codepage)
	}
}
