// Package header implements component B: parsing and cross-validating the
// ESE database file header and its backup copy (spec.md §4.B).
package header

import (
	"fmt"

	"github.com/essdb/goese/errs"
	"github.com/essdb/goese/internal/leio"
	"github.com/essdb/goese/pageio"
)

const (
	// Size is the fixed byte size of the on-disk FileHeader struct (spec.md
	// §4.B; ese_db.rs's FileHeader, every field from checksum through
	// unknown_val, laid out and rounded up per Rust's repr(C) struct-layout
	// rule).
	Size = 672

	// Signature is the required magic value at the start of a valid header.
	Signature uint32 = 0x89ABCDEF

	// RequiredFormatVersion is the only format_version this reader accepts
	// (spec.md §4.B).
	RequiredFormatVersion uint32 = 0x620

	// DefaultPageSize is assumed when a header reports page_size == 0 (the
	// oldest format revisions did not record it explicitly) so the backup
	// header copy can still be located.
	DefaultPageSize = 4096
)

// field byte offsets within the Size-byte header (ese_db.rs's FileHeader).
// Every field up to dbid is a fixed 4-byte-aligned uint32 or embedded
// DbTime/Signature block; database_state, last_object_identifier, and
// format_revision/page_size sit past database_signature (28B), a run of
// LgPos/DateTime timestamps (8B each, byte-aligned), dbid, log_signature
// (28B), and three 24-byte BackupInfo blocks.
const (
	offChecksum             = 0
	offSignature            = 4
	offFormatVersion        = 8
	offFileType             = 12
	offDatabaseState        = 52
	offLastObjectIdentifier = 212
	offFormatRevision       = 232
	offPageSize             = 236
)

// DBState is the database's last-known shutdown state (jet.rs's DbState).
type DBState uint32

const (
	StateJustCreated   DBState = 1
	StateDirtyShutdown DBState = 2
	StateCleanShutdown DBState = 3
)

// Header is the parsed, validated file header: format version/revision, page
// size, and bookkeeping fields a caller may want to inspect (spec.md §4.B).
type Header struct {
	FormatVersion        uint32
	FormatRevision       uint32
	PageSize             int
	LastObjectIdentifier uint32
	State                DBState
}

// raw holds the unvalidated fields decoded straight off the bytes, before
// primary/backup cross-validation (spec.md §4.B step "If primary
// format_revision == 0, adopt backup's...").
type raw struct {
	checksum       uint32
	signature      uint32
	formatVersion  uint32
	formatRevision uint32
	pageSize       uint32
	lastObjectID   uint32
	state          uint32
}

func parseRaw(buf []byte) (raw, error) {
	if len(buf) != Size {
		return raw{}, fmt.Errorf("%w: header is %d bytes, want %d", errs.ErrBadHeader, len(buf), Size)
	}

	r := raw{
		checksum:       leio.U32(buf[offChecksum:]),
		signature:      leio.U32(buf[offSignature:]),
		formatVersion:  leio.U32(buf[offFormatVersion:]),
		formatRevision: leio.U32(buf[offFormatRevision:]),
		pageSize:       leio.U32(buf[offPageSize:]),
		lastObjectID:   leio.U32(buf[offLastObjectIdentifier:]),
		state:          leio.U32(buf[offDatabaseState:]),
	}

	if r.signature != Signature {
		return raw{}, fmt.Errorf("%w: bad signature 0x%08x", errs.ErrBadHeader, r.signature)
	}

	if err := checkChecksum(buf, r.checksum); err != nil {
		return raw{}, err
	}

	return r, nil
}

// checkChecksum recomputes the XOR-fold of every 32-bit word after the
// first, seeded with the signature magic, and compares it against the
// stored checksum (spec.md §4.B, §8 property 2).
func checkChecksum(buf []byte, stored uint32) error {
	got := fold(buf)
	if got != stored {
		return fmt.Errorf("%w: computed 0x%08x, stored 0x%08x", errs.ErrChecksumMismatch, got, stored)
	}
	return nil
}

func fold(buf []byte) uint32 {
	acc := Signature
	for off := 4; off+4 <= len(buf); off += 4 {
		acc ^= leio.U32(buf[off:])
	}
	return acc
}

// Bytes serializes a raw header back to its Size-byte on-disk form with a
// freshly computed checksum, used by tests to synthesize fixtures.
func Bytes(formatVersion, formatRevision, pageSize, lastObjectID, state uint32) []byte {
	buf := make([]byte, Size)
	leio.PutU32(buf[offSignature:], Signature)
	leio.PutU32(buf[offFormatVersion:], formatVersion)
	leio.PutU32(buf[offFormatRevision:], formatRevision)
	leio.PutU32(buf[offPageSize:], pageSize)
	leio.PutU32(buf[offLastObjectIdentifier:], lastObjectID)
	leio.PutU32(buf[offDatabaseState:], state)
	leio.PutU32(buf[offChecksum:], fold(buf))

	return buf
}

// Load reads and cross-validates the primary header at offset 0 and its
// backup copy, adopting backup values where the primary reports zero, and
// rejecting any remaining disagreement (spec.md §4.B, §8 property 1).
func Load(r *pageio.Reader) (Header, error) {
	primaryBuf, err := r.Read(0, Size)
	if err != nil {
		return Header{}, err
	}

	primary, err := parseRaw(primaryBuf)
	if err != nil {
		return Header{}, err
	}

	backupOffset := int64(primary.pageSize)
	if backupOffset == 0 {
		backupOffset = DefaultPageSize
	}

	backupBuf, err := r.Read(backupOffset, Size)
	if err != nil {
		return Header{}, err
	}

	backup, err := parseRaw(backupBuf)
	if err != nil {
		return Header{}, err
	}

	rev := primary.formatRevision
	if rev == 0 {
		rev = backup.formatRevision
	} else if backup.formatRevision != 0 && backup.formatRevision != rev {
		return Header{}, errs.ErrRevisionMismatch
	}

	pageSize := primary.pageSize
	if pageSize == 0 {
		pageSize = backup.pageSize
	} else if backup.pageSize != 0 && backup.pageSize != pageSize {
		return Header{}, errs.ErrPageSizeMismatch
	}

	if primary.formatVersion != RequiredFormatVersion {
		return Header{}, fmt.Errorf("%w: format_version 0x%x", errs.ErrUnsupportedVersion, primary.formatVersion)
	}

	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	return Header{
		FormatVersion:        primary.formatVersion,
		FormatRevision:       rev,
		PageSize:             int(pageSize),
		LastObjectIdentifier: primary.lastObjectID,
		State:                DBState(primary.state),
	}, nil
}

// Revision gates (spec.md §4.C; ese_db.rs's ESEDB_FORMAT_REVISION_NEW_RECORD_FORMAT
// and ESEDB_FORMAT_REVISION_EXTENDED_PAGE_HEADER).
const (
	// NewRecordFormatRevision is the minimum format_revision using the
	// "new record format" page flag semantics.
	NewRecordFormatRevision = 0x0b
	// ExtendedPageHeaderRevision is the minimum format_revision using the
	// 64-bit-checksum extended page header shape.
	ExtendedPageHeaderRevision = 0x11
)
