package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/essdb/goese/format"
)

// TestLZXPRESSWorkedExample decodes the MS-XCA §2.4.4 sample reused by
// spec.md §8 scenario S5: three literal bytes ("abc") followed by a single
// match token that repeats them out to a 300-byte decompressed length.
func TestLZXPRESSWorkedExample(t *testing.T) {
	compressed := []byte{
		0x18, 0x2C, 0x01,
		0xFF, 0xFF, 0xFF, 0x1F,
		0x61, 0x62, 0x63,
		0x17, 0x00, 0x0F, 0xFF, 0x26, 0x01,
	}

	out, err := Decompress(compressed)
	require.NoError(t, err)
	require.Len(t, out, 300)
	require.Equal(t, strings.Repeat("abc", 100), string(out))
}

func TestLZXPRESSDecompressionLengthMatchesHeader(t *testing.T) {
	compressed := []byte{
		0x18, 0x2C, 0x01,
		0xFF, 0xFF, 0xFF, 0x1F,
		0x61, 0x62, 0x63,
		0x17, 0x00, 0x0F, 0xFF, 0x26, 0x01,
	}

	out, err := Decompress(compressed)
	require.NoError(t, err)

	codec, err := GetCodec(format.CompressionLZXPRESS)
	require.NoError(t, err)
	require.Equal(t, format.CompressionLZXPRESS, codec.ID())
	require.Len(t, out, 300)
}

func TestLZXPRESSRejectsTruncatedHeader(t *testing.T) {
	_, err := Decompress([]byte{0x18, 0x00})
	require.Error(t, err)
}

func TestLZXPRESSRejectsTruncatedFlagWord(t *testing.T) {
	_, err := Decompress([]byte{0x18, 0x05, 0x00, 0x01, 0x02})
	require.Error(t, err)
}

func TestLZXPRESSRejectsBackReferenceBeforeStart(t *testing.T) {
	// First token is a match (flag bit set) with no prior output to copy from.
	compressed := []byte{
		0x18, 0x05, 0x00,
		0x00, 0x00, 0x00, 0x80, // flags: top bit (token 0) set
		0x00, 0x00,
	}
	_, err := Decompress(compressed)
	require.Error(t, err)
}
