package compress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// src packs "AB" into 2 stream bytes with 6 final bits used (14 bits total,
// exactly two 7-bit groups), identifier 1 (ascii7) in byte 0's top 5 bits.
var ascii7AB = []byte{0x0D, 0x41, 0x21}

func TestAscii7DecompressTwoChars(t *testing.T) {
	out, err := ascii7Codec{}.Decompress(ascii7AB)
	require.NoError(t, err)
	require.Equal(t, "AB", string(out))
}

func TestAscii7RejectsTooShort(t *testing.T) {
	_, err := ascii7Codec{}.Decompress([]byte{0x0D})
	require.Error(t, err)
}

func TestDecompressDispatchesToAscii7(t *testing.T) {
	out, err := Decompress(ascii7AB)
	require.NoError(t, err)
	require.Equal(t, "AB", string(out))
}
