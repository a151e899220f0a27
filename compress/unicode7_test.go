package compress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// src packs "AB" the same way ascii7_test.go's fixture does, but with
// identifier 2 (unicode7) in byte 0's top 5 bits.
var unicode7AB = []byte{0x15, 0x41, 0x21}

func TestUnicode7DecompressTwoChars(t *testing.T) {
	out, err := unicode7Codec{}.Decompress(unicode7AB)
	require.NoError(t, err)
	require.Equal(t, []byte("A\x00B\x00"), out)
}

func TestUnicode7RejectsTooShort(t *testing.T) {
	_, err := unicode7Codec{}.Decompress([]byte{0x15})
	require.Error(t, err)
}
