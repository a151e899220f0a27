package multivalue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }

func TestDecodeOffsetFormSelectsFirstAndSecond(t *testing.T) {
	// split=3: element 0 = payload[1:4] ("abc"), element 1 = payload[4:7] ("xyz").
	payload := []byte{3, 'a', 'b', 'c', 'x', 'y', 'z'}

	out, err := Decode(payload, true, 0, false, nil)
	require.NoError(t, err)
	require.Equal(t, "abc", string(out))

	out, err = Decode(payload, true, 2, false, nil)
	require.NoError(t, err)
	require.Equal(t, "xyz", string(out))
}

func TestDecodeMultiValuePartitioning(t *testing.T) {
	// 3 entries: offsets 6, 10, 13 (header_bytes = 3*2 = 6); sizes: 4, 3, payload_size-13.
	payload := make([]byte, 6+4+3+2)
	putU16(payload[0:], 6) // (6&0x7FFF)/2 == 3 entries, and doubles as entries[0].offset
	putU16(payload[2:], 10)
	putU16(payload[4:], 13)
	copy(payload[6:], []byte("WXYZ"))
	copy(payload[10:], []byte("abc"))
	copy(payload[13:], []byte("Zz"))

	out0, err := Decode(payload, false, 1, false, nil)
	require.NoError(t, err)
	require.Equal(t, "WXYZ", string(out0))

	out1, err := Decode(payload, false, 2, false, nil)
	require.NoError(t, err)
	require.Equal(t, "abc", string(out1))

	out2, err := Decode(payload, false, 3, false, nil)
	require.NoError(t, err)
	require.Equal(t, "Zz", string(out2))
}

func TestDecodeLegacyIndexOneAndZeroAreEquivalent(t *testing.T) {
	payload := []byte{3, 'a', 'b', 'c', 'x', 'y', 'z'}

	a, err := Decode(payload, true, 0, false, nil)
	require.NoError(t, err)
	b, err := Decode(payload, true, 1, false, nil)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecodeOutOfRangeIndexReturnsNil(t *testing.T) {
	payload := []byte{3, 'a', 'b', 'c', 'x', 'y', 'z'}

	out, err := Decode(payload, true, 5, false, nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestDecodeLVElementWithoutStoreFails(t *testing.T) {
	// 2 entries: entries[0].offset=4 (doubles as the header word, (4&0x7FFF)/2==2),
	// entries[1].offset=8 with lv_bit set. Element 1 (selected by mv_index=2) is
	// the LV reference, which requires a store that isn't provided here.
	payload := make([]byte, 12)
	putU16(payload[0:], 4)
	putU16(payload[2:], 8|0x8000)
	copy(payload[4:8], []byte("data"))
	copy(payload[8:12], []byte{1, 2, 3, 4})

	_, err := Decode(payload, false, 2, false, nil)
	require.Error(t, err)
}
