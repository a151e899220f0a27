package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnTypeFixedSize(t *testing.T) {
	require.Equal(t, 1, ColTypeBit.FixedSize())
	require.Equal(t, 4, ColTypeLong.FixedSize())
	require.Equal(t, 8, ColTypeLongLong.FixedSize())
	require.Equal(t, 16, ColTypeGUID.FixedSize())
	require.Equal(t, 0, ColTypeLongText.FixedSize())
}

func TestMoveOp(t *testing.T) {
	require.True(t, MoveFirst().IsFirst())
	require.True(t, MoveLast().IsLast())
	require.Equal(t, 1, MoveNext().Delta())
	require.Equal(t, -1, MovePrev().Delta())
	require.Equal(t, 3, MoveBy(3).Delta())
}

func TestFlagHas(t *testing.T) {
	f := ColumnFlag(ColumnFlagNotNull | ColumnFlagCompressed)
	require.True(t, f.Has(ColumnFlagNotNull))
	require.True(t, f.Has(ColumnFlagCompressed))
	require.False(t, f.Has(ColumnFlagMultiValue))
}
