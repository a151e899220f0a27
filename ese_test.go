package goese

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenUnknownFileFails(t *testing.T) {
	_, err := Open("/nonexistent/path/to/database.edb")
	require.Error(t, err)
}
