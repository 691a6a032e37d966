package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("weekly")
	require.ErrorIs(t, err, ErrUnknownKind)
	for _, k := range Kinds {
		assert.Contains(t, err.Error(), string(k))
	}
}
