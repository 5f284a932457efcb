package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIDCanonicalizes(t *testing.T) {
	id := NewID()
	forms := []string{
		id,
		strings.ToUpper(id),
		strings.ReplaceAll(id, "-", ""),
		"{" + id + "}",
		"urn:uuid:" + id,
	}
	for _, form := range forms {
		got, ok := ParseID(form)
		require.True(t, ok, form)
		require.Equal(t, id, got, form)
	}

	_, ok := ParseID("not-a-uuid")
	require.False(t, ok)
}
