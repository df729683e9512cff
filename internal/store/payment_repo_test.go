package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceShape(t *testing.T) {
	ref := NewReference()

	require.True(t, strings.HasPrefix(ref, "MP"), "ref = %s", ref)
	// MP + 13-digit millis + 8 uuid hex chars
	assert.Len(t, ref, 23)
	assert.Equal(t, strings.ToUpper(ref), ref)
}

func TestNewReferenceUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		ref := NewReference()
		require.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}
