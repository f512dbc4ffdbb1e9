package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDint64Unique(t *testing.T) {
	seen := make(map[int64]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := UUIDint64()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "s3cret"))
	assert.False(t, CheckPassword(h, "other"))
}

func TestHelpers(t *testing.T) {
	assert.True(t, InSlice("b", []string{"a", "b"}))
	assert.False(t, InSlice("c", nil))
	assert.True(t, IsEmptyOrNA(" n/a "))
	assert.Equal(t, 1, If(true, 1, 2))
}
