package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2024-03-04T10:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestTrim(t *testing.T) {
	items, more := Trim([]int{1, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, items)
	assert.True(t, more)

	items, more = Trim([]int{1}, 2)
	assert.Equal(t, []int{1}, items)
	assert.False(t, more)
}
