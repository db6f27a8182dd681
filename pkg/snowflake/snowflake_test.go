package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeRejectsOutOfRange(t *testing.T) {
	_, err := NewNode(-1)
	require.ErrorIs(t, err, ErrNodeRange)

	_, err = NewNode(1024)
	require.ErrorIs(t, err, ErrNodeRange)

	n, err := NewNode(1023)
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestGenerateIsMonotonicAndUnique(t *testing.T) {
	n, err := NewNode(7)
	require.NoError(t, err)

	seen := make(map[ID]struct{})
	var prev ID
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerateEmbedsNodeAndTime(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	n, err := NewNode(42)
	require.NoError(t, err)
	n.now = func() time.Time { return fixed }

	id := n.Generate()
	assert.Equal(t, int64(42), id.Node())
	assert.True(t, fixed.Equal(id.Time().UTC()))
	assert.Equal(t, id.String(), (ID(int64(id))).String())
}

func TestGenerateSurvivesClockGoingBackwards(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	n, err := NewNode(1)
	require.NoError(t, err)
	n.now = func() time.Time { return current }

	first := n.Generate()
	current = current.Add(-time.Second)
	second := n.Generate()

	assert.Greater(t, second, first)
}
