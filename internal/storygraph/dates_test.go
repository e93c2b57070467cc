package storygraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitISODate(t *testing.T) {
	t.Parallel()

	day, month, year, err := splitISODate("2026-01-18")
	require.NoError(t, err)
	assert.Equal(t, "18", day)
	assert.Equal(t, "1", month)
	assert.Equal(t, "2026", year)

	day, month, year, err = splitISODate("2025-12-03")
	require.NoError(t, err)
	assert.Equal(t, "3", day)
	assert.Equal(t, "12", month)
	assert.Equal(t, "2025", year)
}

func TestSplitISODateRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitISODate("January 18, 2026")
	assert.Error(t, err)

	_, _, _, err = splitISODate("")
	assert.Error(t, err)
}
