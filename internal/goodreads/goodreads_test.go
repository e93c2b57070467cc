package goodreads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTimelineDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"started row",
			"January 11, 2026\n–\nStarted Reading",
			"2026-01-11",
		},
		{
			"finished row",
			"February 3, 2026 – Finished Reading",
			"2026-02-03",
		},
		{
			"single digit day",
			"March 7, 2025 – Started Reading",
			"2025-03-07",
		},
		{
			"no date",
			"Shelved as: read",
			"",
		},
		{
			"short month name not matched",
			"Jan 11, 2026 – Started Reading",
			"",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extractTimelineDate(tt.input))
		})
	}
}
