package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	now := time.Date(2025, 12, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		in    string
		start time.Time
		end   time.Time
	}{
		{"day", now.Add(-24 * time.Hour), now},
		{"month", now.AddDate(0, 0, -30), now},
		{"year", now.AddDate(0, 0, -365), now},
		{"12h", now.Add(-12 * time.Hour), now},
		{"7d", now.AddDate(0, 0, -7), now},
		{"2w", now.AddDate(0, 0, -14), now},
		{"6m", now.AddDate(0, 0, -180), now},
		{"2025", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-12", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-2", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-12-10", time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 11, 0, 0, 0, 0, time.UTC)},
		{"12/31/2025", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := Parse(tt.in, now)
			require.NoError(t, err)
			assert.True(t, tt.start.Equal(r.Start), "start: want %s got %s", tt.start, r.Start)
			assert.True(t, tt.end.Equal(r.End), "end: want %s got %s", tt.end, r.End)
		})
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "week", "7y", "-7d", "2025-13", "2025-02-30", "13/01/2025", "25",
		"9999999d", "106752d", "99999999999999999999h"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in, now)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseLargestRelativeRange(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng, err := Parse("106751d", now)
	require.NoError(t, err)
	assert.True(t, rng.Start.Before(rng.End))
	assert.Equal(t, now, rng.End)
}
