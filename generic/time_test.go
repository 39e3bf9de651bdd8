package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
)

func TestDaysInclusive(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  float64
	}{
		{"same day", "2025-03-10", "2025-03-10", 1},
		{"work week", "2025-03-10", "2025-03-14", 5},
		{"weekend counted", "2025-03-14", "2025-03-17", 4},
		{"across year end", "2025-12-30", "2026-01-02", 4},
		{"leap february", "2024-02-28", "2024-03-01", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, err := generic.ParseDate(tt.start)
			require.NoError(t, err)
			end, err := generic.ParseDate(tt.end)
			require.NoError(t, err)

			got := generic.DaysInclusive(start, end)

			assert.True(t, got.Equal(generic.Days(tt.want)), "got %s", got)
		})
	}
}

func TestParseDate_RejectsGarbage(t *testing.T) {
	_, err := generic.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestFromTime_DropsClock(t *testing.T) {
	tp := generic.FromTime(time.Date(2025, time.June, 1, 23, 59, 0, 0, time.UTC))

	assert.Equal(t, "2025-06-01", tp.String())
	assert.Equal(t, 2025, tp.Year())
}
