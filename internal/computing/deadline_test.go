package computing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

func TestParseDeadline(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"in 30m", epoch.Add(30 * time.Minute)},
		{"in 2h", epoch.Add(2 * time.Hour)},
		{"in 7d", epoch.Add(7 * 24 * time.Hour)},
		{"  in 1h  ", epoch.Add(time.Hour)},
		{"2024-03-05T10:00:00Z", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{"2024-03-05T10:00:00+02:00", time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)},
		{"2024-03-05T10:00:00.250Z", time.Date(2024, 3, 5, 10, 0, 0, 250e6, time.UTC)},
		{"2024-03-05T10:00:00", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{"2024-03-05T10:00", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{"2024-03-05 10:00:00", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDeadline(tc.in, epoch)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseDeadlineRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"tomorrow",
		"in 0h",
		"in -1h",
		"in 2w",
		"in2h",
		"in 2 h",
		"2h",
		"in 99999999999999999999d",
		"in 999999999999d",
		"2024-13-01",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDeadline(in, epoch)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidDeadline)
		})
	}
}

func TestFormatDeadline(t *testing.T) {
	cases := []struct {
		offset time.Duration
		want   string
	}{
		{-time.Minute, "expired"},
		{0, "expired"},
		{30 * time.Second, "in 0m"},
		{45 * time.Minute, "in 45m"},
		{59*time.Minute + 59*time.Second, "in 59m"},
		{time.Hour, "in 1h"},
		{23*time.Hour + 59*time.Minute, "in 23h"},
		{24 * time.Hour, "in 1d"},
		{50 * time.Hour, "in 2d"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatDeadline(epoch.Add(tc.offset), epoch), "offset %s", tc.offset)
	}
}
