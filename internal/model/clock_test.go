package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9:30", 0, true},
		{"0930", 0, true},
		{"", 0, true},
		{"ab:cd", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestFormatClockRoundTrip(t *testing.T) {
	for _, minute := range []int{0, 1, 570, 720, 1439} {
		got, err := ParseClock(FormatClock(minute))
		require.NoError(t, err)
		assert.Equal(t, minute, got)
	}
}

func TestCombineDateClock(t *testing.T) {
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	utc := CombineDateClock(date, 9*60, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), utc)

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	local := CombineDateClock(date, 9*60, kolkata)
	// 09:00 IST is 03:30 UTC.
	assert.Equal(t, time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC), local)
}

func TestDateOnly(t *testing.T) {
	ts := time.Date(2025, 6, 2, 17, 45, 12, 999, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), DateOnly(ts))
}

func TestPaginationNormalize(t *testing.T) {
	p := Pagination{Page: 0, Limit: 0}
	p.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Limit)

	p = Pagination{Page: 3, Limit: 500}
	p.Normalize()
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 20, p.Limit)

	p = Pagination{Page: 2, Limit: 50}
	p.Normalize()
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 50, p.Limit)
}
