package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayTime(t *testing.T) {
	assert.Equal(t, "15:30", DisplayTime("15-30"))
	assert.Equal(t, "", DisplayTime(""))
	assert.Equal(t, "15:30", DisplayTime("15:30"))
	assert.Equal(t, "not-a-time-at-all", DisplayTime("not-a-time-at-all"))
}

func TestParseDateFolder(t *testing.T) {
	loc := LoadLocation("Asia/Shanghai")

	got, ok := ParseDateFolder("2025-11-26", loc)
	require.True(t, ok)
	assert.Equal(t, "2025-11-26", got.Format("2006-01-02"))

	got, ok = ParseDateFolder("2025年11月26日", loc)
	require.True(t, ok)
	assert.Equal(t, "2025-11-26", got.Format("2006-01-02"))

	_, ok = ParseDateFolder("txt", loc)
	assert.False(t, ok)
	_, ok = ParseDateFolder("2025-11", loc)
	assert.False(t, ok)
}

func TestResolveDateExpr(t *testing.T) {
	loc := LoadLocation("Asia/Shanghai")
	// Wednesday.
	now := time.Date(2025, 11, 26, 10, 0, 0, 0, loc)

	tests := []struct {
		expr  string
		start string
		end   string
	}{
		{"today", "2025-11-26", "2025-11-26"},
		{"今天", "2025-11-26", "2025-11-26"},
		{"yesterday", "2025-11-25", "2025-11-25"},
		{"本周", "2025-11-24", "2025-11-30"},
		{"last week", "2025-11-17", "2025-11-23"},
		{"this month", "2025-11-01", "2025-11-30"},
		{"上月", "2025-10-01", "2025-10-31"},
		{"last 7 days", "2025-11-20", "2025-11-26"},
		{"最近7天", "2025-11-20", "2025-11-26"},
		{"2025-01-15", "2025-01-15", "2025-01-15"},
	}
	for _, tt := range tests {
		got, err := ResolveDateExpr(tt.expr, now)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, DateRange{Start: tt.start, End: tt.end}, got, tt.expr)
	}

	for _, bad := range []string{"", "fortnight", "last -3 days", "2025-13-99"} {
		_, err := ResolveDateExpr(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestDateRangeDays(t *testing.T) {
	loc := LoadLocation("Asia/Shanghai")

	days, err := DateRange{Start: "2025-11-24", End: "2025-11-26"}.Days(loc)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-11-24", "2025-11-25", "2025-11-26"}, days)

	_, err = DateRange{Start: "2025-11-26", End: "2025-11-24"}.Days(loc)
	assert.Error(t, err)
}
