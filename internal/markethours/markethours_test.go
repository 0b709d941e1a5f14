package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2026-08-21 is a Friday, 2026-08-22/23 a weekend, 2026-08-24 a Monday.
func istTime(day, hour, min int) time.Time {
	return time.Date(2026, 8, day, hour, min, 0, 0, IST)
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(istTime(21, 12, 0)), "Friday")
	assert.False(t, IsTradingDay(istTime(22, 12, 0)), "Saturday")
	assert.False(t, IsTradingDay(istTime(23, 12, 0)), "Sunday")
	assert.True(t, IsTradingDay(istTime(24, 12, 0)), "Monday")
}

func TestIsMarketOpen_Boundaries(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", istTime(21, 9, 14), false},
		{"at open", istTime(21, 9, 15), true},
		{"midday", istTime(21, 12, 30), true},
		{"last minute", istTime(21, 15, 29), true},
		{"at close", istTime(21, 15, 30), false},
		{"weekend midday", istTime(22, 12, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsMarketOpen(tc.at))
		})
	}
}

func TestIsMarketOpen_ConvertsToIST(t *testing.T) {
	// 04:00 UTC is 09:30 IST, inside the session.
	utc := time.Date(2026, 8, 21, 4, 0, 0, 0, time.UTC)
	assert.True(t, IsMarketOpen(utc))
}

func TestNextOpen(t *testing.T) {
	fridayOpen := istTime(21, 9, 15)
	mondayOpen := istTime(24, 9, 15)

	assert.Equal(t, fridayOpen, NextOpen(istTime(21, 7, 0)), "early Friday rolls to same day")
	assert.Equal(t, mondayOpen, NextOpen(istTime(21, 10, 0)), "after Friday open rolls to Monday")
	assert.Equal(t, mondayOpen, NextOpen(istTime(22, 12, 0)), "Saturday rolls to Monday")
	assert.Equal(t, mondayOpen, NextOpen(istTime(23, 12, 0)), "Sunday rolls to Monday")
}

func TestNextRefresh(t *testing.T) {
	// Refresh runs 20 minutes ahead of the next open.
	got := NextRefresh(istTime(22, 12, 0))
	assert.Equal(t, istTime(24, 8, 55), got)
}

func TestTodayClose(t *testing.T) {
	assert.Equal(t, istTime(21, 15, 30), TodayClose(istTime(21, 10, 0)))
}

func TestStatusString(t *testing.T) {
	assert.Contains(t, StatusString(istTime(21, 12, 0)), "Market Open")
	assert.Contains(t, StatusString(istTime(22, 12, 0)), "Market Closed")
}
