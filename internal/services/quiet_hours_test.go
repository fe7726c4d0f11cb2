package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 1, hh, mm, 0, 0, time.UTC)
}

func TestInQuietHours(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		now        time.Time
		want       bool
	}{
		{"overnight late evening", "22:00", "08:00", at(23, 30), true},
		{"overnight early morning", "22:00", "08:00", at(3, 0), true},
		{"overnight midday", "22:00", "08:00", at(12, 0), false},
		{"overnight start bound", "22:00", "08:00", at(22, 0), true},
		{"overnight end bound", "22:00", "08:00", at(8, 0), true},
		{"overnight just after end", "22:00", "08:00", at(8, 1), false},
		{"same day inside", "09:00", "17:00", at(12, 0), true},
		{"same day after", "09:00", "17:00", at(20, 0), false},
		{"same day before", "09:00", "17:00", at(8, 59), false},
		{"single minute", "12:00", "12:00", at(12, 0), true},
		{"bad start", "9am", "17:00", at(12, 0), false},
		{"bad end", "09:00", "25:00", at(12, 0), false},
		{"empty", "", "", at(12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InQuietHours(tt.start, tt.end, tt.now))
		})
	}
}

func TestParseClock(t *testing.T) {
	m, ok := parseClock(" 07:05 ")
	assert.True(t, ok)
	assert.Equal(t, 425, m)

	_, ok = parseClock("07")
	assert.False(t, ok)
	_, ok = parseClock("07:60")
	assert.False(t, ok)
}
