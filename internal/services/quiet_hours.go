package services

import (
	"strconv"
	"strings"
	"time"
)

// parseClock turns "HH:MM" into minutes after midnight.
func parseClock(s string) (int, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// InQuietHours reports whether now falls inside the start..end window,
// both bounds inclusive. A window whose start is after its end wraps past
// midnight. Unparsable bounds never silence anything.
func InQuietHours(start, end string, now time.Time) bool {
	s, ok := parseClock(start)
	if !ok {
		return false
	}
	e, ok := parseClock(end)
	if !ok {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if s <= e {
		return cur >= s && cur <= e
	}
	return cur >= s || cur <= e
}
