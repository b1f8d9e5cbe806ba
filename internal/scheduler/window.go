package scheduler

import "time"

// InWindow reports whether now, evaluated in tz, falls within the
// [startHour, endHour) clock window, handling windows that wrap past
// midnight (startHour > endHour means the window spans midnight, e.g.
// 22->6 covers 22:00-23:59 and 00:00-05:59).
func InWindow(now time.Time, tz *time.Location, startHour, endHour int) bool {
	if tz != nil {
		now = now.In(tz)
	}
	hour := now.Hour()

	if startHour == endHour {
		return true // a zero-width window is interpreted as "always on"
	}
	if startHour < endHour {
		return hour >= startHour && hour < endHour
	}
	// wraps midnight
	return hour >= startHour || hour < endHour
}
