package game

import (
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

var isoLayouts = []string{
	DayLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDay normalizes an ISO date or datetime to its calendar day (YYYY-MM-DD).
// Datetimes keep the day as written; no timezone conversion is applied.
func ParseDay(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DayLayout), true
		}
	}
	return "", false
}
