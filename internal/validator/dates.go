package validator

import (
	"strings"
	"time"
)

// Day-first layouts, most specific first.
var stayDateLayouts = []string{
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
	"2. 1. 2006 15:04",
	"2. 1. 2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006 15:04",
	"2-1-2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseStayDate parses an arrival or departure cell. Strings are read day
// first; ISO dates are accepted as well.
func ParseStayDate(value any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.In(loc), true
		}
		for _, layout := range stayDateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
