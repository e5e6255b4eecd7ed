package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fullLayouts = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"2006.01.02 15:04:05",
		"2006.01.02 15:04",
		"2006.01.02",
		"2006/01/02",
		"06.01.02",
		"06/01/02",
		"06-01-02",
	}
	clockLayouts    = []string{"15:04:05", "15:04"}
	monthDayLayouts = []string{"01-02", "01.02", "01/02"}

	relativePattern = regexp.MustCompile(`^(\d+)\s*(초|분|시간|일)\s*전$`)
)

// ParseTime parses the timestamp formats used by deal boards. Clock-only
// values ("11:23:45") mean today, month-day values ("12-25") mean this year,
// and "3분 전" style values are relative to now. Ambiguous dates are read in
// KST. It reports false when nothing matches.
func ParseTime(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	local := now.In(kst)

	for _, layout := range fullLayouts {
		if t, err := time.ParseInLocation(layout, s, kst); err == nil {
			return t, true
		}
	}
	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, s, kst); err == nil {
			return time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), t.Second(), 0, kst), true
		}
	}
	for _, layout := range monthDayLayouts {
		if t, err := time.ParseInLocation(layout, s, kst); err == nil {
			return time.Date(local.Year(), t.Month(), t.Day(), 0, 0, 0, 0, kst), true
		}
	}
	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := map[string]time.Duration{"초": time.Second, "분": time.Minute, "시간": time.Hour, "일": 24 * time.Hour}[m[2]]
		return now.Add(-time.Duration(n) * unit), true
	}
	return time.Time{}, false
}

// postedAt accepts a time.Time, a string or unix seconds and falls back to now
func postedAt(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t
		}
	case *time.Time:
		if t != nil && !t.IsZero() {
			return *t
		}
	case string:
		if parsed, ok := ParseTime(t, now); ok {
			return parsed
		}
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	}
	return now
}
