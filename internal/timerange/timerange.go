// Package timerange parses the range filter accepted by order listings.
//
// Relative forms end at now: "day" (24h), "month" (30d), "year" (365d) and
// "<n>h", "<n>d", "<n>w", "<n>m" where a month is 30 days. Absolute forms are
// calendar periods in UTC: "2025", "2025-12", "2025-12-10" and "12/10/2025".
package timerange

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for a range in none of the supported forms.
var ErrInvalid = errors.New("invalid time range: use relative forms like '12h', '24h', '7d' or absolute dates like '2025', '2025-12', '2025-12-10' or '12/10/2025'")

// Range is the half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

const day = 24 * time.Hour

var (
	relativeRe  = regexp.MustCompile(`^(\d+)(h|d|w|m)$`)
	yearRe      = regexp.MustCompile(`^(\d{4})$`)
	yearMonthRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	isoDateRe   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	usDateRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

	units = map[string]time.Duration{
		"h": time.Hour,
		"d": day,
		"w": 7 * day,
		"m": 30 * day,
	}
)

// Parse interprets s relative to now.
func Parse(s string, now time.Time) (Range, error) {
	s = strings.TrimSpace(s)
	now = now.UTC()

	switch s {
	case "day":
		return Range{Start: now.Add(-day), End: now}, nil
	case "month":
		return Range{Start: now.Add(-30 * day), End: now}, nil
	case "year":
		return Range{Start: now.Add(-365 * day), End: now}, nil
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		unit := units[m[2]]
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n > math.MaxInt64/int64(unit) {
			return Range{}, fmt.Errorf("%w: %s is too far back", ErrInvalid, s)
		}
		return Range{Start: now.Add(-time.Duration(n) * unit), End: now}, nil
	}

	if m := yearRe.FindStringSubmatch(s); m != nil {
		y := atoi(m[1])
		return Range{Start: date(y, 1, 1), End: date(y+1, 1, 1)}, nil
	}

	if m := yearMonthRe.FindStringSubmatch(s); m != nil {
		y, mo := atoi(m[1]), atoi(m[2])
		if mo < 1 || mo > 12 {
			return Range{}, fmt.Errorf("%w: month %d", ErrInvalid, mo)
		}
		return Range{Start: date(y, mo, 1), End: date(y, mo+1, 1)}, nil
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return dayRange(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	if m := usDateRe.FindStringSubmatch(s); m != nil {
		return dayRange(atoi(m[3]), atoi(m[1]), atoi(m[2]))
	}

	return Range{}, ErrInvalid
}

func dayRange(y, mo, d int) (Range, error) {
	start := date(y, mo, d)
	if start.Year() != y || int(start.Month()) != mo || start.Day() != d {
		return Range{}, fmt.Errorf("%w: no such date %04d-%02d-%02d", ErrInvalid, y, mo, d)
	}
	return Range{Start: start, End: start.AddDate(0, 0, 1)}, nil
}

func date(y, mo, d int) time.Time {
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
