package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronSpec is a compiled 5-field cron expression (minute hour
// day-of-month month day-of-week).
type cronSpec struct {
	minutes map[int]bool
	hours   map[int]bool
	dom     map[int]bool
	months  map[int]bool
	dow     map[int]bool
	domAny  bool
	dowAny  bool
}

func parseCronField(expr string, minV, maxV int, fieldName string, allow7to0 bool) (map[int]bool, bool, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, false, fmt.Errorf("empty cron field: %s", fieldName)
	}
	fullAny := raw == "*"
	out := map[int]bool{}

	for _, part := range strings.Split(raw, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			return nil, false, fmt.Errorf("invalid cron token in %s: %s", fieldName, raw)
		}

		step := 1
		base := token
		if idx := strings.Index(token, "/"); idx >= 0 {
			base = strings.TrimSpace(token[:idx])
			stepRaw := strings.TrimSpace(token[idx+1:])
			s, err := strconv.Atoi(stepRaw)
			if err != nil || s < 1 {
				return nil, false, fmt.Errorf("invalid cron step in %s: %s", fieldName, token)
			}
			step = s
			if base == "" {
				return nil, false, fmt.Errorf("invalid cron step token in %s: %s", fieldName, token)
			}
		}

		var start, end int
		switch {
		case base == "*":
			start, end = minV, maxV
		case strings.Contains(base, "-"):
			parts := strings.SplitN(base, "-", 2)
			a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errA != nil || errB != nil || a < minV || a > maxV || b < minV || b > maxV || b < a {
				return nil, false, fmt.Errorf("invalid cron range in %s: %s", fieldName, base)
			}
			start, end = a, b
		default:
			n, err := strconv.Atoi(base)
			if err != nil || n < minV || n > maxV {
				return nil, false, fmt.Errorf("invalid cron value in %s: %s", fieldName, base)
			}
			start, end = n, n
		}

		for n := start; n <= end; n += step {
			if allow7to0 && n == 7 {
				out[0] = true
			} else {
				out[n] = true
			}
		}
	}

	if len(out) == 0 {
		return nil, false, fmt.Errorf("empty cron set in %s", fieldName)
	}
	return out, fullAny, nil
}

func compileCron(expr string) (*cronSpec, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron must have 5 fields: min hour dom month dow")
	}

	minutes, _, err := parseCronField(parts[0], 0, 59, "minute", false)
	if err != nil {
		return nil, err
	}
	hours, _, err := parseCronField(parts[1], 0, 23, "hour", false)
	if err != nil {
		return nil, err
	}
	dom, domAny, err := parseCronField(parts[2], 1, 31, "day_of_month", false)
	if err != nil {
		return nil, err
	}
	months, _, err := parseCronField(parts[3], 1, 12, "month", false)
	if err != nil {
		return nil, err
	}
	dow, dowAny, err := parseCronField(parts[4], 0, 7, "day_of_week", true)
	if err != nil {
		return nil, err
	}

	return &cronSpec{
		minutes: minutes, hours: hours, dom: dom, months: months, dow: dow,
		domAny: domAny, dowAny: dowAny,
	}, nil
}

// cronMatches applies the day-of-month/day-of-week union rule: when
// both fields are restricted, a match on EITHER is sufficient (standard
// cron semantics); when exactly one is "*", only the other constrains
// the match; when both are "*", every day matches.
func cronMatches(spec *cronSpec, localDt time.Time) bool {
	if !spec.minutes[localDt.Minute()] {
		return false
	}
	if !spec.hours[localDt.Hour()] {
		return false
	}
	if !spec.months[int(localDt.Month())] {
		return false
	}

	domMatch := spec.dom[localDt.Day()]
	dowMatch := spec.dow[int(localDt.Weekday())]

	switch {
	case spec.domAny && spec.dowAny:
		return true
	case spec.domAny:
		return dowMatch
	case spec.dowAny:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// cronNextFireUTC scans forward minute-by-minute (bounded to a year)
// looking for the next matching slot, mirroring the reference
// implementation's brute-force approach rather than computing a closed
// form. The tick path does not call it: ruleDue matches only the
// current minute via cronMatches.
func cronNextFireUTC(cronExpr, tzName string, nowUTC time.Time) (time.Time, bool) {
	spec, err := compileCron(cronExpr)
	if err != nil {
		return time.Time{}, false
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.UTC
	}

	nowLocal := nowUTC.In(loc)
	cursor := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), nowLocal.Hour(), nowLocal.Minute(), 0, 0, loc)
	if nowLocal.After(cursor) {
		cursor = cursor.Add(time.Minute)
	}

	limit := 366 * 24 * 60
	for i := 0; i < limit; i++ {
		if cronMatches(spec, cursor) {
			return cursor.UTC(), true
		}
		cursor = cursor.Add(time.Minute)
	}
	return time.Time{}, false
}
