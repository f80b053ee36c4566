package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvalidScheduleError reports a malformed schedule field. Callers must
// reject the create/update before anything is persisted.
type InvalidScheduleError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseTimeOfDay parses "HH:MM" (24h). Single-digit hours are accepted.
func ParseTimeOfDay(s string) (hour int, minute int, err error) {
	raw := s
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || len(parts[1]) != 2 {
		return 0, 0, &InvalidScheduleError{Field: "time", Value: raw, Reason: "expected HH:MM"}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || strings.ContainsAny(parts[0], "+-") {
		return 0, 0, &InvalidScheduleError{Field: "time", Value: raw, Reason: "hour must be 0-23"}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || strings.ContainsAny(parts[1], "+-") {
		return 0, 0, &InvalidScheduleError{Field: "time", Value: raw, Reason: "minute must be 00-59"}
	}
	return h, m, nil
}

// CanonicalTimeOfDay returns s as zero-padded "HH:MM", the form ClockHHMM
// produces.
func CanonicalTimeOfDay(s string) (string, error) {
	h, m, err := ParseTimeOfDay(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// NextRun returns the earliest instant strictly after now that matches
// (freq, timeOfDay). The result is expressed in now's location.
//
// Weekly schedules fire on Monday. Monthly schedules fire on the 1st with
// no month-end handling.
func NextRun(freq Frequency, timeOfDay string, now time.Time) (time.Time, error) {
	h, m, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	y, mon, d := now.Date()
	loc := now.Location()

	switch freq {
	case Daily:
		next := time.Date(y, mon, d, h, m, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, mon, d+1, h, m, 0, 0, loc)
		}
		return next, nil

	case Weekly:
		ahead := (int(WeeklyDay) - int(now.Weekday()) + 7) % 7
		next := time.Date(y, mon, d+ahead, h, m, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, mon, d+ahead+7, h, m, 0, 0, loc)
		}
		return next, nil

	case Monthly:
		next := time.Date(y, mon, 1, h, m, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, mon+1, 1, h, m, 0, 0, loc)
		}
		return next, nil

	default:
		return time.Time{}, &InvalidScheduleError{Field: "frequency", Value: string(freq), Reason: "must be daily, weekly or monthly"}
	}
}

// ClockHHMM formats t as zero-padded "HH:MM", the form the daily check
// compares against.
func ClockHHMM(t time.Time) string {
	return t.Format("15:04")
}
