package timeparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func ParseDateTime(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}

	switch s {
	case "today":
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case "tomorrow":
		v, _ := ParseDateTime("today", now, loc)
		return v.AddDate(0, 0, 1), nil
	case "yesterday":
		v, _ := ParseDateTime("today", now, loc)
		return v.AddDate(0, 0, -1), nil
	}

	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		sign := 1
		if strings.HasPrefix(s, "-") {
			sign = -1
		}
		raw := strings.TrimPrefix(strings.TrimPrefix(s, "+"), "-")
		if strings.HasSuffix(raw, "d") {
			n, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid relative day: %s", input)
			}
			v, _ := ParseDateTime("today", now, loc)
			return v.AddDate(0, 0, sign*n), nil
		}
		if strings.HasSuffix(raw, "m") {
			n, err := strconv.Atoi(strings.TrimSuffix(raw, "m"))
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid relative month: %s", input)
			}
			v, _ := ParseDateTime("today", now, loc)
			y, mo, _ := v.Date()
			return time.Date(y, mo+time.Month(sign*n), 1, 0, 0, 0, 0, loc), nil
		}
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, strings.TrimSpace(input), loc); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("unsupported datetime format: %s", input)
}

// ParseMonth accepts YYYY-MM in addition to everything ParseDateTime
// accepts, and returns the first day of the resulting month.
func ParseMonth(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		s = "today"
	}
	if ts, err := time.ParseInLocation("2006-01", s, loc); err == nil {
		return ts, nil
	}
	ts, err := ParseDateTime(s, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, _ := ts.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
}

// ParseClock reads a local time of day (H:MM, HH:MM or HH:MM:SS) and
// returns it as zero-padded HH:MM. Seconds are dropped.
func ParseClock(input string) (string, error) {
	s := strings.TrimSpace(input)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", fmt.Errorf("invalid clock time: %q", input)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) > 2 {
		return "", fmt.Errorf("invalid clock time: %q", input)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid clock time: %q", input)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 || len(parts[2]) != 2 {
			return "", fmt.Errorf("invalid clock time: %q", input)
		}
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
