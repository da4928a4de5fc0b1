package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
)

const (
	defaultRepeatCount = 10
	maxOccurrences     = 366
)

// parseRepeat reads either the short form ("daily*3", "weekly:mon,wed*4",
// "monthly") or an RFC 5545 rule ("FREQ=WEEKLY;BYDAY=MO;COUNT=4", with or
// without an "RRULE:" prefix). An empty value means no repetition and
// returns nil.
func parseRepeat(v string) (*rrule.ROption, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil, nil
	}
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "RRULE:") || strings.HasPrefix(upper, "FREQ=") {
		opt, err := rrule.StrToROption(strings.TrimPrefix(upper, "RRULE:"))
		if err != nil {
			return nil, fmt.Errorf("invalid --repeat rule: %w", err)
		}
		if opt.Count == 0 && opt.Until.IsZero() {
			opt.Count = defaultRepeatCount
		}
		return opt, nil
	}
	return parseShortRepeat(strings.ToLower(s))
}

func parseShortRepeat(s string) (*rrule.ROption, error) {
	opt := &rrule.ROption{Count: defaultRepeatCount}
	if head, tail, ok := strings.Cut(s, "*"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(tail))
		if err != nil || n <= 0 {
			return nil, errors.New("invalid repeat count")
		}
		opt.Count = n
		s = strings.TrimSpace(head)
	}
	freq, days, hasDays := strings.Cut(s, ":")
	switch strings.TrimSpace(freq) {
	case "daily":
		opt.Freq = rrule.DAILY
	case "weekly":
		opt.Freq = rrule.WEEKLY
	case "monthly":
		opt.Freq = rrule.MONTHLY
	case "yearly":
		opt.Freq = rrule.YEARLY
	default:
		return nil, fmt.Errorf("unsupported --repeat frequency: %s", freq)
	}
	if hasDays {
		if opt.Freq != rrule.WEEKLY {
			return nil, errors.New("weekdays are only allowed with weekly repeats")
		}
		wds, err := parseWeekdays(days)
		if err != nil {
			return nil, err
		}
		opt.Byweekday = wds
	}
	return opt, nil
}

func parseWeekdays(v string) ([]rrule.Weekday, error) {
	out := make([]rrule.Weekday, 0, 7)
	seen := map[string]bool{}
	for _, p := range strings.Split(v, ",") {
		tok := strings.ToLower(strings.TrimSpace(p))
		if tok == "" {
			continue
		}
		wd, err := parseWeekdayToken(tok)
		if err != nil {
			return nil, err
		}
		if key := wd.String(); !seen[key] {
			out = append(out, wd)
			seen[key] = true
		}
	}
	if len(out) == 0 {
		return nil, errors.New("weekly repeat requires weekdays")
	}
	return out, nil
}

func parseWeekdayToken(v string) (rrule.Weekday, error) {
	switch v {
	case "mon", "monday":
		return rrule.MO, nil
	case "tue", "tues", "tuesday":
		return rrule.TU, nil
	case "wed", "wednesday":
		return rrule.WE, nil
	case "thu", "thurs", "thursday":
		return rrule.TH, nil
	case "fri", "friday":
		return rrule.FR, nil
	case "sat", "saturday":
		return rrule.SA, nil
	case "sun", "sunday":
		return rrule.SU, nil
	default:
		return rrule.MO, fmt.Errorf("invalid weekday: %s", v)
	}
}

// expandRepeat lists the days on which a repeated task starts, beginning
// at first. Expansion stops at maxOccurrences.
func expandRepeat(first calendar.Date, opt *rrule.ROption) ([]calendar.Date, error) {
	if opt == nil {
		return []calendar.Date{first}, nil
	}
	o := *opt
	o.Dtstart = first.In(time.UTC)
	r, err := rrule.NewRRule(o)
	if err != nil {
		return nil, fmt.Errorf("invalid --repeat rule: %w", err)
	}
	next := r.Iterator()
	out := make([]calendar.Date, 0, o.Count)
	for len(out) < maxOccurrences {
		ts, ok := next()
		if !ok {
			break
		}
		out = append(out, calendar.DateOf(ts))
	}
	if len(out) == 0 {
		return nil, errors.New("--repeat produced no occurrences")
	}
	return out, nil
}

// seriesDrafts copies d onto every start day of the rule. Range tasks keep
// their length; all copies share one series id.
func seriesDrafts(d contract.TaskDraft, opt *rrule.ROption) ([]contract.TaskDraft, error) {
	if opt == nil {
		return []contract.TaskDraft{d}, nil
	}
	n, err := calendar.Normalize(contract.Task{TaskDraft: d})
	if err != nil {
		return nil, errors.New("--repeat needs --date or --from/--to")
	}
	starts, err := expandRepeat(n.Temporal.Start, opt)
	if err != nil {
		return nil, err
	}
	span := n.Temporal.Start.DaysUntil(n.Temporal.End)
	series := uuid.NewString()
	out := make([]contract.TaskDraft, 0, len(starts))
	for _, s := range starts {
		c := d
		c.SeriesID = series
		if n.Temporal.Kind == calendar.KindPoint {
			c.ExactDate = s.String()
		} else {
			c.StartDate = s.String()
			c.EndDate = s.AddDays(span).String()
		}
		out = append(out, c)
	}
	return out, nil
}
