package calendar

import (
	"errors"
	"strings"

	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/timeparse"
)

var ErrUnresolvedTemporal = errors.New("unresolved temporal descriptor")

type Kind string

const (
	KindPoint Kind = "point"
	KindRange Kind = "range"
)

// Temporal is the resolved date shape of a task. For point tasks Start and
// End are the same day.
type Temporal struct {
	Kind  Kind `json:"kind"`
	Start Date `json:"start"`
	End   Date `json:"end"`
}

type PeriodKind string

const (
	PeriodMorning   PeriodKind = "morning"
	PeriodAfternoon PeriodKind = "afternoon"
	PeriodFullDay   PeriodKind = "fullDay"
)

// TimeWindow is a local time-of-day span in HH:MM form. Explicit is false
// when the window came from a period default.
type TimeWindow struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Explicit bool   `json:"explicit"`
}

var periodWindows = map[PeriodKind]TimeWindow{
	PeriodMorning:   {Start: "08:00", End: "12:00"},
	PeriodAfternoon: {Start: "13:00", End: "18:00"},
	PeriodFullDay:   {Start: "08:00", End: "18:00"},
}

var periodAliases = map[string]PeriodKind{
	"morning":   PeriodMorning,
	"am":        PeriodMorning,
	"manha":     PeriodMorning,
	"manhã":     PeriodMorning,
	"afternoon": PeriodAfternoon,
	"pm":        PeriodAfternoon,
	"tarde":     PeriodAfternoon,
	"fullday":   PeriodFullDay,
	"full_day":  PeriodFullDay,
	"full-day":  PeriodFullDay,
	"integral":  PeriodFullDay,
}

// ParsePeriodKind maps a raw period or slot value onto a PeriodKind.
func ParsePeriodKind(s string) (PeriodKind, bool) {
	p, ok := periodAliases[strings.ToLower(strings.TrimSpace(s))]
	return p, ok
}

// DefaultWindow returns the fixed window for p, falling back to full day.
func DefaultWindow(p PeriodKind) TimeWindow {
	if w, ok := periodWindows[p]; ok {
		return w
	}
	return periodWindows[PeriodFullDay]
}

// Normalized is a task with its temporal and time-of-day descriptors
// resolved. StartTime and EndTime hold the task's own explicit clock values
// (canonical HH:MM, empty when absent); Window is what the task displays.
type Normalized struct {
	Task      contract.Task
	Temporal  Temporal
	Window    TimeWindow
	Slot      PeriodKind
	StartTime string
	EndTime   string
	// Clipped is set when the range ended before it started and was
	// collapsed to its start day.
	Clipped bool
}

// Normalize resolves t. The only failure is a task with neither a usable
// exact date nor a usable start/end pair.
func Normalize(t contract.Task) (Normalized, error) {
	n := Normalized{Task: t}

	switch {
	case strings.TrimSpace(t.ExactDate) != "":
		d, err := ParseDate(t.ExactDate)
		if err != nil {
			return n, ErrUnresolvedTemporal
		}
		n.Temporal = Temporal{Kind: KindPoint, Start: d, End: d}
	case strings.TrimSpace(t.StartDate) != "" && strings.TrimSpace(t.EndDate) != "":
		start, err := ParseDate(t.StartDate)
		if err != nil {
			return n, ErrUnresolvedTemporal
		}
		end, err := ParseDate(t.EndDate)
		if err != nil {
			return n, ErrUnresolvedTemporal
		}
		if end.Before(start) {
			end = start
			n.Clipped = true
		}
		n.Temporal = Temporal{Kind: KindRange, Start: start, End: end}
	default:
		return n, ErrUnresolvedTemporal
	}

	n.StartTime = canonicalClock(t.StartTime)
	n.EndTime = canonicalClock(t.EndTime)

	period, hasPeriod := ParsePeriodKind(t.PeriodKind)
	switch {
	case n.StartTime != "" && n.EndTime != "":
		n.Window = TimeWindow{Start: n.StartTime, End: n.EndTime, Explicit: true}
	case hasPeriod:
		n.Window = DefaultWindow(period)
	default:
		n.Window = DefaultWindow(PeriodFullDay)
	}

	if slot, ok := ParsePeriodKind(t.TimeSlot); ok {
		n.Slot = slot
	} else if hasPeriod {
		n.Slot = period
	} else {
		n.Slot = PeriodFullDay
	}
	return n, nil
}

func canonicalClock(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	v, err := timeparse.ParseClock(s)
	if err != nil {
		return ""
	}
	return v
}
