package calendar

import (
	"github.com/agis/consultcal/internal/contract"
)

type DiagnosticKind string

const (
	DiagUnresolvedTemporal DiagnosticKind = "UnresolvedTemporalDescriptor"
	DiagInvalidRange       DiagnosticKind = "InvalidRange"
)

// Diagnostic records a task the engine could not lay out as written.
type Diagnostic struct {
	TaskID  string         `json:"task_id"`
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

// Entry is one task as drawn on one day.
type Entry struct {
	Task   contract.Task `json:"task"`
	Role   SegmentRole   `json:"role"`
	Window TimeWindow    `json:"window"`
	Slot   PeriodKind    `json:"slot"`
}

type CalendarDay struct {
	Date    Date    `json:"date"`
	IsToday bool    `json:"is_today"`
	Entries []Entry `json:"entries"`
}

type MonthLayout struct {
	Window MonthWindow   `json:"window"`
	Days   []CalendarDay `json:"days"`
}

type DayAgenda struct {
	Date    Date       `json:"date"`
	Entries []Entry    `json:"entries"`
	Summary DaySummary `json:"summary"`
}

// Projection is a task collection normalized once and queried many times.
// It is never mutated after Project returns, so one Projection may serve
// concurrent readers.
type Projection struct {
	tasks       []Normalized
	unscheduled []contract.Task
	diagnostics []Diagnostic
}

// Project normalizes tasks. Tasks that cannot be placed on any day are
// kept aside as unscheduled; they never reach a day bucket.
func Project(tasks []contract.Task) *Projection {
	p := &Projection{tasks: make([]Normalized, 0, len(tasks))}
	for _, t := range tasks {
		n, err := Normalize(t)
		if err != nil {
			p.unscheduled = append(p.unscheduled, t)
			p.diagnostics = append(p.diagnostics, Diagnostic{
				TaskID:  t.ID,
				Kind:    DiagUnresolvedTemporal,
				Message: "task has neither an exact date nor a start and end date",
			})
			continue
		}
		if n.Clipped {
			p.diagnostics = append(p.diagnostics, Diagnostic{
				TaskID:  t.ID,
				Kind:    DiagInvalidRange,
				Message: "end date " + t.EndDate + " is before start date " + t.StartDate + "; shown on start date only",
			})
		}
		p.tasks = append(p.tasks, n)
	}
	return p
}

func (p *Projection) Tasks() []Normalized { return p.tasks }

func (p *Projection) Unscheduled() []contract.Task { return p.unscheduled }

func (p *Projection) Diagnostics() []Diagnostic { return p.diagnostics }

// Month lays out the month containing anchor. today only drives IsToday.
func (p *Projection) Month(anchor, today Date) MonthLayout {
	w := ResolveMonthWindow(anchor)
	visible := FilterVisible(p.tasks, w)
	days := w.Days()
	out := MonthLayout{Window: w, Days: make([]CalendarDay, 0, len(days))}
	for _, d := range days {
		out.Days = append(out.Days, CalendarDay{
			Date:    d,
			IsToday: d == today,
			Entries: entriesFor(SortDay(OnDay(visible, d)), d),
		})
	}
	return out
}

// TasksForDay returns the ordered entries drawn on day.
func (p *Projection) TasksForDay(day Date) []Entry {
	return entriesFor(SortDay(OnDay(p.tasks, day)), day)
}

// TasksForDate returns the ordered entries on date together with their
// summary.
func (p *Projection) TasksForDate(date Date) DayAgenda {
	ns := SortDay(OnDay(p.tasks, date))
	return DayAgenda{
		Date:    date,
		Entries: entriesFor(ns, date),
		Summary: Summarize(ns),
	}
}

func entriesFor(ns []Normalized, d Date) []Entry {
	out := make([]Entry, 0, len(ns))
	for _, n := range ns {
		out = append(out, Entry{
			Task:   n.Task,
			Role:   n.Segment(d),
			Window: n.Window,
			Slot:   n.Slot,
		})
	}
	return out
}
