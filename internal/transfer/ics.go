// Package transfer moves tasks in and out of the store as iCalendar or
// YAML documents.
package transfer

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
	appLog "github.com/agis/consultcal/internal/log"
)

const productID = "-//consultcal//EN"

var (
	propClient = ical.ComponentProperty("X-CONSULTCAL-CLIENT")
	propOwner  = ical.ComponentProperty("X-CONSULTCAL-OWNER")
	propPeriod = ical.ComponentProperty("X-CONSULTCAL-PERIOD")
	propSeries = ical.ComponentProperty("X-CONSULTCAL-SERIES")
)

// ExportResult reports what an export wrote and what it had to leave out.
type ExportResult struct {
	Exported int      `json:"exported"`
	Skipped  []string `json:"skipped,omitempty"`
}

// WriteICS serializes tasks as VEVENTs. Tasks with an explicit time window
// become timed events in loc; everything else becomes an all-day event
// whose DTEND is the day after the last occupied day. Tasks that cannot be
// placed on a calendar are skipped and listed in the result.
func WriteICS(w io.Writer, tasks []contract.Task, loc *time.Location, now time.Time) (ExportResult, error) {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	var res ExportResult
	for _, t := range tasks {
		n, err := calendar.Normalize(t)
		if err != nil {
			res.Skipped = append(res.Skipped, t.ID)
			continue
		}
		ev := cal.AddEvent(t.ID + "@consultcal")
		ev.SetDtStampTime(now)
		ev.SetSummary(t.Title)
		if t.Description != "" {
			ev.SetDescription(t.Description)
		}
		if t.ClientName != "" {
			ev.SetLocation(t.ClientName)
			ev.SetProperty(propClient, t.ClientName)
		}
		if t.OwnerID != "" {
			ev.SetProperty(propOwner, t.OwnerID)
		}
		if t.SeriesID != "" {
			ev.SetProperty(propSeries, t.SeriesID)
		}
		if p, ok := calendar.ParsePeriodKind(t.PeriodKind); ok {
			ev.SetProperty(propPeriod, string(p))
		}

		start, end := n.Temporal.Start, n.Temporal.End
		if n.Window.Explicit {
			ev.SetStartAt(atClock(start, n.Window.Start, loc))
			ev.SetEndAt(atClock(end, n.Window.End, loc))
		} else {
			ev.SetAllDayStartAt(start.In(time.UTC))
			ev.SetAllDayEndAt(end.AddDays(1).In(time.UTC))
		}
		res.Exported++
	}
	if err := cal.SerializeTo(w); err != nil {
		return res, err
	}
	return res, nil
}

// ReadICS turns VEVENTs into task drafts. Timed events keep their clock
// times in loc; all-day events become a point task for one day or a range
// task otherwise. owner overrides any owner recorded in the file.
func ReadICS(r io.Reader, loc *time.Location, owner string) ([]contract.TaskDraft, []string, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ics: %w", err)
	}
	drafts := make([]contract.TaskDraft, 0)
	warnings := make([]string, 0)
	for i, ev := range cal.Events() {
		d, err := draftFromEvent(ev, loc)
		if err != nil {
			uid := ev.Id()
			if uid == "" {
				uid = fmt.Sprintf("#%d", i+1)
			}
			warnings = append(warnings, fmt.Sprintf("skipped VEVENT %s: %v", uid, err))
			appLog.Debug("ics vevent skipped", "uid", uid, "err", err)
			continue
		}
		if owner != "" {
			d.OwnerID = owner
		}
		drafts = append(drafts, d)
	}
	return drafts, warnings, nil
}

func draftFromEvent(ev *ical.VEvent, loc *time.Location) (contract.TaskDraft, error) {
	var d contract.TaskDraft
	d.Title = propValue(ev, ical.ComponentPropertySummary)
	if strings.TrimSpace(d.Title) == "" {
		d.Title = "Untitled"
	}
	d.Description = propValue(ev, ical.ComponentPropertyDescription)
	d.ClientName = firstNonEmpty(propValue(ev, propClient), propValue(ev, ical.ComponentPropertyLocation))
	d.OwnerID = propValue(ev, propOwner)
	d.SeriesID = propValue(ev, propSeries)
	if p, ok := calendar.ParsePeriodKind(propValue(ev, propPeriod)); ok {
		d.PeriodKind = string(p)
		d.TimeSlot = string(p)
	}

	startProp := ev.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return d, fmt.Errorf("missing DTSTART")
	}
	if isAllDay(startProp) {
		start, err := ev.GetAllDayStartAt()
		if err != nil {
			return d, err
		}
		first := calendar.DateOf(start)
		last := first
		if end, err := ev.GetAllDayEndAt(); err == nil {
			// DTEND is exclusive for all-day events.
			if e := calendar.DateOf(end).AddDays(-1); e.After(first) {
				last = e
			}
		}
		setDates(&d, first, last)
		return d, nil
	}

	start, err := ev.GetStartAt()
	if err != nil {
		return d, err
	}
	start = start.In(loc)
	end := start
	if e, err := ev.GetEndAt(); err == nil && e.After(start) {
		end = e.In(loc)
	}
	setDates(&d, calendar.DateOf(start), calendar.DateOf(end))
	d.StartTime = start.Format("15:04")
	d.EndTime = end.Format("15:04")
	return d, nil
}

func setDates(d *contract.TaskDraft, first, last calendar.Date) {
	if first == last {
		d.ExactDate = first.String()
		return
	}
	d.StartDate = first.String()
	d.EndDate = last.String()
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], string(ical.ValueDataTypeDate)) {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func atClock(d calendar.Date, clock string, loc *time.Location) time.Time {
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return d.In(loc)
	}
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, loc)
}

func propValue(ev *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ev.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
