package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
)

var slotNames = map[calendar.PeriodKind]string{
	calendar.PeriodMorning:   "Morning",
	calendar.PeriodAfternoon: "Afternoon",
	calendar.PeriodFullDay:   "Full day",
}

// SlotLabel renders a period with its default window, e.g.
// "Morning (08:00 - 12:00)".
func SlotLabel(p calendar.PeriodKind) string {
	name, ok := slotNames[p]
	if !ok {
		name = slotNames[calendar.PeriodFullDay]
		p = calendar.PeriodFullDay
	}
	w := calendar.DefaultWindow(p)
	return fmt.Sprintf("%s (%s - %s)", name, w.Start, w.End)
}

// RenderDay prints a one-day agenda: a summary line followed by one line
// per task in display order.
func RenderDay(w io.Writer, agenda calendar.DayAgenda) error {
	s := agenda.Summary
	if _, err := fmt.Fprintf(w, "%s %s  %s  first start: %s  last end: %s\n",
		agenda.Date.In(time.UTC).Weekday().String()[:3], agenda.Date,
		english.Plural(s.Count, "task", ""), s.FirstStart, s.LastEnd); err != nil {
		return err
	}
	for _, e := range agenda.Entries {
		window := e.Window.Start + "-" + e.Window.End
		if !e.Window.Explicit {
			window = SlotLabel(e.Slot)
		}
		line := fmt.Sprintf("  %s  %s", window, e.Task.Title)
		if e.Task.ClientName != "" {
			line += " · " + e.Task.ClientName
		}
		if e.Role != calendar.RoleSingle {
			line += " [" + string(e.Role) + "]"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderTasks prints a flat task table. now anchors the relative
// "created" column.
func RenderTasks(w io.Writer, tasks []contract.Task, now time.Time, noColor bool) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			shortID(t.ID),
			t.Title,
			t.ClientName,
			t.OwnerID,
			describeWhen(t),
			describePeriod(t),
			humanize.RelTime(t.CreatedAt, now, "ago", "from now"),
		})
	}
	headerStyle := lipgloss.NewStyle().Bold(!noColor).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "CLIENT", "OWNER", "WHEN", "PERIOD", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if _, err := fmt.Fprintln(w, tbl.String()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, english.Plural(len(tasks), "task", ""))
	return err
}

func describeWhen(t contract.Task) string {
	n, err := calendar.Normalize(t)
	if err != nil {
		return "unscheduled"
	}
	if n.Temporal.Kind == calendar.KindPoint {
		return n.Temporal.Start.String()
	}
	return n.Temporal.Start.String() + " → " + n.Temporal.End.String()
}

func describePeriod(t contract.Task) string {
	if start, end := strings.TrimSpace(t.StartTime), strings.TrimSpace(t.EndTime); start != "" && end != "" {
		return start + "-" + end
	}
	if p, ok := calendar.ParsePeriodKind(t.PeriodKind); ok {
		return SlotLabel(p)
	}
	return SlotLabel(calendar.PeriodFullDay)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
