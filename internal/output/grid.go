package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/agis/consultcal/internal/calendar"
)

// maxCellEntries caps how many tasks one grid cell lists before collapsing
// the rest into a "+N more" line.
const maxCellEntries = 3

const cellTitleWidth = 14

var roleGlyph = map[calendar.SegmentRole]string{
	calendar.RoleSingle: "•",
	calendar.RoleStart:  "┣",
	calendar.RoleMiddle: "┃",
	calendar.RoleEnd:    "┗",
}

// RenderMonth draws layout as a week-aligned grid. Cells before the first
// and after the last day of the month are left blank.
func RenderMonth(w io.Writer, layout calendar.MonthLayout, weekStart time.Weekday, noColor bool) error {
	headers := make([]string, 7)
	for i := 0; i < 7; i++ {
		headers[i] = time.Weekday((int(weekStart) + i) % 7).String()[:3]
	}

	rows, todayRow, todayCol := monthRows(layout, weekStart)

	headerStyle := lipgloss.NewStyle().Bold(!noColor).Align(lipgloss.Center)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	todayStyle := cellStyle
	if !noColor {
		todayStyle = cellStyle.Reverse(true)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(true).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == todayRow && col == todayCol:
				return todayStyle
			default:
				return cellStyle
			}
		})

	title := fmt.Sprintf("%s %d", layout.Window.FirstDay.Month, layout.Window.FirstDay.Year)
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// monthRows returns the grid cells plus the row/column of today (-2 when
// today is not in the month, so it never matches HeaderRow).
func monthRows(layout calendar.MonthLayout, weekStart time.Weekday) ([][]string, int, int) {
	todayRow, todayCol := -2, -2
	if len(layout.Days) == 0 {
		return nil, todayRow, todayCol
	}
	lead := (int(layout.Days[0].Date.Weekday()) - int(weekStart) + 7) % 7
	cells := make([]string, lead, lead+len(layout.Days)+6)
	for _, d := range layout.Days {
		if d.IsToday {
			todayRow, todayCol = len(cells)/7, len(cells)%7
		}
		cells = append(cells, dayCell(d))
	}
	for len(cells)%7 != 0 {
		cells = append(cells, "")
	}
	rows := make([][]string, 0, len(cells)/7)
	for i := 0; i < len(cells); i += 7 {
		rows = append(rows, cells[i:i+7])
	}
	return rows, todayRow, todayCol
}

func dayCell(d calendar.CalendarDay) string {
	lines := []string{fmt.Sprintf("%2d", d.Date.Day)}
	if d.IsToday {
		lines[0] += " today"
	}
	for i, e := range d.Entries {
		if i == maxCellEntries {
			lines = append(lines, fmt.Sprintf("+%d more", len(d.Entries)-maxCellEntries))
			break
		}
		lines = append(lines, roleGlyph[e.Role]+" "+truncate(e.Task.Title, cellTitleWidth))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
