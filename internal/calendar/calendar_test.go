package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agis/consultcal/internal/contract"
)

func pointTask(id, date string) contract.Task {
	return contract.Task{ID: id, TaskDraft: contract.TaskDraft{Title: id, ExactDate: date}}
}

func rangeTask(id, start, end string) contract.Task {
	return contract.Task{ID: id, TaskDraft: contract.TaskDraft{Title: id, StartDate: start, EndDate: end}}
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Task.ID)
	}
	return out
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 9}, d)

	// The date is read in the timestamp's own offset.
	d, err = ParseDate("2025-03-09T23:30:00-03:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", d.String())

	_, err = ParseDate("09/03/2025")
	assert.Error(t, err)
	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, 0, d.Compare(NewDate(2024, 2, 28)))
	assert.Equal(t, time.Wednesday, d.Weekday())

	var back Date
	require.NoError(t, back.UnmarshalText([]byte("2024-02-28")))
	assert.Equal(t, d, back)
}

func TestNormalizePointTakesPrecedence(t *testing.T) {
	task := pointTask("a", "2025-01-10")
	task.StartDate = "2025-01-01"
	task.EndDate = "2025-01-20"

	n, err := Normalize(task)
	require.NoError(t, err)
	assert.Equal(t, KindPoint, n.Temporal.Kind)
	assert.Equal(t, "2025-01-10", n.Temporal.Start.String())
	assert.Equal(t, n.Temporal.Start, n.Temporal.End)
}

func TestNormalizeRange(t *testing.T) {
	n, err := Normalize(rangeTask("a", "2025-01-28", "2025-02-03"))
	require.NoError(t, err)
	assert.Equal(t, KindRange, n.Temporal.Kind)
	assert.False(t, n.Clipped)
}

func TestNormalizeUnresolved(t *testing.T) {
	cases := []contract.Task{
		{ID: "none"},
		rangeTask("start-only", "2025-01-01", ""),
		rangeTask("end-only", "", "2025-01-01"),
		pointTask("garbage", "someday"),
		rangeTask("bad-end", "2025-01-01", "soon"),
	}
	for _, tc := range cases {
		_, err := Normalize(tc)
		assert.ErrorIs(t, err, ErrUnresolvedTemporal, tc.ID)
	}
}

func TestNormalizeInvalidRangeClipsToStart(t *testing.T) {
	n, err := Normalize(rangeTask("a", "2025-01-10", "2025-01-05"))
	require.NoError(t, err)
	assert.True(t, n.Clipped)
	assert.Equal(t, "2025-01-10", n.Temporal.Start.String())
	assert.Equal(t, "2025-01-10", n.Temporal.End.String())
	assert.Equal(t, RoleSingle, n.Segment(mustDate(t, "2025-01-10")))
}

func TestNormalizeTimeWindow(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		period     string
		slot       string
		wantWindow TimeWindow
		wantSlot   PeriodKind
	}{
		{name: "explicit", start: "9:00", end: "10:30", wantWindow: TimeWindow{Start: "09:00", End: "10:30", Explicit: true}, wantSlot: PeriodFullDay},
		{name: "explicit beats period", start: "14:00", end: "15:00", period: "morning", wantWindow: TimeWindow{Start: "14:00", End: "15:00", Explicit: true}, wantSlot: PeriodMorning},
		{name: "morning", period: "morning", wantWindow: TimeWindow{Start: "08:00", End: "12:00"}, wantSlot: PeriodMorning},
		{name: "afternoon alias", period: "tarde", wantWindow: TimeWindow{Start: "13:00", End: "18:00"}, wantSlot: PeriodAfternoon},
		{name: "full day alias", period: "integral", wantWindow: TimeWindow{Start: "08:00", End: "18:00"}, wantSlot: PeriodFullDay},
		{name: "nothing", wantWindow: TimeWindow{Start: "08:00", End: "18:00"}, wantSlot: PeriodFullDay},
		{name: "unknown period", period: "evening", wantWindow: TimeWindow{Start: "08:00", End: "18:00"}, wantSlot: PeriodFullDay},
		{name: "start only", start: "07:00", period: "afternoon", wantWindow: TimeWindow{Start: "13:00", End: "18:00"}, wantSlot: PeriodAfternoon},
		{name: "slot wins for sort key", period: "morning", slot: "afternoon", wantWindow: TimeWindow{Start: "08:00", End: "12:00"}, wantSlot: PeriodAfternoon},
		{name: "unparsable clock", start: "nine", end: "10:00", wantWindow: TimeWindow{Start: "08:00", End: "18:00"}, wantSlot: PeriodFullDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := pointTask("a", "2025-01-10")
			task.StartTime = tc.start
			task.EndTime = tc.end
			task.PeriodKind = tc.period
			task.TimeSlot = tc.slot
			n, err := Normalize(task)
			require.NoError(t, err)
			assert.Equal(t, tc.wantWindow, n.Window)
			assert.Equal(t, tc.wantSlot, n.Slot)
		})
	}
}

func TestResolveMonthWindow(t *testing.T) {
	w := ResolveMonthWindow(mustDate(t, "2024-02-17"))
	assert.Equal(t, "2024-02-01", w.FirstDay.String())
	assert.Equal(t, "2024-02-29", w.LastDay.String())

	days := w.Days()
	require.Len(t, days, 29)
	assert.Equal(t, w.FirstDay, days[0])
	assert.Equal(t, w.LastDay, days[len(days)-1])

	dec := ResolveMonthWindow(mustDate(t, "2025-12-31"))
	assert.Equal(t, "2025-12-01", dec.FirstDay.String())
	assert.Len(t, dec.Days(), 31)
}

func TestVisibilityAcrossMonthBoundary(t *testing.T) {
	n, err := Normalize(rangeTask("a", "2025-01-28", "2025-02-03"))
	require.NoError(t, err)

	assert.True(t, n.VisibleIn(ResolveMonthWindow(mustDate(t, "2025-01-01"))))
	assert.True(t, n.VisibleIn(ResolveMonthWindow(mustDate(t, "2025-02-01"))))
	assert.False(t, n.VisibleIn(ResolveMonthWindow(mustDate(t, "2025-03-01"))))
	assert.False(t, n.VisibleIn(ResolveMonthWindow(mustDate(t, "2024-12-01"))))

	spanning, err := Normalize(rangeTask("b", "2024-12-15", "2025-03-02"))
	require.NoError(t, err)
	assert.True(t, spanning.VisibleIn(ResolveMonthWindow(mustDate(t, "2025-02-10"))))

	point, err := Normalize(pointTask("c", "2025-01-31"))
	require.NoError(t, err)
	assert.True(t, point.VisibleIn(ResolveMonthWindow(mustDate(t, "2025-01-01"))))
	assert.False(t, point.VisibleIn(ResolveMonthWindow(mustDate(t, "2025-02-01"))))
}

func TestSegmentRoles(t *testing.T) {
	n, err := Normalize(rangeTask("a", "2025-01-06", "2025-01-09"))
	require.NoError(t, err)

	want := map[string]SegmentRole{
		"2025-01-06": RoleStart,
		"2025-01-07": RoleMiddle,
		"2025-01-08": RoleMiddle,
		"2025-01-09": RoleEnd,
	}
	for day, role := range want {
		d := mustDate(t, day)
		assert.True(t, n.Occupies(d), day)
		assert.Equal(t, role, n.Segment(d), day)
	}
	assert.False(t, n.Occupies(mustDate(t, "2025-01-05")))
	assert.False(t, n.Occupies(mustDate(t, "2025-01-10")))
}

func TestSegmentSingleDayRange(t *testing.T) {
	n, err := Normalize(rangeTask("a", "2025-01-06", "2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, RoleSingle, n.Segment(mustDate(t, "2025-01-06")))

	p, err := Normalize(pointTask("b", "2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, RoleSingle, p.Segment(mustDate(t, "2025-01-06")))
}

func TestSortDayBySlotWithoutTimes(t *testing.T) {
	mk := func(id, period string) Normalized {
		task := pointTask(id, "2025-01-10")
		task.PeriodKind = period
		n, err := Normalize(task)
		require.NoError(t, err)
		return n
	}
	sorted := SortDay([]Normalized{
		mk("afternoon", "afternoon"),
		mk("morning", "morning"),
		mk("full", "fullDay"),
	})
	got := []string{sorted[0].Task.ID, sorted[1].Task.ID, sorted[2].Task.ID}
	assert.Equal(t, []string{"full", "morning", "afternoon"}, got)
}

func TestSortDayByExplicitStart(t *testing.T) {
	mk := func(id, start, end string) Normalized {
		task := pointTask(id, "2025-01-10")
		task.StartTime = start
		task.EndTime = end
		n, err := Normalize(task)
		require.NoError(t, err)
		return n
	}
	in := []Normalized{
		mk("late", "15:00", "16:00"),
		mk("early", "7:45", "8:15"),
		mk("tie-1", "10:00", "11:00"),
		mk("tie-2", "10:00", "10:30"),
	}
	sorted := SortDay(in)
	got := make([]string, 0, len(sorted))
	for _, n := range sorted {
		got = append(got, n.Task.ID)
	}
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "late"}, got)
	assert.Equal(t, "late", in[0].Task.ID, "input must not be reordered")
}

func TestSortDayTimedStayOrderedAroundUntimed(t *testing.T) {
	mk := func(id, period, start string) Normalized {
		task := pointTask(id, "2025-01-10")
		task.PeriodKind = period
		task.StartTime = start
		n, err := Normalize(task)
		require.NoError(t, err)
		return n
	}
	sorted := SortDay([]Normalized{
		mk("pm", "", "13:30"),
		mk("untimed", "", ""),
		mk("am", "", "08:00"),
		mk("afternoon-slot", "afternoon", ""),
		mk("late-morning", "morning", "11:00"),
	})
	got := make([]string, 0, len(sorted))
	for _, n := range sorted {
		got = append(got, n.Task.ID)
	}
	assert.Equal(t, []string{"am", "untimed", "late-morning", "pm", "afternoon-slot"}, got)
}

func TestSummarize(t *testing.T) {
	mk := func(id, start, end string) Normalized {
		task := pointTask(id, "2025-01-10")
		task.StartTime = start
		task.EndTime = end
		n, err := Normalize(task)
		require.NoError(t, err)
		return n
	}
	s := Summarize([]Normalized{mk("a", "08:00", "12:00"), mk("b", "13:30", "18:00")})
	assert.Equal(t, DaySummary{Count: 2, FirstStart: "08:00", LastEnd: "18:00"}, s)

	noTimes, err := Normalize(pointTask("c", "2025-01-10"))
	require.NoError(t, err)
	s = Summarize([]Normalized{noTimes})
	assert.Equal(t, DaySummary{Count: 1, FirstStart: NotDefined, LastEnd: NotDefined}, s)

	assert.Equal(t, DaySummary{Count: 0, FirstStart: NotDefined, LastEnd: NotDefined}, Summarize(nil))
}

func TestProjectionMonth(t *testing.T) {
	tasks := []contract.Task{
		rangeTask("trip", "2025-01-28", "2025-02-03"),
		pointTask("review", "2025-01-29"),
		pointTask("feb", "2025-02-14"),
		{ID: "broken", TaskDraft: contract.TaskDraft{Title: "broken"}},
		rangeTask("backwards", "2025-01-15", "2025-01-10"),
	}
	p := Project(tasks)

	require.Len(t, p.Diagnostics(), 2)
	assert.Equal(t, DiagUnresolvedTemporal, p.Diagnostics()[0].Kind)
	assert.Equal(t, "broken", p.Diagnostics()[0].TaskID)
	assert.Equal(t, DiagInvalidRange, p.Diagnostics()[1].Kind)
	require.Len(t, p.Unscheduled(), 1)
	assert.Equal(t, "broken", p.Unscheduled()[0].ID)

	today := mustDate(t, "2025-01-29")
	jan := p.Month(mustDate(t, "2025-01-10"), today)
	require.Len(t, jan.Days, 31)

	byDate := map[string]CalendarDay{}
	for _, d := range jan.Days {
		byDate[d.Date.String()] = d
		for _, e := range d.Entries {
			assert.NotEqual(t, "broken", e.Task.ID)
		}
	}
	assert.True(t, byDate["2025-01-29"].IsToday)
	assert.False(t, byDate["2025-01-28"].IsToday)
	assert.Equal(t, []string{"trip"}, ids(byDate["2025-01-28"].Entries))
	assert.Equal(t, RoleStart, byDate["2025-01-28"].Entries[0].Role)
	assert.Equal(t, []string{"trip", "review"}, ids(byDate["2025-01-29"].Entries))
	assert.Equal(t, RoleMiddle, byDate["2025-01-31"].Entries[0].Role)
	assert.Equal(t, []string{"backwards"}, ids(byDate["2025-01-15"].Entries))
	assert.Empty(t, byDate["2025-01-10"].Entries)

	feb := p.Month(mustDate(t, "2025-02-01"), today)
	require.Len(t, feb.Days, 28)
	assert.Equal(t, RoleMiddle, feb.Days[0].Entries[0].Role)
	assert.Equal(t, RoleEnd, feb.Days[2].Entries[0].Role)
	assert.Equal(t, []string{"feb"}, ids(feb.Days[13].Entries))
	for _, d := range feb.Days {
		assert.False(t, d.IsToday)
	}

	for _, layout := range []MonthLayout{jan, feb, p.Month(mustDate(t, "2024-12-01"), today)} {
		for _, d := range layout.Days {
			assert.NotContains(t, ids(d.Entries), "broken", d.Date.String())
			assert.NotContains(t, ids(p.TasksForDay(d.Date)), "broken", d.Date.String())
			assert.NotContains(t, ids(p.TasksForDate(d.Date).Entries), "broken", d.Date.String())
		}
	}
}

func TestProjectionIsIdempotent(t *testing.T) {
	tasks := []contract.Task{
		rangeTask("a", "2025-03-01", "2025-03-04"),
		pointTask("b", "2025-03-02"),
	}
	p := Project(tasks)
	anchor := mustDate(t, "2025-03-15")
	today := mustDate(t, "2025-03-02")
	assert.Equal(t, p.Month(anchor, today), p.Month(anchor, today))
	assert.Equal(t, Project(tasks).Month(anchor, today), p.Month(anchor, today))
}

func TestTasksForDate(t *testing.T) {
	morning := pointTask("morning", "2025-01-10")
	morning.StartTime, morning.EndTime = "08:00", "12:00"
	afternoon := pointTask("afternoon", "2025-01-10")
	afternoon.StartTime, afternoon.EndTime = "13:30", "18:00"
	spanning := rangeTask("spanning", "2025-01-09", "2025-01-11")

	p := Project([]contract.Task{afternoon, spanning, morning, pointTask("other-day", "2025-01-11")})
	agenda := p.TasksForDate(mustDate(t, "2025-01-10"))

	assert.Equal(t, "2025-01-10", agenda.Date.String())
	assert.Equal(t, DaySummary{Count: 3, FirstStart: "08:00", LastEnd: "18:00"}, agenda.Summary)
	// All three share the full day slot; the timed pair keeps start order
	// around the untimed range.
	assert.Equal(t, []string{"morning", "spanning", "afternoon"}, ids(agenda.Entries))
	for _, e := range agenda.Entries {
		if e.Task.ID == "spanning" {
			assert.Equal(t, RoleMiddle, e.Role)
		}
	}

	assert.Equal(t, ids(agenda.Entries), ids(p.TasksForDay(mustDate(t, "2025-01-10"))))

	empty := p.TasksForDate(mustDate(t, "2025-02-01"))
	assert.Empty(t, empty.Entries)
	assert.Equal(t, NotDefined, empty.Summary.FirstStart)
}
