package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
)

func TestSchemaVersionDefault(t *testing.T) {
	p := Printer{}
	if p.schemaVersion() != contract.SchemaVersion {
		t.Fatalf("expected default schema version %q", contract.SchemaVersion)
	}
}

func TestFlattenWithFields(t *testing.T) {
	task := contract.Task{
		ID:        "abc",
		TaskDraft: contract.TaskDraft{Title: "Kickoff", ClientName: "ACME"},
	}
	got := flatten(task, []string{"id", "title", "client_name"})
	if got != "abc\tKickoff\tACME" {
		t.Fatalf("unexpected flatten result: %q", got)
	}
}

func TestAutoModeIsJSONForNonTerminal(t *testing.T) {
	var out bytes.Buffer
	p := Printer{Mode: ModeAuto, Out: &out}
	if got := p.EffectiveSuccessMode(); got != ModeJSON {
		t.Fatalf("expected json for buffer output, got %s", got)
	}
}

func TestSuccessJSONEnvelope(t *testing.T) {
	var out bytes.Buffer
	p := Printer{Mode: ModeJSON, Command: "tasks.list", Out: &out}
	if err := p.Success([]string{"a"}, map[string]any{"count": 1}, nil); err != nil {
		t.Fatalf("Success failed: %v", err)
	}
	var env contract.SuccessEnvelope
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Command != "tasks.list" || env.SchemaVersion != contract.SchemaVersion {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Warnings == nil {
		t.Fatalf("warnings must encode as an empty list")
	}
}

func TestSuccessJSONLSlice(t *testing.T) {
	var out bytes.Buffer
	p := Printer{Mode: ModeJSONL, Out: &out}
	if err := p.Success([]int{1, 2, 3}, nil, nil); err != nil {
		t.Fatalf("Success failed: %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", got, out.String())
	}
}

func TestErrorPlainWithHint(t *testing.T) {
	var errOut bytes.Buffer
	p := Printer{Mode: ModePlain, Err: &errOut}
	_ = p.Error(contract.ErrNotFound, "task not found", "check the id")
	if got := errOut.String(); got != "error: task not found\nhint: check the id\n" {
		t.Fatalf("unexpected error output: %q", got)
	}
}

func TestPlainWarningsGoToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	p := Printer{Mode: ModePlain, Out: &out, Err: &errOut}
	if err := p.Success([]string{}, nil, []string{"task x skipped"}); err != nil {
		t.Fatalf("Success failed: %v", err)
	}
	if !strings.Contains(errOut.String(), "warning: task x skipped") {
		t.Fatalf("expected warning on stderr, got %q", errOut.String())
	}
	if strings.TrimSpace(out.String()) != "no results" {
		t.Fatalf("unexpected stdout: %q", out.String())
	}
}

func TestSlotLabel(t *testing.T) {
	if got := SlotLabel(calendar.PeriodMorning); got != "Morning (08:00 - 12:00)" {
		t.Fatalf("unexpected morning label: %q", got)
	}
	if got := SlotLabel("bogus"); got != "Full day (08:00 - 18:00)" {
		t.Fatalf("unexpected fallback label: %q", got)
	}
}

func TestRenderMonthGrid(t *testing.T) {
	tasks := []contract.Task{
		{ID: "1", TaskDraft: contract.TaskDraft{Title: "Audit", StartDate: "2025-01-28", EndDate: "2025-02-03"}},
		{ID: "2", TaskDraft: contract.TaskDraft{Title: "Review", ExactDate: "2025-01-15"}},
	}
	p := calendar.Project(tasks)
	layout := p.Month(calendar.NewDate(2025, time.January, 1), calendar.NewDate(2025, time.January, 15))

	var out bytes.Buffer
	if err := RenderMonth(&out, layout, time.Monday, true); err != nil {
		t.Fatalf("RenderMonth failed: %v", err)
	}
	s := out.String()
	for _, want := range []string{"January 2025", "Mon", "Sun", "31", "15 today", "• Review", "┣ Audit", "┃ Audit"} {
		if !strings.Contains(s, want) {
			t.Fatalf("grid missing %q:\n%s", want, s)
		}
	}
}

func TestMonthRowsAlignment(t *testing.T) {
	// 2025-01-01 is a Wednesday.
	layout := calendar.Project(nil).Month(calendar.NewDate(2025, time.January, 1), calendar.NewDate(2025, time.January, 6))
	rows, todayRow, todayCol := monthRows(layout, time.Monday)
	if len(rows) != 5 {
		t.Fatalf("expected 5 week rows, got %d", len(rows))
	}
	if rows[0][0] != "" || rows[0][1] != "" || !strings.HasPrefix(rows[0][2], " 1") {
		t.Fatalf("unexpected first row: %q", rows[0])
	}
	if todayRow != 1 || todayCol != 0 {
		t.Fatalf("today position mismatch: row=%d col=%d", todayRow, todayCol)
	}

	_, sunRow, sunCol := monthRows(layout, time.Sunday)
	if sunRow != 1 || sunCol != 1 {
		t.Fatalf("sunday-start today position mismatch: row=%d col=%d", sunRow, sunCol)
	}
}

func TestDayCellOverflow(t *testing.T) {
	day := calendar.CalendarDay{Date: calendar.NewDate(2025, 1, 2)}
	for i := 0; i < 5; i++ {
		day.Entries = append(day.Entries, calendar.Entry{
			Task: contract.Task{TaskDraft: contract.TaskDraft{Title: "a very long task title"}},
			Role: calendar.RoleSingle,
		})
	}
	cell := dayCell(day)
	if !strings.Contains(cell, "+2 more") {
		t.Fatalf("expected overflow marker: %q", cell)
	}
	if !strings.Contains(cell, "a very long t…") {
		t.Fatalf("expected truncated title: %q", cell)
	}
}

func TestRenderDay(t *testing.T) {
	tasks := []contract.Task{
		{ID: "1", TaskDraft: contract.TaskDraft{Title: "Workshop", ClientName: "ACME", ExactDate: "2025-01-10", StartTime: "08:00", EndTime: "12:00"}},
		{ID: "2", TaskDraft: contract.TaskDraft{Title: "Visit", ExactDate: "2025-01-10", PeriodKind: "afternoon"}},
	}
	agenda := calendar.Project(tasks).TasksForDate(calendar.NewDate(2025, 1, 10))
	var out bytes.Buffer
	if err := RenderDay(&out, agenda); err != nil {
		t.Fatalf("RenderDay failed: %v", err)
	}
	s := out.String()
	for _, want := range []string{"Fri 2025-01-10", "2 tasks", "first start: 08:00", "last end: 12:00", "08:00-12:00  Workshop · ACME", "Afternoon (13:00 - 18:00)  Visit"} {
		if !strings.Contains(s, want) {
			t.Fatalf("agenda missing %q:\n%s", want, s)
		}
	}
}

func TestRenderTasks(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	tasks := []contract.Task{
		{ID: "0123456789abcdef", TaskDraft: contract.TaskDraft{Title: "Audit", StartDate: "2025-01-28", EndDate: "2025-02-03"}, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "x", TaskDraft: contract.TaskDraft{Title: "Loose"}, CreatedAt: now},
	}
	var out bytes.Buffer
	if err := RenderTasks(&out, tasks, now, true); err != nil {
		t.Fatalf("RenderTasks failed: %v", err)
	}
	s := out.String()
	for _, want := range []string{"01234567", "2025-01-28 → 2025-02-03", "unscheduled", "2 hours ago", "2 tasks"} {
		if !strings.Contains(s, want) {
			t.Fatalf("table missing %q:\n%s", want, s)
		}
	}
}
