package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/output"
	"github.com/agis/consultcal/internal/store"
	"github.com/agis/consultcal/internal/timeparse"
	"github.com/agis/consultcal/internal/transfer"
)

func newTasksCmd(opts *globalOptions) *cobra.Command {
	tasks := &cobra.Command{Use: "tasks", Aliases: []string{"task"}, Short: "Task resources"}
	tasks.AddCommand(
		newTasksListCmd(opts),
		newTasksShowCmd(opts),
		newTasksAddCmd(opts),
		newTasksUpdateCmd(opts),
		newTasksDeleteCmd(opts),
		newTasksImportCmd(opts),
		newTasksExportCmd(opts),
	)
	return tasks
}

func newTasksListCmd(opts *globalOptions) *cobra.Command {
	var query, series, sortField, order string
	var wheres []string
	var limit int
	var unscheduled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.list")
			if err != nil {
				return err
			}
			defer st.Close()
			preds, err := parsePredicates(wheres)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use clauses like title~\"audit\" or date>=2025-01-01", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			items, err := listTasksWithTimeout(ctx, st, store.TaskFilter{OwnerID: ro.Owner, SeriesID: series, Query: query})
			if err != nil {
				return failStore(p, err)
			}
			if unscheduled {
				items = calendar.Project(items).Unscheduled()
			}
			items, err = applyPredicates(items, preds)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Check --where field/operator/value", exitUsage)
			}
			if err := sortTasks(items, sortField, order); err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --sort date|title|client|owner|created_at|updated_at", exitUsage)
			}
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 && !p.Quiet {
				return output.RenderTasks(cmd.OutOrStdout(), items, nowFunc(), ro.NoColor)
			}
			return successWithMeta(ctx, p, ro, items, map[string]any{"count": len(items)}, nil)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Match title or client")
	cmd.Flags().StringVar(&series, "series", "", "Only tasks of this recurring series")
	cmd.Flags().StringSliceVar(&wheres, "where", nil, "Predicate clause (repeatable)")
	cmd.Flags().StringVar(&sortField, "sort", "created_at", "Sort field: date|title|client|owner|created_at|updated_at")
	cmd.Flags().StringVar(&order, "order", "asc", "Sort order: asc|desc")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit results")
	cmd.Flags().BoolVar(&unscheduled, "unscheduled", false, "Only tasks that cannot be placed on the calendar")
	return cmd
}

func newTasksShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.show")
			if err != nil {
				return err
			}
			defer st.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			item, err := getTaskWithTimeout(ctx, st, args[0])
			if err != nil {
				return failStore(p, err)
			}
			var warnings []string
			for _, d := range calendar.Project([]contract.Task{*item}).Diagnostics() {
				warnings = append(warnings, d.Message)
			}
			return successWithMeta(ctx, p, ro, item, map[string]any{"count": 1}, warnings)
		},
	}
}

// scheduleFlags are the task fields shared by add and update.
type scheduleFlags struct {
	title, client, desc      string
	date, from, to           string
	start, end, period, slot string
}

func (f *scheduleFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.title, "title", "", "Task title")
	fs.StringVar(&f.client, "client", "", "Client name")
	fs.StringVar(&f.desc, "desc", "", "Description")
	fs.StringVar(&f.date, "date", "", "Single day: today, tomorrow, +Nd or YYYY-MM-DD")
	fs.StringVar(&f.from, "from", "", "First day of a multi-day task")
	fs.StringVar(&f.to, "to", "", "Last day of a multi-day task")
	fs.StringVar(&f.start, "start", "", "Start time HH:MM")
	fs.StringVar(&f.end, "end", "", "End time HH:MM")
	fs.StringVar(&f.period, "period", "", "Period: morning|afternoon|fullDay")
	fs.StringVar(&f.slot, "slot", "", "Display slot: morning|afternoon|fullDay")
}

func canonicalDay(v string, loc *time.Location) (string, error) {
	d, err := parseDaySelector(v, loc)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

func canonicalPeriod(name, v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	p, ok := calendar.ParsePeriodKind(v)
	if !ok {
		return "", fmt.Errorf("invalid --%s: %s", name, v)
	}
	return string(p), nil
}

func canonicalClock(name, v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	c, err := timeparse.ParseClock(v)
	if err != nil {
		return "", fmt.Errorf("invalid --%s: %w", name, err)
	}
	return c, nil
}

// draft validates the flags of a new task. A task without any date is
// accepted and shows up under `tasks list --unscheduled`.
func (f *scheduleFlags) draft(owner string, loc *time.Location) (contract.TaskDraft, error) {
	d := contract.TaskDraft{
		Title:       strings.TrimSpace(f.title),
		ClientName:  strings.TrimSpace(f.client),
		Description: f.desc,
		OwnerID:     owner,
	}
	if d.Title == "" {
		return d, errors.New("--title is required")
	}
	if f.date != "" && (f.from != "" || f.to != "") {
		return d, errors.New("use either --date or --from/--to, not both")
	}
	if (f.from == "") != (f.to == "") {
		return d, errors.New("--from and --to must be given together")
	}
	var err error
	if f.date != "" {
		if d.ExactDate, err = canonicalDay(f.date, loc); err != nil {
			return d, fmt.Errorf("invalid --date: %w", err)
		}
	}
	if f.from != "" {
		if d.StartDate, err = canonicalDay(f.from, loc); err != nil {
			return d, fmt.Errorf("invalid --from: %w", err)
		}
		if d.EndDate, err = canonicalDay(f.to, loc); err != nil {
			return d, fmt.Errorf("invalid --to: %w", err)
		}
		if d.EndDate < d.StartDate {
			return d, errors.New("--to must not be earlier than --from")
		}
	}
	if d.StartTime, err = canonicalClock("start", f.start); err != nil {
		return d, err
	}
	if d.EndTime, err = canonicalClock("end", f.end); err != nil {
		return d, err
	}
	if d.StartTime != "" && d.EndTime != "" && d.EndTime <= d.StartTime {
		return d, errors.New("--end must be after --start")
	}
	if d.PeriodKind, err = canonicalPeriod("period", f.period); err != nil {
		return d, err
	}
	if d.TimeSlot, err = canonicalPeriod("slot", f.slot); err != nil {
		return d, err
	}
	return d, nil
}

func newTasksAddCmd(opts *globalOptions) *cobra.Command {
	var flags scheduleFlags
	var repeat string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.add")
			if err != nil {
				return err
			}
			defer st.Close()
			d, err := flags.draft(ro.Owner, resolveLocation(ro.TZ))
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Provide --title and either --date or --from/--to", exitUsage)
			}
			rule, err := parseRepeat(repeat)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --repeat daily*3, weekly:mon,wed*4 or FREQ=WEEKLY;COUNT=4", exitUsage)
			}
			drafts, err := seriesDrafts(d, rule)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Repeated tasks need a date", exitUsage)
			}
			if dryRun {
				return p.Success(drafts, map[string]any{"dry_run": true, "count": len(drafts)}, nil)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			created := make([]contract.Task, 0, len(drafts))
			for _, in := range drafts {
				item, err := addTaskWithTimeout(ctx, st, in)
				if err != nil {
					return failStore(p, err)
				}
				created = append(created, *item)
			}
			if len(created) == 1 {
				return successWithMeta(ctx, p, ro, created[0], map[string]any{"count": 1}, nil)
			}
			return successWithMeta(ctx, p, ro, created, map[string]any{"count": len(created), "series_id": created[0].SeriesID}, nil)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&repeat, "repeat", "", "Repeat rule: daily*N, weekly:mon,wed*N, monthly*N, yearly*N or FREQ=...")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Preview without writing")
	return cmd
}

func newTasksUpdateCmd(opts *globalOptions) *cobra.Command {
	var flags scheduleFlags
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.update")
			if err != nil {
				return err
			}
			defer st.Close()
			patch, err := flags.patch(cmd.Flags(), resolveLocation(ro.TZ))
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Check the changed flags", exitUsage)
			}
			if flagValueChanged(cmd, "owner") {
				patch.OwnerID = &ro.Owner
			}
			if patch.Empty() {
				return failWithHint(p, contract.ErrInvalidUsage, errors.New("nothing to update"), "Pass at least one field flag", exitUsage)
			}
			if dryRun {
				return p.Success(patch, map[string]any{"dry_run": true}, nil)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			item, err := updateTaskWithTimeout(ctx, st, args[0], patch)
			if err != nil {
				return failStore(p, err)
			}
			return successWithMeta(ctx, p, ro, item, map[string]any{"count": 1}, nil)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Preview without writing")
	return cmd
}

// patch turns the explicitly set flags into a partial update. Setting a
// date kind clears the other one so the new value is the one laid out.
// An empty string clears a field.
func (f *scheduleFlags) patch(fs *pflag.FlagSet, loc *time.Location) (store.TaskUpdateInput, error) {
	var in store.TaskUpdateInput
	var err error
	empty := ""
	str := func(v string) *string { return &v }
	fs.Visit(func(fl *pflag.Flag) {
		if err != nil {
			return
		}
		v := fl.Value.String()
		switch fl.Name {
		case "title":
			if strings.TrimSpace(v) == "" {
				err = errors.New("--title cannot be empty")
				return
			}
			in.Title = str(strings.TrimSpace(v))
		case "client":
			in.ClientName = str(strings.TrimSpace(v))
		case "desc":
			in.Description = str(v)
		case "date":
			var day string
			if v != "" {
				if day, err = canonicalDay(v, loc); err != nil {
					err = fmt.Errorf("invalid --date: %w", err)
					return
				}
			}
			in.ExactDate = str(day)
			if day != "" {
				in.StartDate, in.EndDate = &empty, &empty
			}
		case "from", "to":
			var day string
			if v != "" {
				if day, err = canonicalDay(v, loc); err != nil {
					err = fmt.Errorf("invalid --%s: %w", fl.Name, err)
					return
				}
			}
			if fl.Name == "from" {
				in.StartDate = str(day)
			} else {
				in.EndDate = str(day)
			}
			if in.ExactDate == nil {
				in.ExactDate = &empty
			}
		case "start", "end":
			var c string
			if c, err = canonicalClock(fl.Name, v); err != nil {
				return
			}
			if fl.Name == "start" {
				in.StartTime = str(c)
			} else {
				in.EndTime = str(c)
			}
		case "period", "slot":
			var k string
			if k, err = canonicalPeriod(fl.Name, v); err != nil {
				return
			}
			if fl.Name == "period" {
				in.PeriodKind = str(k)
			} else {
				in.TimeSlot = str(k)
			}
		}
	})
	if err != nil {
		return store.TaskUpdateInput{}, err
	}
	if fs.Changed("date") && (fs.Changed("from") || fs.Changed("to")) {
		return store.TaskUpdateInput{}, errors.New("use either --date or --from/--to, not both")
	}
	return in, nil
}

func newTasksDeleteCmd(opts *globalOptions) *cobra.Command {
	var force, dryRun, series bool
	var confirm string
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.delete")
			if err != nil {
				return err
			}
			defer st.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			item, err := getTaskWithTimeout(ctx, st, args[0])
			if err != nil {
				return failStore(p, err)
			}
			targets := []contract.Task{*item}
			if series {
				if item.SeriesID == "" {
					return failWithHint(p, contract.ErrInvalidUsage, errors.New("task is not part of a series"), "Drop --series", exitUsage)
				}
				targets, err = listTasksWithTimeout(ctx, st, store.TaskFilter{SeriesID: item.SeriesID})
				if err != nil {
					return failStore(p, err)
				}
			}
			if !force && confirm != args[0] {
				if ro.NoInput || !stdinInteractive() {
					err = errors.New("non-interactive delete requires --force or --confirm <task-id>")
					return failWithHint(p, contract.ErrInvalidUsage, err, "Add --confirm exactly matching the task ID", exitUsage)
				}
				ok, promptErr := promptConfirmID(os.Stdin, cmd.ErrOrStderr(), args[0])
				if promptErr != nil {
					return failWithHint(p, contract.ErrInvalidUsage, promptErr, "Use --force or --confirm <task-id> in non-interactive mode", exitUsage)
				}
				if !ok {
					err = errors.New("delete confirmation mismatch")
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use --force, or retry and enter the exact task ID", exitUsage)
				}
			}
			if dryRun {
				return p.Success(targets, map[string]any{"dry_run": true, "count": len(targets)}, nil)
			}
			deleted := make([]string, 0, len(targets))
			for _, t := range targets {
				if err := deleteTaskWithTimeout(ctx, st, t.ID); err != nil {
					return failStore(p, err)
				}
				deleted = append(deleted, t.ID)
			}
			return successWithMeta(ctx, p, ro, map[string]any{"deleted": true, "ids": deleted}, map[string]any{"count": len(deleted)}, nil)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without confirmation")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Confirm exact task ID")
	cmd.Flags().BoolVar(&series, "series", false, "Delete every task of the task's series")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Preview without writing")
	return cmd
}

// detectFormat picks ics or yaml from an explicit flag or the file
// extension, defaulting to ics.
func detectFormat(flag, path string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(flag))
	if f == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			f = "yaml"
		default:
			f = "ics"
		}
	}
	if f == "yml" {
		f = "yaml"
	}
	if f != "ics" && f != "yaml" {
		return "", fmt.Errorf("unsupported format: %s", flag)
	}
	return f, nil
}

func newTasksImportCmd(opts *globalOptions) *cobra.Command {
	var file, format string
	var dryRun, strict bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tasks from an .ics or YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.import")
			if err != nil {
				return err
			}
			defer st.Close()
			if file == "" {
				return failWithHint(p, contract.ErrInvalidUsage, errors.New("--file is required"), "Pass --file <path> or --file -", exitUsage)
			}
			kind, err := detectFormat(format, file)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --format ics|yaml", exitUsage)
			}
			in, err := readInput(file)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Check file path or stdin", exitUsage)
			}
			defer in.Close()
			var drafts []contract.TaskDraft
			var warnings []string
			if kind == "yaml" {
				drafts, err = transfer.ReadYAML(in, ro.Owner)
			} else {
				drafts, warnings, err = transfer.ReadICS(in, resolveLocation(ro.TZ), ro.Owner)
			}
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Check the file contents", exitUsage)
			}
			if strict && len(warnings) > 0 {
				err = fmt.Errorf("%d entries could not be imported", len(warnings))
				return failWithHint(p, contract.ErrInvalidUsage, err, warnings[0], exitUsage)
			}
			meta := map[string]any{"count": len(drafts), "format": kind, "skipped": len(warnings)}
			if dryRun {
				meta["dry_run"] = true
				return p.Success(drafts, meta, warnings)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			created := make([]contract.Task, 0, len(drafts))
			for _, d := range drafts {
				item, err := addTaskWithTimeout(ctx, st, d)
				if err != nil {
					return failStore(p, err)
				}
				created = append(created, *item)
			}
			return successWithMeta(ctx, p, ro, created, meta, warnings)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Input path or - for stdin")
	cmd.Flags().StringVar(&format, "format", "", "Input format: ics|yaml (default from extension)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Parse and preview without writing")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any entry is skipped")
	return cmd
}

func newTasksExportCmd(opts *globalOptions) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as .ics or YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(cmd, opts, "tasks.export")
			if err != nil {
				return err
			}
			defer st.Close()
			kind, err := detectFormat(format, out)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --format ics|yaml", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			items, err := listTasksWithTimeout(ctx, st, store.TaskFilter{OwnerID: ro.Owner})
			if err != nil {
				return failStore(p, err)
			}

			var w io.Writer = cmd.OutOrStdout()
			toFile := out != "" && out != "-"
			if toFile {
				f, err := os.Create(out)
				if err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Check --out path", exitUsage)
				}
				defer f.Close()
				w = f
			}
			res := transfer.ExportResult{Exported: len(items)}
			if kind == "yaml" {
				err = transfer.WriteYAML(w, items)
			} else {
				res, err = transfer.WriteICS(w, items, resolveLocation(ro.TZ), nowFunc())
			}
			if err != nil {
				return failWithHint(p, contract.ErrGeneric, err, "Export failed", exitGeneric)
			}
			if !toFile {
				return nil
			}
			var warnings []string
			for _, id := range res.Skipped {
				warnings = append(warnings, fmt.Sprintf("task %s has no usable date and was not exported", id))
			}
			return successWithMeta(ctx, p, ro, map[string]any{"path": out, "format": kind, "exported": res.Exported}, map[string]any{"count": res.Exported}, warnings)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output path or - for stdout")
	cmd.Flags().StringVar(&format, "format", "", "Output format: ics|yaml (default from extension)")
	return cmd
}
