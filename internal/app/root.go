package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
	appLog "github.com/agis/consultcal/internal/log"
	"github.com/agis/consultcal/internal/output"
	"github.com/agis/consultcal/internal/store"
	"github.com/agis/consultcal/internal/timeparse"
)

var storeFactory = openStore

// nowFunc is swapped in tests to pin "today".
var nowFunc = time.Now

type globalOptions struct {
	JSON          bool
	JSONL         bool
	Plain         bool
	Fields        string
	Quiet         bool
	Verbose       bool
	NoColor       bool
	NoInput       bool
	Profile       string
	Config        string
	DB            string
	TZ            string
	Owner         string
	WeekStart     string
	Listen        string
	Refresh       string
	Timeout       time.Duration
	SchemaVersion string
}

func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		renderTopLevelError(cmd, err)
	}
	return ExitCode(err)
}

func NewRootCommand() *cobra.Command {
	opts := &globalOptions{
		Profile:       "default",
		DB:            defaultDBPath(),
		WeekStart:     "monday",
		Listen:        defaultListen,
		Refresh:       defaultRefresh,
		Timeout:       15 * time.Second,
		SchemaVersion: contract.SchemaVersion,
	}

	root := &cobra.Command{
		Use:           "consultcal",
		Short:         "Lay out consultant tasks on a month calendar and daily agendas",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       BuildVersionString(),
	}
	root.SetVersionTemplate("consultcal {{.Version}}\n")

	root.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output structured JSON")
	root.PersistentFlags().BoolVar(&opts.JSONL, "jsonl", false, "Output newline-delimited JSON")
	root.PersistentFlags().BoolVar(&opts.Plain, "plain", false, "Output stable plain text")
	root.PersistentFlags().StringVar(&opts.Fields, "fields", "", "Projected fields, comma-separated")
	root.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Reduce success output")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose diagnostics")
	root.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable color output")
	root.PersistentFlags().BoolVar(&opts.NoInput, "no-input", false, "Disable prompts")
	root.PersistentFlags().StringVar(&opts.Profile, "profile", "default", "Config profile")
	root.PersistentFlags().StringVar(&opts.Config, "config", "", "Config file path")
	root.PersistentFlags().StringVar(&opts.DB, "db", opts.DB, "Task database path")
	root.PersistentFlags().StringVar(&opts.TZ, "tz", "", "IANA timezone used to resolve today")
	root.PersistentFlags().StringVar(&opts.Owner, "owner", "", "Only show tasks of this consultant")
	root.PersistentFlags().StringVar(&opts.WeekStart, "week-start", "monday", "First grid column: monday|sunday")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "Store call timeout (e.g. 10s, 1m, 0 to disable)")
	root.PersistentFlags().StringVar(&opts.SchemaVersion, "schema-version", contract.SchemaVersion, "Output schema version")

	root.AddCommand(newVersionCmd(opts))
	root.AddCommand(newDoctorCmd(opts))
	root.AddCommand(newTasksCmd(opts))
	root.AddCommand(newMonthCmd(opts))
	root.AddCommand(newDayCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCompletionCmd(root))

	return root
}

func buildContext(cmd *cobra.Command, opts *globalOptions, command string) (output.Printer, store.Store, *globalOptions, error) {
	resolved, err := resolveGlobalOptions(cmd, opts)
	if err != nil {
		return output.Printer{}, nil, nil, Wrap(exitUsage, err)
	}
	if conflictCount(resolved.JSON, resolved.JSONL, resolved.Plain) > 1 {
		return output.Printer{}, nil, nil, Wrap(exitUsage, errors.New("--json, --jsonl, and --plain are mutually exclusive"))
	}
	mode := output.ModeAuto
	if resolved.JSON {
		mode = output.ModeJSON
	} else if resolved.JSONL {
		mode = output.ModeJSONL
	} else if resolved.Plain {
		mode = output.ModePlain
	}

	printer := output.Printer{
		Mode:          mode,
		Command:       command,
		Fields:        splitCSV(resolved.Fields),
		Quiet:         resolved.Quiet,
		NoColor:       resolved.NoColor,
		SchemaVersion: resolved.SchemaVersion,
		Out:           cmd.OutOrStdout(),
		Err:           cmd.ErrOrStderr(),
	}

	appLog.SetOutput(cmd.ErrOrStderr())
	if resolved.Verbose {
		appLog.SetLevel(appLog.LevelDebug)
	} else {
		appLog.SetLevel(appLog.LevelInfo)
	}

	st, err := storeFactory(resolved.DB)
	if err != nil {
		_ = printer.Error(contract.ErrStoreUnavailable, err.Error(), "Check --db or run `consultcal doctor`")
		return printer, nil, nil, WrapPrinted(exitStore, err)
	}
	appLog.Debug("command start", "command", command, "db", resolved.DB, "mode", mode, "tz", resolved.TZ, "profile", resolved.Profile, "timeout", resolved.Timeout)
	return printer, st, resolved, nil
}

func openStore(path string) (store.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return store.OpenSQLite(ctx, path)
}

func defaultDBPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "consultcal", "tasks.db")
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		return "consultcal.db"
	}
	return filepath.Join(home, ".local", "share", "consultcal", "tasks.db")
}

func commandContext(ro *globalOptions) (context.Context, context.CancelFunc) {
	timing := &timingRecorder{calls: map[string]time.Duration{}}
	base := context.WithValue(context.Background(), timingContextKey{}, timing)
	if ro == nil || ro.Timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, ro.Timeout)
}

type timeoutResult[T any] struct {
	val T
	err error
}

type timingContextKey struct{}

type timingRecorder struct {
	mu    sync.Mutex
	calls map[string]time.Duration
}

func (r *timingRecorder) add(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name] += d
}

func storeTimings(ctx context.Context) map[string]string {
	rec, _ := ctx.Value(timingContextKey{}).(*timingRecorder)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rec.calls))
	for k := range rec.calls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = rec.calls[k].String()
	}
	return out
}

func withTimeout[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ch := make(chan timeoutResult[T], 1)
	go func() {
		v, err := fn()
		ch <- timeoutResult[T]{val: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		return res.val, res.err
	}
}

// timed runs one store call under the command deadline and records how
// long it took under phase.
func timed[T any](ctx context.Context, phase string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := withTimeout(ctx, fn)
	err = annotateStoreError(ctx, phase, err)
	recordTiming(ctx, phase, time.Since(start))
	return v, err
}

func doctorWithTimeout(ctx context.Context, st store.Store) ([]contract.DoctorCheck, error) {
	return timed(ctx, "store.doctor", func() ([]contract.DoctorCheck, error) {
		return st.Doctor(ctx)
	})
}

func listTasksWithTimeout(ctx context.Context, st store.Store, f store.TaskFilter) ([]contract.Task, error) {
	return timed(ctx, "store.list_tasks", func() ([]contract.Task, error) {
		return st.ListTasks(ctx, f)
	})
}

func getTaskWithTimeout(ctx context.Context, st store.Store, id string) (*contract.Task, error) {
	return timed(ctx, "store.get_task", func() (*contract.Task, error) {
		return st.GetTask(ctx, id)
	})
}

func addTaskWithTimeout(ctx context.Context, st store.Store, in contract.TaskDraft) (*contract.Task, error) {
	return timed(ctx, "store.add_task", func() (*contract.Task, error) {
		return st.AddTask(ctx, in)
	})
}

func updateTaskWithTimeout(ctx context.Context, st store.Store, id string, in store.TaskUpdateInput) (*contract.Task, error) {
	return timed(ctx, "store.update_task", func() (*contract.Task, error) {
		return st.UpdateTask(ctx, id, in)
	})
}

func deleteTaskWithTimeout(ctx context.Context, st store.Store, id string) error {
	_, err := timed(ctx, "store.delete_task", func() (struct{}, error) {
		return struct{}{}, st.DeleteTask(ctx, id)
	})
	return err
}

func recordTiming(ctx context.Context, name string, d time.Duration) {
	rec, _ := ctx.Value(timingContextKey{}).(*timingRecorder)
	if rec == nil {
		return
	}
	rec.add(name, d)
}

func successWithMeta(ctx context.Context, p output.Printer, ro *globalOptions, data any, meta map[string]any, warnings []string) error {
	if ro != nil && ro.Verbose {
		timings := storeTimings(ctx)
		if len(timings) > 0 {
			if meta == nil {
				meta = map[string]any{}
			}
			meta["timings"] = timings
			appLog.Debug("store timings", "command", p.Command, "timings", timings)
		}
	}
	return p.Success(data, meta, warnings)
}

// failStore reports a failed store call, keeping timeout metadata in the
// log so a slow disk is distinguishable from a missing task.
func failStore(p output.Printer, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return failWithHint(p, contract.ErrNotFound, err, "Check the ID with `consultcal tasks list --fields id,title`", exitNotFound)
	}
	if meta := storeErrorMeta(err); meta != nil {
		appLog.Error("store call failed", err, "phase", meta["phase"], "kind", meta["kind"])
	}
	return failWithHint(p, contract.ErrStoreUnavailable, err, "Run `consultcal doctor` for remediation", exitStore)
}

func renderTopLevelError(cmd *cobra.Command, err error) {
	var appErr AppError
	if errors.As(err, &appErr) && appErr.Printed {
		return
	}
	if wantsStructuredErrorOutput(os.Args[1:]) {
		printer := output.Printer{
			Mode:          output.ModeJSON,
			SchemaVersion: contract.SchemaVersion,
			Err:           cmd.ErrOrStderr(),
		}
		_ = printer.Error(errorCodeForExit(ExitCode(err)), err.Error(), "")
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", err.Error())
}

func wantsStructuredErrorOutput(args []string) bool {
	for _, arg := range args {
		switch {
		case arg == "--":
			return false
		case arg == "--json", arg == "--jsonl":
			return true
		case strings.HasPrefix(arg, "--json="), strings.HasPrefix(arg, "--jsonl="):
			return true
		}
	}
	return false
}

func resolveLocation(tz string) *time.Location {
	if strings.TrimSpace(tz) != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}

func todayIn(loc *time.Location) calendar.Date {
	return calendar.DateOf(nowFunc().In(loc))
}

// parseDaySelector reads today, tomorrow, +Nd or a calendar date.
func parseDaySelector(v string, loc *time.Location) (calendar.Date, error) {
	ts, err := timeparse.ParseDateTime(firstNonEmpty(v, "today"), nowFunc(), loc)
	if err != nil {
		return calendar.Date{}, err
	}
	return calendar.DateOf(ts), nil
}

func parseMonthSelector(v string, loc *time.Location) (calendar.Date, error) {
	ts, err := timeparse.ParseMonth(v, nowFunc(), loc)
	if err != nil {
		return calendar.Date{}, err
	}
	return calendar.DateOf(ts), nil
}

func parseWeekStart(v string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "monday", "mon", "":
		return time.Monday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return time.Monday, fmt.Errorf("invalid --week-start: %s", v)
	}
}

func readInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func stdinInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func promptConfirmID(in io.Reader, out io.Writer, expected string) (bool, error) {
	if _, err := fmt.Fprintf(out, "Type task ID to confirm delete: "); err != nil {
		return false, err
	}
	var entered string
	if _, err := fmt.Fscanln(in, &entered); err != nil {
		return false, err
	}
	return strings.TrimSpace(entered) == strings.TrimSpace(expected), nil
}

func conflictCount(vals ...bool) int {
	total := 0
	for _, v := range vals {
		if v {
			total++
		}
	}
	return total
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
