package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/output"
	"github.com/agis/consultcal/internal/store"
)

// loadProjection reads the tasks visible to the resolved owner filter and
// normalizes them once for all the days a view asks about.
func loadProjection(ctx context.Context, st store.Store, owner string) (*calendar.Projection, []string, error) {
	items, err := listTasksWithTimeout(ctx, st, store.TaskFilter{OwnerID: owner})
	if err != nil {
		return nil, nil, err
	}
	proj := calendar.Project(items)
	return proj, diagnosticWarnings(proj.Diagnostics()), nil
}

func diagnosticWarnings(diags []calendar.Diagnostic) []string {
	if len(diags) == 0 {
		return nil
	}
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, fmt.Sprintf("task %s: %s", d.TaskID, d.Message))
	}
	return out
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

func newMonthCmd(opts *globalOptions) *cobra.Command {
	var month, today string
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Lay out a month of tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(c, opts, "month")
			if err != nil {
				return err
			}
			defer st.Close()
			loc := resolveLocation(ro.TZ)
			anchor, err := parseMonthSelector(month, loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --month as YYYY-MM, YYYY-MM-DD, today or +Nm", exitUsage)
			}
			now, err := parseDaySelector(today, loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --today as YYYY-MM-DD", exitUsage)
			}
			ws, err := parseWeekStart(ro.WeekStart)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --week-start monday|sunday", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			proj, warnings, err := loadProjection(ctx, st, ro.Owner)
			if err != nil {
				return failStore(p, err)
			}
			layout := proj.Month(anchor, now)
			if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
				printWarnings(c.ErrOrStderr(), warnings)
				return output.RenderMonth(c.OutOrStdout(), layout, ws, ro.NoColor)
			}
			visible := len(calendar.FilterVisible(proj.Tasks(), layout.Window))
			return successWithMeta(ctx, p, ro, layout, map[string]any{
				"month":       layout.Window.FirstDay.String()[:7],
				"from":        layout.Window.FirstDay.String(),
				"to":          layout.Window.LastDay.String(),
				"tasks":       visible,
				"unscheduled": len(proj.Unscheduled()),
			}, warnings)
		},
	}
	cmd.Flags().StringVar(&month, "month", "today", "Month selector: YYYY-MM, YYYY-MM-DD, today, +Nm")
	cmd.Flags().StringVar(&today, "today", "today", "Day highlighted as today")
	return cmd
}

func newDayCmd(opts *globalOptions) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:     "day",
		Aliases: []string{"agenda"},
		Short:   "Ordered agenda and summary for one day",
		RunE: func(c *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(c, opts, "day")
			if err != nil {
				return err
			}
			defer st.Close()
			date, err := parseDaySelector(day, resolveLocation(ro.TZ))
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --date as today, tomorrow, +Nd, or YYYY-MM-DD", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			proj, warnings, err := loadProjection(ctx, st, ro.Owner)
			if err != nil {
				return failStore(p, err)
			}
			agenda := proj.TasksForDate(date)
			if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
				printWarnings(c.ErrOrStderr(), warnings)
				return output.RenderDay(c.OutOrStdout(), agenda)
			}
			return successWithMeta(ctx, p, ro, agenda, map[string]any{
				"day":   date.String(),
				"count": agenda.Summary.Count,
			}, warnings)
		},
	}
	cmd.Flags().StringVar(&day, "date", "today", "Day selector: today, tomorrow, +Nd, YYYY-MM-DD")
	return cmd
}
