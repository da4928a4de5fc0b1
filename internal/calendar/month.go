package calendar

// MonthWindow spans the first through the last day of one month, inclusive.
type MonthWindow struct {
	FirstDay Date `json:"first_day"`
	LastDay  Date `json:"last_day"`
}

// ResolveMonthWindow returns the window of the month containing anchor.
func ResolveMonthWindow(anchor Date) MonthWindow {
	first := NewDate(anchor.Year, anchor.Month, 1)
	last := NewDate(anchor.Year, anchor.Month+1, 0)
	return MonthWindow{FirstDay: first, LastDay: last}
}

// Days lists every day of the window in order. No leading or trailing
// padding to week boundaries is added.
func (w MonthWindow) Days() []Date {
	n := w.FirstDay.DaysUntil(w.LastDay) + 1
	if n <= 0 {
		return nil
	}
	out := make([]Date, 0, n)
	for d := w.FirstDay; !d.After(w.LastDay); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func (w MonthWindow) Contains(d Date) bool {
	return !d.Before(w.FirstDay) && !d.After(w.LastDay)
}
