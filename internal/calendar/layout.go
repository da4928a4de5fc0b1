package calendar

type SegmentRole string

const (
	RoleSingle SegmentRole = "single"
	RoleStart  SegmentRole = "start"
	RoleMiddle SegmentRole = "middle"
	RoleEnd    SegmentRole = "end"
)

// VisibleIn reports whether n touches any day of w.
func (n Normalized) VisibleIn(w MonthWindow) bool {
	if n.Temporal.Kind == KindPoint {
		return w.Contains(n.Temporal.Start)
	}
	return !(n.Temporal.End.Before(w.FirstDay) || n.Temporal.Start.After(w.LastDay))
}

// Occupies reports whether n is drawn on day d.
func (n Normalized) Occupies(d Date) bool {
	if n.Temporal.Kind == KindPoint {
		return n.Temporal.Start == d
	}
	return !d.Before(n.Temporal.Start) && !d.After(n.Temporal.End)
}

// Segment classifies how n is drawn on d. d is expected to be a day n
// occupies; for any other day the result is RoleSingle.
func (n Normalized) Segment(d Date) SegmentRole {
	t := n.Temporal
	if t.Kind == KindPoint || t.Start == t.End || !n.Occupies(d) {
		return RoleSingle
	}
	switch d {
	case t.Start:
		return RoleStart
	case t.End:
		return RoleEnd
	default:
		return RoleMiddle
	}
}

// FilterVisible keeps the tasks of ns that touch w, preserving order.
func FilterVisible(ns []Normalized, w MonthWindow) []Normalized {
	out := make([]Normalized, 0, len(ns))
	for _, n := range ns {
		if n.VisibleIn(w) {
			out = append(out, n)
		}
	}
	return out
}

// OnDay keeps the tasks of ns that occupy d, preserving order.
func OnDay(ns []Normalized, d Date) []Normalized {
	out := make([]Normalized, 0)
	for _, n := range ns {
		if n.Occupies(d) {
			out = append(out, n)
		}
	}
	return out
}
