package calendar

import "sort"

// NotDefined marks a summary bound no task on the day supplied.
const NotDefined = "not defined"

var slotPriority = map[PeriodKind]int{
	PeriodFullDay:   1,
	PeriodMorning:   2,
	PeriodAfternoon: 3,
}

// DaySummary aggregates one day's tasks. Only explicit clock times count
// towards FirstStart and LastEnd; period defaults are ignored.
type DaySummary struct {
	Count      int    `json:"count"`
	FirstStart string `json:"first_start"`
	LastEnd    string `json:"last_end"`
}

// SortDay returns a stably sorted copy of ns. Entries order by slot first;
// entries with an explicit start time are then put in ascending start order
// across the positions they occupy, so a timed task never follows a later
// timed task on the same day.
func SortDay(ns []Normalized) []Normalized {
	out := make([]Normalized, len(ns))
	copy(out, ns)
	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i].Slot) < priority(out[j].Slot)
	})

	var slots []int
	var timed []Normalized
	for i, n := range out {
		if n.StartTime != "" {
			slots = append(slots, i)
			timed = append(timed, n)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].StartTime < timed[j].StartTime
	})
	for k, i := range slots {
		out[i] = timed[k]
	}
	return out
}

func priority(p PeriodKind) int {
	if v, ok := slotPriority[p]; ok {
		return v
	}
	return slotPriority[PeriodFullDay]
}

// Summarize computes the count and the earliest explicit start and latest
// explicit end across ns.
func Summarize(ns []Normalized) DaySummary {
	s := DaySummary{Count: len(ns)}
	first, last := "", ""
	for _, n := range ns {
		if n.StartTime != "" && (first == "" || n.StartTime < first) {
			first = n.StartTime
		}
		if n.EndTime != "" && (last == "" || n.EndTime > last) {
			last = n.EndTime
		}
	}
	s.FirstStart = orNotDefined(first)
	s.LastEnd = orNotDefined(last)
	return s
}

func orNotDefined(v string) string {
	if v == "" {
		return NotDefined
	}
	return v
}
