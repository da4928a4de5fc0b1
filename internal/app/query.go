package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
)

type predicate struct {
	field string
	op    string
	value string
}

func parsePredicates(wheres []string) ([]predicate, error) {
	out := make([]predicate, 0, len(wheres))
	ops := []string{"==", "!=", "~", ">=", "<=", ">", "<"}
	for _, w := range wheres {
		s := strings.TrimSpace(w)
		if s == "" {
			continue
		}
		var op string
		var idx int
		for _, candidate := range ops {
			if i := strings.Index(s, candidate); i > 0 {
				op = candidate
				idx = i
				break
			}
		}
		if op == "" {
			return nil, fmt.Errorf("invalid where clause: %s", w)
		}
		field := strings.TrimSpace(s[:idx])
		val := strings.Trim(strings.TrimSpace(s[idx+len(op):]), "\"")
		if field == "" || val == "" {
			return nil, fmt.Errorf("invalid where clause: %s", w)
		}
		out = append(out, predicate{field: strings.ToLower(field), op: op, value: val})
	}
	return out, nil
}

func applyPredicates(items []contract.Task, preds []predicate) ([]contract.Task, error) {
	filtered := make([]contract.Task, 0, len(items))
	for _, t := range items {
		ok, err := matchesAll(t, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func matchesAll(t contract.Task, preds []predicate) (bool, error) {
	for _, p := range preds {
		ok, err := matchesOne(t, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchesOne(t contract.Task, p predicate) (bool, error) {
	switch p.field {
	case "title":
		return compareString(t.Title, p.op, p.value)
	case "client", "client_name":
		return compareString(t.ClientName, p.op, p.value)
	case "owner", "owner_id":
		return compareString(t.OwnerID, p.op, p.value)
	case "description":
		return compareString(t.Description, p.op, p.value)
	case "period", "period_kind":
		return compareString(t.PeriodKind, p.op, p.value)
	case "series", "series_id":
		return compareString(t.SeriesID, p.op, p.value)
	case "id":
		return compareString(t.ID, p.op, p.value)
	case "exact_date":
		return compareDate(t.ExactDate, p.op, p.value)
	case "start_date":
		return compareDate(t.StartDate, p.op, p.value)
	case "end_date":
		return compareDate(t.EndDate, p.op, p.value)
	case "date":
		return compareDate(firstDay(t), p.op, p.value)
	case "created_at":
		return compareTime(t.CreatedAt, p.op, p.value)
	case "updated_at":
		return compareTime(t.UpdatedAt, p.op, p.value)
	default:
		return false, fmt.Errorf("unsupported field in --where: %s", p.field)
	}
}

// firstDay is the first day a task occupies, or "" when it cannot be
// placed on the calendar.
func firstDay(t contract.Task) string {
	n, err := calendar.Normalize(t)
	if err != nil {
		return ""
	}
	return n.Temporal.Start.String()
}

func compareString(actual, op, expected string) (bool, error) {
	a := strings.ToLower(actual)
	e := strings.ToLower(expected)
	switch op {
	case "==":
		return a == e, nil
	case "!=":
		return a != e, nil
	case "~":
		return strings.Contains(a, e), nil
	default:
		return false, fmt.Errorf("operator %s not supported for string fields", op)
	}
}

// compareDate treats a missing or malformed stored date as matching only
// "!=".
func compareDate(actual, op, expected string) (bool, error) {
	want, err := calendar.ParseDate(expected)
	if err != nil {
		return false, fmt.Errorf("date predicate expects YYYY-MM-DD value, got %q", expected)
	}
	got, err := calendar.ParseDate(actual)
	if err != nil {
		return op == "!=", nil
	}
	c := got.Compare(want)
	switch op {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	default:
		return false, fmt.Errorf("operator %s not supported for date fields", op)
	}
}

func compareTime(actual time.Time, op, expected string) (bool, error) {
	parsed, err := time.Parse(time.RFC3339, expected)
	if err != nil {
		return false, fmt.Errorf("time predicate expects RFC3339 value, got %q", expected)
	}
	switch op {
	case "==":
		return actual.Equal(parsed), nil
	case "!=":
		return !actual.Equal(parsed), nil
	case ">":
		return actual.After(parsed), nil
	case ">=":
		return !actual.Before(parsed), nil
	case "<":
		return actual.Before(parsed), nil
	case "<=":
		return !actual.After(parsed), nil
	default:
		return false, fmt.Errorf("operator %s not supported for time fields", op)
	}
}

// sortTasks orders tasks in place. Sorting by date puts unscheduled tasks
// last regardless of order.
func sortTasks(items []contract.Task, sortField, order string) error {
	desc := strings.EqualFold(order, "desc")
	var less func(a, b contract.Task) bool
	switch strings.ToLower(strings.TrimSpace(sortField)) {
	case "", "created_at":
		less = func(a, b contract.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at":
		less = func(a, b contract.Task) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "title":
		less = func(a, b contract.Task) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case "client", "client_name":
		less = func(a, b contract.Task) bool { return strings.ToLower(a.ClientName) < strings.ToLower(b.ClientName) }
	case "owner", "owner_id":
		less = func(a, b contract.Task) bool { return a.OwnerID < b.OwnerID }
	case "date":
		keys := make(map[string]string, len(items))
		for _, t := range items {
			keys[t.ID] = firstDay(t)
		}
		sort.SliceStable(items, func(i, j int) bool {
			a, b := keys[items[i].ID], keys[items[j].ID]
			if a == "" || b == "" {
				return a != "" && b == ""
			}
			if desc {
				return a > b
			}
			return a < b
		})
		return nil
	default:
		return fmt.Errorf("unsupported --sort field: %s", sortField)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
	return nil
}
