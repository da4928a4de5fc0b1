package web

import (
	"fmt"
	"sync"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
)

type monthKey struct {
	owner  string
	anchor calendar.Date
	today  calendar.Date
}

type monthEntry struct {
	layout   calendar.MonthLayout
	warnings []string
}

// snapshot is the task collection at one store revision. Projections and
// month layouts are derived lazily and memoized for the snapshot's life.
type snapshot struct {
	revision int64
	tasks    []contract.Task

	mu       sync.Mutex
	byOwner  map[string]*calendar.Projection
	layouts  map[monthKey]monthEntry
	computed int
}

func newSnapshot(rev int64, tasks []contract.Task) *snapshot {
	return &snapshot{
		revision: rev,
		tasks:    tasks,
		byOwner:  map[string]*calendar.Projection{},
		layouts:  map[monthKey]monthEntry{},
	}
}

// projection returns the projection of the tasks owned by owner, or of
// every task when owner is empty.
func (s *snapshot) projection(owner string) *calendar.Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectionLocked(owner)
}

func (s *snapshot) projectionLocked(owner string) *calendar.Projection {
	if p, ok := s.byOwner[owner]; ok {
		return p
	}
	tasks := s.tasks
	if owner != "" {
		tasks = make([]contract.Task, 0, len(s.tasks))
		for _, t := range s.tasks {
			if t.OwnerID == owner {
				tasks = append(tasks, t)
			}
		}
	}
	p := calendar.Project(tasks)
	s.byOwner[owner] = p
	return p
}

func (s *snapshot) month(owner string, anchor, today calendar.Date) (calendar.MonthLayout, []string) {
	key := monthKey{owner: owner, anchor: calendar.ResolveMonthWindow(anchor).FirstDay, today: today}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.layouts[key]; ok {
		return e.layout, e.warnings
	}
	p := s.projectionLocked(owner)
	e := monthEntry{layout: p.Month(anchor, today), warnings: []string{}}
	for _, d := range p.Diagnostics() {
		e.warnings = append(e.warnings, fmt.Sprintf("task %s: %s", d.TaskID, d.Message))
	}
	s.layouts[key] = e
	s.computed++
	return e.layout, e.warnings
}
