// Package web serves month layouts and day agendas over HTTP for
// wall-mounted or browser calendar front ends.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agis/consultcal/internal/calendar"
	"github.com/agis/consultcal/internal/contract"
	appLog "github.com/agis/consultcal/internal/log"
	"github.com/agis/consultcal/internal/store"
	"github.com/agis/consultcal/internal/timeparse"
)

const refreshTimeout = 10 * time.Second

// Server answers layout queries from an in-memory snapshot of the store.
// The snapshot is replaced only when the store revision moves, so layouts
// computed for one revision are reused until the next write.
type Server struct {
	store store.Store
	loc   *time.Location
	mux   *http.ServeMux
	now   func() time.Time

	mu   sync.RWMutex
	snap *snapshot
}

// NewServer constructs a Server. loc decides which day is "today".
func NewServer(st store.Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		store: st,
		loc:   loc,
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/month", s.handleMonth)
	s.mux.HandleFunc("/api/day", s.handleDay)
	s.mux.HandleFunc("/api/tasks/unscheduled", s.handleUnscheduled)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
}

// Refresh reloads the task collection if the store revision changed since
// the last load. It reports whether a reload happened.
func (s *Server) Refresh(ctx context.Context) (bool, error) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		return false, fmt.Errorf("read revision: %w", err)
	}
	s.mu.RLock()
	cur := s.snap
	s.mu.RUnlock()
	if cur != nil && cur.revision == rev {
		return false, nil
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return false, fmt.Errorf("load tasks: %w", err)
	}
	next := newSnapshot(rev, tasks)
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	appLog.Info("snapshot reloaded", "revision", rev, "tasks", len(tasks))
	return true, nil
}

// Run serves on listen until ctx is canceled, refreshing the snapshot on
// the cron schedule spec (e.g. "@every 30s" or "*/5 * * * *").
func (s *Server) Run(ctx context.Context, listen, spec string) error {
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, s.scheduledRefresh); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	appLog.Info("http server listening", "listen", listen, "refresh", spec)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if _, err := s.Refresh(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}

// current returns the loaded snapshot, loading it on first use.
func (s *Server) current(ctx context.Context) (*snapshot, error) {
	s.mu.RLock()
	cur := s.snap
	s.mu.RUnlock()
	if cur != nil {
		return cur, nil
	}
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *Server) today() calendar.Date {
	return calendar.DateOf(s.now().In(s.loc))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type monthResponse struct {
	SchemaVersion string               `json:"schema_version"`
	Revision      int64                `json:"revision"`
	Layout        calendar.MonthLayout `json:"layout"`
	Warnings      []string             `json:"warnings"`
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	first, err := timeparse.ParseMonth(q.Get("month"), s.now(), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.current(r.Context())
	if err != nil {
		appLog.Error("month request failed", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	owner := strings.TrimSpace(q.Get("owner"))
	layout, warnings := snap.month(owner, calendar.DateOf(first), s.today())
	writeJSON(w, http.StatusOK, monthResponse{
		SchemaVersion: contract.SchemaVersion,
		Revision:      snap.revision,
		Layout:        layout,
		Warnings:      warnings,
	})
}

type dayResponse struct {
	SchemaVersion string             `json:"schema_version"`
	Revision      int64              `json:"revision"`
	Agenda        calendar.DayAgenda `json:"agenda"`
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	sel := q.Get("date")
	if sel == "" {
		sel = "today"
	}
	ts, err := timeparse.ParseDateTime(sel, s.now(), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.current(r.Context())
	if err != nil {
		appLog.Error("day request failed", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	proj := snap.projection(strings.TrimSpace(q.Get("owner")))
	writeJSON(w, http.StatusOK, dayResponse{
		SchemaVersion: contract.SchemaVersion,
		Revision:      snap.revision,
		Agenda:        proj.TasksForDate(calendar.DateOf(ts)),
	})
}

type unscheduledResponse struct {
	SchemaVersion string                `json:"schema_version"`
	Revision      int64                 `json:"revision"`
	Tasks         []contract.Task       `json:"tasks"`
	Diagnostics   []calendar.Diagnostic `json:"diagnostics"`
}

func (s *Server) handleUnscheduled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := s.current(r.Context())
	if err != nil {
		appLog.Error("unscheduled request failed", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	proj := snap.projection(strings.TrimSpace(r.URL.Query().Get("owner")))
	resp := unscheduledResponse{
		SchemaVersion: contract.SchemaVersion,
		Revision:      snap.revision,
		Tasks:         proj.Unscheduled(),
		Diagnostics:   proj.Diagnostics(),
	}
	if resp.Tasks == nil {
		resp.Tasks = []contract.Task{}
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []calendar.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reloaded, err := s.Refresh(r.Context())
	if err != nil {
		appLog.Error("manual refresh failed", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.mu.RLock()
	rev := s.snap.revision
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"revision": rev, "reloaded": reloaded})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
