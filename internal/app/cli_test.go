package app

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/store"
)

var testNow = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

// testDB returns a fresh database path inside an isolated HOME with
// "today" pinned to testNow.
func testDB(t *testing.T) string {
	t.Helper()
	tmp := chdirTemp(t)
	orig := nowFunc
	nowFunc = func() time.Time { return testNow }
	t.Cleanup(func() { nowFunc = orig })
	return filepath.Join(tmp, "tasks.db")
}

func runCLI(t *testing.T, db string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errb bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetArgs(append([]string{"--db", db, "--tz", "UTC"}, args...))
	err := cmd.Execute()
	return out.String(), errb.String(), err
}

// seed writes drafts straight through the store so command tests start
// from a known collection.
func seed(t *testing.T, db string, drafts ...contract.TaskDraft) []contract.Task {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	out := make([]contract.Task, 0, len(drafts))
	for _, d := range drafts {
		item, err := st.AddTask(context.Background(), d)
		if err != nil {
			t.Fatalf("seed %q: %v", d.Title, err)
		}
		out = append(out, *item)
	}
	return out
}

type envelope[T any] struct {
	Command  string         `json:"command"`
	Data     T              `json:"data"`
	Meta     map[string]any `json:"meta"`
	Warnings []string       `json:"warnings"`
}

func decodeEnvelope[T any](t *testing.T, raw string) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, raw)
	}
	return env
}

// stubStore fails every call with err, optionally after delay.
type stubStore struct {
	err    error
	delay  time.Duration
	checks []contract.DoctorCheck
}

func (s *stubStore) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return s.err
	}
	select {
	case <-time.After(s.delay):
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubStore) Doctor(ctx context.Context) ([]contract.DoctorCheck, error) {
	return s.checks, s.wait(ctx)
}

func (s *stubStore) ListTasks(ctx context.Context, _ store.TaskFilter) ([]contract.Task, error) {
	return nil, s.wait(ctx)
}

func (s *stubStore) GetTask(ctx context.Context, _ string) (*contract.Task, error) {
	return nil, s.wait(ctx)
}

func (s *stubStore) AddTask(ctx context.Context, _ contract.TaskDraft) (*contract.Task, error) {
	return nil, s.wait(ctx)
}

func (s *stubStore) UpdateTask(ctx context.Context, _ string, _ store.TaskUpdateInput) (*contract.Task, error) {
	return nil, s.wait(ctx)
}

func (s *stubStore) DeleteTask(ctx context.Context, _ string) error {
	return s.wait(ctx)
}

func (s *stubStore) Revision(ctx context.Context) (int64, error) {
	return 0, s.wait(ctx)
}

func (s *stubStore) Close() error { return nil }

func useStore(t *testing.T, st store.Store) {
	t.Helper()
	orig := storeFactory
	storeFactory = func(string) (store.Store, error) { return st, nil }
	t.Cleanup(func() { storeFactory = orig })
}
