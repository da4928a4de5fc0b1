package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agis/consultcal/internal/contract"
)

const taskColumns = `id, title, client_name, description, owner_id, exact_date, start_date, end_date,
	start_time, end_time, period_kind, time_slot, series_id, created_at, updated_at`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		owner_id    TEXT NOT NULL DEFAULT '',
		exact_date  TEXT NOT NULL DEFAULT '',
		start_date  TEXT NOT NULL DEFAULT '',
		end_date    TEXT NOT NULL DEFAULT '',
		start_time  TEXT NOT NULL DEFAULT '',
		end_time    TEXT NOT NULL DEFAULT '',
		period_kind TEXT NOT NULL DEFAULT '',
		time_slot   TEXT NOT NULL DEFAULT '',
		series_id   TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_owner_idx ON tasks (owner_id)`,
	`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value INTEGER NOT NULL)`,
	`INSERT OR IGNORE INTO meta (key, value) VALUES ('revision', 0)`,
}

// SQLiteStore keeps tasks in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Doctor(ctx context.Context) ([]contract.DoctorCheck, error) {
	checks := make([]contract.DoctorCheck, 0, 3)
	if err := s.db.PingContext(ctx); err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "database", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "database", Status: "ok", Message: s.path})

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "schema", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "schema", Status: "ok", Message: fmt.Sprintf("%d tasks", n)})

	rev, err := s.Revision(ctx)
	if err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "revision", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "revision", Status: "ok", Message: fmt.Sprintf("revision %d", rev)})
	return checks, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, f TaskFilter) ([]contract.Task, error) {
	q, args := buildListTasksQuery(f)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]contract.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// likeEscaper makes --query match % and _ literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func buildListTasksQuery(f TaskFilter) (string, []any) {
	var where []string
	var args []any
	if v := strings.TrimSpace(f.OwnerID); v != "" {
		where = append(where, "owner_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.SeriesID); v != "" {
		where = append(where, "series_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.Query); v != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(client_name) LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	q := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return q, args
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*contract.Task, error) {
	t, err := getTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q rowQuerier, id string) (contract.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

func (s *SQLiteStore) AddTask(ctx context.Context, in contract.TaskDraft) (*contract.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("title is required")
	}
	now := s.now().UTC()
	t := contract.Task{ID: uuid.NewString(), TaskDraft: in, CreatedAt: now, UpdatedAt: now}
	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.ClientName, t.Description, t.OwnerID, t.ExactDate, t.StartDate, t.EndDate,
			t.StartTime, t.EndTime, t.PeriodKind, t.TimeSlot, t.SeriesID, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask reads and rewrites the row inside one write transaction so
// concurrent updates to the same task do not overwrite each other.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, in TaskUpdateInput) (*contract.Task, error) {
	var cur contract.Task
	err := s.write(ctx, func(tx *sql.Tx) error {
		var err error
		if cur, err = getTask(ctx, tx, id); err != nil {
			return err
		}
		applyUpdate(&cur.TaskDraft, in)
		if strings.TrimSpace(cur.Title) == "" {
			return errors.New("title is required")
		}
		cur.UpdatedAt = s.now().UTC()
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET title = ?, client_name = ?, description = ?, owner_id = ?,
			exact_date = ?, start_date = ?, end_date = ?, start_time = ?, end_time = ?, period_kind = ?, time_slot = ?,
			updated_at = ? WHERE id = ?`,
			cur.Title, cur.ClientName, cur.Description, cur.OwnerID, cur.ExactDate, cur.StartDate, cur.EndDate,
			cur.StartTime, cur.EndTime, cur.PeriodKind, cur.TimeSlot, formatTime(cur.UpdatedAt), id)
		if err != nil {
			return err
		}
		return expectOneRow(res, id)
	})
	if err != nil {
		return nil, err
	}
	return &cur, nil
}

func applyUpdate(dst *contract.TaskDraft, in TaskUpdateInput) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&dst.Title, in.Title)
	set(&dst.ClientName, in.ClientName)
	set(&dst.Description, in.Description)
	set(&dst.OwnerID, in.OwnerID)
	set(&dst.ExactDate, in.ExactDate)
	set(&dst.StartDate, in.StartDate)
	set(&dst.EndDate, in.EndDate)
	set(&dst.StartTime, in.StartTime)
	set(&dst.EndTime, in.EndTime)
	set(&dst.PeriodKind, in.PeriodKind)
	set(&dst.TimeSlot, in.TimeSlot)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectOneRow(res, id)
	})
}

func (s *SQLiteStore) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'revision'`).Scan(&rev)
	return rev, err
}

// write runs fn and bumps the revision in the same transaction.
func (s *SQLiteStore) write(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = value + 1 WHERE key = 'revision'`); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (contract.Task, error) {
	var t contract.Task
	var created, updated string
	err := r.Scan(&t.ID, &t.Title, &t.ClientName, &t.Description, &t.OwnerID, &t.ExactDate, &t.StartDate, &t.EndDate,
		&t.StartTime, &t.EndTime, &t.PeriodKind, &t.TimeSlot, &t.SeriesID, &created, &updated)
	if err != nil {
		return contract.Task{}, err
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// storedTimeLayout is fixed width so created_at sorts chronologically as
// text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
