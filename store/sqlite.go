package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	taskstate "github.com/goliatone/go-taskstate"
)

// SQLiteStore is a durable twin of the in-memory store for applications
// that want task snapshots to survive a restart. The caller supplies the
// *sql.DB (and its driver); this package only issues portable SQL.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore builds a store over the given DB and table name.
func NewSQLiteStore(db *sql.DB, table string) *SQLiteStore {
	if table == "" {
		table = "tasks"
	}
	return &SQLiteStore{db: db, table: table}
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		task_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		failed_platform TEXT NOT NULL DEFAULT '',
		results TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, s.table)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not configured")
	}
	return s.ensureSchema(ctx)
}

// Create inserts a new record, enforcing the same id rules as the
// in-memory store.
func (s *SQLiteStore) Create(ctx context.Context, result *taskstate.TaskResult) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if result == nil {
		return storeError("task result cannot be nil", nil)
	}
	if result.TaskID == "" {
		return storeError("empty id", nil)
	}

	rec := result.Clone()
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}
	resultsJSON, err := marshalResults(rec.Results)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`INSERT INTO %s
		(task_id, status, message, error, failed_platform, results, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, q,
		rec.TaskID,
		string(rec.Status),
		rec.Message,
		rec.Error,
		rec.FailedPlatform,
		resultsJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return storeError("already exists", map[string]any{"task_id": rec.TaskID})
		}
		return err
	}
	return nil
}

// Get returns the record or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*taskstate.TaskResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, nil
	}

	q := fmt.Sprintf(`SELECT task_id, status, message, error, failed_platform, results, created_at, updated_at
		FROM %s WHERE task_id = ?`, s.table)
	rec, err := scanResult(s.db.QueryRowContext(ctx, q, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update replaces the whole record for an existing id.
func (s *SQLiteStore) Update(ctx context.Context, result *taskstate.TaskResult) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if result == nil {
		return storeError("task result cannot be nil", nil)
	}
	if result.TaskID == "" {
		return storeError("empty id", nil)
	}
	resultsJSON, err := marshalResults(result.Results)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`UPDATE %s SET status = ?, message = ?, error = ?, failed_platform = ?,
		results = ?, created_at = ?, updated_at = ? WHERE task_id = ?`, s.table)
	res, err := s.db.ExecContext(ctx, q,
		string(result.Status),
		result.Message,
		result.Error,
		result.FailedPlatform,
		resultsJSON,
		result.CreatedAt.Format(time.RFC3339Nano),
		result.UpdatedAt.Format(time.RFC3339Nano),
		result.TaskID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storeError("not found", map[string]any{"task_id": result.TaskID})
	}
	return nil
}

// Delete removes a record, reporting whether anything was removed.
func (s *SQLiteStore) Delete(ctx context.Context, taskID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if taskID == "" {
		return false, nil
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE task_id = ?`, s.table)
	res, err := s.db.ExecContext(ctx, q, taskID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Exists reports whether a record is present.
func (s *SQLiteStore) Exists(ctx context.Context, taskID string) (bool, error) {
	rec, err := s.Get(ctx, taskID)
	return rec != nil, err
}

// List returns records, optionally filtered to the given statuses.
func (s *SQLiteStore) List(ctx context.Context, statuses ...taskstate.State) ([]*taskstate.TaskResult, error) {
	where, args := statusClause(statuses)
	return s.query(ctx, where, args...)
}

// ListCreatedAfter returns records created strictly after cutoff.
func (s *SQLiteStore) ListCreatedAfter(ctx context.Context, cutoff time.Time) ([]*taskstate.TaskResult, error) {
	return s.query(ctx, "WHERE created_at > ?", cutoff.UTC().Format(time.RFC3339Nano))
}

// Count returns the number of records, optionally filtered by status.
func (s *SQLiteStore) Count(ctx context.Context, statuses ...taskstate.State) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	where, args := statusClause(statuses)
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.table, where)
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Cleanup removes records older than maxAge, optionally restricted by
// status.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration, statuses ...taskstate.State) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)

	where, args := statusClause(statuses)
	if where == "" {
		where = "WHERE created_at <= ?"
	} else {
		where += " AND created_at <= ?"
	}
	args = append(args, cutoff)

	q := fmt.Sprintf(`DELETE FROM %s %s`, s.table, where)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStore) query(ctx context.Context, where string, args ...any) ([]*taskstate.TaskResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT task_id, status, message, error, failed_platform, results, created_at, updated_at
		FROM %s %s`, s.table, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*taskstate.TaskResult
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func statusClause(statuses []taskstate.State) (string, []any) {
	if len(statuses) == 0 {
		return "", nil
	}
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		marks[i] = "?"
		args[i] = string(status)
	}
	return "WHERE status IN (" + strings.Join(marks, ", ") + ")", args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*taskstate.TaskResult, error) {
	var rec taskstate.TaskResult
	var status, resultsJSON, createdAt, updatedAt string
	if err := row.Scan(
		&rec.TaskID,
		&status,
		&rec.Message,
		&rec.Error,
		&rec.FailedPlatform,
		&resultsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = taskstate.State(status)
	if resultsJSON != "" {
		if err := json.Unmarshal([]byte(resultsJSON), &rec.Results); err != nil {
			return nil, err
		}
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func marshalResults(results map[string]taskstate.PlatformResult) (string, error) {
	if len(results) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
