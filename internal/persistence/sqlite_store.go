package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/relay/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// The pending counter update runs inside one transaction; SQLite's
// single-writer model makes the read-modify-write indivisible with respect
// to other completions of the same run.
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given database
// and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			automation_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			subject_type TEXT NOT NULL DEFAULT '',
			subject_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			pending INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS run_markers (
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			dedupe_key TEXT NOT NULL,
			PRIMARY KEY (run_id, node_id, dedupe_key)
		);`,
	)
	return err
}

func (s *SQLiteRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	var finished int64
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, automation_id, version, subject_type, subject_id, status, pending, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.AutomationID,
		run.Version,
		run.SubjectType,
		run.SubjectID,
		string(run.Status),
		run.Pending,
		run.Error,
		run.StartedAt.UnixNano(),
		finished,
	)
	return err
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, automation_id, version, subject_type, subject_id, status, pending, error, started_at, finished_at
		FROM runs
		WHERE id = ?`,
		id,
	)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, automation_id, version, subject_type, subject_id, status, pending, error, started_at, finished_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.AutomationID != "" {
		clauses = append(clauses, "automation_id = ?")
		args = append(args, filter.AutomationID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteRunStore) AdvancePending(ctx context.Context, runID string, added int) (int, api.Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// The guarded UPDATE is the atomic unit: it only touches running runs,
	// so a run finalized by a concurrent fatal failure stays untouched.
	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET pending = pending - 1 + ? WHERE id = ? AND status = ?`,
		added, runID, string(api.StatusRunning),
	)
	if err != nil {
		return 0, "", err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, "", err
	}

	var pending int
	var statusStr string
	row := tx.QueryRowContext(ctx, `SELECT pending, status FROM runs WHERE id = ?`, runID)
	if err := row.Scan(&pending, &statusStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", ErrRunNotFound
		}
		return 0, "", err
	}
	status := api.Status(statusStr)

	if affected == 0 {
		// Terminal run: report as-is.
		if err := tx.Commit(); err != nil {
			return 0, "", err
		}
		return pending, status, nil
	}

	if pending < 0 {
		return pending, status, ErrPendingUnderflow
	}

	if pending == 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
			string(api.StatusCompleted), time.Now().UnixNano(), runID, string(api.StatusRunning),
		); err != nil {
			return 0, "", err
		}
		status = api.StatusCompleted
	}

	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	return pending, status, nil
}

func (s *SQLiteRunStore) FailRun(ctx context.Context, runID string, cause string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(api.StatusFailed), cause, time.Now().UnixNano(), runID, string(api.StatusRunning),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the run does not exist or it is already terminal.
		var one int
		row := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID)
		if err := row.Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRunNotFound
			}
			return err
		}
	}
	return nil
}

func (s *SQLiteRunStore) FailAllRunning(ctx context.Context, cause string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?`,
		string(api.StatusFailed), cause, time.Now().UnixNano(), string(api.StatusRunning),
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteRunStore) MarkScheduled(ctx context.Context, runID, nodeID, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO run_markers (run_id, node_id, dedupe_key)
		VALUES (?, ?, ?)`,
		runID, nodeID, key,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func scanRun(scan func(dest ...any) error) (*api.Run, error) {
	var run api.Run
	var statusStr string
	var started, finished int64

	if err := scan(
		&run.ID,
		&run.AutomationID,
		&run.Version,
		&run.SubjectType,
		&run.SubjectID,
		&statusStr,
		&run.Pending,
		&run.Error,
		&started,
		&finished,
	); err != nil {
		return nil, err
	}

	run.Status = api.Status(statusStr)
	run.StartedAt = time.Unix(0, started)
	if finished != 0 {
		run.FinishedAt = time.Unix(0, finished)
	}
	return &run, nil
}
