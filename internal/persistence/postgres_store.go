package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/relay/pkg/api"
)

// PostgresRunStore is a RunStore backed by PostgreSQL.
//
// Like the SQLite store it expects a caller-provided *sql.DB; the Postgres
// driver import is the caller's concern. The pending counter update takes a
// row-level lock (SELECT ... FOR UPDATE) for the duration of the
// read-modify-write, so two workers completing nodes of the same run can
// never interleave their counter updates.
type PostgresRunStore struct {
	db *sql.DB
}

var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema and returns a new
// PostgresRunStore.
func NewPostgresRunStore(db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) initSchema() error {
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
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL DEFAULT 0
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

func (s *PostgresRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	var finished int64
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, automation_id, version, subject_type, subject_id, status, pending, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
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

func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, automation_id, version, subject_type, subject_id, status, pending, error, started_at, finished_at
		FROM runs
		WHERE id = $1`,
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

func (s *PostgresRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, automation_id, version, subject_type, subject_id, status, pending, error, started_at, finished_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.AutomationID != "" {
		args = append(args, filter.AutomationID)
		clauses = append(clauses, "automation_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
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

func (s *PostgresRunStore) AdvancePending(ctx context.Context, runID string, added int) (int, api.Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var pending int
	var statusStr string
	row := tx.QueryRowContext(ctx, `
		SELECT pending, status FROM runs WHERE id = $1 FOR UPDATE`, runID)
	if err := row.Scan(&pending, &statusStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", ErrRunNotFound
		}
		return 0, "", err
	}
	status := api.Status(statusStr)

	if status.Terminal() {
		if err := tx.Commit(); err != nil {
			return 0, "", err
		}
		return pending, status, nil
	}

	pending = pending - 1 + added
	if pending < 0 {
		return pending, status, ErrPendingUnderflow
	}

	var finished int64
	if pending == 0 {
		status = api.StatusCompleted
		finished = time.Now().UnixNano()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE runs SET pending = $1, status = $2,
			finished_at = CASE WHEN $3 > 0 THEN $3 ELSE finished_at END
		WHERE id = $4`,
		pending, string(status), finished, runID,
	); err != nil {
		return 0, "", err
	}

	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	return pending, status, nil
}

func (s *PostgresRunStore) FailRun(ctx context.Context, runID string, cause string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = $1, error = $2, finished_at = $3
		WHERE id = $4 AND status = $5`,
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
		var one int
		row := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = $1`, runID)
		if err := row.Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRunNotFound
			}
			return err
		}
	}
	return nil
}

func (s *PostgresRunStore) FailAllRunning(ctx context.Context, cause string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = $1, error = $2, finished_at = $3
		WHERE status = $4`,
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

func (s *PostgresRunStore) MarkScheduled(ctx context.Context, runID, nodeID, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_markers (run_id, node_id, dedupe_key)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
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
