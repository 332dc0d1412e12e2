package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusStopped  = "stopped"
	StatusFailed   = "failed"
)

// Run is one averaging run.
type Run struct {
	RunID               string  `json:"run_id"`
	Status              string  `json:"status"`
	Source              string  `json:"source"`
	Oversampling        float64 `json:"oversampling"`
	Iterations          int     `json:"iterations"`
	Groups              int     `json:"groups"`
	Localizations       int     `json:"localizations"`
	Workers             int     `json:"workers"`
	Radius              float64 `json:"radius"`
	IterationsCompleted int     `json:"iterations_completed"`
	Warnings            int     `json:"warnings"`
	Failures            int     `json:"failures"`
	DroppedSnapshots    int     `json:"dropped_snapshots"`
	Error               string  `json:"error,omitempty"`
	StartedAt           int64   `json:"started_at"`
	FinishedAt          *int64  `json:"finished_at,omitempty"`
}

// Iteration is one completed iteration of a run.
type Iteration struct {
	RunID           string        `json:"run_id"`
	Iteration       int           `json:"iteration"`
	GroupsCompleted int           `json:"groups_completed"`
	Warnings        int           `json:"warnings"`
	Failures        int           `json:"failures"`
	Duration        time.Duration `json:"duration_ns"`
	// Spread is the RMS distance of the localizations from their mean.
	Spread    float64 `json:"spread"`
	CreatedAt int64   `json:"created_at"`
}

// GroupEvent is a group warning or failure.
type GroupEvent struct {
	EventID   int64  `json:"event_id"`
	RunID     string `json:"run_id"`
	Iteration int    `json:"iteration"`
	GroupID   int    `json:"group_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
}

// Store persists run history.
type Store struct {
	db         *sql.DB
	path       string
	migrations fs.FS
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	// One connection keeps the per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, migrations: MigrationsFS()}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	diagf("opened %s", path)
	return s, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// retryOnBusy retries fn while sqlite reports the database as busy.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	opsf("giving up after busy retries: %v", err)
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// InsertRun records the start of a run. StartedAt defaults to now.
func (s *Store) InsertRun(r *Run) error {
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixNano()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO average_runs (
				run_id, status, source, oversampling, iterations, groups,
				localizations, workers, radius, started_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Status, r.Source, r.Oversampling, r.Iterations, r.Groups,
			r.Localizations, r.Workers, r.Radius, r.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// FinishRun records the end state of a run.
func (s *Store) FinishRun(r *Run) error {
	if r.FinishedAt == nil {
		now := time.Now().UnixNano()
		r.FinishedAt = &now
	}
	var errMsg interface{}
	if r.Error != "" {
		errMsg = r.Error
	}
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE average_runs
			SET status = ?, iterations_completed = ?, warnings = ?, failures = ?,
			    dropped_snapshots = ?, error = ?, finished_at = ?
			WHERE run_id = ?`,
			r.Status, r.IterationsCompleted, r.Warnings, r.Failures,
			r.DroppedSnapshots, errMsg, *r.FinishedAt, r.RunID,
		)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, r.RunID)
		}
		return nil
	})
}

// InsertIteration records a completed iteration.
func (s *Store) InsertIteration(it *Iteration) error {
	if it.CreatedAt == 0 {
		it.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO average_iterations (
				run_id, iteration, groups_completed, warnings, failures,
				duration_ns, spread, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.RunID, it.Iteration, it.GroupsCompleted, it.Warnings, it.Failures,
			int64(it.Duration), it.Spread, it.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert iteration: %w", err)
		}
		return nil
	})
}

// InsertGroupEvent records a group warning or failure.
func (s *Store) InsertGroupEvent(ev *GroupEvent) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			INSERT INTO average_group_events (
				run_id, iteration, group_id, kind, message, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			ev.RunID, ev.Iteration, ev.GroupID, ev.Kind, ev.Message, ev.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert group event: %w", err)
		}
		ev.EventID, err = res.LastInsertId()
		return err
	})
}

const runColumns = `run_id, status, source, oversampling, iterations, groups,
	localizations, workers, radius, iterations_completed, warnings, failures,
	dropped_snapshots, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var errMsg sql.NullString
	var finished sql.NullInt64
	err := row.Scan(
		&r.RunID, &r.Status, &r.Source, &r.Oversampling, &r.Iterations, &r.Groups,
		&r.Localizations, &r.Workers, &r.Radius, &r.IterationsCompleted, &r.Warnings, &r.Failures,
		&r.DroppedSnapshots, &errMsg, &r.StartedAt, &finished,
	)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if finished.Valid {
		v := finished.Int64
		r.FinishedAt = &v
	}
	return &r, nil
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM average_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM average_runs ORDER BY started_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListIterations returns the iterations of a run in order.
func (s *Store) ListIterations(runID string) ([]*Iteration, error) {
	rows, err := s.db.Query(`
		SELECT run_id, iteration, groups_completed, warnings, failures,
		       duration_ns, spread, created_at
		FROM average_iterations
		WHERE run_id = ?
		ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()

	var out []*Iteration
	for rows.Next() {
		var it Iteration
		var dur int64
		if err := rows.Scan(&it.RunID, &it.Iteration, &it.GroupsCompleted, &it.Warnings,
			&it.Failures, &dur, &it.Spread, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan iteration row: %w", err)
		}
		it.Duration = time.Duration(dur)
		out = append(out, &it)
	}
	return out, rows.Err()
}

// ListGroupEvents returns the group events of a run in insertion order.
func (s *Store) ListGroupEvents(runID string) ([]*GroupEvent, error) {
	rows, err := s.db.Query(`
		SELECT event_id, run_id, iteration, group_id, kind, message, created_at
		FROM average_group_events
		WHERE run_id = ?
		ORDER BY event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query group events: %w", err)
	}
	defer rows.Close()

	var out []*GroupEvent
	for rows.Next() {
		var ev GroupEvent
		if err := rows.Scan(&ev.EventID, &ev.RunID, &ev.Iteration, &ev.GroupID,
			&ev.Kind, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group event row: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything recorded for it.
func (s *Store) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		for _, q := range []string{
			`DELETE FROM average_group_events WHERE run_id = ?`,
			`DELETE FROM average_iterations WHERE run_id = ?`,
		} {
			if _, err := tx.Exec(q, runID); err != nil {
				return fmt.Errorf("delete run children: %w", err)
			}
		}
		res, err := tx.Exec(`DELETE FROM average_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return tx.Commit()
	})
}
