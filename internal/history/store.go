// Package history keeps an audit trail of probe outcomes in SQLite or
// Postgres. It is write-mostly: nothing in the validator reads it back, so a
// stored result never short-circuits a fresh probe.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"

	"github.com/ferro-labs/plugin-filter/internal/validator"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Entry is one stored outcome.
type Entry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Version    string    `json:"version,omitempty"`
	Valid      bool      `json:"valid"`
	Reason     string    `json:"reason,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Query filters List results. A zero Limit means 50.
type Query struct {
	Limit  int
	Offset int
	RunID  string
	Valid  *bool
}

// ListResult is a page of entries plus the total matching count.
type ListResult struct {
	Data  []Entry `json:"data"`
	Total int     `json:"total"`
}

// Writer persists the outcomes of one run.
type Writer interface {
	Write(ctx context.Context, runID string, outcomes []validator.Outcome) error
}

// Reader lists stored outcomes.
type Reader interface {
	List(ctx context.Context, q Query) (ListResult, error)
}

// NoopWriter ignores all writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ string, _ []validator.Outcome) error { return nil }

// SQLStore persists outcomes to SQLite/Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// Open picks the backend by driver name; an empty driver means SQLite.
func Open(driver, dsn string) (*SQLStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return NewSQLiteStore(dsn)
	case DriverPostgres:
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}
}

// NewSQLiteStore opens (and creates if needed) a SQLite history database.
// dsn can be a file path or a SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "pluginfilter-history.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history store: %w", err)
	}
	s := &SQLStore{db: db, dialect: DriverSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres history database.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres history store: %w", err)
	}
	s := &SQLStore{db: db, dialect: DriverPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s history store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS probe_results (
	id INTEGER PRIMARY KEY,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	version TEXT,
	valid BOOLEAN NOT NULL,
	reason TEXT,
	status_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_probe_results_run_id ON probe_results(run_id);`

	if s.dialect == DriverPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS probe_results (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	version TEXT,
	valid BOOLEAN NOT NULL,
	reason TEXT,
	status_code INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_probe_results_run_id ON probe_results(run_id);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize history schema: %w", err)
	}
	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the dialect.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Write stores every outcome of a run in one transaction.
func (s *SQLStore) Write(ctx context.Context, runID string, outcomes []validator.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cols := make([]string, 9)
	for i := range cols {
		cols[i] = s.placeholder(i + 1)
	}
	query := `INSERT INTO probe_results(run_id, name, url, version, valid, reason, status_code, duration_ms, created_at)
	VALUES(` + strings.Join(cols, ", ") + `)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare history write: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, o := range outcomes {
		_, err := stmt.ExecContext(ctx,
			runID,
			o.Record.Name,
			o.Record.URL,
			o.Record.Version,
			o.Valid,
			o.Reason,
			o.StatusCode,
			o.Duration.Milliseconds(),
			now,
		)
		if err != nil {
			return fmt.Errorf("write history entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history write: %w", err)
	}
	return nil
}

// List returns stored outcomes, newest first.
func (s *SQLStore) List(ctx context.Context, q Query) (ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var where []string
	var args []interface{}
	if q.RunID != "" {
		args = append(args, q.RunID)
		where = append(where, "run_id = "+s.placeholder(len(args)))
	}
	if q.Valid != nil {
		args = append(args, *q.Valid)
		where = append(where, "valid = "+s.placeholder(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM probe_results"+clause, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count history entries: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), q.Limit, q.Offset)
	query := `SELECT id, run_id, name, url, COALESCE(version, ''), valid, COALESCE(reason, ''), status_code, duration_ms, created_at
	FROM probe_results` + clause + ` ORDER BY id DESC LIMIT ` + s.placeholder(len(args)+1) + ` OFFSET ` + s.placeholder(len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list history entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := ListResult{Data: []Entry{}, Total: total}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Name, &e.URL, &e.Version, &e.Valid, &e.Reason, &e.StatusCode, &e.DurationMS, &e.CreatedAt); err != nil {
			return ListResult{}, fmt.Errorf("scan history entry: %w", err)
		}
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate history entries: %w", err)
	}
	return result, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
