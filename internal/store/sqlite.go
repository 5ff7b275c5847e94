package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// SQLiteRunStore implements RunStore on a SQLite database file.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (creating if needed) the run database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// SaveRun inserts run and its rounds in one transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	initiators, err := json.Marshal(nonNil(run.Initiators))
	if err != nil {
		return "", fmt.Errorf("failed to encode initiators: %w", err)
	}
	var params sql.NullString
	if len(run.Params) > 0 {
		params = sql.NullString{String: string(run.Params), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, graph_path, nodes, edges, seed, initiators, params,
		                  stopped, stop_reason, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.GraphPath, run.Nodes, run.Edges,
		strconv.FormatUint(run.Seed, 10), string(initiators), params,
		run.Stopped, run.StopReason, int64(run.Duration),
		run.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_rounds (run_id, round, new, died, recovered, waned,
		                        total_susceptible, total_infected, total_dead,
		                        total_recovered, total_sheltered, total_vaccinated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare round insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Rounds {
		_, err := stmt.ExecContext(ctx, run.ID, r.Round,
			r.Events.New, r.Events.Died, r.Events.Recovered, r.Events.Waned,
			r.Totals.Susceptible, r.Totals.Infected, r.Totals.Dead,
			r.Totals.Recovered, r.Totals.Sheltered, r.Totals.Vaccinated)
		if err != nil {
			return "", fmt.Errorf("failed to insert round %d: %w", r.Round, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, model, graph_path, nodes, edges, seed, initiators, params,
	stopped, stop_reason, duration_ns, created_at`

// GetRun retrieves a run and its rounds by id or unique id prefix.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, full)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round, new, died, recovered, waned,
		       total_susceptible, total_infected, total_dead,
		       total_recovered, total_sheltered, total_vaccinated
		FROM run_rounds WHERE run_id = ? ORDER BY round`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r engine.RoundStats
		var t graph.Counts
		if err := rows.Scan(&r.Round, &r.Events.New, &r.Events.Died, &r.Events.Recovered, &r.Events.Waned,
			&t.Susceptible, &t.Infected, &t.Dead, &t.Recovered, &t.Sheltered, &t.Vaccinated); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.Totals = t
		run.Rounds = append(run.Rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first, without rounds.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if filter.Model != "" {
		query += ` WHERE model = ?`
		args = append(args, filter.Model)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// DeleteRun removes a run; its rounds go with it via ON DELETE CASCADE.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, full); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// resolve expands an id prefix to a full id. Callers hold the lock.
func (s *SQLiteRunStore) resolve(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id = ? OR substr(id, 1, length(?)) = ? ORDER BY id = ? DESC LIMIT 2`, id, id, id, id)
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var got string
		if err := rows.Scan(&got); err != nil {
			return "", err
		}
		if got == id {
			return got, nil
		}
		ids = append(ids, got)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		graphPath  sql.NullString
		seed       string
		initiators string
		params     sql.NullString
		stopReason sql.NullString
		durationNS int64
		createdAt  string
	)
	err := row.Scan(&run.ID, &run.Model, &graphPath, &run.Nodes, &run.Edges, &seed,
		&initiators, &params, &run.Stopped, &stopReason, &durationNS, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.GraphPath = graphPath.String
	run.StopReason = stopReason.String
	run.Duration = time.Duration(durationNS)
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: bad seed %q: %w", run.ID, seed, err)
	}
	if err := json.Unmarshal([]byte(initiators), &run.Initiators); err != nil {
		return nil, fmt.Errorf("run %s: bad initiators: %w", run.ID, err)
	}
	if params.Valid {
		run.Params = json.RawMessage(params.String)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
