package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	ciphertext     TEXT NOT NULL,
	plaintext      TEXT NOT NULL,
	has_breakpoint INTEGER NOT NULL,
	breakpoint     INTEGER NOT NULL,
	score          REAL NOT NULL,
	seed           INTEGER NOT NULL,
	config_json    TEXT,
	elapsed_ms     INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS restarts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	phase        TEXT NOT NULL,
	restart_idx  INTEGER NOT NULL,
	seed         INTEGER NOT NULL,
	final_key    TEXT NOT NULL,
	final_score  REAL NOT NULL,
	key          TEXT NOT NULL,
	score        REAL NOT NULL,
	iterations   INTEGER NOT NULL,
	accepted     INTEGER NOT NULL,
	converged    INTEGER NOT NULL,
	winner       INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_restarts_run ON restarts(run_id, phase, restart_idx);

CREATE TABLE IF NOT EXISTS trace_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	phase           TEXT NOT NULL,
	restart_idx     INTEGER NOT NULL,
	iteration       INTEGER NOT NULL,
	score           REAL NOT NULL,
	acceptance_rate REAL NOT NULL,
	cipher_key      TEXT,
	preview         TEXT,
	created_at      TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store persists decode runs in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. The handle is
// limited to one connection so writers from concurrent restarts and
// requests queue instead of failing with SQLITE_BUSY.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save-run
// SaveRun inserts a run and its restarts in one transaction. A missing RunID
// or CreatedAt is filled in; the stored RunID is returned.
func (s *Store) SaveRun(rec RunRecord) (string, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, ciphertext, plaintext, has_breakpoint, breakpoint, score, seed, config_json, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Ciphertext, rec.Plaintext, boolInt(rec.HasBreakpoint), rec.Breakpoint,
		rec.Score, int64(rec.Seed), nullIfEmpty(rec.ConfigJSON), rec.ElapsedMS,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, r := range rec.Restarts {
		_, err = tx.Exec(
			`INSERT INTO restarts (run_id, phase, restart_idx, seed, final_key, final_score, key, score, iterations, accepted, converged, winner)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, string(r.Phase), r.Index, int64(r.Seed), r.FinalKey, r.FinalScore,
			r.Key, r.Score, r.Iterations, r.Accepted, boolInt(r.Converged), boolInt(r.Winner),
		)
		if err != nil {
			return "", fmt.Errorf("insert restart %s/%d: %w", r.Phase, r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.RunID, nil
}

// #endregion save-run

// #region get-run
const runColumns = `run_id, ciphertext, plaintext, has_breakpoint, breakpoint, score, seed, config_json, elapsed_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var hasBP int
	var seed int64
	var configJSON sql.NullString
	var createdStr string
	if err := row.Scan(&rec.RunID, &rec.Ciphertext, &rec.Plaintext, &hasBP, &rec.Breakpoint,
		&rec.Score, &seed, &configJSON, &rec.ElapsedMS, &createdStr); err != nil {
		return RunRecord{}, err
	}
	rec.HasBreakpoint = hasBP != 0
	rec.Seed = uint64(seed)
	if configJSON.Valid {
		rec.ConfigJSON = configJSON.String
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// GetRun retrieves a run and its restarts by ID.
func (s *Store) GetRun(id string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}

	rows, err := s.db.Query(
		`SELECT phase, restart_idx, seed, final_key, final_score, key, score, iterations, accepted, converged, winner
		 FROM restarts WHERE run_id = ? ORDER BY id ASC`, id,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("list restarts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r RestartRecord
		var phase string
		var seed int64
		var converged, winner int
		if err := rows.Scan(&phase, &r.Index, &seed, &r.FinalKey, &r.FinalScore, &r.Key, &r.Score,
			&r.Iterations, &r.Accepted, &converged, &winner); err != nil {
			return RunRecord{}, fmt.Errorf("scan restart: %w", err)
		}
		r.Phase = Phase(phase)
		r.Seed = uint64(seed)
		r.Converged = converged != 0
		r.Winner = winner != 0
		rec.Restarts = append(rec.Restarts, r)
	}
	return rec, rows.Err()
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first, without restarts.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteRun removes a run together with its restarts and trace rows.
func (s *Store) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM restarts WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete restarts: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	if _, err := tx.Exec(`DELETE FROM trace_log WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete trace: %w", err)
	}
	return tx.Commit()
}

// #endregion list-runs

// #region helpers
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
