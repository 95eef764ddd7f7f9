package logging

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
)

// #region log-trace
// LogTrace writes a trace entry to the trace_log table.
func LogTrace(db *sql.DB, entry TraceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO trace_log (run_id, phase, restart_idx, iteration, score, acceptance_rate, cipher_key, preview, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Phase,
		entry.Restart,
		entry.Iteration,
		entry.Score,
		entry.AcceptanceRate,
		nullIfEmpty(entry.Key),
		nullIfEmpty(entry.Preview),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log trace: %w", err)
	}
	return nil
}

// ListTrace returns the trace rows of a run in insertion order.
func ListTrace(db *sql.DB, runID string) ([]TraceEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, phase, restart_idx, iteration, score, acceptance_rate, cipher_key, preview, created_at
		 FROM trace_log WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trace: %w", err)
	}
	defer rows.Close()

	var out []TraceEntry
	for rows.Next() {
		var e TraceEntry
		var key, preview sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &e.Phase, &e.Restart, &e.Iteration, &e.Score,
			&e.AcceptanceRate, &key, &preview, &createdStr); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		e.Key = key.String
		e.Preview = preview.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion log-trace

// #region sink
// TraceSink persists sampler progress samples. Write failures are logged and
// the first one is kept for Err; they never interrupt sampling.
type TraceSink struct {
	db *sql.DB

	mu  sync.Mutex
	err error
}

// NewTraceSink returns a sink writing into db's trace_log table.
func NewTraceSink(db *sql.DB) *TraceSink {
	return &TraceSink{db: db}
}

// Trace records one progress sample for the given run and phase.
func (s *TraceSink) Trace(runID, phase string, p sampler.Progress) {
	err := LogTrace(s.db, TraceEntry{
		RunID:          runID,
		Phase:          phase,
		Restart:        p.Restart,
		Iteration:      p.Iteration,
		Score:          p.Score,
		AcceptanceRate: p.AcceptanceRate,
		Key:            p.Key,
		Preview:        p.Preview,
	})
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		log.Printf("[TRACE] %s/%s restart %d: %v", runID, phase, p.Restart, err)
	}
}

// Err returns the first write failure, if any.
func (s *TraceSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// #endregion sink

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
