package verdict

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/substitution-breaker/internal/gate"
	"github.com/danielpatrickdp/substitution-breaker/internal/orchestrator"
)

// #endregion imports

// #region types

// Verdict is the gate's judgement of one decoded segment of a run.
type Verdict struct {
	RunID         string
	Phase         string
	Action        string
	Reason        string
	Vetoes        []gate.VetoType
	SoftScore     float64
	LikelihoodGap float64
	Agreement     float64
	CreatedAt     time.Time
}

// FromDecision converts a gate decision for runID and phase.
func FromDecision(runID, phase string, d gate.GateDecision) Verdict {
	v := Verdict{
		RunID:         runID,
		Phase:         phase,
		Action:        d.Action,
		Reason:        d.Reason,
		SoftScore:     d.SoftScore,
		LikelihoodGap: d.LikelihoodGap,
		Agreement:     d.Agreement,
		CreatedAt:     time.Now().UTC(),
	}
	for _, s := range d.VetoSignals {
		v.Vetoes = append(v.Vetoes, s.Type)
	}
	return v
}

// #endregion types

// #region store

// Store persists gate verdicts in SQLite next to the runs they judge.
type Store struct {
	db *sql.DB
}

// NewStore creates the verdicts table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("verdict schema: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS verdicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL,
		vetoes TEXT NOT NULL,
		soft_score REAL NOT NULL,
		likelihood_gap REAL NOT NULL,
		agreement REAL NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id)`)
	return err
}

// Save stores one verdict.
func (s *Store) Save(v Verdict) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	vetoes := v.Vetoes
	if vetoes == nil {
		vetoes = []gate.VetoType{}
	}
	vetoJSON, err := json.Marshal(vetoes)
	if err != nil {
		return fmt.Errorf("marshal vetoes: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO verdicts (run_id, phase, action, reason, vetoes, soft_score, likelihood_gap, agreement, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.RunID, v.Phase, v.Action, v.Reason, string(vetoJSON),
		v.SoftScore, v.LikelihoodGap, v.Agreement, v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// SaveResult stores the verdict of every gated segment of res.
func (s *Store) SaveResult(res orchestrator.Result) error {
	for _, seg := range res.Segments {
		if seg.Verdict == nil {
			continue
		}
		if err := s.Save(FromDecision(res.RunID, string(seg.Phase), *seg.Verdict)); err != nil {
			return err
		}
	}
	return nil
}

// ForRun returns the verdicts of runID in insertion order.
func (s *Store) ForRun(runID string) ([]Verdict, error) {
	rows, err := s.db.Query(
		`SELECT run_id, phase, action, reason, vetoes, soft_score, likelihood_gap, agreement, created_at
		 FROM verdicts WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []Verdict
	for rows.Next() {
		var v Verdict
		var vetoJSON, createdAt string
		if err := rows.Scan(&v.RunID, &v.Phase, &v.Action, &v.Reason, &vetoJSON,
			&v.SoftScore, &v.LikelihoodGap, &v.Agreement, &createdAt); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		if err := json.Unmarshal([]byte(vetoJSON), &v.Vetoes); err != nil {
			return nil, fmt.Errorf("unmarshal vetoes: %w", err)
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Flagged returns the IDs of runs with at least one flagged segment, most
// recent first.
func (s *Store) Flagged(limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT run_id FROM verdicts WHERE action = 'flag'
		 GROUP BY run_id ORDER BY MAX(id) DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query flagged: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan flagged: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// #endregion store
