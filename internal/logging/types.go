package logging

import "time"

// #region trace-entry
// TraceEntry is a single row in the trace_log table: one progress sample of
// one sampler restart.
type TraceEntry struct {
	RunID          string
	Phase          string // "full" | "locate" | "prefix" | "suffix"
	Restart        int
	Iteration      int
	Score          float64
	AcceptanceRate float64
	Key            string
	Preview        string
	CreatedAt      time.Time
}

// #endregion trace-entry
