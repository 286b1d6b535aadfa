package models

import "time"

// Outcome classifies how one (instrument, source) pair fared in a cycle.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
	OutcomeSkipped Outcome = "skipped" // lease held elsewhere
)

// PairOutcome is the structured result for one (instrument, source) unit
// of work within a cycle. Failures are carried here rather than raised,
// so sibling pairs are never aborted.
type PairOutcome struct {
	Symbol       string        `json:"symbol"`
	Source       string        `json:"source"`
	Outcome      Outcome       `json:"outcome"`
	RowsFetched  int           `json:"rows_fetched"`
	RowsAppended int           `json:"rows_appended"`
	FeatureRows  int           `json:"feature_rows"`
	FailedPoints []FailedPoint `json:"failed_points,omitempty"`
	Signal       *Signal       `json:"signal,omitempty"`
	Duration     time.Duration `json:"duration_ms"`
	Error        string        `json:"error,omitempty"`
}

// CycleReport is the structured outcome of one RunCycle invocation.
// A partially successful cycle is the expected, reported state.
type CycleReport struct {
	AsOf     time.Time     `json:"as_of"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ms"`
	Pairs    []PairOutcome `json:"pairs"`
}

// Succeeded counts pairs that completed their cycle.
func (r *CycleReport) Succeeded() int {
	n := 0
	for _, p := range r.Pairs {
		if p.Outcome == OutcomeOK {
			n++
		}
	}
	return n
}

// Failed counts pairs that reported a failure or timeout.
func (r *CycleReport) Failed() int {
	n := 0
	for _, p := range r.Pairs {
		if p.Outcome == OutcomeFailed || p.Outcome == OutcomeTimeout {
			n++
		}
	}
	return n
}
