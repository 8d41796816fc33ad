package model

import "time"

// Run is the ledger entry for one scheduling run.
type Run struct {
	ID         string     `json:"id"`
	State      RunState   `json:"state"`
	Source     string     `json:"source"` // base URL or task file the tasks came from
	TestMode   bool       `json:"test_mode"`
	Strategy   string     `json:"strategy"`
	Workers    int        `json:"workers"`
	Summary    Summary    `json:"summary"`
	Error      string     `json:"error,omitempty"`
	Report     string     `json:"report,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
