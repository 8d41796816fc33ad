package model

import (
	"time"
)

// Task is one email that needs a reply. It is created once when the batch is
// fetched and never mutated afterwards.
type Task struct {
	ID      string `json:"email_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// Deadline is relative to FetchTime.
	Deadline     time.Duration `json:"deadline"`
	Dependencies []string      `json:"dependencies,omitempty"`
	FetchTime    time.Time     `json:"fetch_time"`
}

// Elapsed returns how long ago the task was fetched, as seen at now.
func (t *Task) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.FetchTime)
}

// Late reports whether a reply sent at now misses the deadline.
// Meeting the deadline exactly counts as late.
func (t *Task) Late(now time.Time) bool {
	return t.Elapsed(now) >= t.Deadline
}

// Result is the terminal record of one task. Exactly one exists per task
// once a run finishes.
type Result struct {
	TaskID         string    `json:"email_id"`
	Success        bool      `json:"success"`
	MissedDeadline bool      `json:"missed_deadline"`
	Err            string    `json:"error,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Summary is the pass/fail tally of a finished run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Late      int `json:"late"`
}

// Summarize tallies a results map.
func Summarize(results map[string]Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if r.MissedDeadline {
			s.Late++
		}
	}
	return s
}

// AllSucceeded returns true if every task succeeded. An empty run counts as
// success.
func (s Summary) AllSucceeded() bool {
	return s.Failed == 0 && s.Succeeded == s.Total
}

// SuccessRate returns the succeeded share in percent.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}
