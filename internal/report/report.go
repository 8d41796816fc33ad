// Package report renders and exports the outcome of a run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/me/emailflow/pkg/model"
)

// Report is the outcome of one run.
type Report struct {
	RunID        string         `json:"run_id"`
	Source       string         `json:"source,omitempty"`
	Strategy     string         `json:"strategy"`
	Workers      int            `json:"workers"`
	PeakInFlight int            `json:"peak_in_flight"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Summary      model.Summary  `json:"summary"`
	Results      []model.Result `json:"results"`
	Error        string         `json:"error,omitempty"`
}

// New builds a report from a dispatcher results map. Results are ordered by
// completion time, ties by task ID.
func New(runID string, startedAt, finishedAt time.Time, results map[string]model.Result) *Report {
	list := make([]model.Result, 0, len(results))
	for _, r := range results {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CompletedAt.Equal(list[j].CompletedAt) {
			return list[i].CompletedAt.Before(list[j].CompletedAt)
		}
		return list[i].TaskID < list[j].TaskID
	})
	return &Report{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Summary:    model.Summarize(results),
		Results:    list,
	}
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteText writes the per-task tally followed by the totals.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("Run %s: %d emails, %s strategy, %d workers, %s\n",
		r.RunID, r.Summary.Total, r.Strategy, r.Workers, r.Duration().Round(time.Millisecond))
	for _, res := range r.Results {
		status := "ok"
		if !res.Success {
			status = "FAILED"
		}
		line := fmt.Sprintf("  %-12s %-6s", res.TaskID, status)
		if res.MissedDeadline {
			line += " late"
		}
		if res.Err != "" {
			line += " (" + res.Err + ")"
		}
		ew.printf("%s\n", line)
	}

	ew.printf("\nSuccessfully processed: %d/%d emails\n", r.Summary.Succeeded, r.Summary.Total)
	if r.Summary.Late > 0 {
		ew.printf("Missed deadlines: %d\n", r.Summary.Late)
	}
	ew.printf("Success rate: %.1f%%\n", r.Summary.SuccessRate())
	if r.Error != "" {
		ew.printf("Run error: %s\n", r.Error)
	}
	return ew.err
}

// JSON returns the indented JSON form of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
