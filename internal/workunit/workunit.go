// Package workunit turns one task into a sent reply: it generates the
// response text and submits it, flagging late execution.
package workunit

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/emailflow/internal/responder"
	"github.com/me/emailflow/internal/scheduler"
	"github.com/me/emailflow/pkg/model"
)

// Submitter delivers a reply. Failures are reported as false, never as
// errors, so the caller can always mark the task terminal.
type Submitter interface {
	SubmitResult(ctx context.Context, taskID, text string) bool
}

// Unit processes tasks with a Generator and a Submitter.
type Unit struct {
	generator responder.Generator
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Unit. now may be nil to use time.Now.
func New(gen responder.Generator, sub Submitter, logger *slog.Logger, now func() time.Time) *Unit {
	if now == nil {
		now = time.Now
	}
	return &Unit{
		generator: gen,
		submitter: sub,
		logger:    logger.With("component", "workunit"),
		now:       now,
	}
}

// Process generates and submits the reply for task. A task past its
// deadline is still processed, since its dependents wait for it; the miss
// is only reported in the outcome.
func (u *Unit) Process(ctx context.Context, task model.Task) scheduler.Outcome {
	now := u.now()
	elapsed := task.Elapsed(now)
	missed := task.Late(now)
	if missed {
		u.logger.Warn("deadline missed, processing anyway",
			"task_id", task.ID,
			"elapsed", elapsed.Round(time.Millisecond),
			"deadline", task.Deadline)
	}

	text, err := u.generator.Generate(ctx, task.Subject, task.Body)
	if err != nil {
		u.logger.Error("generate response", "task_id", task.ID, "error", err)
		return scheduler.Outcome{MissedDeadline: missed, Err: err}
	}

	if !u.submitter.SubmitResult(ctx, task.ID, text) {
		u.logger.Info("failed to process email", "task_id", task.ID)
		return scheduler.Outcome{MissedDeadline: missed}
	}

	status := "on-time"
	if missed {
		status = "late"
	}
	u.logger.Info("completed email", "task_id", task.ID, "status", status)
	return scheduler.Outcome{Success: true, MissedDeadline: missed}
}

// Func adapts Process to a scheduler.WorkFunc.
func (u *Unit) Func() scheduler.WorkFunc {
	return u.Process
}
