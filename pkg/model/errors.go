package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the sandbox mail API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrValidation = errors.New("invalid task set")
	ErrCycle      = errors.New("dependency cycle")
)

// ValidationError reports a malformed task set. It is fatal for a run.
type ValidationError struct {
	TaskID  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid task set: %s", e.Message)
	}
	return fmt.Sprintf("invalid task set: task %q: %s", e.TaskID, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CycleError is returned when the dependency relation is not acyclic.
// TaskIDs lists every task that could not be ordered, sorted.
type CycleError struct {
	TaskIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving tasks: %s", strings.Join(e.TaskIDs, ", "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// FetchError wraps a failure to retrieve the task batch.
type FetchError struct {
	Status int // HTTP status, 0 if the request never completed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch tasks: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch tasks: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GenerationError wraps a failure to produce a response body.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate response (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InvalidTransitionError is returned when a run state transition is invalid.
type InvalidTransitionError struct {
	ID   string
	From RunState
	To   RunState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition: %s → %s (run %s)", e.From, e.To, e.ID)
}
