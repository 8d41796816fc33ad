package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrCodeUnauthorized, Message: "missing api_key"}
	want := "UNAUTHORIZED: missing api_key"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationError_Is(t *testing.T) {
	err := fmt.Errorf("build: %w", &ValidationError{TaskID: "a", Message: "duplicate id"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("errors.Is(%v, ErrValidation) = false", err)
	}
	if errors.Is(err, ErrCycle) {
		t.Errorf("errors.Is(%v, ErrCycle) = true", err)
	}
	want := `build: invalid task set: task "a": duplicate id`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCycleError(t *testing.T) {
	var err error = &CycleError{TaskIDs: []string{"a", "b"}}
	if !errors.Is(err, ErrCycle) {
		t.Error("CycleError should match ErrCycle")
	}
	var ce *CycleError
	if !errors.As(fmt.Errorf("wrap: %w", err), &ce) {
		t.Fatal("errors.As failed")
	}
	if got := ce.Error(); got != "dependency cycle involving tasks: a, b" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &FetchError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("FetchError should unwrap to inner error")
	}
	withStatus := &FetchError{Status: 403, Err: inner}
	if got := withStatus.Error(); got != "fetch tasks: status 403: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestGenerationError_Unwrap(t *testing.T) {
	inner := errors.New("quota exceeded")
	err := &GenerationError{Provider: "openai", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("GenerationError should unwrap to inner error")
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{ID: "run_1", From: RunStateCompleted, To: RunStateRunning}
	want := "invalid run state transition: COMPLETED → RUNNING (run run_1)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
