package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// State is a position in the run state machine.
type State string

// States, in the order a successful run visits them.
const (
	StateIdle                 State = "idle"
	StateFetching             State = "fetching"
	StateExtracting           State = "extracting"
	StateFactMatching         State = "fact-matching"
	StateComposing            State = "composing"
	StateResolvingAttachments State = "resolving-attachments"
	StatePackaging            State = "packaging"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// Code classifies a failure or warning.
type Code string

// Failure and warning codes. Only invalid_request, navigation_failed,
// packaging_failed, timeout and cancelled end a run; the others are reported as
// warnings on a successful result.
const (
	CodeInvalidRequest   Code = "invalid_request"
	CodeNavigationFailed Code = "navigation_failed"
	CodeExtractionEmpty  Code = "extraction_empty"
	CodeGenerationFailed Code = "generation_failed"
	CodeAttachmentFailed Code = "attachment_failed"
	CodePackagingFailed  Code = "packaging_failed"
	CodeTimeout          Code = "timeout"
	CodeCancelled        Code = "cancelled"
	CodeUploadFailed     Code = "upload_failed"
	CodeTrackingFailed   Code = "tracking_failed"
)

// Error is the single failure a run returns. Cause is for logs; callers
// should present FailureResult instead.
type Error struct {
	State   State
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s during %s: %s: %v", e.Code, e.State, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s during %s: %s", e.Code, e.State, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// FailureResult is the caller-facing form of a failed run.
type FailureResult struct {
	// Stage is the failure code, e.g. "navigation_failed".
	Stage   Code   `json:"stage"`
	State   State  `json:"state"`
	Message string `json:"message"`
}

// FailureResult strips the cause.
func (e *Error) FailureResult() FailureResult {
	return FailureResult{Stage: e.Code, State: e.State, Message: e.Message}
}

// AsFailure converts any error returned by Run into a FailureResult.
func AsFailure(err error) FailureResult {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.FailureResult()
	}
	return FailureResult{Stage: CodePackagingFailed, State: StateFailed, Message: err.Error()}
}

// contextCode reports whether err was caused by the run's context ending.
func contextCode(ctx context.Context) (Code, bool) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return CodeTimeout, true
	case errors.Is(ctx.Err(), context.Canceled):
		return CodeCancelled, true
	}
	return "", false
}

// warning formats a non-fatal problem for PackageResult.Warnings.
func warning(code Code, format string, args ...any) string {
	return fmt.Sprintf("%s: %s", code, fmt.Sprintf(format, args...))
}
