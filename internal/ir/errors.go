package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResourceNotFound is returned by repositories when a resource id does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// ErrorCode categorizes import errors.
type ErrorCode string

const (
	// ErrCodeValidation: malformed, duplicate or empty input. Batch rejected before resolution.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeCycleDetected: intra-batch references form a cycle. Batch rejected.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// ErrCodeAmbiguousReference: a lookup matched more than one candidate.
	ErrCodeAmbiguousReference ErrorCode = "AMBIGUOUS_REFERENCE"

	// ErrCodeMissingReference: a lookup matched nothing (or timed out).
	ErrCodeMissingReference ErrorCode = "MISSING_REFERENCE"

	// ErrCodeLookupUnavailable: the lookup collaborator failed for a reason other than a timeout.
	ErrCodeLookupUnavailable ErrorCode = "LOOKUP_UNAVAILABLE"

	// ErrCodePersistence: the persistence collaborator rejected or failed a commit.
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	// ErrCodeDependencyAborted: a predecessor never committed or the batch aborted.
	ErrCodeDependencyAborted ErrorCode = "DEPENDENCY_ABORTED"

	// ErrCodeBatchTooLarge: the batch exceeds the configured maximum size.
	ErrCodeBatchTooLarge ErrorCode = "BATCH_TOO_LARGE"
)

// ImportError is the structured error used throughout the import pipeline.
//
// Record-scoped errors carry OriginalID; batch-scoped errors leave it empty.
// Field and Stage pinpoint where the failure happened.
type ImportError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	OriginalID string    `json:"original_id,omitempty"`
	Field      string    `json:"field,omitempty"`
	Stage      Stage     `json:"stage"`
	Cycle      []string  `json:"cycle,omitempty"`

	// Err is the collaborator error, if any. Not serialized.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.OriginalID != "" {
		fmt.Fprintf(&b, " (record=%s", e.OriginalID)
		if e.Field != "" {
			fmt.Fprintf(&b, ", field=%s", e.Field)
		}
		fmt.Fprintf(&b, ", stage=%s)", e.Stage)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying collaborator error.
func (e *ImportError) Unwrap() error {
	return e.Err
}

// BatchScoped reports whether the error applies to the batch rather than one record.
func (e *ImportError) BatchScoped() bool {
	return e.OriginalID == ""
}

// NewValidationError creates a batch-scoped validation error.
// position is the entry index, or -1 when not tied to one entry. originalID,
// when known, is kept in the message only: validation rejects the whole batch.
func NewValidationError(position int, originalID, message string) *ImportError {
	if position >= 0 {
		message = fmt.Sprintf("entry %d: %s", position, message)
	}
	if originalID != "" {
		message = fmt.Sprintf("%s [original_id=%s]", message, originalID)
	}
	return &ImportError{
		Code:    ErrCodeValidation,
		Message: message,
		Stage:   StageNormalize,
	}
}

// NewCycleError creates the batch-scoped error for a dependency cycle.
// cycle lists original ids along "depends on" edges and repeats the first id at the end.
func NewCycleError(cycle []string) *ImportError {
	return &ImportError{
		Code:    ErrCodeCycleDetected,
		Message: "circular reference between batch records: " + strings.Join(cycle, " -> "),
		Stage:   StagePlan,
		Cycle:   cycle,
	}
}

// NewReferenceError creates the record-scoped error for a reference that could
// not be resolved under the active policy.
func NewReferenceError(originalID string, ref Reference, out Outcome, reason string) *ImportError {
	code := ErrCodeMissingReference
	switch {
	case out.Failure == FailureUnavailable:
		code = ErrCodeLookupUnavailable
	case out.Status == StatusAmbiguous:
		code = ErrCodeAmbiguousReference
	}
	msg := fmt.Sprintf("%s %s.%s=%q: %s", out.Status, ref.TargetType, ref.LookupField, ref.LookupValue, reason)
	if out.Failure != FailureNone {
		msg = fmt.Sprintf("%s %s.%s=%q: lookup %s", out.Status, ref.TargetType, ref.LookupField, ref.LookupValue, out.Failure)
	}
	if out.Status == StatusAmbiguous {
		msg = fmt.Sprintf("%s (%d candidates)", msg, out.CandidateCount)
	}
	return &ImportError{
		Code:       code,
		Message:    msg,
		OriginalID: originalID,
		Field:      ref.Field,
		Stage:      StageResolve,
	}
}

// NewPersistenceError wraps a persistence collaborator failure for one record.
func NewPersistenceError(originalID string, err error) *ImportError {
	return &ImportError{
		Code:       ErrCodePersistence,
		Message:    "persist failed",
		OriginalID: originalID,
		Stage:      StageCommit,
		Err:        err,
	}
}

// NewDependencyAbortedError marks a record that never reached the persistence call.
func NewDependencyAbortedError(originalID, field, reason string) *ImportError {
	return &ImportError{
		Code:       ErrCodeDependencyAborted,
		Message:    reason,
		OriginalID: originalID,
		Field:      field,
		Stage:      StageCommit,
	}
}

// NewBatchTooLargeError rejects a batch above the configured limit.
func NewBatchTooLargeError(size, limit int) *ImportError {
	return &ImportError{
		Code:    ErrCodeBatchTooLarge,
		Message: fmt.Sprintf("batch has %d entries, limit is %d", size, limit),
		Stage:   StageNormalize,
	}
}

// CodeOf returns the ErrorCode of err, or "" if err is not an ImportError.
func CodeOf(err error) ErrorCode {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// IsValidationError returns true if err is a validation error.
func IsValidationError(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsCycleError returns true if err is a cycle detection error.
func IsCycleError(err error) bool { return CodeOf(err) == ErrCodeCycleDetected }

// IsAmbiguousReferenceError returns true if err is an ambiguous reference error.
func IsAmbiguousReferenceError(err error) bool { return CodeOf(err) == ErrCodeAmbiguousReference }

// IsMissingReferenceError returns true if err is a missing reference error.
func IsMissingReferenceError(err error) bool { return CodeOf(err) == ErrCodeMissingReference }

// IsPersistenceError returns true if err is a persistence error.
func IsPersistenceError(err error) bool { return CodeOf(err) == ErrCodePersistence }

// IsDependencyAbortedError returns true if err is a dependency-aborted error.
func IsDependencyAbortedError(err error) bool { return CodeOf(err) == ErrCodeDependencyAborted }

// IsBatchTooLargeError returns true if err is a batch size error.
func IsBatchTooLargeError(err error) bool { return CodeOf(err) == ErrCodeBatchTooLarge }
