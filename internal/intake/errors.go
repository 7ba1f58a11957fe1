package intake

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session id is unknown or expired.
	ErrSessionNotFound = errors.New("intake: session not found")

	// ErrUnknownField is returned for a field outside the fixed field set.
	ErrUnknownField = errors.New("intake: unknown field")

	// ErrUnknownService is returned when a service id is not in the catalog.
	ErrUnknownService = errors.New("intake: unknown service")

	// ErrAttachmentNotFound is returned when removing an unknown attachment.
	ErrAttachmentNotFound = errors.New("intake: attachment not found")

	// ErrNotFinalStep is returned when submitting before the last step.
	ErrNotFinalStep = errors.New("intake: submission is only allowed from the final step")

	// ErrSubmissionInProgress is returned when a second submit overlaps the first.
	ErrSubmissionInProgress = errors.New("intake: submission already in progress")

	// ErrDraftNotFound is returned by a DraftStore when no record exists.
	ErrDraftNotFound = errors.New("intake: draft not found")

	// ErrPersistenceUnavailable wraps failures of the draft store.
	ErrPersistenceUnavailable = errors.New("intake: draft persistence unavailable")
)

// ValidationError reports a step that failed validation. Fields lists the
// offending fields with their messages.
type ValidationError struct {
	Step   Step
	Fields map[Field]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intake: step %s is incomplete", e.Step)
}

// AttachmentPolicyError reports a file rejected by the acceptance policy.
type AttachmentPolicyError struct {
	Name    string
	Reason  string
	Message string
}

func (e *AttachmentPolicyError) Error() string { return e.Message }

const (
	ReasonTooLarge    = "too_large"
	ReasonUnsupported = "unsupported_type"
)
