package mint

import (
	"context"
	"errors"
	"fmt"

	"puzzle-mint/internal/upload"
)

// Error classes. Components wrap one of these; the orchestrator decides
// retry eligibility with errors.Is.
var (
	// ErrCheckpointUnavailable: no usable blockhash could be fetched. Retryable.
	ErrCheckpointUnavailable = errors.New("checkpoint unavailable")

	// ErrSimulationFailed: the node refused the transaction before it entered
	// the processing pipeline. Retryable.
	ErrSimulationFailed = errors.New("transaction simulation failed")

	// ErrSubmissionRejected: any other submission failure. Fatal.
	ErrSubmissionRejected = errors.New("transaction submission rejected")

	// ErrSignerUnavailable: the signing capability is missing or disconnected. Fatal.
	ErrSignerUnavailable = errors.New("signer unavailable")

	// ErrConfirmationTimedOut: not confirmed before the deadline or the
	// checkpoint expired. Retryable.
	ErrConfirmationTimedOut = errors.New("confirmation timed out")

	// ErrConfirmationFailed: the transaction executed and the network rejected it. Fatal.
	ErrConfirmationFailed = errors.New("transaction failed")

	// ErrExhausted: every attempt failed with a retryable error.
	ErrExhausted = errors.New("mint attempts exhausted")
)

// Attempt stages, used in AttemptError.
const (
	StageCheckpoint = "checkpoint"
	StageSubmit     = "submit"
	StageConfirm    = "confirm"
)

// AttemptError carries the diagnostic context of a failed attempt.
type AttemptError struct {
	Attempt         int
	Stage           string
	CheckpointToken string
	ExpiryHeight    uint64
	Signature       string
	Err             error
}

func (e *AttemptError) Error() string {
	msg := fmt.Sprintf("attempt %d %s", e.Attempt, e.Stage)
	if e.CheckpointToken != "" {
		msg += fmt.Sprintf(" (blockhash %s, valid until height %d", e.CheckpointToken, e.ExpiryHeight)
		if e.Signature != "" {
			msg += ", signature " + e.Signature
		}
		msg += ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when MaxAttempts retryable failures occurred.
// It matches both ErrExhausted and the class of the last failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrExhausted}
	}
	return []error{ErrExhausted, e.Last}
}

// IsRetryable reports whether an attempt error allows another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrExhausted) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrCheckpointUnavailable) ||
		errors.Is(err, ErrSimulationFailed) ||
		errors.Is(err, ErrConfirmationTimedOut)
}

// User-facing messages, one per terminal outcome.
const (
	MessageReconnectSigner = "Your wallet is not connected. Please reconnect your wallet and try again."
	MessageCongested       = "The network is congested. Please try again in a moment."
	MessageUploadFailed    = "Uploading the image or metadata failed. Please try again."
	MessageGeneric         = "Minting failed. Please try again."
)

// UserMessage maps a terminal error to a single human-readable message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSignerUnavailable):
		return MessageReconnectSigner
	case errors.Is(err, upload.ErrUploadFailed):
		return MessageUploadFailed
	case errors.Is(err, ErrExhausted), IsRetryable(err):
		return MessageCongested
	default:
		return MessageGeneric
	}
}

// errorClass returns a short label for metrics and analytics.
func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, upload.ErrUploadFailed):
		return "upload"
	case errors.Is(err, ErrSignerUnavailable):
		return "signer_unavailable"
	case errors.Is(err, ErrSubmissionRejected):
		return "submission_rejected"
	case errors.Is(err, ErrConfirmationFailed):
		return "confirmation_failed"
	case errors.Is(err, ErrConfirmationTimedOut):
		return "confirmation_timed_out"
	case errors.Is(err, ErrSimulationFailed):
		return "simulation_failed"
	case errors.Is(err, ErrCheckpointUnavailable):
		return "checkpoint_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
