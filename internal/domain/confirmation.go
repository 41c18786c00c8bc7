package domain

import "fmt"

// ConfirmationState tags a ConfirmationStatus.
type ConfirmationState int

const (
	ConfirmationPending ConfirmationState = iota
	ConfirmationConfirmed
	ConfirmationFailed
	ConfirmationTimedOut
)

// String returns the string representation of ConfirmationState.
func (s ConfirmationState) String() string {
	switch s {
	case ConfirmationPending:
		return "PENDING"
	case ConfirmationConfirmed:
		return "CONFIRMED"
	case ConfirmationFailed:
		return "FAILED"
	case ConfirmationTimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("ConfirmationState(%d)", int(s))
	}
}

// Timeout reasons.
const (
	TimeoutDeadline          = "deadline elapsed"
	TimeoutCheckpointExpired = "checkpoint expired"
)

// ConfirmationStatus is the result of polling a submitted transaction.
type ConfirmationStatus struct {
	State ConfirmationState

	// Reason is the execution error for Failed and the timeout cause for TimedOut.
	Reason string

	// Slot is the slot the transaction landed in, when known.
	Slot int64

	// ObservedHeight is the last block height seen while polling.
	ObservedHeight uint64

	// Level is the last observed confirmation level.
	Level Commitment
}

// Terminal reports whether polling can stop.
func (s ConfirmationStatus) Terminal() bool {
	return s.State != ConfirmationPending
}

// Confirmed returns a Confirmed status.
func Confirmed(slot int64, level Commitment) ConfirmationStatus {
	return ConfirmationStatus{State: ConfirmationConfirmed, Slot: slot, Level: level}
}

// Failed returns a Failed status with the execution error.
func Failed(reason string, slot int64) ConfirmationStatus {
	return ConfirmationStatus{State: ConfirmationFailed, Reason: reason, Slot: slot}
}

// TimedOut returns a TimedOut status.
func TimedOut(reason string, observedHeight uint64) ConfirmationStatus {
	return ConfirmationStatus{State: ConfirmationTimedOut, Reason: reason, ObservedHeight: observedHeight}
}
