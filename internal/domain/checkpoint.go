package domain

import "time"

// Commitment is the freshness level used when reading ledger state.
// Lower levels trade certainty for latency.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// String returns the string representation of Commitment.
func (c Commitment) String() string {
	return string(c)
}

// IsValid checks if the commitment is a known level.
func (c Commitment) IsValid() bool {
	return c == CommitmentProcessed || c == CommitmentConfirmed || c == CommitmentFinalized
}

// Rank orders commitment levels: processed < confirmed < finalized.
// Unknown levels rank 0.
func (c Commitment) Rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Reaches reports whether an observed level satisfies the required one.
func (c Commitment) Reaches(required Commitment) bool {
	return c.Rank() > 0 && c.Rank() >= required.Rank()
}

// Checkpoint is a freshness anchor a transaction references.
// It stays valid until the ledger block height exceeds ExpiryHeight.
type Checkpoint struct {
	Token        string // recent blockhash
	ExpiryHeight uint64 // last valid block height
	FetchedAt    time.Time
}

// Expired reports whether the given block height is past the checkpoint.
func (c Checkpoint) Expired(height uint64) bool {
	return height > c.ExpiryHeight
}
