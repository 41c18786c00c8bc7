package solana

import "puzzle-mint/internal/domain"

// LatestBlockhash from getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
	Slot                 int64 // context slot
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment domain.Commitment
	MaxRetries          *uint // node-side rebroadcast budget; nil uses node default
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus domain.Commitment
}

// SignatureNotification from a signatureSubscribe stream.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}
