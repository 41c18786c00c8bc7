package solana

import (
	"context"

	"puzzle-mint/internal/domain"
)

// RPCClient defines the Solana RPC HTTP methods used to submit and confirm
// transactions. Implementations must be safe for concurrent use.
type RPCClient interface {
	// GetLatestBlockhash returns a recent blockhash and the last block height
	// at which a transaction referencing it is still valid.
	GetLatestBlockhash(ctx context.Context, commitment domain.Commitment) (*LatestBlockhash, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, rawTx []byte, opts SendOptions) (string, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context, commitment domain.Commitment) (uint64, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetMinimumBalanceForRentExemption returns the lamports needed for an account of dataLen bytes.
	GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err                  interface{}
	Fee                  uint64
	ComputeUnitsConsumed *uint64
	LogMessages          []string
}
