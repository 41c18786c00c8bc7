package mint

import (
	"context"
	"fmt"
	"time"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/solana"
)

// CheckpointSource fetches fresh checkpoints from the network.
type CheckpointSource struct {
	rpc solana.RPCClient
	now func() time.Time
}

// NewCheckpointSource creates a checkpoint source.
func NewCheckpointSource(rpc solana.RPCClient) *CheckpointSource {
	return &CheckpointSource{rpc: rpc, now: time.Now}
}

// Fetch returns a new checkpoint at the given freshness level. Every call
// hits the network; checkpoints are never cached.
func (s *CheckpointSource) Fetch(ctx context.Context, commitment domain.Commitment) (domain.Checkpoint, error) {
	bh, err := s.rpc.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("%w: get latest blockhash: %w", ErrCheckpointUnavailable, err)
	}
	if bh == nil || bh.Blockhash == "" {
		return domain.Checkpoint{}, fmt.Errorf("%w: response missing blockhash", ErrCheckpointUnavailable)
	}
	if bh.LastValidBlockHeight == 0 {
		return domain.Checkpoint{}, fmt.Errorf("%w: response missing last valid block height", ErrCheckpointUnavailable)
	}

	return domain.Checkpoint{
		Token:        bh.Blockhash,
		ExpiryHeight: bh.LastValidBlockHeight,
		FetchedAt:    s.now(),
	}, nil
}
