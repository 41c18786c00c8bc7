package solana

import (
	"context"

	"puzzle-mint/internal/domain"
)

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature streams a single notification once the signature
	// reaches the commitment level. The subscription ends when ctx is done.
	SubscribeSignature(ctx context.Context, signature string, commitment domain.Commitment) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}
