package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/blocto/solana-go-sdk/types"
)

// KeypairSigner signs with a local ed25519 keypair. It can be disconnected
// and reconnected to model an external wallet session.
type KeypairSigner struct {
	account   types.Account
	connected atomic.Bool
}

// Compile-time interface check.
var _ Signer = (*KeypairSigner)(nil)

// NewKeypairSigner wraps an account. The signer starts connected.
func NewKeypairSigner(account types.Account) *KeypairSigner {
	s := &KeypairSigner{account: account}
	s.connected.Store(true)
	return s
}

// GenerateKeypairSigner creates a signer with a fresh random keypair.
func GenerateKeypairSigner() *KeypairSigner {
	return NewKeypairSigner(types.NewAccount())
}

// LoadKeypairFile reads a solana-keygen keypair file (JSON array of 64 bytes).
func LoadKeypairFile(path string) (*KeypairSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	keyBytes, err := DecodeKeypairJSON(data)
	if err != nil {
		return nil, err
	}
	acc, err := types.AccountFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("account from bytes: %w", err)
	}
	return NewKeypairSigner(acc), nil
}

// DecodeKeypairJSON decodes a keypair JSON array of 64 integers.
func DecodeKeypairJSON(data []byte) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("unmarshal keypair json: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected secret key length: got %d, want %d", len(ints), ed25519.PrivateKeySize)
	}

	keyBytes := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte out of range at %d: %d", i, v)
		}
		keyBytes[i] = byte(v)
	}
	return keyBytes, nil
}

// Identity returns the base58 public key.
func (s *KeypairSigner) Identity() string {
	return s.account.PublicKey.ToBase58()
}

// SignMessage signs message with the private key.
func (s *KeypairSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.connected.Load() {
		return nil, ErrDisconnected
	}
	return s.account.Sign(message), nil
}

// Connected reports whether the signer is connected.
func (s *KeypairSigner) Connected() bool {
	return s.connected.Load()
}

// Connect marks the signer connected.
func (s *KeypairSigner) Connect() {
	s.connected.Store(true)
}

// Disconnect marks the signer disconnected.
func (s *KeypairSigner) Disconnect() {
	s.connected.Store(false)
}
