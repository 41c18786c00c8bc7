// Package wallet provides the signing capability used to authorize mint
// transactions.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

var (
	// ErrDisconnected is returned when the signer is not connected.
	ErrDisconnected = errors.New("signer disconnected")

	// ErrRejected is returned when the signer refuses to sign.
	ErrRejected = errors.New("signature request rejected")

	// ErrInvalidIdentity is returned when the signer's public key is not a
	// valid ed25519 point.
	ErrInvalidIdentity = errors.New("invalid signer identity")
)

// Signer signs transaction messages on behalf of the fee payer.
// Implementations must be safe for concurrent use.
type Signer interface {
	// Identity returns the base58 public key of the signer.
	Identity() string

	// SignMessage signs a serialized transaction message and returns a
	// 64-byte ed25519 signature.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)

	// Connected reports whether the signer can currently sign.
	Connected() bool
}

// CheckReady verifies a signer can be used for a submission: present,
// connected, and identified by a valid curve point.
func CheckReady(s Signer) error {
	if s == nil {
		return fmt.Errorf("%w: no signer configured", ErrDisconnected)
	}
	if !s.Connected() {
		return ErrDisconnected
	}
	return ValidateIdentity(s.Identity())
}

// ValidateIdentity checks that a base58 public key decodes to 32 bytes on
// the ed25519 curve.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	raw, err := base58.Decode(identity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: want 32 bytes, got %d", ErrInvalidIdentity, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("%w: not on curve", ErrInvalidIdentity)
	}
	return nil
}
