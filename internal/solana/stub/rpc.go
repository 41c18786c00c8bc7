package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient as a scripted in-memory network for
// testing. Hooks left nil fall back to a network that accepts every
// transaction and confirms it on the first status poll.
type RPCClient struct {
	mu sync.Mutex

	// Height is the current block height; it advances by HeightStep on every
	// GetBlockHeight call.
	Height     uint64
	HeightStep uint64

	// ValidWindow is added to Height to form lastValidBlockHeight.
	ValidWindow uint64

	// Rent is returned by GetMinimumBalanceForRentExemption.
	Rent uint64

	// OnBlockhash overrides GetLatestBlockhash. n is the 1-based call number.
	OnBlockhash func(n int) (*solana.LatestBlockhash, error)

	// OnSend overrides SendTransaction acceptance. n is the 1-based call number
	// and signature the transaction's fee payer signature.
	OnSend func(n int, signature string, rawTx []byte) error

	// OnStatus overrides GetSignatureStatuses per signature. polls is the
	// 1-based number of status lookups for that signature.
	OnStatus func(signature string, polls int) (*solana.SignatureStatus, error)

	Transactions map[string]*solana.Transaction

	blockhashCalls int
	sendCalls      int
	sent           []string
	sentRaw        [][]byte
	blockhashes    []string
	polls          map[string]int
	heightCalls    int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Height:       1000,
		ValidWindow:  150,
		Rent:         1461600,
		Transactions: make(map[string]*solana.Transaction),
		polls:        make(map[string]int),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetLatestBlockhash returns a unique blockhash per call.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ domain.Commitment) (*solana.LatestBlockhash, error) {
	c.mu.Lock()
	c.blockhashCalls++
	n := c.blockhashCalls
	hook := c.OnBlockhash
	height := c.Height
	window := c.ValidWindow
	c.mu.Unlock()

	var (
		bh  *solana.LatestBlockhash
		err error
	)
	if hook != nil {
		bh, err = hook(n)
	} else {
		bh = &solana.LatestBlockhash{
			Blockhash:            Blockhash(n),
			LastValidBlockHeight: height + window,
		}
	}
	if err == nil && bh != nil && bh.Blockhash != "" {
		c.mu.Lock()
		c.blockhashes = append(c.blockhashes, bh.Blockhash)
		c.mu.Unlock()
	}
	return bh, err
}

// SendTransaction records the transaction and returns its signature.
func (c *RPCClient) SendTransaction(_ context.Context, rawTx []byte, _ solana.SendOptions) (string, error) {
	sig, err := FeePayerSignature(rawTx)
	if err != nil {
		return "", &solana.RPCError{Code: -32602, Message: err.Error()}
	}

	c.mu.Lock()
	c.sendCalls++
	n := c.sendCalls
	hook := c.OnSend
	c.mu.Unlock()

	if hook != nil {
		if err := hook(n, sig, rawTx); err != nil {
			return "", err
		}
	}

	c.mu.Lock()
	c.sent = append(c.sent, sig)
	c.sentRaw = append(c.sentRaw, rawTx)
	c.mu.Unlock()
	return sig, nil
}

// GetSignatureStatuses returns scripted statuses.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		c.mu.Lock()
		c.polls[sig]++
		polls := c.polls[sig]
		hook := c.OnStatus
		c.mu.Unlock()

		if hook == nil {
			out[i] = &solana.SignatureStatus{Slot: 42, ConfirmationStatus: domain.CommitmentFinalized}
			continue
		}
		st, err := hook(sig, polls)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

// GetBlockHeight returns the current height and advances it.
func (c *RPCClient) GetBlockHeight(_ context.Context, _ domain.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heightCalls++
	h := c.Height
	c.Height += c.HeightStep
	return h, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetMinimumBalanceForRentExemption returns Rent.
func (c *RPCClient) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Rent, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetHeight sets the current block height.
func (c *RPCClient) SetHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Height = h
}

// SendCalls returns the number of SendTransaction invocations.
func (c *RPCClient) SendCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls
}

// BlockhashCalls returns the number of GetLatestBlockhash invocations.
func (c *RPCClient) BlockhashCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockhashCalls
}

// Sent returns the signatures of accepted transactions in order.
func (c *RPCClient) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// SentRaw returns the accepted serialized transactions in order.
func (c *RPCClient) SentRaw() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sentRaw...)
}

// Blockhashes returns every blockhash handed out, in order.
func (c *RPCClient) Blockhashes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.blockhashes...)
}

// Polls returns the number of status lookups for a signature.
func (c *RPCClient) Polls(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls[signature]
}

// TotalPolls returns the number of status lookups across all signatures.
func (c *RPCClient) TotalPolls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.polls {
		total += n
	}
	return total
}

// Blockhash returns a deterministic, base58-valid 32-byte blockhash for n.
func Blockhash(n int) string {
	b := make([]byte, 32)
	b[0] = byte(n)
	b[1] = byte(n >> 8)
	b[31] = 0x7f
	return base58.Encode(b)
}

// FeePayerSignature extracts the first signature of a serialized
// transaction. Wire format: compact-u16 count followed by 64-byte signatures.
func FeePayerSignature(rawTx []byte) (string, error) {
	if len(rawTx) < 65 {
		return "", fmt.Errorf("transaction too short: %d bytes", len(rawTx))
	}
	if rawTx[0] == 0 || rawTx[0] >= 0x80 {
		return "", fmt.Errorf("unexpected signature count byte 0x%02x", rawTx[0])
	}
	return base58.Encode(rawTx[1:65]), nil
}
