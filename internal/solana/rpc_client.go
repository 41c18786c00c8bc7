package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
//
// Transport failures (connection errors, 429, non-200) are retried with
// exponential backoff. JSON-RPC error objects are returned as *RPCError
// without retry. Resending sendTransaction is safe because the payload is
// the same signed transaction.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum transport retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the RPC endpoint URL.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

func commitmentConfig(commitment domain.Commitment) map[string]interface{} {
	if commitment == "" {
		return map[string]interface{}{}
	}
	return map[string]interface{}{"commitment": string(commitment)}
}

// GetLatestBlockhash returns a recent blockhash and its last valid block height.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context, commitment domain.Commitment) (*LatestBlockhash, error) {
	params := []interface{}{commitmentConfig(commitment)}

	var result getLatestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return nil, err
	}

	out := &LatestBlockhash{Slot: result.Context.Slot}
	if result.Value != nil {
		out.Blockhash = result.Value.Blockhash
		out.LastValidBlockHeight = result.Value.LastValidBlockHeight
	}
	return out, nil
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

type getLatestBlockhashResult struct {
	Context rpcContext `json:"context"`
	Value   *struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// SendTransaction submits a signed transaction (base64 wire encoding).
func (c *HTTPClient) SendTransaction(ctx context.Context, rawTx []byte, opts SendOptions) (string, error) {
	config := map[string]interface{}{
		"encoding":      "base64",
		"skipPreflight": opts.SkipPreflight,
	}
	if opts.PreflightCommitment != "" {
		config["preflightCommitment"] = string(opts.PreflightCommitment)
	}
	if opts.MaxRetries != nil {
		config["maxRetries"] = *opts.MaxRetries
	}

	params := []interface{}{
		base64.StdEncoding.EncodeToString(rawTx),
		config,
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// GetSignatureStatuses looks up statuses, searching full transaction history.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result getSignatureStatusesResult
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(signatures))
	for i, v := range result.Value {
		if i >= len(statuses) || v == nil {
			continue
		}
		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			Err:                v.Err,
			ConfirmationStatus: domain.Commitment(v.ConfirmationStatus),
		}
	}
	return statuses, nil
}

type getSignatureStatusesResult struct {
	Context rpcContext                 `json:"context"`
	Value   []*getSignatureStatusValue `json:"value"`
}

type getSignatureStatusValue struct {
	Slot               int64       `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// GetBlockHeight returns the current block height.
func (c *HTTPClient) GetBlockHeight(ctx context.Context, commitment domain.Commitment) (uint64, error) {
	params := []interface{}{commitmentConfig(commitment)}
	var result uint64
	if err := c.call(ctx, "getBlockHeight", params, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetTransaction retrieves a transaction by signature at confirmed commitment.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     string(domain.CommitmentConfirmed),
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *getTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}

	if result == nil {
		// Transaction not found
		return nil, nil
	}

	tx := &Transaction{
		Slot:      result.Slot,
		Signature: signature,
	}

	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}

	if result.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:                  result.Meta.Err,
			Fee:                  result.Meta.Fee,
			ComputeUnitsConsumed: result.Meta.ComputeUnitsConsumed,
			LogMessages:          result.Meta.LogMessages,
		}
	}

	return tx, nil
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Slot      int64               `json:"slot"`
	BlockTime *int64              `json:"blockTime"`
	Meta      *getTransactionMeta `json:"meta"`
}

type getTransactionMeta struct {
	Err                  interface{} `json:"err"`
	Fee                  uint64      `json:"fee"`
	ComputeUnitsConsumed *uint64     `json:"computeUnitsConsumed"`
	LogMessages          []string    `json:"logMessages"`
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for dataLen bytes.
func (c *HTTPClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	params := []interface{}{dataLen}
	var result uint64
	if err := c.call(ctx, "getMinimumBalanceForRentExemption", params, &result); err != nil {
		return 0, err
	}
	return result, nil
}
