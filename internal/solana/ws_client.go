package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"puzzle-mint/internal/domain"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Logger receives connection diagnostics. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
	}
}

// signatureSub is an active signature subscription.
type signatureSub struct {
	signature  string
	commitment domain.Commitment
	ch         chan SignatureNotification
}

// pendingSub is registered under its server ID by the reader as soon as the
// confirmation arrives, so a notification that follows immediately is not lost.
type pendingSub struct {
	sub       *signatureSub
	confirmCh chan int64
	errCh     chan error
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription ID to subscriber
	subs   map[int64]*signatureSub
	subsMu sync.Mutex

	// pendingSubs maps request ID to a subscriber waiting for its subscription ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = DefaultWSConfig().SubscribeTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[int64]*signatureSub),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeSignature subscribes to a signature's confirmation.
// The returned channel receives at most one notification and is never closed
// by the client before ctx is done or the client is closed.
func (c *WSClientImpl) SubscribeSignature(ctx context.Context, signature string, commitment domain.Commitment) (<-chan SignatureNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	sub := &signatureSub{
		signature:  signature,
		commitment: commitment,
		ch:         make(chan SignatureNotification, 1),
	}

	if _, err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}

	// Drop the subscription once the caller stops waiting.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		c.unsubscribe(sub)
	}()

	return sub.ch, nil
}

// subscribe sends signatureSubscribe and waits for the subscription ID.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *signatureSub) (int64, error) {
	reqID := c.requestID.Add(1)

	params := []interface{}{sub.signature}
	if sub.commitment != "" {
		params = append(params, map[string]string{"commitment": string(sub.commitment)})
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params:  params,
	}

	// Create channel to receive subscription ID
	confirmCh := make(chan int64, 1)
	errCh := make(chan error, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{sub: sub, confirmCh: confirmCh, errCh: errCh}
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(req); err != nil {
		dropPending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case err := <-errCh:
		return 0, fmt.Errorf("signatureSubscribe rejected: %w", err)
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return 0, fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// unsubscribe removes a subscriber and tells the server, if still active.
func (c *WSClientImpl) unsubscribe(sub *signatureSub) {
	var subID int64
	found := false

	c.subsMu.Lock()
	for id, s := range c.subs {
		if s == sub {
			subID = id
			found = true
			delete(c.subs, id)
			break
		}
	}
	c.subsMu.Unlock()

	if !found || c.closed.Load() {
		return
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "signatureUnsubscribe",
		Params:  []interface{}{subID},
	}
	if err := c.write(req); err != nil {
		c.logger.Printf("[ws] unsubscribe %d: %v", subID, err)
	}
}

// write sends a JSON request on the current connection.
func (c *WSClientImpl) write(req wsRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(req)
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id := range c.subs {
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	// Close pending subscription channels
	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirmCh)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Printf("[ws] reconnect failed: %v", err)
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-registers every pending signature after reconnect.
// Subscription IDs are per connection, so all entries are replaced.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.Lock()
	old := make([]*signatureSub, 0, len(c.subs))
	for id, sub := range c.subs {
		old = append(old, sub)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	for _, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		_, err := c.subscribe(ctx, sub)
		cancel()
		if err != nil {
			// Poller falls back to interval polling for this signature.
			c.logger.Printf("[ws] resubscribe %s: %v", sub.signature, err)
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		return
	}

	switch {
	case envelope.Method == "signatureNotification" && envelope.Params != nil:
		c.handleSignatureNotification(envelope.Params)
	case envelope.Error != nil:
		c.logger.Printf("[ws] error response: id=%d code=%d msg=%s", envelope.ID, envelope.Error.Code, envelope.Error.Message)
		c.handleErrorResponse(envelope.ID, envelope.Error)
	case envelope.ID != 0 && len(envelope.Result) > 0:
		var subID int64
		if err := json.Unmarshal(envelope.Result, &subID); err != nil {
			// signatureUnsubscribe acknowledgements carry a bool.
			return
		}
		c.handleSubscribeResponse(envelope.ID, subID)
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	c.subsMu.Lock()
	c.subs[subID] = p.sub
	c.subsMu.Unlock()

	select {
	case p.confirmCh <- subID:
	default:
	}
}

// handleErrorResponse fails the subscriber waiting on reqID, if any.
func (c *WSClientImpl) handleErrorResponse(reqID uint64, rpcErr *RPCError) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}
	select {
	case p.errCh <- rpcErr:
	default:
	}
}

// handleSignatureNotification delivers the notification and drops the
// subscription; the server cancels signature subscriptions after notifying.
func (c *WSClientImpl) handleSignatureNotification(params *wsNotificationParams) {
	var result wsSignatureResult
	if err := json.Unmarshal(params.Result, &result); err != nil {
		return
	}

	c.subsMu.Lock()
	sub, ok := c.subs[params.Subscription]
	if ok {
		delete(c.subs, params.Subscription)
	}
	c.subsMu.Unlock()

	if !ok {
		return
	}

	notif := SignatureNotification{
		Signature: sub.signature,
		Err:       result.Value.Err,
	}
	if result.Context != nil {
		notif.Slot = result.Context.Slot
	}

	// Buffered with capacity 1 and delivered at most once.
	select {
	case sub.ch <- notif:
	default:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error; readLoop reconnects.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers responses and notifications.
type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Method  string                `json:"method"`
	Result  json.RawMessage       `json:"result"`
	Error   *RPCError             `json:"error"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsSignatureResult struct {
	Context *rpcContext `json:"context"`
	Value   struct {
		Err interface{} `json:"err"`
	} `json:"value"`
}
