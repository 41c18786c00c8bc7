package mint

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/solana"
	"puzzle-mint/internal/solana/stub"
	"puzzle-mint/internal/upload"
	"puzzle-mint/internal/wallet"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*log.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return log.New(buf, "", 0), buf
}

// testPolicy keeps series fast: no backoff, short deadline.
func testPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		Backoff:        -1,
		ConfirmTimeout: 2 * time.Second,
		Commitment:     domain.CommitmentConfirmed,
	}
}

func newTestOrchestrator(t *testing.T, rpc *stub.RPCClient, policy Policy, observer func(Transition)) (*Orchestrator, *syncBuffer) {
	t.Helper()
	logger, buf := testLogger()
	o := NewOrchestrator(OrchestratorOptions{
		Checkpoints: NewCheckpointSource(rpc),
		Submitter:   NewSubmitter(SubmitterOptions{RPC: rpc, PreflightCommitment: policy.Commitment, Logger: logger}),
		Poller: NewPoller(PollerOptions{
			RPC:        rpc,
			Interval:   time.Millisecond,
			Commitment: policy.Commitment,
			Logger:     logger,
		}),
		RPC:      rpc,
		Policy:   policy,
		Observer: observer,
		Logger:   logger,
	})
	return o, buf
}

func testRequest() domain.MintRequest {
	return domain.NewMintRequest("ipfs://bafkreimetadata", "Puzzle #1", DefaultSymbol)
}

// expiredCheckpoints makes every checkpoint already expired at the stub's
// current height.
func expiredCheckpoints(rpc *stub.RPCClient) {
	rpc.OnBlockhash = func(n int) (*solana.LatestBlockhash, error) {
		return &solana.LatestBlockhash{Blockhash: stub.Blockhash(n), LastValidBlockHeight: 999}, nil
	}
}

// neverLands reports no status for any signature.
func neverLands(string, int) (*solana.SignatureStatus, error) {
	return nil, nil
}

// rejectingSigner refuses every signature request.
type rejectingSigner struct {
	*wallet.KeypairSigner
}

func (rejectingSigner) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, wallet.ErrRejected
}

// garbageSigner returns a well-formed but wrong signature.
type garbageSigner struct {
	*wallet.KeypairSigner
}

func (garbageSigner) SignMessage(context.Context, []byte) ([]byte, error) {
	return make([]byte, 64), nil
}

// fakeUploader returns deterministic locators and records payloads.
type fakeUploader struct {
	mu       sync.Mutex
	payloads []upload.Payload
	failKind upload.Kind
}

func (u *fakeUploader) Upload(_ context.Context, p upload.Payload) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.payloads = append(u.payloads, p)
	if p.Kind == u.failKind {
		return "", errors.Join(upload.ErrUploadFailed, errors.New("upload endpoint returned 500"))
	}
	if p.Kind == upload.KindMetadata {
		return "ipfs://bafkreimetadata", nil
	}
	return "ipfs://bafkreiimage", nil
}

func (u *fakeUploader) Payloads() []upload.Payload {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upload.Payload(nil), u.payloads...)
}

// fakeWatcher delivers scripted signature notifications.
type fakeWatcher struct {
	notification *solana.SignatureNotification
	err          error

	// block, when set, holds SubscribeSignature until it is closed or the
	// context ends.
	block chan struct{}

	mu         sync.Mutex
	subscribed []string
}

func (w *fakeWatcher) SubscribeSignature(ctx context.Context, signature string, _ domain.Commitment) (<-chan solana.SignatureNotification, error) {
	w.mu.Lock()
	w.subscribed = append(w.subscribed, signature)
	w.mu.Unlock()
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	ch := make(chan solana.SignatureNotification, 1)
	if w.notification != nil {
		n := *w.notification
		n.Signature = signature
		ch <- n
	}
	return ch, nil
}

func (w *fakeWatcher) Close() error {
	return nil
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}
