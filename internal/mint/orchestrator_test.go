package mint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/solana"
	"puzzle-mint/internal/solana/stub"
	"puzzle-mint/internal/wallet"
)

type transitionLog struct {
	mu          sync.Mutex
	transitions []Transition
}

func (l *transitionLog) observe(tr Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, tr)
}

func (l *transitionLog) path() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var states []State
	for _, tr := range l.transitions {
		states = append(states, tr.To)
	}
	return states
}

func TestOrchestrator_ScenarioA_Success(t *testing.T) {
	rpc := stub.NewRPCClient()
	trace := &transitionLog{}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), trace.observe)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.NoError(t, err)

	require.Len(t, series.Submissions, 1)
	sub := series.Submissions[0]
	assert.Equal(t, domain.MintOutcome{TokenAddress: sub.TokenAddress, Signature: sub.Signature}, series.Outcome)
	assert.Equal(t, 1, series.Attempts)
	assert.Equal(t, StateSucceeded, series.FinalState)
	assert.NotEmpty(t, series.ID)
	assert.Equal(t, []State{StateAttempting, StateSucceeded, StateDone}, trace.path())
}

func TestOrchestrator_ScenarioB_ExpiredThenSuccess(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.OnBlockhash = func(n int) (*solana.LatestBlockhash, error) {
		expiry := uint64(1150)
		if n == 1 {
			expiry = 999 // already behind the current height
		}
		return &solana.LatestBlockhash{Blockhash: stub.Blockhash(n), LastValidBlockHeight: expiry}, nil
	}
	rpc.OnStatus = func(sig string, _ int) (*solana.SignatureStatus, error) {
		if sig == rpc.Sent()[0] {
			return nil, nil
		}
		return &solana.SignatureStatus{Slot: 42, ConfirmationStatus: domain.CommitmentConfirmed}, nil
	}
	trace := &transitionLog{}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), trace.observe)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.NoError(t, err)

	require.Len(t, series.Submissions, 2)
	assert.Equal(t, 1, series.Submissions[0].AttemptIndex)
	assert.Equal(t, 2, series.Submissions[1].AttemptIndex)
	assert.NotEqual(t, series.Submissions[0].CheckpointToken, series.Submissions[1].CheckpointToken)
	assert.Equal(t, series.Submissions[1].Signature, series.Outcome.Signature)
	assert.Equal(t, series.Submissions[1].TokenAddress, series.Outcome.TokenAddress)
	assert.Equal(t, 2, series.Attempts)
	assert.Equal(t, []State{
		StateAttempting, StateAttemptFailedRetryable,
		StateAttempting, StateSucceeded, StateDone,
	}, trace.path())
}

func TestOrchestrator_ScenarioC_SignerUnavailable(t *testing.T) {
	rpc := stub.NewRPCClient()
	signer := wallet.GenerateKeypairSigner()
	signer.Disconnect()
	trace := &transitionLog{}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), trace.observe)

	series, err := o.Run(context.Background(), testRequest(), signer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignerUnavailable)
	assert.NotErrorIs(t, err, ErrExhausted)

	assert.Equal(t, 1, series.Attempts)
	assert.Empty(t, series.Submissions)
	assert.Equal(t, 0, rpc.SendCalls())
	assert.Equal(t, 0, rpc.TotalPolls())
	assert.Equal(t, 1, rpc.BlockhashCalls())
	assert.Equal(t, []State{StateAttempting, StateAttemptFailedFatal, StateDone}, trace.path())
}

func TestOrchestrator_ScenarioD_Exhausted(t *testing.T) {
	rpc := stub.NewRPCClient()
	expiredCheckpoints(rpc)
	rpc.OnStatus = neverLands
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), nil)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrConfirmationTimedOut)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, DefaultMaxAttempts, exhausted.Attempts)

	var last *AttemptError
	require.ErrorAs(t, err, &last)
	assert.Equal(t, 3, last.Attempt)
	assert.Equal(t, StageConfirm, last.Stage)
	assert.Equal(t, stub.Blockhash(3), last.CheckpointToken)
	assert.Equal(t, rpc.Sent()[2], last.Signature)
	assert.Contains(t, err.Error(), domain.TimeoutCheckpointExpired)

	assert.Len(t, series.Submissions, DefaultMaxAttempts)
	assert.Equal(t, DefaultMaxAttempts, rpc.SendCalls())
	assert.Equal(t, StateExhausted, series.FinalState)
	assert.Equal(t, domain.MintOutcome{}, series.Outcome)
}

func TestOrchestrator_SubmissionRejectedIsFatal(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.OnSend = func(int, string, []byte) error {
		return &solana.RPCError{Code: solana.CodeTransactionSignatureVerify, Message: "signature verification failure"}
	}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), nil)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.Equal(t, 1, rpc.SendCalls())
	assert.Equal(t, 1, rpc.BlockhashCalls())
	assert.Equal(t, 1, series.Attempts)
}

func TestOrchestrator_ConfirmationFailedIsFatal(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.OnStatus = func(string, int) (*solana.SignatureStatus, error) {
		return &solana.SignatureStatus{Slot: 3, Err: "InsufficientFundsForRent"}, nil
	}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), nil)

	_, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	assert.ErrorIs(t, err, ErrConfirmationFailed)
	assert.Contains(t, err.Error(), "InsufficientFundsForRent")
	assert.Equal(t, 1, rpc.SendCalls())
}

func TestOrchestrator_LandedTransactionIsNotResubmitted(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.HeightStep = 100
	rpc.OnStatus = func(_ string, polls int) (*solana.SignatureStatus, error) {
		switch {
		case polls == 1:
			return &solana.SignatureStatus{Slot: 70, ConfirmationStatus: domain.CommitmentProcessed}, nil
		case polls < 7:
			return nil, errors.New("503 service unavailable")
		default:
			return &solana.SignatureStatus{Slot: 71, ConfirmationStatus: domain.CommitmentConfirmed}, nil
		}
	}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), nil)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.NoError(t, err)
	assert.Equal(t, 1, rpc.SendCalls())
	assert.Equal(t, 1, series.Attempts)
	assert.Equal(t, StateSucceeded, series.FinalState)
}

func TestOrchestrator_RetriesSimulationAndCheckpointFailures(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.OnBlockhash = func(n int) (*solana.LatestBlockhash, error) {
		if n == 1 {
			return nil, errors.New("connection refused")
		}
		return &solana.LatestBlockhash{Blockhash: stub.Blockhash(n), LastValidBlockHeight: 1150}, nil
	}
	rpc.OnSend = func(n int, _ string, _ []byte) error {
		if n == 1 {
			return &solana.RPCError{Code: solana.CodeSendTransactionPreflightFailed, Message: "Transaction simulation failed: Blockhash not found"}
		}
		return nil
	}
	o, _ := newTestOrchestrator(t, rpc, testPolicy(), nil)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.NoError(t, err)
	assert.Equal(t, 3, series.Attempts)
	assert.Len(t, series.Submissions, 1, "only accepted transactions are recorded")
	assert.Equal(t, 3, rpc.BlockhashCalls())
}

func TestOrchestrator_MaxAttemptsBound(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 5} {
		rpc := stub.NewRPCClient()
		expiredCheckpoints(rpc)
		rpc.OnStatus = neverLands
		policy := testPolicy()
		policy.MaxAttempts = maxAttempts
		o, _ := newTestOrchestrator(t, rpc, policy, nil)

		_, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
		assert.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, maxAttempts, rpc.SendCalls(), "maxAttempts=%d", maxAttempts)
		assert.Equal(t, maxAttempts, rpc.BlockhashCalls(), "maxAttempts=%d", maxAttempts)
	}
}

// sequenceRecorder wraps each component and logs the order of calls.
type sequenceRecorder struct {
	mu     sync.Mutex
	events []string
	tokens []string
}

func (r *sequenceRecorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type recordingFetcher struct {
	inner CheckpointFetcher
	rec   *sequenceRecorder
}

func (f recordingFetcher) Fetch(ctx context.Context, c domain.Commitment) (domain.Checkpoint, error) {
	cp, err := f.inner.Fetch(ctx, c)
	f.rec.add("fetch")
	f.rec.mu.Lock()
	f.rec.tokens = append(f.rec.tokens, cp.Token)
	f.rec.mu.Unlock()
	return cp, err
}

type recordingSubmitter struct {
	inner TransactionSubmitter
	rec   *sequenceRecorder
}

func (s recordingSubmitter) Submit(ctx context.Context, req domain.MintRequest, cp domain.Checkpoint, signer wallet.Signer, attempt int) (domain.SubmissionRecord, error) {
	s.rec.add("submit")
	return s.inner.Submit(ctx, req, cp, signer, attempt)
}

type recordingAwaiter struct {
	inner ConfirmationAwaiter
	rec   *sequenceRecorder
}

func (a recordingAwaiter) Await(ctx context.Context, sig string, cp domain.Checkpoint, deadline time.Time) (domain.ConfirmationStatus, error) {
	st, err := a.inner.Await(ctx, sig, cp, deadline)
	a.rec.add("await-done")
	return st, err
}

func TestOrchestrator_FreshCheckpointAfterEachAttempt(t *testing.T) {
	rpc := stub.NewRPCClient()
	expiredCheckpoints(rpc)
	rpc.OnStatus = neverLands
	logger, _ := testLogger()
	rec := &sequenceRecorder{}

	o := NewOrchestrator(OrchestratorOptions{
		Checkpoints: recordingFetcher{inner: NewCheckpointSource(rpc), rec: rec},
		Submitter:   recordingSubmitter{inner: NewSubmitter(SubmitterOptions{RPC: rpc, Logger: logger}), rec: rec},
		Poller:      recordingAwaiter{inner: newTestPoller(rpc, nil, time.Millisecond), rec: rec},
		Policy:      testPolicy(),
		Logger:      logger,
	})

	_, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.ErrorIs(t, err, ErrExhausted)

	assert.Equal(t, []string{
		"fetch", "submit", "await-done",
		"fetch", "submit", "await-done",
		"fetch", "submit", "await-done",
	}, rec.events)
	assert.Equal(t, []string{stub.Blockhash(1), stub.Blockhash(2), stub.Blockhash(3)}, rec.tokens)
}

func TestOrchestrator_CancelDuringBackoff(t *testing.T) {
	rpc := stub.NewRPCClient()
	expiredCheckpoints(rpc)
	rpc.OnStatus = neverLands

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := testPolicy()
	policy.Backoff = time.Hour
	o, _ := newTestOrchestrator(t, rpc, policy, func(tr Transition) {
		if tr.To == StateAttemptFailedRetryable {
			cancel()
		}
	})

	series, err := o.Run(ctx, testRequest(), wallet.GenerateKeypairSigner())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, series.Attempts)
	assert.Equal(t, 1, rpc.SendCalls())
}

func TestOrchestrator_BackoffBetweenAttempts(t *testing.T) {
	rpc := stub.NewRPCClient()
	expiredCheckpoints(rpc)
	rpc.OnStatus = neverLands

	policy := testPolicy()
	policy.MaxAttempts = 2
	o, _ := newTestOrchestrator(t, rpc, policy, nil)

	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	o.policy.Backoff = 200 * time.Millisecond

	_, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, slept, "no wait after the final attempt")
}

func TestOrchestrator_InspectsConfirmedTransaction(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.OnSend = func(_ int, sig string, _ []byte) error {
		rpc.AddTransaction(&solana.Transaction{
			Slot:      42,
			Signature: sig,
			Meta:      &solana.TransactionMeta{Fee: 5000, ComputeUnitsConsumed: uint64Ptr(250_000)},
		})
		return nil
	}
	o, logs := newTestOrchestrator(t, rpc, testPolicy(), nil)

	_, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "compute units 250000")
	assert.Contains(t, logs.String(), "WARNING")
}

func TestOrchestrator_InspectFailureDoesNotChangeOutcome(t *testing.T) {
	rpc := stub.NewRPCClient() // GetTransaction returns not found
	o, logs := newTestOrchestrator(t, rpc, testPolicy(), nil)

	series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
	require.NoError(t, err)
	assert.NotEmpty(t, series.Outcome.Signature)
	assert.Contains(t, logs.String(), "get transaction")
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBackoff, p.Backoff)
	assert.Equal(t, DefaultConfirmTimeout, p.ConfirmTimeout)
	assert.Equal(t, domain.CommitmentConfirmed, p.Commitment)

	p = Policy{Backoff: -1}.withDefaults()
	assert.Equal(t, time.Duration(0), p.Backoff)
}

// sendOptionsRecorder keeps the options of every send.
type sendOptionsRecorder struct {
	*stub.RPCClient
	mu   sync.Mutex
	opts []solana.SendOptions
}

func (r *sendOptionsRecorder) SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	return r.RPCClient.SendTransaction(ctx, raw, opts)
}

func TestNewDefaultOrchestrator(t *testing.T) {
	for _, skip := range []bool{false, true} {
		rpc := &sendOptionsRecorder{RPCClient: stub.NewRPCClient()}
		logger, _ := testLogger()
		o := NewDefaultOrchestrator(DefaultOrchestratorOptions{
			RPC:           rpc,
			Policy:        Policy{Commitment: domain.CommitmentFinalized, Backoff: -1},
			SkipPreflight: skip,
			Logger:        logger,
		})

		series, err := o.Run(context.Background(), testRequest(), wallet.GenerateKeypairSigner())
		require.NoError(t, err)
		assert.Equal(t, StateSucceeded, series.FinalState)
		assert.Equal(t, DefaultMaxAttempts, o.Policy().MaxAttempts)

		require.Len(t, rpc.opts, 1)
		assert.Equal(t, skip, rpc.opts[0].SkipPreflight)
		assert.Equal(t, domain.CommitmentFinalized, rpc.opts[0].PreflightCommitment)
	}
}
