package mint

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/observability"
	"puzzle-mint/internal/solana"
	"puzzle-mint/internal/wallet"
)

// Defaults for Policy.
const (
	DefaultMaxAttempts    = 3
	DefaultBackoff        = 200 * time.Millisecond
	DefaultConfirmTimeout = 30 * time.Second

	// computeUnitWarnThreshold flags unusually heavy mint transactions.
	computeUnitWarnThreshold = 200_000
)

// State is a mint series state.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StateAttemptFailedRetryable
	StateAttemptFailedFatal
	StateExhausted
	StateDone
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAttempting:
		return "ATTEMPTING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateAttemptFailedRetryable:
		return "ATTEMPT_FAILED_RETRYABLE"
	case StateAttemptFailedFatal:
		return "ATTEMPT_FAILED_FATAL"
	case StateExhausted:
		return "EXHAUSTED"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition is reported to the observer on every state change.
type Transition struct {
	SeriesID string
	From     State
	To       State
	Attempt  int
	Err      error
	At       time.Time
}

// Policy bounds a mint series.
type Policy struct {
	MaxAttempts int

	// Backoff is the wait between attempts. Zero uses the default; a
	// negative value disables the wait.
	Backoff time.Duration

	// ConfirmTimeout is the per-attempt confirmation deadline.
	ConfirmTimeout time.Duration

	// Commitment is the freshness level for checkpoints and confirmation.
	Commitment domain.Commitment
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		Backoff:        DefaultBackoff,
		ConfirmTimeout: DefaultConfirmTimeout,
		Commitment:     domain.CommitmentConfirmed,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Backoff == 0 {
		p.Backoff = d.Backoff
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.ConfirmTimeout <= 0 {
		p.ConfirmTimeout = d.ConfirmTimeout
	}
	if !p.Commitment.IsValid() {
		p.Commitment = d.Commitment
	}
	return p
}

// CheckpointFetcher yields fresh checkpoints.
type CheckpointFetcher interface {
	Fetch(ctx context.Context, commitment domain.Commitment) (domain.Checkpoint, error)
}

// TransactionSubmitter sends one mint transaction.
type TransactionSubmitter interface {
	Submit(ctx context.Context, req domain.MintRequest, cp domain.Checkpoint, signer wallet.Signer, attempt int) (domain.SubmissionRecord, error)
}

// ConfirmationAwaiter waits for a submitted transaction.
type ConfirmationAwaiter interface {
	Await(ctx context.Context, signature string, cp domain.Checkpoint, deadline time.Time) (domain.ConfirmationStatus, error)
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Checkpoints CheckpointFetcher
	Submitter   TransactionSubmitter
	Poller      ConfirmationAwaiter

	// RPC, when set, is used to fetch the confirmed transaction for
	// diagnostics.
	RPC solana.RPCClient

	Policy Policy

	// Observer is called synchronously on every state transition.
	Observer func(Transition)

	Logger *log.Logger
}

// Orchestrator runs a mint series: bounded, strictly sequential attempts,
// each with its own checkpoint.
type Orchestrator struct {
	checkpoints CheckpointFetcher
	submitter   TransactionSubmitter
	poller      ConfirmationAwaiter
	rpc         solana.RPCClient
	policy      Policy
	observer    func(Transition)
	logger      *log.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		checkpoints: opts.Checkpoints,
		submitter:   opts.Submitter,
		poller:      opts.Poller,
		rpc:         opts.RPC,
		policy:      opts.Policy.withDefaults(),
		observer:    opts.Observer,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// DefaultOrchestratorOptions configures NewDefaultOrchestrator.
type DefaultOrchestratorOptions struct {
	RPC solana.RPCClient

	// Watcher is optional; nil means interval polling only.
	Watcher solana.WSClient

	Policy        Policy
	SkipPreflight bool
	Logger        *log.Logger
}

// NewDefaultOrchestrator wires the network-backed checkpoint source,
// submitter and poller around a single RPC client.
func NewDefaultOrchestrator(opts DefaultOrchestratorOptions) *Orchestrator {
	policy := opts.Policy.withDefaults()
	return NewOrchestrator(OrchestratorOptions{
		Checkpoints: NewCheckpointSource(opts.RPC),
		Submitter: NewSubmitter(SubmitterOptions{
			RPC:                 opts.RPC,
			PreflightCommitment: policy.Commitment,
			SkipPreflight:       opts.SkipPreflight,
			Logger:              opts.Logger,
		}),
		Poller: NewPoller(PollerOptions{
			RPC:        opts.RPC,
			Watcher:    opts.Watcher,
			Commitment: policy.Commitment,
			Logger:     opts.Logger,
		}),
		RPC:    opts.RPC,
		Policy: policy,
		Logger: opts.Logger,
	})
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Series is the result of one Run.
type Series struct {
	ID      string
	Outcome domain.MintOutcome

	// Attempts is the number of attempts entered.
	Attempts int

	// Submissions holds one record per transaction sent, in order.
	Submissions []domain.SubmissionRecord

	Confirmation domain.ConfirmationStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	FinalState   State
}

// Duration returns the wall time of the series.
func (s *Series) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Run executes one mint series. It returns exactly one of a MintOutcome
// (through Series.Outcome) or a classified error. The returned Series is
// never nil.
//
// Fatal errors are returned as produced by the failing component.
// Exhaustion returns *ExhaustedError wrapping the last *AttemptError.
func (o *Orchestrator) Run(ctx context.Context, req domain.MintRequest, signer wallet.Signer) (*Series, error) {
	series := &Series{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
	}

	state := StateIdle
	attempt := 0
	var lastErr error

	for {
		switch state {
		case StateIdle:
			attempt = 1
			state = o.transition(series, state, StateAttempting, attempt, nil)

		case StateAttempting:
			series.Attempts = attempt
			next, err := o.attempt(ctx, series, req, signer, attempt)
			lastErr = err
			state = o.transition(series, state, next, attempt, err)

		case StateSucceeded:
			observability.RecordAttempt("succeeded")
			o.transition(series, state, StateDone, attempt, nil)
			return o.finish(series, StateSucceeded), nil

		case StateAttemptFailedRetryable:
			observability.RecordAttempt("retryable")
			if attempt >= o.policy.MaxAttempts {
				lastErr = &ExhaustedError{Attempts: attempt, Last: lastErr}
				state = o.transition(series, state, StateExhausted, attempt, lastErr)
				continue
			}
			o.logger.Printf("series %s: attempt %d failed, retrying in %s: %v", series.ID, attempt, o.policy.Backoff, lastErr)
			if err := o.sleep(ctx, o.policy.Backoff); err != nil {
				lastErr = err
				state = o.transition(series, state, StateAttemptFailedFatal, attempt, err)
				continue
			}
			attempt++
			state = o.transition(series, state, StateAttempting, attempt, nil)

		case StateAttemptFailedFatal:
			observability.RecordAttempt("fatal")
			o.logger.Printf("series %s: attempt %d failed: %v", series.ID, attempt, lastErr)
			o.transition(series, state, StateDone, attempt, lastErr)
			return o.finish(series, StateAttemptFailedFatal), lastErr

		case StateExhausted:
			o.logger.Printf("series %s: %v", series.ID, lastErr)
			o.transition(series, state, StateDone, attempt, lastErr)
			return o.finish(series, StateExhausted), lastErr

		default:
			return o.finish(series, state), fmt.Errorf("unexpected state %s", state)
		}
	}
}

// attempt runs checkpoint fetch, submission and confirmation once.
func (o *Orchestrator) attempt(ctx context.Context, series *Series, req domain.MintRequest, signer wallet.Signer, attempt int) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateAttemptFailedFatal, err
	}

	cp, err := o.checkpoints.Fetch(ctx, o.policy.Commitment)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateAttemptFailedFatal, ctxErr
		}
		return StateAttemptFailedRetryable, &AttemptError{Attempt: attempt, Stage: StageCheckpoint, Err: err}
	}
	o.logger.Printf("series %s: attempt %d using blockhash %s (valid until height %d)", series.ID, attempt, cp.Token, cp.ExpiryHeight)

	rec, err := o.submitter.Submit(ctx, req, cp, signer, attempt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateAttemptFailedFatal, ctxErr
		}
		if IsRetryable(err) {
			return StateAttemptFailedRetryable, &AttemptError{
				Attempt:         attempt,
				Stage:           StageSubmit,
				CheckpointToken: cp.Token,
				ExpiryHeight:    cp.ExpiryHeight,
				Err:             err,
			}
		}
		return StateAttemptFailedFatal, err
	}
	series.Submissions = append(series.Submissions, rec)

	deadline := o.now().Add(o.policy.ConfirmTimeout)
	status, err := o.poller.Await(ctx, rec.Signature, cp, deadline)
	series.Confirmation = status
	if err != nil {
		return StateAttemptFailedFatal, err
	}

	switch status.State {
	case domain.ConfirmationConfirmed:
		series.Outcome = domain.MintOutcome{TokenAddress: rec.TokenAddress, Signature: rec.Signature}
		o.logger.Printf("series %s: %s confirmed at %s in slot %d", series.ID, rec.Signature, status.Level, status.Slot)
		o.inspect(ctx, rec.Signature)
		return StateSucceeded, nil

	case domain.ConfirmationFailed:
		return StateAttemptFailedFatal, fmt.Errorf("%w: %s: %s", ErrConfirmationFailed, rec.Signature, status.Reason)

	default:
		reason := status.Reason
		if reason == "" {
			reason = domain.TimeoutDeadline
		}
		return StateAttemptFailedRetryable, &AttemptError{
			Attempt:         attempt,
			Stage:           StageConfirm,
			CheckpointToken: cp.Token,
			ExpiryHeight:    cp.ExpiryHeight,
			Signature:       rec.Signature,
			Err:             fmt.Errorf("%w: %s (height %d)", ErrConfirmationTimedOut, reason, status.ObservedHeight),
		}
	}
}

// inspect logs fee and compute usage of a confirmed transaction. Lookup
// failures are logged only.
func (o *Orchestrator) inspect(ctx context.Context, signature string) {
	if o.rpc == nil {
		return
	}
	tx, err := o.rpc.GetTransaction(ctx, signature)
	if err != nil {
		o.logger.Printf("get transaction %s: %v", signature, err)
		return
	}
	if tx == nil || tx.Meta == nil {
		return
	}
	if tx.Meta.ComputeUnitsConsumed == nil {
		o.logger.Printf("transaction %s: slot %d, fee %d", signature, tx.Slot, tx.Meta.Fee)
		return
	}
	units := *tx.Meta.ComputeUnitsConsumed
	observability.RecordComputeUnits(units)
	o.logger.Printf("transaction %s: slot %d, fee %d, compute units %d", signature, tx.Slot, tx.Meta.Fee, units)
	if units > computeUnitWarnThreshold {
		o.logger.Printf("WARNING: transaction %s consumed %d compute units (threshold %d)", signature, units, computeUnitWarnThreshold)
	}
}

func (o *Orchestrator) transition(series *Series, from, to State, attempt int, err error) State {
	if o.observer != nil {
		o.observer(Transition{
			SeriesID: series.ID,
			From:     from,
			To:       to,
			Attempt:  attempt,
			Err:      err,
			At:       o.now(),
		})
	}
	return to
}

func (o *Orchestrator) finish(series *Series, final State) *Series {
	series.FinalState = final
	series.FinishedAt = o.now()
	return series
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
