package mint

import (
	"context"
	"log"
	"time"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/solana"
)

// DefaultPollInterval is the delay between status lookups.
const DefaultPollInterval = 100 * time.Millisecond

// PollerOptions configures a Poller.
type PollerOptions struct {
	RPC solana.RPCClient

	// Watcher, when set, wakes the poller as soon as the node pushes a
	// signature notification. Polling continues regardless.
	Watcher solana.WSClient

	Interval   time.Duration
	Commitment domain.Commitment
	Logger     *log.Logger
}

// Poller waits for a submitted transaction to reach a terminal status.
type Poller struct {
	rpc        solana.RPCClient
	watcher    solana.WSClient
	interval   time.Duration
	commitment domain.Commitment
	logger     *log.Logger
	now        func() time.Time
}

// NewPoller creates a poller.
func NewPoller(opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	commitment := opts.Commitment
	if !commitment.IsValid() {
		commitment = domain.CommitmentConfirmed
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		rpc:        opts.RPC,
		watcher:    opts.Watcher,
		interval:   interval,
		commitment: commitment,
		logger:     logger,
		now:        time.Now,
	}
}

// Await polls until the signature is confirmed at the poller's commitment,
// fails on-chain, the checkpoint expires, or the deadline passes. The only
// error it returns is a context error.
//
// Once any lookup has seen the transaction, checkpoint expiry no longer
// applies, even if later lookups fail.
func (p *Poller) Await(ctx context.Context, signature string, cp domain.Checkpoint, deadline time.Time) (domain.ConfirmationStatus, error) {
	var (
		wake       <-chan solana.SignatureNotification
		subscribed chan (<-chan solana.SignatureNotification)
	)
	if p.watcher != nil {
		subCtx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()
		subscribed = make(chan (<-chan solana.SignatureNotification), 1)
		go p.subscribe(subCtx, signature, subscribed)
	}

	var (
		observed   uint64
		landedOnce bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return domain.ConfirmationStatus{State: domain.ConfirmationPending, ObservedHeight: observed}, err
		}

		st, landed := p.lookup(ctx, signature)
		if st.Terminal() {
			return st, nil
		}
		landedOnce = landedOnce || landed

		if !landedOnce {
			height, err := p.rpc.GetBlockHeight(ctx, p.commitment)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					p.logger.Printf("get block height: %v", err)
				}
			case cp.Expired(height):
				observed = height
				// One last look: it may have landed just before expiry.
				if final, _ := p.lookup(ctx, signature); final.Terminal() {
					return final, nil
				}
				return domain.TimedOut(domain.TimeoutCheckpointExpired, height), nil
			default:
				observed = height
			}
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return domain.TimedOut(domain.TimeoutDeadline, observed), nil
		}
		wait := p.interval
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
	waiting:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.ConfirmationStatus{State: domain.ConfirmationPending, ObservedHeight: observed}, ctx.Err()
			case ch := <-subscribed:
				subscribed = nil
				wake = ch
			case n, ok := <-wake:
				timer.Stop()
				wake = nil
				if ok && n.Err != nil {
					return domain.Failed(solana.FormatTxError(n.Err), n.Slot), nil
				}
				break waiting
			case <-timer.C:
				break waiting
			}
		}
	}
}

// subscribe opens the signature subscription off the polling path and hands
// the channel over, or nil when the subscription could not be opened.
func (p *Poller) subscribe(ctx context.Context, signature string, out chan<- (<-chan solana.SignatureNotification)) {
	ch, err := p.watcher.SubscribeSignature(ctx, signature, p.commitment)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Printf("signature subscribe %s failed, polling only: %v", signature, err)
		}
		ch = nil
	}
	out <- ch
}

// lookup fetches the signature status. landed reports whether the
// transaction is known to the node at any level.
func (p *Poller) lookup(ctx context.Context, signature string) (domain.ConfirmationStatus, bool) {
	statuses, err := p.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Printf("get signature status %s: %v", signature, err)
		}
		return domain.ConfirmationStatus{State: domain.ConfirmationPending}, false
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return domain.ConfirmationStatus{State: domain.ConfirmationPending}, false
	}

	st := statuses[0]
	if st.Err != nil {
		return domain.Failed(solana.FormatTxError(st.Err), st.Slot), true
	}

	level := st.ConfirmationStatus
	if level == "" && st.Confirmations == nil {
		// Rooted statuses from older nodes carry no level.
		level = domain.CommitmentFinalized
	}
	if level.Reaches(p.commitment) {
		return domain.Confirmed(st.Slot, level), true
	}
	return domain.ConfirmationStatus{State: domain.ConfirmationPending, Slot: st.Slot, Level: level}, true
}
