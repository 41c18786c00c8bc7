package mint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/solana"
	"puzzle-mint/internal/wallet"
)

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	RPC solana.RPCClient

	// PreflightCommitment is the level the node simulates against.
	PreflightCommitment domain.Commitment

	// SkipPreflight disables node-side simulation.
	SkipPreflight bool

	Logger *log.Logger
}

// Submitter builds, signs and sends one token-creation transaction per call.
type Submitter struct {
	rpc        solana.RPCClient
	preflight  domain.Commitment
	skip       bool
	logger     *log.Logger
	newAccount func() types.Account
	now        func() time.Time

	rentMu sync.Mutex
	rent   uint64
}

// NewSubmitter creates a submitter.
func NewSubmitter(opts SubmitterOptions) *Submitter {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	preflight := opts.PreflightCommitment
	if !preflight.IsValid() {
		preflight = domain.CommitmentConfirmed
	}
	return &Submitter{
		rpc:        opts.RPC,
		preflight:  preflight,
		skip:       opts.SkipPreflight,
		logger:     logger,
		newAccount: types.NewAccount,
		now:        time.Now,
	}
}

// Submit sends a transaction referencing the checkpoint and returns its
// record. Each call creates a new token account, so a resubmission after a
// failed attempt never reuses a signature.
//
// Errors wrap ErrSignerUnavailable, ErrSimulationFailed or
// ErrSubmissionRejected.
func (s *Submitter) Submit(ctx context.Context, req domain.MintRequest, cp domain.Checkpoint, signer wallet.Signer, attempt int) (domain.SubmissionRecord, error) {
	if err := wallet.CheckReady(signer); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: %w", ErrSignerUnavailable, err)
	}
	payer := common.PublicKeyFromString(signer.Identity())

	rent, err := s.mintRent(ctx)
	if err != nil {
		// Nothing was sent; safe to retry with a new checkpoint.
		return domain.SubmissionRecord{}, fmt.Errorf("%w: get mint rent: %w", ErrSimulationFailed, err)
	}

	mintAccount := s.newAccount()
	msg, err := BuildMintMessage(req, cp, payer, mintAccount.PublicKey, rent)
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: build message: %w", ErrSubmissionRejected, err)
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: msg,
		Signers: []types.Account{mintAccount},
	})
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: new transaction: %w", ErrSubmissionRejected, err)
	}

	data, err := msg.Serialize()
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: serialize message: %w", ErrSubmissionRejected, err)
	}
	payerSig, err := signer.SignMessage(ctx, data)
	if err != nil {
		if errors.Is(err, wallet.ErrDisconnected) {
			return domain.SubmissionRecord{}, fmt.Errorf("%w: %w", ErrSignerUnavailable, err)
		}
		return domain.SubmissionRecord{}, fmt.Errorf("%w: sign: %w", ErrSubmissionRejected, err)
	}
	if err := tx.AddSignature(payerSig); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: signer returned invalid signature: %w", ErrSubmissionRejected, err)
	}

	raw, err := tx.Serialize()
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: serialize transaction: %w", ErrSubmissionRejected, err)
	}
	signature := base58.Encode(tx.Signatures[0])

	got, err := s.rpc.SendTransaction(ctx, raw, solana.SendOptions{
		SkipPreflight:       s.skip,
		PreflightCommitment: s.preflight,
	})
	if err != nil {
		return domain.SubmissionRecord{}, classifySendError(err)
	}
	if got != signature {
		return domain.SubmissionRecord{}, fmt.Errorf("%w: node returned signature %s, expected %s", ErrSubmissionRejected, got, signature)
	}

	s.logger.Printf("attempt %d: sent %s (token %s, blockhash %s)", attempt, signature, mintAccount.PublicKey.ToBase58(), cp.Token)

	return domain.SubmissionRecord{
		Signature:       signature,
		CheckpointToken: cp.Token,
		TokenAddress:    mintAccount.PublicKey.ToBase58(),
		AttemptIndex:    attempt,
		SubmittedAt:     s.now(),
	}, nil
}

// classifySendError separates preflight refusals, which are safe to retry,
// from everything else. A transport failure is treated as fatal because the
// transaction may have reached the network.
func classifySendError(err error) error {
	if solana.IsPreflightRejection(err) {
		rpcErr, _ := solana.AsRPCError(err)
		if reason := rpcErr.SimulationErr(); reason != "" {
			return fmt.Errorf("%w: %s: %w", ErrSimulationFailed, reason, err)
		}
		return fmt.Errorf("%w: %w", ErrSimulationFailed, err)
	}
	return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
}

func (s *Submitter) mintRent(ctx context.Context) (uint64, error) {
	s.rentMu.Lock()
	defer s.rentMu.Unlock()
	if s.rent > 0 {
		return s.rent, nil
	}
	rent, err := s.rpc.GetMinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return 0, err
	}
	s.rent = rent
	return rent, nil
}

// BuildMintMessage assembles the instructions that create a single-edition
// token owned by payer: mint account, metadata account, associated token
// account, one unit minted, master edition with zero supply.
func BuildMintMessage(req domain.MintRequest, cp domain.Checkpoint, payer, mint common.PublicKey, rent uint64) (types.Message, error) {
	ata, _, err := common.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return types.Message{}, fmt.Errorf("find associated token address: %w", err)
	}
	metadataPubkey, err := token_metadata.GetTokenMetaPubkey(mint)
	if err != nil {
		return types.Message{}, fmt.Errorf("get metadata address: %w", err)
	}
	editionPubkey, err := token_metadata.GetMasterEdition(mint)
	if err != nil {
		return types.Message{}, fmt.Errorf("get master edition address: %w", err)
	}

	maxSupply := uint64(0)

	return types.NewMessage(types.NewMessageParam{
		FeePayer:        payer,
		RecentBlockhash: cp.Token,
		Instructions: []types.Instruction{
			system.CreateAccount(system.CreateAccountParam{
				From:     payer,
				New:      mint,
				Owner:    common.TokenProgramID,
				Lamports: rent,
				Space:    token.MintAccountSize,
			}),
			token.InitializeMint(token.InitializeMintParam{
				Decimals:   0,
				Mint:       mint,
				MintAuth:   payer,
				FreezeAuth: &payer,
			}),
			token_metadata.CreateMetadataAccountV3(token_metadata.CreateMetadataAccountV3Param{
				Metadata:                metadataPubkey,
				Mint:                    mint,
				MintAuthority:           payer,
				UpdateAuthority:         payer,
				Payer:                   payer,
				UpdateAuthorityIsSigner: true,
				IsMutable:               req.Mutable,
				Data: token_metadata.DataV2{
					Name:                 req.Name,
					Symbol:               req.Symbol,
					Uri:                  req.LocatorURI,
					SellerFeeBasisPoints: req.RoyaltyBasisPoints,
					Creators: &[]token_metadata.Creator{
						{Address: payer, Verified: true, Share: 100},
					},
				},
			}),
			associated_token_account.CreateAssociatedTokenAccount(associated_token_account.CreateAssociatedTokenAccountParam{
				Funder:                 payer,
				Owner:                  payer,
				Mint:                   mint,
				AssociatedTokenAccount: ata,
			}),
			token.MintTo(token.MintToParam{
				Mint:   mint,
				To:     ata,
				Auth:   payer,
				Amount: 1,
			}),
			token_metadata.CreateMasterEditionV3(token_metadata.CreateMasterEditionParam{
				Edition:         editionPubkey,
				Mint:            mint,
				UpdateAuthority: payer,
				MintAuthority:   payer,
				Metadata:        metadataPubkey,
				Payer:           payer,
				MaxSupply:       &maxSupply,
			}),
		},
	}), nil
}
