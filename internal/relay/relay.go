package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/internal/metrics"
	"github.com/quickvest/vesting-adapter/internal/signer"
)

// SubmitGateway is the settlement-node surface the relay depends on.
type SubmitGateway interface {
	FeePrice(ctx context.Context) (decimal.Decimal, error)
	NextSequence(ctx context.Context, account string) (uint64, error)
	Submit(ctx context.Context, signed *signer.SignedInstruction) (string, error)
}

// FeeHint supplies a fresh fee price without a round trip, if one is known.
type FeeHint interface {
	Latest() (decimal.Decimal, bool)
}

// MintPayload encodes a "register token" call on the pool contract.
type MintPayload struct {
	Op       string          `json:"op"` // "register_token"
	Owner    string          `json:"owner"`
	Amount   decimal.Decimal `json:"amount"`
	Maturity int64           `json:"maturity"`
}

// PayoutPayload encodes a currency transfer to a token owner.
type PayoutPayload struct {
	Op      string `json:"op"` // "payout"
	TokenID uint64 `json:"token_id"`
}

// Relay owns the custodian's outbound sequence stream. The settlement layer
// rejects out-of-order or duplicate sequence numbers, so the fetch-sequence /
// sign / submit triple runs under one mutex with a single in-flight
// submission at a time per signing identity.
type Relay struct {
	mu sync.Mutex

	logger   *zap.Logger
	gw       SubmitGateway
	signer   *signer.Signer
	feeHint  FeeHint
	gasLimit uint64
}

// New constructs the custodian relay. feeHint may be nil.
func New(logger *zap.Logger, gw SubmitGateway, sgn *signer.Signer, feeHint FeeHint, gasLimit uint64) *Relay {
	return &Relay{
		logger:   logger,
		gw:       gw,
		signer:   sgn,
		feeHint:  feeHint,
		gasLimit: gasLimit,
	}
}

// Submit prices, sequences, signs, and submits one instruction. operation
// tags metrics and logs ("mint", "payout"). A transient failure surfaces as
// ledger.ErrSubmissionFailed; a node rejection as *gateway.Error. The caller
// decides whether to roll back and whether to retry the whole operation.
func (r *Relay) Submit(ctx context.Context, operation, destination string, value decimal.Decimal, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	feePrice, err := r.feePrice(ctx)
	if err != nil {
		metrics.IncSubmission(operation, "fee_price_failed")
		return "", fmt.Errorf("%w: fee price: %v", ledger.ErrSubmissionFailed, err)
	}

	seq, err := r.gw.NextSequence(ctx, r.signer.Account())
	if err != nil {
		metrics.IncSubmission(operation, "sequence_failed")
		return "", fmt.Errorf("%w: next sequence: %v", ledger.ErrSubmissionFailed, err)
	}

	signed, err := r.signer.Sign(signer.Instruction{
		Sequence:    seq,
		FeePrice:    feePrice,
		GasLimit:    r.gasLimit,
		Destination: destination,
		Value:       value,
		Payload:     data,
	})
	if err != nil {
		metrics.IncSubmission(operation, "sign_failed")
		return "", fmt.Errorf("sign instruction: %w", err)
	}

	txID, err := r.gw.Submit(ctx, signed)
	metrics.ObserveDuration(metrics.SubmissionDuration, start, operation)
	if err != nil {
		metrics.IncSubmission(operation, "failed")
		r.logger.Warn("relay.submit_failed",
			zap.String("operation", operation),
			zap.Uint64("sequence", seq),
			zap.Error(err))
		return "", err
	}

	metrics.IncSubmission(operation, "ok")
	r.logger.Info("relay.submitted",
		zap.String("operation", operation),
		zap.Uint64("sequence", seq),
		zap.String("tx_id", txID),
		zap.String("destination", destination))
	return txID, nil
}

func (r *Relay) feePrice(ctx context.Context) (decimal.Decimal, error) {
	if r.feeHint != nil {
		if price, ok := r.feeHint.Latest(); ok {
			return price, nil
		}
	}
	return r.gw.FeePrice(ctx)
}
