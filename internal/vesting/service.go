package vesting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/internal/metrics"
	"github.com/quickvest/vesting-adapter/internal/relay"
	"github.com/quickvest/vesting-adapter/internal/store"
	"github.com/quickvest/vesting-adapter/pkg/config"
	"github.com/quickvest/vesting-adapter/pkg/model"
)

const statusCacheKey = "vesting:status"

// Submitter is the relay surface the services depend on.
type Submitter interface {
	Submit(ctx context.Context, operation, destination string, value decimal.Decimal, payload any) (string, error)
}

// BalanceReader supplies settlement-layer balance reads for receipts.
type BalanceReader interface {
	PoolBalance(ctx context.Context) (decimal.Decimal, error)
	AccountBalance(ctx context.Context, account string) (decimal.Decimal, error)
}

// EventPublisher emits canonical vesting events. May be nil (events disabled).
type EventPublisher interface {
	PublishTokenEvent(ctx context.Context, eventType string, evt model.TokenEvent) error
}

// Service executes mint, exchange, and revoke against the shared ledger,
// coordinating ledger state with settlement submission. Commit is deferred
// until the settlement layer acknowledges the instruction.
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	ledger    *ledger.Ledger
	relay     Submitter
	balances  BalanceReader
	store     store.Store
	publisher EventPublisher
}

// NewService wires the vesting services. store and publisher may be nil.
func NewService(
	cfg *config.Config,
	logger *zap.Logger,
	ldg *ledger.Ledger,
	rly Submitter,
	balances BalanceReader,
	st store.Store,
	pub EventPublisher,
) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		ledger:    ldg,
		relay:     rly,
		balances:  balances,
		store:     st,
		publisher: pub,
	}
}

// MintRequest asks the custodian to issue one vesting token.
// Amount is in base units. Maturity 0 applies the default vesting term.
type MintRequest struct {
	Owner     string
	Amount    decimal.Decimal
	Maturity  int64
	Requester string
}

// ExchangeRequest converts a matured token into a payout to its owner.
type ExchangeRequest struct {
	TokenID   uint64
	Requester string
}

// RevokeRequest reclaims an unmatured token for the pool.
type RevokeRequest struct {
	TokenID   uint64
	Requester string
}

// Ledger exposes the shared ledger for read-only callers (API status).
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Mint validates, reserves, submits, and commits one token issuance.
// Exactly one settlement instruction and one committed token per successful
// call. There is no internal retry: a failed submission releases the
// reservation, and the caller may re-invoke, which re-reserves independently.
func (s *Service) Mint(ctx context.Context, req MintRequest) (*model.MintReceipt, error) {
	if req.Requester != s.cfg.CustodianAddress {
		return nil, fmt.Errorf("mint: %w: only the custodian may mint", ledger.ErrUnauthorized)
	}
	if err := validateAddress(req.Owner); err != nil {
		return nil, fmt.Errorf("mint: owner: %w", err)
	}
	if req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("mint: %w: amount must be positive", ledger.ErrInvalidArgument)
	}

	maturity := req.Maturity
	if maturity == 0 {
		maturity = time.Now().Add(s.cfg.DefaultVestingTerm).Unix()
	}

	// Pre-state reads are for the receipt only, not correctness.
	initialSupply := s.ledger.ActiveCount()
	initialAvailable := s.ledger.AvailableBalance()

	res, err := s.ledger.Reserve(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	payload := relay.MintPayload{
		Op:       "register_token",
		Owner:    req.Owner,
		Amount:   req.Amount,
		Maturity: maturity,
	}
	txID, err := s.relay.Submit(ctx, "mint", s.cfg.PoolAddress, decimal.Zero, payload)
	if err != nil {
		if relErr := s.ledger.Release(res); relErr != nil {
			s.logger.Error("mint.rollback_failed", zap.Error(relErr))
		}
		return nil, fmt.Errorf("mint: %w", err)
	}

	tok, err := s.ledger.FinalizeMint(res, req.Owner, maturity, txID)
	if err != nil {
		// Reservation misuse is a programming error; the submission already
		// landed, so surface loudly instead of hiding it.
		s.logger.Error("mint.finalize_failed", zap.String("tx_id", txID), zap.Error(err))
		return nil, fmt.Errorf("mint: finalize: %w", err)
	}

	s.persistToken(ctx, "token.minted", *tok)

	receipt := &model.MintReceipt{
		TransactionID:           txID,
		TokenID:                 tok.ID,
		Owner:                   tok.Owner,
		Amount:                  tok.Amount,
		Maturity:                tok.Maturity,
		InitialSupply:           initialSupply,
		InitialAvailableBalance: initialAvailable,
		FinalSupply:             s.ledger.ActiveCount(),
		FinalAvailableBalance:   s.ledger.AvailableBalance(),
		FinalTokenOwnerTokenCnt: len(s.ledger.TokensOf(tok.Owner)),
	}
	s.stampSettlementBalances(ctx, receipt)

	s.logger.Info("mint.committed",
		zap.Uint64("token_id", tok.ID),
		zap.String("owner", tok.Owner),
		zap.String("amount", tok.Amount.String()),
		zap.Int64("maturity", tok.Maturity),
		zap.String("tx_id", txID))
	return receipt, nil
}

// Exchange converts a matured token into a currency payout to its owner. The
// ledger mark happens before submission; a failed submission afterwards is a
// recognized reconciliation gap, recorded rather than silently lost.
func (s *Service) Exchange(ctx context.Context, req ExchangeRequest) (*model.PayoutReceipt, error) {
	now := time.Now()
	tok, err := s.ledger.MarkExchanged(req.TokenID, req.Requester, now)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	amount := tok.Amount

	payload := relay.PayoutPayload{Op: "payout", TokenID: req.TokenID}
	txID, err := s.relay.Submit(ctx, "payout", req.Requester, amount, payload)
	if err != nil {
		// Token stays EXCHANGED; the payout has not been observed on the
		// settlement layer. Record the gap for the out-of-band audit.
		metrics.ReconciliationGaps.Inc()
		s.logger.Error("exchange.payout_submission_failed",
			zap.Uint64("token_id", req.TokenID),
			zap.String("owner", req.Requester),
			zap.String("amount", amount.String()),
			zap.Error(err))
		if s.store != nil {
			if gapErr := s.store.RecordReconciliationGap(ctx, tok, "payout submission failed after exchange mark"); gapErr != nil {
				s.logger.Error("exchange.gap_record_failed", zap.Error(gapErr))
			}
		}
		s.persistToken(ctx, "token.exchanged", tok)
		return nil, fmt.Errorf("exchange: %w", err)
	}

	s.persistToken(ctx, "token.exchanged", tok)
	if s.publisher != nil {
		evt := model.TokenEvent{
			TokenID:       tok.ID,
			Owner:         tok.Owner,
			Amount:        amount,
			Status:        model.StatusExchanged,
			TransactionID: txID,
		}
		if err := s.publisher.PublishTokenEvent(ctx, "token.exchanged", evt); err != nil {
			s.logger.Warn("exchange.publish_failed", zap.Error(err))
		}
	}

	s.logger.Info("exchange.committed",
		zap.Uint64("token_id", tok.ID),
		zap.String("owner", tok.Owner),
		zap.String("amount", amount.String()),
		zap.String("tx_id", txID))

	return &model.PayoutReceipt{
		TransactionID: txID,
		TokenID:       tok.ID,
		Owner:         tok.Owner,
		Amount:        amount,
		ExchangedAt:   now.UTC(),
	}, nil
}

// Revoke reclaims an unmatured token for the pool. The funds never left
// custody, so no settlement instruction is required; the amount simply
// returns to the available balance.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) error {
	if req.Requester != s.cfg.CustodianAddress {
		return fmt.Errorf("revoke: %w: only the custodian may revoke", ledger.ErrUnauthorized)
	}

	tok, err := s.ledger.MarkRevoked(req.TokenID, time.Now())
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	amount := tok.Amount

	s.persistToken(ctx, "token.revoked", tok)
	if s.publisher != nil {
		evt := model.TokenEvent{
			TokenID: tok.ID,
			Owner:   tok.Owner,
			Amount:  amount,
			Status:  model.StatusRevoked,
		}
		if err := s.publisher.PublishTokenEvent(ctx, "token.revoked", evt); err != nil {
			s.logger.Warn("revoke.publish_failed", zap.Error(err))
		}
	}

	s.logger.Info("revoke.committed",
		zap.Uint64("token_id", tok.ID),
		zap.String("owner", tok.Owner),
		zap.String("amount", amount.String()))
	return nil
}

// persistToken journals the event and refreshes the projections. The ledger
// is authoritative at runtime, so persistence failures log and move on; the
// reconciliation job repairs projections on its next pass.
func (s *Service) persistToken(ctx context.Context, eventType string, tok model.Token) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordTokenEvent(ctx, eventType, tok); err != nil {
		s.logger.Warn("persist.event_failed", zap.String("event", eventType), zap.Error(err))
	}
	if err := s.store.UpsertTokenSnapshot(ctx, tok); err != nil {
		s.logger.Warn("persist.snapshot_failed", zap.Uint64("token_id", tok.ID), zap.Error(err))
	}
	status := s.ledger.Status()
	if err := s.store.UpdatePoolSnapshot(ctx, status); err != nil {
		s.logger.Warn("persist.pool_snapshot_failed", zap.Error(err))
	}
	if err := s.store.SetJSON(ctx, statusCacheKey, status, 5*time.Minute); err != nil {
		s.logger.Debug("persist.status_cache_failed", zap.Error(err))
	}

	if eventType == "token.minted" && s.publisher != nil {
		evt := model.TokenEvent{
			TokenID:       tok.ID,
			Owner:         tok.Owner,
			Amount:        tok.Amount,
			Maturity:      tok.Maturity,
			Status:        tok.Status,
			TransactionID: tok.MintTxID,
		}
		if err := s.publisher.PublishTokenEvent(ctx, eventType, evt); err != nil {
			s.logger.Warn("persist.publish_failed", zap.Error(err))
		}
	}
}

// stampSettlementBalances fills the receipt's settlement-layer reads. These
// are informational; a failed read leaves zeros and logs.
func (s *Service) stampSettlementBalances(ctx context.Context, receipt *model.MintReceipt) {
	if s.balances == nil {
		return
	}
	if bal, err := s.balances.PoolBalance(ctx); err == nil {
		receipt.FinalContractBalance = bal
	} else {
		s.logger.Warn("receipt.pool_balance_read_failed", zap.Error(err))
	}
	if bal, err := s.balances.AccountBalance(ctx, receipt.Owner); err == nil {
		receipt.FinalTokenOwnerBalance = bal
	} else {
		s.logger.Warn("receipt.owner_balance_read_failed", zap.Error(err))
	}
}

// validateAddress checks the settlement-layer address shape (0x + 40 hex).
func validateAddress(addr string) error {
	a := strings.TrimSpace(addr)
	if len(a) != 42 || !strings.HasPrefix(a, "0x") {
		return fmt.Errorf("%w: malformed account address %q", ledger.ErrInvalidArgument, addr)
	}
	for _, c := range a[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return fmt.Errorf("%w: malformed account address %q", ledger.ErrInvalidArgument, addr)
		}
	}
	return nil
}
