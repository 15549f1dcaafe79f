package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/metrics"
	"github.com/quickvest/vesting-adapter/pkg/model"
)

// Ledger is the authoritative off-chain mirror of the vesting pool and its
// tokens. All mutations run inside a single critical section so that the
// conservation law
//
//	sum(amount of ACTIVE tokens) + availableBalance == totalFunded
//
// holds at every committed state. Settlement submission happens outside the
// lock; mints reserve first and commit only after acknowledgement.
type Ledger struct {
	mu sync.Mutex

	totalFunded decimal.Decimal
	available   decimal.Decimal
	// pendingPayout is the sum of exchange payouts whose debit has not yet
	// been observed on the settlement layer. Reconciliation must not read
	// that still-present balance as new funding.
	pendingPayout decimal.Decimal
	tokens        map[uint64]*model.Token
	nextID        uint64

	logger *zap.Logger
}

// New creates an empty ledger. Token ids start at 1.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		totalFunded:   decimal.Zero,
		available:     decimal.Zero,
		pendingPayout: decimal.Zero,
		tokens:        make(map[uint64]*model.Token),
		nextID:        1,
		logger:        logger,
	}
}

// reservationState tracks the two-phase mint lifecycle:
// Reserved -> Committed, or Reserved -> Released.
type reservationState int

const (
	reserved reservationState = iota
	committed
	released
)

// Reservation is a tentative hold on available balance pending settlement
// acknowledgement. It must be finalized or released exactly once.
type Reservation struct {
	l      *Ledger
	amount decimal.Decimal
	state  reservationState
}

// Amount returns the reserved quantity.
func (r *Reservation) Amount() decimal.Decimal { return r.amount }

// Fund records a custodian deposit observed on the settlement layer.
// totalFunded is monotonically non-decreasing through this path.
func (l *Ledger) Fund(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: funding amount must be positive", ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalFunded = l.totalFunded.Add(amount)
	l.available = l.available.Add(amount)
	l.publishGauges()

	l.logger.Info("ledger.funded",
		zap.String("amount", amount.String()),
		zap.String("total_funded", l.totalFunded.String()))
	return nil
}

// Reserve atomically checks and decrements the available balance. The
// returned reservation keeps the hold until FinalizeMint or Release. Two
// concurrent reservations can never together exceed the available balance.
func (l *Ledger) Reserve(amount decimal.Decimal) (*Reservation, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.available.Cmp(amount) < 0 {
		metrics.IncLedgerOp("reserve", "insufficient_funds")
		return nil, fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientFunds, amount.String(), l.available.String())
	}

	l.available = l.available.Sub(amount)
	l.publishGauges()
	metrics.IncLedgerOp("reserve", "ok")

	return &Reservation{l: l, amount: amount, state: reserved}, nil
}

// FinalizeMint converts a reservation into a committed ACTIVE token and
// returns the new token. Valid exactly once per reservation.
func (l *Ledger) FinalizeMint(res *Reservation, owner string, maturity int64, txID string) (*model.Token, error) {
	if res == nil || res.l != l {
		return nil, fmt.Errorf("%w: foreign or nil reservation", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if res.state != reserved {
		return nil, fmt.Errorf("%w: reservation already settled", ErrInvalidArgument)
	}
	res.state = committed

	tok := &model.Token{
		ID:       l.nextID,
		Owner:    owner,
		Amount:   res.amount,
		Maturity: maturity,
		Status:   model.StatusActive,
		MintedAt: time.Now().UTC(),
		MintTxID: txID,
	}
	l.nextID++ // ids are never reused
	l.tokens[tok.ID] = tok
	l.publishGauges()
	metrics.IncLedgerOp("mint", "ok")

	return tok, nil
}

// Release restores a reservation's hold after a failed submission, leaving
// the ledger exactly as before the reserve. Idempotent-safe: releasing a
// settled reservation is rejected.
func (l *Ledger) Release(res *Reservation) error {
	if res == nil || res.l != l {
		return fmt.Errorf("%w: foreign or nil reservation", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if res.state != reserved {
		return fmt.Errorf("%w: reservation already settled", ErrInvalidArgument)
	}
	res.state = released
	l.available = l.available.Add(res.amount)
	l.publishGauges()
	metrics.IncLedgerOp("release", "ok")

	return nil
}

// MarkExchanged transitions an ACTIVE, matured token to EXCHANGED and returns
// a copy of the updated token. The amount leaves the pool permanently, so
// both sides of the conservation law drop together; it also joins the
// pending-payout total until the settlement debit is observed.
func (l *Ledger) MarkExchanged(id uint64, requester string, now time.Time) (model.Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[id]
	if !ok {
		return model.Token{}, fmt.Errorf("token %d: %w", id, ErrTokenNotFound)
	}
	if tok.Owner != requester {
		return model.Token{}, fmt.Errorf("token %d: %w: only the owner may exchange", id, ErrUnauthorized)
	}
	if tok.Status != model.StatusActive {
		return model.Token{}, fmt.Errorf("token %d: %w (status %s)", id, ErrTokenNotActive, tok.Status)
	}
	if now.Unix() < tok.Maturity {
		return model.Token{}, fmt.Errorf("token %d: %w (matures at %d)", id, ErrNotYetMatured, tok.Maturity)
	}

	tok.Status = model.StatusExchanged
	l.totalFunded = l.totalFunded.Sub(tok.Amount)
	l.pendingPayout = l.pendingPayout.Add(tok.Amount)
	l.publishGauges()
	metrics.IncLedgerOp("exchange", "ok")

	return *tok, nil
}

// MarkRevoked transitions an ACTIVE, unmatured token to REVOKED, adds its
// amount back into the available balance, and returns a copy of the updated
// token; the funds never left custody.
func (l *Ledger) MarkRevoked(id uint64, now time.Time) (model.Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[id]
	if !ok {
		return model.Token{}, fmt.Errorf("token %d: %w", id, ErrTokenNotFound)
	}
	if tok.Status != model.StatusActive {
		return model.Token{}, fmt.Errorf("token %d: %w (status %s)", id, ErrTokenNotActive, tok.Status)
	}
	if now.Unix() >= tok.Maturity {
		return model.Token{}, fmt.Errorf("token %d: %w (matured at %d)", id, ErrAlreadyMatured, tok.Maturity)
	}

	tok.Status = model.StatusRevoked
	l.available = l.available.Add(tok.Amount)
	l.publishGauges()
	metrics.IncLedgerOp("revoke", "ok")

	return *tok, nil
}

// AvailableBalance reflects committed state only; in-flight reservations have
// already been deducted.
func (l *Ledger) AvailableBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// TotalFunded returns the pool's funded amount net of exchanged payouts.
func (l *Ledger) TotalFunded() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalFunded
}

// PendingPayout returns the total of exchange payouts not yet observed as
// debited on the settlement layer.
func (l *Ledger) PendingPayout() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingPayout
}

// ObservePoolBalance folds one settlement-layer balance reading into the
// mirror, inside the same critical section as the state it compares against.
// Growth is credited as funding only beyond the payouts still awaiting their
// debit; an observed debit retires that pending amount first. A balance
// below even the mirrored total is returned as a shortfall for the operator
// and never written back.
func (l *Ledger) ObservePoolBalance(onLedger decimal.Decimal) (funded, shortfall decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	gap := onLedger.Sub(l.totalFunded)
	switch {
	case gap.Sign() < 0:
		l.pendingPayout = decimal.Zero
		return decimal.Zero, gap.Neg()

	case gap.Cmp(l.pendingPayout) < 0:
		// part of the pending payouts has been debited
		l.pendingPayout = gap
		return decimal.Zero, decimal.Zero

	default:
		funded = gap.Sub(l.pendingPayout)
		if funded.Sign() > 0 {
			l.totalFunded = l.totalFunded.Add(funded)
			l.available = l.available.Add(funded)
			l.publishGauges()
			metrics.IncLedgerOp("fund", "ok")
		}
		return funded, decimal.Zero
	}
}

// ActiveCount returns the number of ACTIVE tokens (the token supply).
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeCountLocked()
}

func (l *Ledger) activeCountLocked() int {
	n := 0
	for _, t := range l.tokens {
		if t.Status == model.StatusActive {
			n++
		}
	}
	return n
}

// Token returns a copy of the token with the given id.
func (l *Ledger) Token(id uint64) (model.Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tok, ok := l.tokens[id]
	if !ok {
		return model.Token{}, fmt.Errorf("token %d: %w", id, ErrTokenNotFound)
	}
	return *tok, nil
}

// TokensOf returns copies of the owner's ACTIVE tokens, ordered by id.
func (l *Ledger) TokensOf(owner string) []model.Token {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Token
	for _, t := range l.tokens {
		if t.Owner == owner && t.Status == model.StatusActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status returns a consistent pool snapshot.
func (l *Ledger) Status() model.PoolStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.PoolStatus{
		TotalFunded:      l.totalFunded,
		AvailableBalance: l.available,
		ActiveTokens:     l.activeCountLocked(),
		AsOf:             time.Now().UTC(),
	}
}

// Restore rehydrates the ledger from persisted state at boot. It rejects
// states violating the conservation law. Must be called before the ledger
// serves traffic.
func (l *Ledger) Restore(totalFunded, available decimal.Decimal, tokens []model.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if available.Sign() < 0 || totalFunded.Sign() < 0 {
		return fmt.Errorf("%w: negative balances in restored state", ErrInvalidArgument)
	}

	activeSum := decimal.Zero
	maxID := uint64(0)
	restored := make(map[uint64]*model.Token, len(tokens))
	for i := range tokens {
		t := tokens[i]
		if _, dup := restored[t.ID]; dup {
			return fmt.Errorf("%w: duplicate token id %d", ErrInvalidArgument, t.ID)
		}
		if t.Status == model.StatusActive {
			activeSum = activeSum.Add(t.Amount)
		}
		if t.ID > maxID {
			maxID = t.ID
		}
		restored[t.ID] = &t
	}

	if !activeSum.Add(available).Equal(totalFunded) {
		return fmt.Errorf("%w: restored state violates conservation (active %s + available %s != funded %s)",
			ErrInvalidArgument, activeSum.String(), available.String(), totalFunded.String())
	}

	l.totalFunded = totalFunded
	l.available = available
	l.pendingPayout = decimal.Zero
	l.tokens = restored
	l.nextID = maxID + 1
	l.publishGauges()
	return nil
}

func (l *Ledger) publishGauges() {
	f, _ := l.available.Float64()
	metrics.AvailableBalance.Set(f)
	metrics.ActiveTokens.Set(float64(l.activeCountLocked()))
}
