package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/internal/store"
	"github.com/quickvest/vesting-adapter/internal/vesting"
	"github.com/quickvest/vesting-adapter/pkg/model"
)

// PoolFundedPublisher emits pool.funded events. May be nil.
type PoolFundedPublisher interface {
	PublishPoolFunded(ctx context.Context, evt model.PoolEvent) error
}

// Reconciler periodically compares the ledger's view of the pool with the
// settlement layer. Growth in the on-ledger pool balance beyond the payouts
// still in flight is treated as new custodian funding; shrinkage below the
// mirrored total is a divergence the service cannot repair on its own, so it
// is logged for the operator. The balance comparison itself runs inside the
// ledger's critical section so a concurrent exchange cannot be misread as a
// deposit.
type Reconciler struct {
	logger    *zap.Logger
	ledger    *ledger.Ledger
	balances  vesting.BalanceReader
	store     store.Store
	publisher PoolFundedPublisher
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewReconciler constructs the background audit job.
func NewReconciler(
	logger *zap.Logger,
	ldg *ledger.Ledger,
	balances vesting.BalanceReader,
	st store.Store,
	pub PoolFundedPublisher,
	interval time.Duration,
) *Reconciler {
	return &Reconciler{
		logger:    logger,
		ledger:    ldg,
		balances:  balances,
		store:     st,
		publisher: pub,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the reconciliation loop.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler.started", zap.Duration("interval", r.interval))

	// one pass immediately so funding is picked up at boot
	r.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("reconciler.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("reconciler.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the reconciler. Safe to call more than once.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// runOnce executes one audit cycle.
func (r *Reconciler) runOnce(ctx context.Context) {
	onLedger, err := r.balances.PoolBalance(ctx)
	if err != nil {
		r.logger.Warn("reconciler.pool_balance_read_failed", zap.Error(err))
		return
	}

	funded, shortfall := r.ledger.ObservePoolBalance(onLedger)

	switch {
	case funded.Sign() > 0:
		// New deposit landed on the settlement layer.
		status := r.ledger.Status()
		r.logger.Info("reconciler.funding_observed",
			zap.String("amount", funded.String()),
			zap.String("total_funded", status.TotalFunded.String()))
		if r.publisher != nil {
			evt := model.PoolEvent{
				Funded:           funded,
				TotalFunded:      status.TotalFunded,
				AvailableBalance: status.AvailableBalance,
			}
			if err := r.publisher.PublishPoolFunded(ctx, evt); err != nil {
				r.logger.Warn("reconciler.publish_failed", zap.Error(err))
			}
		}
		if r.store != nil {
			if err := r.store.UpdatePoolSnapshot(ctx, status); err != nil {
				r.logger.Warn("reconciler.pool_snapshot_failed", zap.Error(err))
			}
		}

	case shortfall.Sign() > 0:
		// The settlement layer holds less than even the mirrored total: a
		// withdrawal the mirror knows nothing about. Operators resolve it;
		// we only surface it.
		r.logger.Error("reconciler.divergence_detected",
			zap.String("on_ledger", onLedger.String()),
			zap.String("mirrored", r.ledger.TotalFunded().String()),
			zap.String("shortfall", shortfall.String()))

	default:
		r.logger.Debug("reconciler.in_sync",
			zap.String("total_funded", r.ledger.TotalFunded().String()),
			zap.String("pending_payout", r.ledger.PendingPayout().String()))
	}
}
