package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/pkg/model"
)

type fakeBalances struct {
	mu   sync.Mutex
	pool decimal.Decimal
	err  error
}

func (f *fakeBalances) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.pool, nil
}

func (f *fakeBalances) AccountBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	return f.PoolBalance(ctx)
}

func (f *fakeBalances) set(pool decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool = pool
}

type fundedEvents struct {
	mu     sync.Mutex
	events []model.PoolEvent
}

func (f *fundedEvents) PublishPoolFunded(ctx context.Context, evt model.PoolEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fundedEvents) all() []model.PoolEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PoolEvent(nil), f.events...)
}

func TestRunOncePicksUpNewFunding(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	balances := &fakeBalances{pool: decimal.NewFromInt(1000)}
	events := &fundedEvents{}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, events, time.Minute)
	r.runOnce(context.Background())

	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(1000)))
	assert.True(t, ldg.AvailableBalance().Equal(decimal.NewFromInt(1000)))

	got := events.all()
	require.Len(t, got, 1)
	assert.True(t, got[0].Funded.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got[0].TotalFunded.Equal(decimal.NewFromInt(1000)))
}

func TestRunOnceIncrementalFunding(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	balances := &fakeBalances{pool: decimal.NewFromInt(1000)}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, nil, time.Minute)
	r.runOnce(context.Background())
	require.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(1000)))

	// only the delta is applied on the next pass
	balances.set(decimal.NewFromInt(1500))
	r.runOnce(context.Background())
	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(1500)))
	assert.True(t, ldg.AvailableBalance().Equal(decimal.NewFromInt(1500)))
}

func TestRunOnceInSyncIsANoOp(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	require.NoError(t, ldg.Fund(decimal.NewFromInt(1000)))
	balances := &fakeBalances{pool: decimal.NewFromInt(1000)}
	events := &fundedEvents{}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, events, time.Minute)
	r.runOnce(context.Background())

	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, events.all())
}

func TestRunOnceDivergenceDoesNotMutateLedger(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	require.NoError(t, ldg.Fund(decimal.NewFromInt(1000)))
	balances := &fakeBalances{pool: decimal.NewFromInt(900)}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, nil, time.Minute)
	r.runOnce(context.Background())

	// shortfall is surfaced, never written back
	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(1000)))
	assert.True(t, ldg.AvailableBalance().Equal(decimal.NewFromInt(1000)))
}

func TestRunOnceBetweenExchangeAndDebitDoesNotFund(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	balances := &fakeBalances{pool: decimal.NewFromInt(1000)}
	events := &fundedEvents{}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, events, time.Minute)
	r.runOnce(context.Background())
	require.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(1000)))
	require.Len(t, events.all(), 1)

	now := time.Now()
	res, err := ldg.Reserve(decimal.NewFromInt(200))
	require.NoError(t, err)
	tok, err := ldg.FinalizeMint(res, "0xcustomer", now.Add(-time.Minute).Unix(), "")
	require.NoError(t, err)
	_, err = ldg.MarkExchanged(tok.ID, "0xcustomer", now)
	require.NoError(t, err)

	// The payout instruction is in flight: the node still reports 1000
	// while the mirror dropped to 800. That surplus is not fresh funding.
	r.runOnce(context.Background())
	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(800)))
	assert.True(t, ldg.AvailableBalance().Equal(decimal.NewFromInt(800)))
	assert.Len(t, events.all(), 1)

	// Debit lands on the settlement layer.
	balances.set(decimal.NewFromInt(800))
	r.runOnce(context.Background())
	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(800)))
	assert.Len(t, events.all(), 1)

	// Growth after the payout cleared is funding again.
	balances.set(decimal.NewFromInt(900))
	r.runOnce(context.Background())
	assert.True(t, ldg.TotalFunded().Equal(decimal.NewFromInt(900)))
	got := events.all()
	require.Len(t, got, 2)
	assert.True(t, got[1].Funded.Equal(decimal.NewFromInt(100)))
}

func TestRunOnceToleratesReadFailure(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	balances := &fakeBalances{err: errors.New("node down")}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, nil, time.Minute)
	r.runOnce(context.Background())

	assert.True(t, ldg.TotalFunded().IsZero())
}

func TestStartStops(t *testing.T) {
	ldg := ledger.New(zap.NewNop())
	balances := &fakeBalances{pool: decimal.NewFromInt(100)}

	r := NewReconciler(zap.NewNop(), ldg, balances, nil, nil, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	// the immediate first pass applies the funding
	assert.Eventually(t, func() bool {
		return ldg.TotalFunded().Equal(decimal.NewFromInt(100))
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}

	// a second Stop, as during overlapping shutdown paths, must not panic
	assert.NotPanics(t, func() { r.Stop() })
}
