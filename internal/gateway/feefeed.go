package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// feeUpdate is one message on the node's fee stream.
type feeUpdate struct {
	FeePrice decimal.Decimal `json:"fee_price"`
	Head     uint64          `json:"head,omitempty"`
}

// FeeFeed subscribes to the settlement node's websocket fee-price stream and
// keeps the latest quote in memory. The relay uses it as a hint; when the
// feed is stale or disabled, callers fall back to the HTTP FeePrice read.
type FeeFeed struct {
	logger *zap.Logger
	url    string

	mu      sync.RWMutex
	latest  decimal.Decimal
	updated time.Time

	maxAge   time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewFeeFeed creates a fee feed for the given websocket URL.
func NewFeeFeed(logger *zap.Logger, url string, maxAge time.Duration) *FeeFeed {
	return &FeeFeed{
		logger: logger,
		url:    url,
		maxAge: maxAge,
		stopCh: make(chan struct{}),
	}
}

// Start runs the subscription loop with reconnect backoff until Stop or
// context cancellation.
func (f *FeeFeed) Start(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		if err := f.run(ctx); err != nil {
			f.logger.Warn("feefeed.disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		select {
		case <-time.After(backoff):
			if backoff < 30*time.Second {
				backoff *= 2
			}
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		}
	}
}

func (f *FeeFeed) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	f.logger.Info("feefeed.connected", zap.String("url", f.url))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopCh:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var upd feeUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			f.logger.Debug("feefeed.bad_message", zap.Error(err))
			continue
		}
		if upd.FeePrice.Sign() <= 0 {
			continue
		}

		f.mu.Lock()
		f.latest = upd.FeePrice
		f.updated = time.Now()
		f.mu.Unlock()
	}
}

// Latest returns the most recent fee price and whether it is fresh enough to
// stamp on an instruction.
func (f *FeeFeed) Latest() (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.updated.IsZero() || time.Since(f.updated) > f.maxAge {
		return decimal.Zero, false
	}
	return f.latest, true
}

// Stop halts the subscription loop. Safe to call more than once.
func (f *FeeFeed) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}
