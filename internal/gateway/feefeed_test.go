package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// feeServer upgrades each connection and pushes the given frames.
func feeServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close() //nolint:errcheck
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// hold the connection open so the feed does not reconnect-loop
		time.Sleep(time.Second)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeeFeedLatestStartsStale(t *testing.T) {
	f := NewFeeFeed(zap.NewNop(), "ws://unused", time.Minute)

	_, fresh := f.Latest()
	assert.False(t, fresh)
}

func TestFeeFeedTracksUpdates(t *testing.T) {
	srv := feeServer(t, []string{
		`{"fee_price":"25000000000","head":12}`,
		`not json`,
		`{"fee_price":"0"}`,
	})

	f := NewFeeFeed(zap.NewNop(), wsURL(srv), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Start(ctx)
	defer f.Stop()

	assert.Eventually(t, func() bool {
		price, fresh := f.Latest()
		return fresh && price.Equal(decimal.RequireFromString("25000000000"))
	}, 2*time.Second, 10*time.Millisecond)

	// garbage frames and non-positive prices never overwrite the quote
	price, fresh := f.Latest()
	assert.True(t, fresh)
	assert.True(t, price.Equal(decimal.RequireFromString("25000000000")))
}

func TestFeeFeedQuoteExpires(t *testing.T) {
	f := NewFeeFeed(zap.NewNop(), "ws://unused", 10*time.Millisecond)
	f.mu.Lock()
	f.latest = decimal.RequireFromString("30000000000")
	f.updated = time.Now().Add(-time.Second)
	f.mu.Unlock()

	_, fresh := f.Latest()
	assert.False(t, fresh)
}

func TestFeeFeedStopIsIdempotent(t *testing.T) {
	f := NewFeeFeed(zap.NewNop(), "ws://unused", time.Minute)

	f.Stop()
	assert.NotPanics(t, f.Stop)
}
