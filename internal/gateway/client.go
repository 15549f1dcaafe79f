package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/httpclient"
	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/internal/metrics"
	"github.com/quickvest/vesting-adapter/internal/rate"
	"github.com/quickvest/vesting-adapter/internal/signer"
)

// Client wraps the settlement node's HTTP API: balance and fee reads,
// sequence queries, and signed-instruction submission. Reads retry on
// transient failures; Submit never retries internally, because a duplicate
// submission would burn or collide on the custodian's sequence number.
type Client struct {
	logger   *zap.Logger
	baseURL  string
	poolAddr string
	readExec *httpclient.Executor
	subExec  *httpclient.Executor
}

// NewClient constructs a settlement node client.
func NewClient(logger *zap.Logger, baseURL, poolAddr string, rateMgr *rate.Manager) *Client {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	onReject := func(status int, body []byte) error {
		var e Error
		if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
			e.Message = string(body)
			e.Code = "unknown"
		}
		e.Status = status
		logger.Warn("settle.rejected",
			zap.Int("status", status),
			zap.String("code", e.Code),
			zap.String("message", e.Message))
		return &e
	}
	return &Client{
		logger:   logger,
		baseURL:  baseURL,
		poolAddr: poolAddr,
		readExec: httpclient.New(logger, rateMgr, httpClient, 2, "settle", onReject),
		subExec:  httpclient.New(logger, rateMgr, httpClient, 0, "settle_submit", onReject),
	}
}

// PoolBalance returns the pool account's on-ledger balance in base units.
func (c *Client) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.AccountBalance(ctx, c.poolAddr)
}

// AccountBalance returns any account's on-ledger balance in base units.
func (c *Client) AccountBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	var out balanceResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/accounts/%s/balance", account), &out); err != nil {
		metrics.IncSettleRequest("account_balance", "error")
		return decimal.Zero, err
	}
	metrics.IncSettleRequest("account_balance", "ok")
	return out.Balance, nil
}

// FeePrice returns the node's current fee price quote.
func (c *Client) FeePrice(ctx context.Context) (decimal.Decimal, error) {
	var out feePriceResponse
	if err := c.getJSON(ctx, "/v1/fees/price", &out); err != nil {
		metrics.IncSettleRequest("fee_price", "error")
		return decimal.Zero, err
	}
	metrics.IncSettleRequest("fee_price", "ok")
	return out.FeePrice, nil
}

// NextSequence returns the next unused sequence number for account.
func (c *Client) NextSequence(ctx context.Context, account string) (uint64, error) {
	var out sequenceResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/accounts/%s/sequence", account), &out); err != nil {
		metrics.IncSettleRequest("sequence", "error")
		return 0, err
	}
	metrics.IncSettleRequest("sequence", "ok")
	return out.Sequence, nil
}

// Submit sends a signed instruction to the node. Exactly one attempt: a
// transient transport failure surfaces as ErrSubmissionFailed, a node
// rejection as *Error. Once accepted the instruction cannot be withdrawn.
func (c *Client) Submit(ctx context.Context, signed *signer.SignedInstruction) (string, error) {
	data, err := json.Marshal(signed)
	if err != nil {
		return "", fmt.Errorf("encode instruction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/instructions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out submitResponse
	if err := c.subExec.DoJSON(ctx, req, "settle_submit", &out); err != nil {
		var gwErr *Error
		if errors.As(err, &gwErr) {
			metrics.IncSettleRequest("submit", "rejected")
			return "", gwErr
		}
		metrics.IncSettleRequest("submit", "error")
		return "", fmt.Errorf("%w: %v", ledger.ErrSubmissionFailed, err)
	}

	metrics.IncSettleRequest("submit", "ok")
	return out.SubmissionID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.readExec.DoJSON(ctx, req, "settle_api", out)
}
