package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/ledger"
	"github.com/quickvest/vesting-adapter/internal/vesting"
	"github.com/quickvest/vesting-adapter/pkg/config"
	"github.com/quickvest/vesting-adapter/pkg/model"
)

const (
	custodian = "0x627306090abab3a6e1400e9345bc60c78a8bef57"
	poolAddr  = "0x345ca3e014aaf5dca488057592ee47305d9b3e10"
	customer  = "0xf17f52151ebef6c7334fad080c5704d77216b732"
)

type stubSubmitter struct {
	err error
}

func (s *stubSubmitter) Submit(ctx context.Context, operation, destination string, value decimal.Decimal, payload any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "0xdeadbeef", nil
}

func newTestApp(t *testing.T, funding string, sub *stubSubmitter) (*fiber.App, *ledger.Ledger) {
	t.Helper()
	cfg := &config.Config{
		PoolAddress:        poolAddr,
		CustodianAddress:   custodian,
		DefaultVestingTerm: 90 * 24 * time.Hour,
	}
	ldg := ledger.New(zap.NewNop())
	if funding != "" {
		require.NoError(t, ldg.Fund(decimal.RequireFromString(funding)))
	}
	svc := vesting.NewService(cfg, zap.NewNop(), ldg, sub, nil, nil, nil)
	h := NewHandler(zap.NewNop(), svc, custodian)

	app := fiber.New()
	RegisterRoutes(app, nil, nil, h)
	return app, ldg
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, dest), "body: %s", data)
}

func TestMintEndpointCreated(t *testing.T) {
	app, ldg := newTestApp(t, "1000000000000000000", &stubSubmitter{})

	resp := postJSON(t, app, "/mint", map[string]any{
		"destinationAddress": customer,
		"amount":             "0.2",
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var receipt model.MintReceipt
	decodeBody(t, resp, &receipt)
	assert.Equal(t, "0xdeadbeef", receipt.TransactionID)
	assert.Equal(t, uint64(1), receipt.TokenID)
	assert.True(t, receipt.Amount.Equal(decimal.RequireFromString("200000000000000000")))
	assert.Equal(t, 1, receipt.FinalSupply)
	assert.True(t, receipt.FinalAvailableBalance.Equal(decimal.RequireFromString("800000000000000000")))

	assert.Equal(t, 1, ldg.ActiveCount())
}

func TestMintEndpointMissingFields(t *testing.T) {
	app, _ := newTestApp(t, "1000", &stubSubmitter{})

	for _, body := range []map[string]any{
		{},
		{"destinationAddress": customer},
		{"amount": "0.2"},
	} {
		resp := postJSON(t, app, "/mint", body)
		assert.Equal(t, fiber.StatusNotAcceptable, resp.StatusCode)

		var out map[string]string
		decodeBody(t, resp, &out)
		assert.Contains(t, out["message"], "destinationAddress")
	}
}

func TestMintEndpointMalformedBody(t *testing.T) {
	app, _ := newTestApp(t, "1000", &stubSubmitter{})

	req := httptest.NewRequest(http.MethodPost, "/mint", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotAcceptable, resp.StatusCode)
}

func TestMintEndpointSubmissionFailure(t *testing.T) {
	app, ldg := newTestApp(t, "1000000000000000000", &stubSubmitter{err: ledger.ErrSubmissionFailed})

	resp := postJSON(t, app, "/mint", map[string]any{
		"destinationAddress": customer,
		"amount":             "0.2",
	})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Retry)
	assert.Contains(t, out.Message, "try again later")

	// ledger unchanged after the failed mint
	assert.Equal(t, 0, ldg.ActiveCount())
	assert.True(t, ldg.AvailableBalance().Equal(decimal.RequireFromString("1000000000000000000")))
}

func TestMintEndpointInsufficientFunds(t *testing.T) {
	app, _ := newTestApp(t, "100", &stubSubmitter{})

	resp := postJSON(t, app, "/mint", map[string]any{
		"destinationAddress": customer,
		"amount":             "0.2", // 2e17 base units > 100
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func mintMatured(t *testing.T, app *fiber.App) uint64 {
	t.Helper()
	resp := postJSON(t, app, "/mint", map[string]any{
		"destinationAddress": customer,
		"amount":             "0.2",
		"maturity":           time.Now().Add(-time.Minute).Unix(),
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var receipt model.MintReceipt
	decodeBody(t, resp, &receipt)
	return receipt.TokenID
}

func TestExchangeEndpoint(t *testing.T) {
	app, _ := newTestApp(t, "1000000000000000000", &stubSubmitter{})
	id := mintMatured(t, app)

	resp := postJSON(t, app, "/exchange", map[string]any{
		"tokenId":      id,
		"ownerAddress": customer,
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var receipt model.PayoutReceipt
	decodeBody(t, resp, &receipt)
	assert.Equal(t, id, receipt.TokenID)
	assert.Equal(t, customer, receipt.Owner)
}

func TestExchangeEndpointWrongOwner(t *testing.T) {
	app, _ := newTestApp(t, "1000000000000000000", &stubSubmitter{})
	id := mintMatured(t, app)

	resp := postJSON(t, app, "/exchange", map[string]any{
		"tokenId":      id,
		"ownerAddress": custodian,
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestExchangeEndpointUnknownToken(t *testing.T) {
	app, _ := newTestApp(t, "1000", &stubSubmitter{})

	resp := postJSON(t, app, "/exchange", map[string]any{
		"tokenId":      99,
		"ownerAddress": customer,
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestExchangeEndpointValidation(t *testing.T) {
	app, _ := newTestApp(t, "1000", &stubSubmitter{})

	resp := postJSON(t, app, "/exchange", map[string]any{"tokenId": 0})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRevokeEndpoint(t *testing.T) {
	app, ldg := newTestApp(t, "1000000000000000000", &stubSubmitter{})

	resp := postJSON(t, app, "/mint", map[string]any{
		"destinationAddress": customer,
		"amount":             "0.2",
		"maturity":           time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var receipt model.MintReceipt
	decodeBody(t, resp, &receipt)

	resp = postJSON(t, app, "/revoke", map[string]any{"tokenId": receipt.TokenID})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, ldg.ActiveCount())
}

func TestRevokeEndpointMaturedConflict(t *testing.T) {
	app, _ := newTestApp(t, "1000000000000000000", &stubSubmitter{})
	id := mintMatured(t, app)

	resp := postJSON(t, app, "/revoke", map[string]any{"tokenId": id})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	app, _ := newTestApp(t, "1000000000000000000", &stubSubmitter{})
	mintMatured(t, app)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "winning", out["status"])
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, "800000000000000000", out["availableBalance"])
}

func TestTokensOfEndpoint(t *testing.T) {
	app, _ := newTestApp(t, "1000000000000000000", &stubSubmitter{})
	mintMatured(t, app)

	req := httptest.NewRequest(http.MethodGet, "/tokens/"+customer, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Owner  string        `json:"owner"`
		Tokens []model.Token `json:"tokens"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, customer, out.Owner)
	require.Len(t, out.Tokens, 1)
	assert.Equal(t, customer, out.Tokens[0].Owner)

	// unknown owner gets an empty list, not null
	req = httptest.NewRequest(http.MethodGet, "/tokens/0x0000000000000000000000000000000000000000", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	decodeBody(t, resp, &raw)
	assert.Equal(t, "[]", string(raw["tokens"]))
}

func TestHealthEndpointDegradedWithoutNATS(t *testing.T) {
	app, _ := newTestApp(t, "1000", &stubSubmitter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "degraded", out["status"])
}

func TestStatusForErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ledger.ErrUnauthorized, fiber.StatusForbidden},
		{ledger.ErrTokenNotFound, fiber.StatusNotFound},
		{ledger.ErrInvalidArgument, fiber.StatusBadRequest},
		{ledger.ErrInsufficientFunds, fiber.StatusUnprocessableEntity},
		{ledger.ErrTokenNotActive, fiber.StatusConflict},
		{ledger.ErrNotYetMatured, fiber.StatusConflict},
		{ledger.ErrAlreadyMatured, fiber.StatusConflict},
		{ledger.ErrSubmissionFailed, fiber.StatusServiceUnavailable},
		{errors.New("anything else"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := statusForError(tc.err)
		assert.Equal(t, tc.want, status, "error %v", tc.err)
	}
}
