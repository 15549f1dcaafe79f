package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/internal/vesting"
	"github.com/quickvest/vesting-adapter/pkg/model"
)

// Handler exposes the vesting services over HTTP. The relay process acts on
// behalf of the custodian, so mint and revoke requests carry the configured
// custodian identity; exchange acts for the token owner named in the request.
type Handler struct {
	logger    *zap.Logger
	service   *vesting.Service
	custodian string
}

// NewHandler creates the vesting API handler.
func NewHandler(logger *zap.Logger, service *vesting.Service, custodian string) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		custodian: custodian,
	}
}

// Status reports the pool snapshot: active token count and available balance.
func (h *Handler) Status(c *fiber.Ctx) error {
	st := h.service.Ledger().Status()
	return c.JSON(fiber.Map{
		"status":           "winning",
		"count":            st.ActiveTokens,
		"availableBalance": st.AvailableBalance,
		"totalFunded":      st.TotalFunded,
	})
}

// Mint issues a vesting token. Missing fields yield 406 (legacy relay
// contract), submission failures 503, success 201 with the full receipt.
func (h *Handler) Mint(c *fiber.Ctx) error {
	var req MintRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusNotAcceptable).JSON(fiber.Map{
			"message": "include `destinationAddress`, `amount`",
		})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusNotAcceptable).JSON(fiber.Map{
			"message": "include `destinationAddress`, `amount`",
		})
	}

	receipt, err := h.service.Mint(c.Context(), vesting.MintRequest{
		Owner:     req.DestinationAddress,
		Amount:    model.ToBaseUnits(req.Amount),
		Maturity:  req.Maturity,
		Requester: h.custodian,
	})
	if err != nil {
		h.logger.Error("api.mint_failed",
			zap.String("owner", req.DestinationAddress),
			zap.Error(err))
		status, body := statusForError(err)
		return c.Status(status).JSON(body)
	}

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// Exchange converts a matured token into a payout for its owner.
func (h *Handler) Exchange(c *fiber.Ctx) error {
	var req ExchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	receipt, err := h.service.Exchange(c.Context(), vesting.ExchangeRequest{
		TokenID:   req.TokenID,
		Requester: req.OwnerAddress,
	})
	if err != nil {
		h.logger.Error("api.exchange_failed",
			zap.Uint64("token_id", req.TokenID),
			zap.Error(err))
		status, body := statusForError(err)
		return c.Status(status).JSON(body)
	}

	return c.JSON(receipt)
}

// Revoke reclaims an unmatured token for the pool.
func (h *Handler) Revoke(c *fiber.Ctx) error {
	var req RevokeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	if err := h.service.Revoke(c.Context(), vesting.RevokeRequest{
		TokenID:   req.TokenID,
		Requester: h.custodian,
	}); err != nil {
		h.logger.Error("api.revoke_failed",
			zap.Uint64("token_id", req.TokenID),
			zap.Error(err))
		status, body := statusForError(err)
		return c.Status(status).JSON(body)
	}

	return c.JSON(fiber.Map{"tokenId": req.TokenID, "status": "revoked"})
}

// TokensOf lists the owner's active tokens.
func (h *Handler) TokensOf(c *fiber.Ctx) error {
	owner := c.Params("owner")
	tokens := h.service.Ledger().TokensOf(owner)
	if tokens == nil {
		tokens = []model.Token{}
	}
	return c.JSON(fiber.Map{"owner": owner, "tokens": tokens})
}
