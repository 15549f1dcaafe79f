package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/quickvest/vesting-adapter/internal/gateway"
	"github.com/quickvest/vesting-adapter/internal/ledger"
)

// ErrorResponse is the uniform failure body.
type ErrorResponse struct {
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

// statusForError maps the service error taxonomy onto HTTP statuses.
// Validation and state-machine violations are rejected requests; transient
// submission failures get 503 with a retry hint.
func statusForError(err error) (int, ErrorResponse) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return fiber.StatusForbidden, ErrorResponse{Message: err.Error()}
	case errors.Is(err, ledger.ErrTokenNotFound):
		return fiber.StatusNotFound, ErrorResponse{Message: err.Error()}
	case errors.Is(err, ledger.ErrInvalidArgument):
		return fiber.StatusBadRequest, ErrorResponse{Message: err.Error()}
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.StatusUnprocessableEntity, ErrorResponse{Message: err.Error()}
	case errors.Is(err, ledger.ErrTokenNotActive),
		errors.Is(err, ledger.ErrNotYetMatured),
		errors.Is(err, ledger.ErrAlreadyMatured):
		return fiber.StatusConflict, ErrorResponse{Message: err.Error()}
	case errors.Is(err, ledger.ErrSubmissionFailed):
		return fiber.StatusServiceUnavailable, ErrorResponse{
			Message: "The settlement transaction failed. Network is clogged or the pool node is unreachable. Please try again later.",
			Retry:   true,
		}
	case errors.As(err, &gwErr):
		return fiber.StatusBadGateway, ErrorResponse{Message: gwErr.Error()}
	default:
		return fiber.StatusInternalServerError, ErrorResponse{Message: err.Error()}
	}
}
