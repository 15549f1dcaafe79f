package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error is a non-transient settlement node rejection (malformed instruction,
// bad sequence, unknown account). Retrying the same submission will not help.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("settlement node rejected request: %s (%s)", e.Message, e.Code)
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type feePriceResponse struct {
	FeePrice decimal.Decimal `json:"fee_price"`
}

type sequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
}
