package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenStatus is the lifecycle state of a vesting token.
// Exchanged and Revoked are terminal.
type TokenStatus string

const (
	StatusActive    TokenStatus = "ACTIVE"
	StatusExchanged TokenStatus = "EXCHANGED"
	StatusRevoked   TokenStatus = "REVOKED"
)

// baseUnitScale is the number of decimal places between the human currency
// unit and the settlement layer's smallest unit (10^18, wei-style).
const baseUnitScale = 18

// Token is a vesting-locked claim against the pool. Amounts are held in the
// settlement layer's smallest unit. Tokens are never deleted; terminal
// statuses remain as an audit trail.
type Token struct {
	ID       uint64          `json:"id"`
	Owner    string          `json:"owner"`
	Amount   decimal.Decimal `json:"amount"`
	Maturity int64           `json:"maturity"` // unix seconds; exchangeable at or after, revocable before
	Status   TokenStatus     `json:"status"`
	MintedAt time.Time       `json:"minted_at"`
	MintTxID string          `json:"mint_tx_id,omitempty"`
}

// PoolStatus is a committed-state snapshot of the vesting pool.
type PoolStatus struct {
	TotalFunded      decimal.Decimal `json:"total_funded"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	ActiveTokens     int             `json:"active_tokens"`
	AsOf             time.Time       `json:"as_of"`
}

// MintReceipt captures pre- and post-state reads around a committed mint,
// mirroring what the settlement relay reports to callers.
type MintReceipt struct {
	TransactionID            string          `json:"transactionId"`
	TokenID                  uint64          `json:"tokenId"`
	Owner                    string          `json:"owner"`
	Amount                   decimal.Decimal `json:"amount"`
	Maturity                 int64           `json:"maturity"`
	InitialSupply            int             `json:"initialSupply"`
	InitialAvailableBalance  decimal.Decimal `json:"initialAvailableBalance"`
	FinalSupply              int             `json:"finalSupply"`
	FinalAvailableBalance    decimal.Decimal `json:"finalAvailableBalance"`
	FinalContractBalance     decimal.Decimal `json:"finalContractBalance"`
	FinalTokenOwnerBalance   decimal.Decimal `json:"finalTokenOwnerBalance"`
	FinalTokenOwnerTokenCnt  int             `json:"finalTokenOwnerTokenCount"`
}

// PayoutReceipt is returned on a successful exchange.
type PayoutReceipt struct {
	TransactionID string          `json:"transactionId"`
	TokenID       uint64          `json:"tokenId"`
	Owner         string          `json:"owner"`
	Amount        decimal.Decimal `json:"amount"`
	ExchangedAt   time.Time       `json:"exchangedAt"`
}

// ToBaseUnits converts a human currency amount to the settlement layer's
// smallest unit, truncating any precision beyond it.
func ToBaseUnits(human decimal.Decimal) decimal.Decimal {
	return human.Shift(baseUnitScale).Truncate(0)
}

// FromBaseUnits converts a smallest-unit amount back to the human currency unit.
func FromBaseUnits(base decimal.Decimal) decimal.Decimal {
	return base.Shift(-baseUnitScale)
}
