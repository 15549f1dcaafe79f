package api

import "github.com/shopspring/decimal"

// MintRequest is the payload to issue a vesting token. Amount is in the
// human currency unit and is converted to base units before reservation.
// Maturity is an optional unix timestamp; when omitted the default vesting
// term applies.
type MintRequest struct {
	DestinationAddress string          `json:"destinationAddress" example:"0xf17f52151ebef6c7334fad080c5704d77216b732"`
	Amount             decimal.Decimal `json:"amount" example:"0.2"`
	Maturity           int64           `json:"maturity,omitempty"`
}

// ExchangeRequest converts a matured token into a payout to its owner.
type ExchangeRequest struct {
	TokenID      uint64 `json:"tokenId"`
	OwnerAddress string `json:"ownerAddress"`
}

// RevokeRequest reclaims an unmatured token for the pool.
type RevokeRequest struct {
	TokenID uint64 `json:"tokenId"`
}
