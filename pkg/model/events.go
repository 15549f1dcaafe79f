package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Envelope is the canonical event envelope.
// All messages published to NATS must follow this format.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Account       string          `json:"account,omitempty"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// TokenEvent is the payload for token lifecycle events
// (token.minted, token.exchanged, token.revoked).
type TokenEvent struct {
	TokenID       uint64          `json:"token_id"`
	Owner         string          `json:"owner"`
	Amount        decimal.Decimal `json:"amount"`
	Maturity      int64           `json:"maturity,omitempty"`
	Status        TokenStatus     `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// PoolEvent is the payload for pool.funded events.
type PoolEvent struct {
	Funded           decimal.Decimal `json:"funded"`
	TotalFunded      decimal.Decimal `json:"total_funded"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}
