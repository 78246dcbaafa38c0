// Package events publishes escrow lifecycle events for downstream
// consumers (notification delivery, analytics, the marketplace backend).
// Publishing is best-effort: the ledger never fails an operation because
// an event could not be delivered.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Publisher delivers escrow lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event is the envelope written to the event stream.
type Event struct {
	Type       string `json:"type"`
	OccurredAt string `json:"occurred_at"`
	Payload    any    `json:"payload"`
}

// Event types.
const (
	TypeEscrowCreated  = "escrow.created"
	TypeEscrowReleased = "escrow.released"
)

// EscrowCreated is emitted after a new ledger entry is appended.
type EscrowCreated struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transaction_id"`
	FromUserID    int64           `json:"from_user_id"`
	ToUserID      int64           `json:"to_user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Hash          string          `json:"hash"`
}

// EscrowReleased is emitted after a pending entry is released.
type EscrowReleased struct {
	ID            int64  `json:"id"`
	TransactionID string `json:"transaction_id"`
	OnChainTxHash string `json:"on_chain_tx_hash,omitempty"`
}

// NewEvent wraps a payload in an Event envelope stamped with now.
func NewEvent(eventType string, payload any) Event {
	return Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Payload:    payload,
	}
}
