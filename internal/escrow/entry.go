package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// GenesisHash is the sentinel predecessor hash claimed by the first entry
// in the chain. It is a well-known constant, never a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Status is the lifecycle state of an escrow entry.
type Status string

const (
	// StatusPending is the state of every newly created entry: funds are
	// held and awaiting an explicit release.
	StatusPending Status = "pending"

	// StatusReleased is the terminal success state, reached via Release.
	StatusReleased Status = "released"

	// StatusFailed exists in the schema and in per-user stats, but no
	// transition into it is defined. Kept for forward compatibility with
	// a dispute/refund flow.
	StatusFailed Status = "failed"
)

// Entry is a single record in the escrow ledger.
//
// The fields TransactionID, FromUserID, ToUserID, Amount, Description,
// Metadata, PrevHash and CreatedAt are immutable after creation and are
// exactly the inputs of Hash. Release-time data lives in separate fields
// (Status, OnChainTxHash, ReleaseNotes, ReleasedAt, UpdatedAt) so that a
// release never invalidates the content hash.
type Entry struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transaction_id"`
	FromUserID    int64           `json:"from_user_id"`
	ToUserID      int64           `json:"to_user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Metadata      map[string]any  `json:"metadata"`
	PrevHash      string          `json:"prev_hash"`
	Hash          string          `json:"hash"`
	Status        Status          `json:"status"`
	OnChainTxHash string          `json:"on_chain_tx_hash,omitempty"`
	ReleaseNotes  string          `json:"release_notes,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsGenesis reports whether the entry claims the genesis predecessor.
func (e *Entry) IsGenesis() bool {
	return e.PrevHash == GenesisHash
}
