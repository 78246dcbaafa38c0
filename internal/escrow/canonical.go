package escrow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"
)

// amountScale is the number of fractional digits the canonical amount
// string carries. It matches the NUMERIC(20,4) column scale, so the hash
// input survives a database round trip byte for byte.
const amountScale = 4

// hashInput holds the creation-time fields of an entry in the exact shape
// they are hashed. It is the only thing canonicalEncode looks at.
type hashInput struct {
	TransactionID string
	FromUserID    int64
	ToUserID      int64
	Amount        decimal.Decimal
	Description   string
	Metadata      map[string]any
	PrevHash      string
	Timestamp     time.Time
}

// canonicalEncode renders the hash input as one deterministic string of
// the form "txid:...|from:...|to:...|amount:...|desc:...|meta:...|prev:...|ts:...".
//
// Two logically identical inputs always produce byte-identical output and
// any change to any field changes the output. Encoding never fails: a
// metadata map that cannot be serialised degrades to "{}" rather than
// aborting the append. Pure function, no I/O, no logging.
func canonicalEncode(in hashInput) string {
	return fmt.Sprintf("txid:%s|from:%d|to:%d|amount:%s|desc:%s|meta:%s|prev:%s|ts:%s",
		in.TransactionID,
		in.FromUserID,
		in.ToUserID,
		in.Amount.StringFixed(amountScale),
		in.Description,
		canonicalMetadata(in.Metadata),
		in.PrevHash,
		in.Timestamp.UTC().Format(time.RFC3339Nano),
	)
}

// canonicalMetadata serialises the metadata map as RFC 8785 (JCS)
// canonical JSON, normalising key order and number formatting. A nil or
// empty map and any serialisation failure all encode as "{}".
func canonicalMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "{}"
	}
	return string(canonical)
}

// hashEntry recomputes an entry's content hash from its persisted
// creation-time fields.
func hashEntry(e *Entry) string {
	return sha256Hex(canonicalEncode(hashInput{
		TransactionID: e.TransactionID,
		FromUserID:    e.FromUserID,
		ToUserID:      e.ToUserID,
		Amount:        e.Amount,
		Description:   e.Description,
		Metadata:      e.Metadata,
		PrevHash:      e.PrevHash,
		Timestamp:     e.CreatedAt,
	}))
}

// sha256Hex returns the hex-encoded SHA-256 digest of s.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
