package escrow

import (
	"context"
	"time"
)

// Direction selects which side of an escrow a user query matches.
type Direction string

const (
	DirectionSent     Direction = "sent"     // entries where the user pays
	DirectionReceived Direction = "received" // entries where the user is paid
	DirectionAll      Direction = "all"      // union of sent and received
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionSent, DirectionReceived, DirectionAll:
		return true
	}
	return false
}

// Stats is the per-user status breakdown returned alongside user listings.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// buildFunc constructs the new chain tip given the current one. prev is
// nil when the ledger is empty, in which case the entry must claim
// GenesisHash. The store calls it with the tip read and the insert held
// inside one critical section, so the prev hash cannot go stale.
type buildFunc func(prev *Entry) (*Entry, error)

// Store abstracts persistence of the escrow ledger. Appends must be
// atomic and serialised; a failed append must not leave a partial row.
type Store interface {
	// Append reads the chain tip, invokes build, and persists the result
	// as one atomic operation. The returned entry carries its assigned id.
	Append(ctx context.Context, build buildFunc) (*Entry, error)

	// MostRecent returns the chain tip ordered by creation time, or
	// (nil, nil) when the ledger is empty.
	MostRecent(ctx context.Context) (*Entry, error)

	// First returns the chronologically first entry, or (nil, nil) when
	// the ledger is empty.
	First(ctx context.Context) (*Entry, error)

	// ByID returns the entry with the given id, or ErrNotFound.
	ByID(ctx context.Context, id int64) (*Entry, error)

	// ByHash returns the entry with the given content hash, or ErrNotFound.
	ByHash(ctx context.Context, hash string) (*Entry, error)

	// List returns entries ordered ascending by creation time.
	// limit <= 0 means no limit.
	List(ctx context.Context, limit, offset int) ([]*Entry, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int, error)

	// ListForUser returns entries matching the user on the given side,
	// ordered descending by creation time (most recent first).
	ListForUser(ctx context.Context, userID int64, dir Direction, limit, offset int) ([]*Entry, error)

	// StatsForUser returns the status breakdown for the user on the given side.
	StatsForUser(ctx context.Context, userID int64, dir Direction) (Stats, error)

	// MarkReleased transitions a pending entry to released, stamping the
	// release fields. Returns ErrNotFound for an unknown id and
	// InvalidStateError when the entry is not pending. The content hash
	// and all hashed fields are left untouched.
	MarkReleased(ctx context.Context, id int64, onChainTxHash, releaseNotes string, releasedAt time.Time) (*Entry, error)
}
