package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvestlink/escrow-ledger/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service implements the escrow ledger operations on top of a Store.
// All hashing happens here; the store only persists and serialises.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService creates a Service. publisher must not be nil — pass
// events.NewNoopPublisher when no event stream is configured.
func NewService(store Store, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger}
}

// CreateInput holds the caller-supplied fields for a new escrow entry.
type CreateInput struct {
	FromUserID  int64
	ToUserID    int64
	Amount      decimal.Decimal
	Description string
	Metadata    map[string]any
}

// Create validates the input, chains a new entry to the current tip and
// persists it with status pending. The tip read and the insert run inside
// the store's append critical section, so exactly one entry can ever
// claim a given predecessor hash.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Entry, error) {
	if in.FromUserID <= 0 {
		return nil, &ValidationError{Field: "from_user_id", Reason: "must be a positive user id"}
	}
	if in.ToUserID <= 0 {
		return nil, &ValidationError{Field: "to_user_id", Reason: "must be a positive user id"}
	}
	if in.Amount.IsNegative() {
		return nil, &ValidationError{Field: "amount", Reason: "must not be negative"}
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	txID := uuid.New().String()

	entry, err := s.store.Append(ctx, func(prev *Entry) (*Entry, error) {
		// Stamped inside the append critical section, truncated to
		// microseconds so the Postgres round trip reproduces the exact hash
		// input, and clamped strictly after the tip so chronological order
		// always agrees with chain order.
		createdAt := time.Now().UTC().Truncate(time.Microsecond)

		prevHash := GenesisHash
		if prev != nil {
			prevHash = prev.Hash
			if !createdAt.After(prev.CreatedAt) {
				createdAt = prev.CreatedAt.Add(time.Microsecond)
			}
		}

		e := &Entry{
			TransactionID: txID,
			FromUserID:    in.FromUserID,
			ToUserID:      in.ToUserID,
			Amount:        in.Amount,
			Description:   in.Description,
			Metadata:      metadata,
			PrevHash:      prevHash,
			Status:        StatusPending,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
		}
		e.Hash = hashEntry(e)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("append escrow entry: %w", err)
	}

	s.logger.Info("escrow entry created",
		zap.Int64("id", entry.ID),
		zap.String("transaction_id", entry.TransactionID),
		zap.Int64("from_user_id", entry.FromUserID),
		zap.Int64("to_user_id", entry.ToUserID),
		zap.String("amount", entry.Amount.String()),
		zap.Bool("genesis", entry.IsGenesis()),
	)

	s.publish(ctx, events.NewEvent(events.TypeEscrowCreated, events.EscrowCreated{
		ID:            entry.ID,
		TransactionID: entry.TransactionID,
		FromUserID:    entry.FromUserID,
		ToUserID:      entry.ToUserID,
		Amount:        entry.Amount,
		Hash:          entry.Hash,
	}))
	return entry, nil
}

// Release transitions a pending entry to released, stamping the on-chain
// transaction reference and release notes. The content hash and every
// hashed field stay untouched, so verification remains green afterwards.
// Returns ErrNotFound for an unknown id and InvalidStateError when the
// entry is not pending.
func (s *Service) Release(ctx context.Context, id int64, onChainTxHash, releaseNotes string) (*Entry, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	entry, err := s.store.MarkReleased(ctx, id, onChainTxHash, releaseNotes, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("escrow entry released",
		zap.Int64("id", entry.ID),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("on_chain_tx_hash", entry.OnChainTxHash),
	)

	s.publish(ctx, events.NewEvent(events.TypeEscrowReleased, events.EscrowReleased{
		ID:            entry.ID,
		TransactionID: entry.TransactionID,
		OnChainTxHash: entry.OnChainTxHash,
	}))
	return entry, nil
}

// Get returns a single entry by id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*Entry, error) {
	return s.store.ByID(ctx, id)
}

// Root returns the total entry count and the hash of the chain tip.
// The tip hash is GenesisHash when the ledger is empty.
func (s *Service) Root(ctx context.Context) (int, string, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, "", err
	}
	tip, err := s.store.MostRecent(ctx)
	if err != nil {
		return 0, "", err
	}
	if tip == nil {
		return count, GenesisHash, nil
	}
	return count, tip.Hash, nil
}

// UserLedger is the per-user listing returned by ListForUser.
type UserLedger struct {
	Stats   Stats    `json:"stats"`
	Entries []*Entry `json:"entries"`
}

// ListForUser returns the entries involving userID on the given side,
// most recent first, together with a status breakdown over all matching
// entries (not just the returned page). An empty direction means all.
func (s *Service) ListForUser(ctx context.Context, userID int64, dir Direction, limit, offset int) (*UserLedger, error) {
	if userID <= 0 {
		return nil, &ValidationError{Field: "user_id", Reason: "must be a positive user id"}
	}
	if dir == "" {
		dir = DirectionAll
	}
	if !dir.Valid() {
		return nil, &ValidationError{Field: "direction", Reason: "must be sent, received or all"}
	}

	stats, err := s.store.StatsForUser(ctx, userID, dir)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	entries, err := s.store.ListForUser(ctx, userID, dir, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("user entries: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return &UserLedger{Stats: stats, Entries: entries}, nil
}

// publish delivers an event best-effort. Delivery failures are logged and
// never surface to the ledger caller.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish escrow event",
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}
