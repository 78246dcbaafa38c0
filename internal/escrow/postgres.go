package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to
// serialise concurrent Append calls. The value is arbitrary but must be
// consistent across all service instances sharing the database.
const advisoryLockKey = int64(7_421_053_860)

const entryColumns = `id, transaction_id, from_user_id, to_user_id, amount, description,
	metadata, prev_hash, hash, status, on_chain_tx_hash, release_notes,
	released_at, created_at, updated_at`

// PostgresStore persists the escrow ledger to PostgreSQL. It implements
// the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Append implements Store.
// It acquires a transaction-scoped advisory lock, reads the chain tip,
// invokes build, and inserts the result — all within one transaction, so
// two concurrent appends can never read the same tip.
func (s *PostgresStore) Append(ctx context.Context, build buildFunc) (*Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The lock is released automatically when the transaction ends.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	// The tip is the last inserted row. Ordering by id (not created_at)
	// keeps the chain append-ordered even if a lagging writer stamped an
	// earlier timestamp before reaching the lock.
	var prev *Entry
	row := tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM escrow_ledger ORDER BY id DESC LIMIT 1`)
	tip, err := scanEntry(row)
	switch {
	case err == nil:
		prev = tip
	case errors.Is(err, pgx.ErrNoRows):
		// Empty ledger: the new entry claims genesis.
	default:
		return nil, fmt.Errorf("read chain tip: %w", err)
	}

	entry, err := build(prev)
	if err != nil {
		return nil, err
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO escrow_ledger (transaction_id, from_user_id, to_user_id, amount, description,
			metadata, prev_hash, hash, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		entry.TransactionID, entry.FromUserID, entry.ToUserID, entry.Amount,
		entry.Description, entry.Metadata, entry.PrevHash, entry.Hash,
		entry.Status, entry.CreatedAt, entry.UpdatedAt,
	).Scan(&entry.ID); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("escrow entry appended",
		zap.Int64("id", entry.ID),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("hash", entry.Hash),
	)
	return entry, nil
}

// MostRecent implements Store.
func (s *PostgresStore) MostRecent(ctx context.Context) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM escrow_ledger ORDER BY id DESC LIMIT 1`)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get most recent entry: %w", err)
	}
	return entry, nil
}

// First implements Store.
func (s *PostgresStore) First(ctx context.Context) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM escrow_ledger ORDER BY id ASC LIMIT 1`)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get first entry: %w", err)
	}
	return entry, nil
}

// ByID implements Store.
func (s *PostgresStore) ByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM escrow_ledger WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return entry, nil
}

// ByHash implements Store.
func (s *PostgresStore) ByHash(ctx context.Context, hash string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM escrow_ledger WHERE hash = $1`, hash)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by hash: %w", err)
	}
	return entry, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM escrow_ledger ORDER BY created_at ASC, id ASC OFFSET $1`
	args := []any{offset}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// ListForUser implements Store.
func (s *PostgresStore) ListForUser(ctx context.Context, userID int64, dir Direction, limit, offset int) ([]*Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM escrow_ledger WHERE ` + userClause(dir) +
		` ORDER BY created_at DESC, id DESC OFFSET $2`
	args := []any{userID, offset}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries for user %d: %w", userID, err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// StatsForUser implements Store.
func (s *PostgresStore) StatsForUser(ctx context.Context, userID int64, dir Direction) (Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM escrow_ledger WHERE `+userClause(dir)+` GROUP BY status`,
		userID)
	if err != nil {
		return Stats{}, fmt.Errorf("stats for user %d: %w", userID, err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += n
		switch status {
		case StatusPending:
			stats.Pending = n
		case StatusReleased:
			stats.Released = n
		case StatusFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

// MarkReleased implements Store. The update is conditional on the pending
// status so a concurrent double release cannot both succeed.
func (s *PostgresStore) MarkReleased(ctx context.Context, id int64, onChainTxHash, releaseNotes string, releasedAt time.Time) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE escrow_ledger
		 SET status = $2, on_chain_tx_hash = NULLIF($3, ''), release_notes = NULLIF($4, ''),
		     released_at = $5, updated_at = $5
		 WHERE id = $1 AND status = $6
		 RETURNING `+entryColumns,
		id, StatusReleased, onChainTxHash, releaseNotes, releasedAt, StatusPending)

	entry, err := scanEntry(row)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("release entry %d: %w", id, err)
	}

	// No row updated: distinguish unknown id from a non-pending entry.
	current, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &InvalidStateError{Status: current.Status}
}

// userClause returns the WHERE fragment matching $1 on the given side.
func userClause(dir Direction) string {
	switch dir {
	case DirectionSent:
		return "from_user_id = $1"
	case DirectionReceived:
		return "to_user_id = $1"
	default:
		return "(from_user_id = $1 OR to_user_id = $1)"
	}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans one escrow_ledger row in entryColumns order.
func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	var onChainTxHash, releaseNotes *string
	var releasedAt *time.Time

	if err := row.Scan(
		&e.ID, &e.TransactionID, &e.FromUserID, &e.ToUserID, &e.Amount,
		&e.Description, &e.Metadata, &e.PrevHash, &e.Hash, &e.Status,
		&onChainTxHash, &releaseNotes, &releasedAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if onChainTxHash != nil {
		e.OnChainTxHash = *onChainTxHash
	}
	if releaseNotes != nil {
		e.ReleaseNotes = *releaseNotes
	}
	e.ReleasedAt = releasedAt
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// collectEntries drains rows into a slice.
func collectEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
