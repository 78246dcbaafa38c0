// Package escrow implements the HarvestLink payment-escrow ledger: an
// append-only log of escrow transactions chained together by SHA-256
// content hashes.
//
// Every entry records the hash of its predecessor, so altering any
// historical record is detectable. The first entry in the chain links to
// the well-known genesis hash (64 hex zeros) instead of a stored entry.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
//
// Appends are serialised by the store (an advisory lock in Postgres, a
// mutex in memory) so that concurrent creations can never produce two
// entries claiming the same predecessor.
package escrow
