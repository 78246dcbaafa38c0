package escrow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not need durable persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	nextID  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Append implements Store. The whole read-build-insert sequence runs
// under the write lock, so concurrent appends serialise here.
func (s *MemoryStore) Append(_ context.Context, build buildFunc) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *Entry
	if len(s.entries) > 0 {
		prev = s.entries[len(s.entries)-1]
	}

	entry, err := build(prev)
	if err != nil {
		return nil, err
	}

	entry.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, entry)
	return cloneEntry(entry), nil
}

// MostRecent implements Store.
func (s *MemoryStore) MostRecent(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return cloneEntry(s.entries[len(s.entries)-1]), nil
}

// First implements Store.
func (s *MemoryStore) First(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return cloneEntry(s.entries[0]), nil
}

// ByID implements Store.
func (s *MemoryStore) ByID(_ context.Context, id int64) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return cloneEntry(e), nil
		}
	}
	return nil, ErrNotFound
}

// ByHash implements Store.
func (s *MemoryStore) ByHash(_ context.Context, hash string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Hash == hash {
			return cloneEntry(e), nil
		}
	}
	return nil, ErrNotFound
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.entries) {
		return nil, nil
	}

	end := len(s.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*Entry, 0, end-offset)
	for _, e := range s.entries[offset:end] {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// ListForUser implements Store.
func (s *MemoryStore) ListForUser(_ context.Context, userID int64, dir Direction, limit, offset int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Entry
	for _, e := range s.entries {
		if matchesUser(e, userID, dir) {
			matched = append(matched, e)
		}
	}

	// Most recent first, matching the Postgres ordering.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*Entry, 0, end-offset)
	for _, e := range matched[offset:end] {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// StatsForUser implements Store.
func (s *MemoryStore) StatsForUser(_ context.Context, userID int64, dir Direction) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	for _, e := range s.entries {
		if !matchesUser(e, userID, dir) {
			continue
		}
		stats.Total++
		switch e.Status {
		case StatusPending:
			stats.Pending++
		case StatusReleased:
			stats.Released++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// MarkReleased implements Store.
func (s *MemoryStore) MarkReleased(_ context.Context, id int64, onChainTxHash, releaseNotes string, releasedAt time.Time) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID != id {
			continue
		}
		if e.Status != StatusPending {
			return nil, &InvalidStateError{Status: e.Status}
		}
		e.Status = StatusReleased
		e.OnChainTxHash = onChainTxHash
		e.ReleaseNotes = releaseNotes
		at := releasedAt
		e.ReleasedAt = &at
		e.UpdatedAt = releasedAt
		return cloneEntry(e), nil
	}
	return nil, ErrNotFound
}

// matchesUser reports whether the entry involves userID on the given side.
func matchesUser(e *Entry, userID int64, dir Direction) bool {
	switch dir {
	case DirectionSent:
		return e.FromUserID == userID
	case DirectionReceived:
		return e.ToUserID == userID
	default:
		return e.FromUserID == userID || e.ToUserID == userID
	}
}

// cloneEntry returns a copy so callers cannot mutate stored state.
func cloneEntry(e *Entry) *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.ReleasedAt != nil {
		at := *e.ReleasedAt
		c.ReleasedAt = &at
	}
	return &c
}

var _ Store = (*MemoryStore)(nil)
