// Package store keeps parsed datasets in memory so they can be queried
// repeatedly without re-uploading.
package store

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Default limits
const (
	DefaultMaxEntries = 100
	DefaultTTL        = time.Hour
)

// Entry is a stored dataset. Table is shared read-only by every reader and
// must never be modified.
type Entry struct {
	ID        string
	Table     *tabular.Table
	Skipped   []tabular.RowSkipInfo
	CreatedAt time.Time
	ExpiresAt time.Time
}

// MemoryStore is an LRU-bounded, TTL-expired dataset store. It is safe for
// concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
	now        func() time.Time
}

// NewMemoryStore creates a store holding at most maxEntries datasets, each
// for ttl after its last access. Non-positive values select the defaults.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		ttl:        ttl,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Put stores table and returns its new id, evicting the least recently used
// dataset when the store is full.
func (s *MemoryStore) Put(table *tabular.Table, skipped []tabular.RowSkipInfo) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpired(now)

	entry := &Entry{
		ID:        uuid.NewString(),
		Table:     table,
		Skipped:   skipped,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.entries[entry.ID] = s.order.PushFront(entry)

	for s.order.Len() > s.maxEntries {
		oldest := s.order.Back()
		evicted := oldest.Value.(*Entry)
		s.remove(oldest)
		logger.Debug("dataset evicted",
			slog.String("dataset_id", evicted.ID),
			slog.String("reason", "capacity"),
		)
	}
	return entry.ID
}

// Get returns the dataset for id and refreshes its position and expiry.
// The returned Entry is a snapshot; only its Table is shared with the store.
func (s *MemoryStore) Get(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	now := s.now()
	if !now.Before(entry.ExpiresAt) {
		s.remove(el)
		logger.Debug("dataset evicted",
			slog.String("dataset_id", id),
			slog.String("reason", "expired"),
		)
		return nil, false
	}
	entry.ExpiresAt = now.Add(s.ttl)
	s.order.MoveToFront(el)
	snapshot := *entry
	return &snapshot, true
}

// Delete removes id, reporting whether it was present.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return false
	}
	s.remove(el)
	return true
}

// Len returns the number of live datasets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired(s.now())
	return s.order.Len()
}

// purgeExpired drops expired entries. Caller holds mu.
func (s *MemoryStore) purgeExpired(now time.Time) {
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if entry := el.Value.(*Entry); !now.Before(entry.ExpiresAt) {
			s.remove(el)
		}
		el = prev
	}
}

func (s *MemoryStore) remove(el *list.Element) {
	entry := s.order.Remove(el).(*Entry)
	delete(s.entries, entry.ID)
}
