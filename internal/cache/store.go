// Package cache provides the render cache: a key/value store with per-entry
// TTL, lazy expiry and namespaced views.
package cache

import (
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the cache contract used by the resolver and the orchestrator.
// A ttl <= 0 means the entry never expires.
type Store interface {
	Read(key string) (any, bool)
	Write(key string, value any, ttl time.Duration)
	Delete(key string)
	Clear()
}

// MatchDeleter is implemented by stores that can delete by pattern.
type MatchDeleter interface {
	DeleteMatched(pattern string) int
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Writes    int64
	Deletes   int64
	Evictions int64
	Expired   int64
}

// HitRate returns hits / (hits + misses), 0 when nothing was read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time // zero: never
	prev      *entry
	next      *entry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. Expired entries are evicted when read;
// there is no background sweeper. With maxEntries > 0 the least recently used
// entry is evicted to make room.
type MemoryStore struct {
	entries    map[string]*entry
	mutex      sync.Mutex
	maxEntries int
	now        func() time.Time

	// LRU list with sentinel head and tail
	head *entry
	tail *entry

	hits      int64
	misses    int64
	writes    int64
	deletes   int64
	evictions int64
	expired   int64
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ MatchDeleter = (*MemoryStore)(nil)
)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithMaxEntries bounds the number of entries; 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *MemoryStore) { s.maxEntries = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
		head:    &entry{},
		tail:    &entry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the value for key. An expired entry is removed and reported
// absent.
func (s *MemoryStore) Read(key string) (any, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[key]
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}

	if e.expired(s.now()) {
		s.remove(e)
		atomic.AddInt64(&s.expired, 1)
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}

	s.moveToFront(e)
	atomic.AddInt64(&s.hits, 1)
	return e.value, true
}

// Write stores value under key. Concurrent writers to one key: last write wins.
func (s *MemoryStore) Write(key string, value any, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		s.moveToFront(e)
		atomic.AddInt64(&s.writes, 1)
		return
	}

	s.evictIfNeeded()

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	s.entries[key] = e
	s.addToFront(e)
	atomic.AddInt64(&s.writes, 1)
}

// Delete removes key if present.
func (s *MemoryStore) Delete(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e, ok := s.entries[key]; ok {
		s.remove(e)
		atomic.AddInt64(&s.deletes, 1)
	}
}

// DeleteMatched removes every key matching pattern and returns the count.
// Patterns use path.Match syntax, except that a trailing "*" matches any
// suffix including "/".
func (s *MemoryStore) DeleteMatched(pattern string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for key, e := range s.entries {
		if MatchKey(pattern, key) {
			s.remove(e)
			removed++
		}
	}

	atomic.AddInt64(&s.deletes, int64(removed))
	return removed
}

// Clear removes all entries. Counters are kept.
func (s *MemoryStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries = make(map[string]*entry)
	s.head.next = s.tail
	s.tail.prev = s.head
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// Stats returns a snapshot of the counters.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Entries:   s.Len(),
		Hits:      atomic.LoadInt64(&s.hits),
		Misses:    atomic.LoadInt64(&s.misses),
		Writes:    atomic.LoadInt64(&s.writes),
		Deletes:   atomic.LoadInt64(&s.deletes),
		Evictions: atomic.LoadInt64(&s.evictions),
		Expired:   atomic.LoadInt64(&s.expired),
	}
}

func (s *MemoryStore) evictIfNeeded() {
	if s.maxEntries <= 0 {
		return
	}
	for len(s.entries) >= s.maxEntries && s.tail.prev != s.head {
		s.remove(s.tail.prev)
		atomic.AddInt64(&s.evictions, 1)
	}
}

func (s *MemoryStore) remove(e *entry) {
	s.unlink(e)
	delete(s.entries, e.key)
}

func (s *MemoryStore) addToFront(e *entry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *MemoryStore) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (s *MemoryStore) moveToFront(e *entry) {
	s.unlink(e)
	s.addToFront(e)
}

// MatchKey reports whether key matches pattern.
func MatchKey(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok && !strings.ContainsAny(prefix, `*?[\`) {
		return strings.HasPrefix(key, prefix)
	}
	matched, err := path.Match(pattern, key)
	return err == nil && matched
}
