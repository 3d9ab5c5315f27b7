package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreReadWrite(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Read("missing")
	assert.False(t, ok)

	store.Write("k", "v", 0)
	v, ok := store.Read("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	store.Write("k", "v2", 0)
	v, _ = store.Read("k")
	assert.Equal(t, "v2", v)

	store.Delete("k")
	_, ok = store.Read("k")
	assert.False(t, ok)
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	store.Write("k", "v", time.Minute)

	clock.Advance(59 * time.Second)
	v, ok := store.Read("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(time.Second)
	assert.Equal(t, 1, store.Len(), "expired entries stay until read")

	_, ok = store.Read("k")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len(), "expired read evicts")

	_, ok = store.Read("k")
	assert.False(t, ok, "later read stays absent without a rewrite")

	stats := store.Stats()
	assert.EqualValues(t, 1, stats.Expired)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
}

func TestMemoryStoreNoTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	store.Write("forever", 1, 0)
	store.Write("negative", 2, -time.Second)
	clock.Advance(24 * 365 * time.Hour)

	_, ok := store.Read("forever")
	assert.True(t, ok)
	_, ok = store.Read("negative")
	assert.True(t, ok)
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	store := NewMemoryStore(WithMaxEntries(2))

	store.Write("a", 1, 0)
	store.Write("b", 2, 0)
	_, _ = store.Read("a") // b is now least recently used
	store.Write("c", 3, 0)

	_, ok := store.Read("b")
	assert.False(t, ok)
	_, ok = store.Read("a")
	assert.True(t, ok)
	_, ok = store.Read("c")
	assert.True(t, ok)
	assert.EqualValues(t, 1, store.Stats().Evictions)
}

func TestMemoryStoreDeleteMatched(t *testing.T) {
	store := NewMemoryStore()
	store.Write("render:app/components/Card.tsx:1", "x", 0)
	store.Write("render:app/components/Nav.tsx:2", "y", 0)
	store.Write("resolve:Card", "z", 0)

	assert.Equal(t, 2, store.DeleteMatched("render:*"))
	assert.Equal(t, 1, store.Len())

	store.Write("resolve:Nav", "n", 0)
	assert.Equal(t, 1, store.DeleteMatched("resolve:N?v"))
	assert.Equal(t, 0, store.DeleteMatched("[bad"))
}

func TestMatchKey(t *testing.T) {
	assert.True(t, MatchKey("render:*", "render:a/b/c"))
	assert.True(t, MatchKey("exact", "exact"))
	assert.True(t, MatchKey("ab?", "abc"))
	assert.False(t, MatchKey("render:*", "resolve:x"))
	assert.False(t, MatchKey("a*b", "a/xb"))
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(WithMaxEntries(64))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%100)
				store.Write(key, id, time.Minute)
				_, _ = store.Read(key)
				if i%50 == 0 {
					store.DeleteMatched("k1*")
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Len(), 64)
}

func TestNamespacedStore(t *testing.T) {
	base := NewMemoryStore()
	render := Namespaced(base, "render:")
	resolve := Namespaced(base, "resolve:")

	render.Write("a", 1, 0)
	resolve.Write("a", 2, 0)

	v, ok := render.Read("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	raw, ok := base.Read("resolve:a")
	require.True(t, ok)
	assert.Equal(t, 2, raw)

	render.Clear()
	_, ok = render.Read("a")
	assert.False(t, ok)
	_, ok = resolve.Read("a")
	assert.True(t, ok, "clear is scoped to the namespace")

	resolve.Delete("a")
	_, ok = resolve.Read("a")
	assert.False(t, ok)
	assert.Equal(t, "render:", render.Prefix())
}

// plainStore is a Store without pattern deletion.
type plainStore struct {
	data map[string]any
}

func (p *plainStore) Read(key string) (any, bool) { v, ok := p.data[key]; return v, ok }
func (p *plainStore) Write(key string, value any, _ time.Duration) { p.data[key] = value }
func (p *plainStore) Delete(key string) { delete(p.data, key) }
func (p *plainStore) Clear() { p.data = map[string]any{} }

func TestNamespacedClearFallsBackToFullClear(t *testing.T) {
	base := &plainStore{data: map[string]any{}}
	ns := Namespaced(base, "ns:")

	ns.Write("a", 1, 0)
	base.Write("other", 2, 0)

	assert.Equal(t, 0, ns.DeleteMatched("*"))
	ns.Clear()
	assert.Empty(t, base.data)
}

func TestKeyAndHashProps(t *testing.T) {
	assert.Equal(t, "render:Card.tsx:abc", Key("render", "Card.tsx", "abc"))

	h1, ok := HashProps(map[string]any{"a": 1, "b": []int{1, 2}})
	require.True(t, ok)
	h2, _ := HashProps(map[string]any{"b": []int{1, 2}, "a": 1})
	assert.Equal(t, h1, h2)

	h3, _ := HashProps(map[string]any{"a": 2})
	assert.NotEqual(t, h1, h3)

	_, ok = HashProps(map[string]any{"f": func() {}})
	assert.False(t, ok)
}
