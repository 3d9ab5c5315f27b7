package cache

import "time"

// NamespacedStore prefixes every key of an underlying store.
type NamespacedStore struct {
	store  Store
	prefix string
}

var _ Store = (*NamespacedStore)(nil)

// Namespaced returns a view of store whose keys live under prefix. Clear only
// touches the namespace when store is a MatchDeleter; otherwise it clears the
// whole underlying store.
func Namespaced(store Store, prefix string) *NamespacedStore {
	return &NamespacedStore{store: store, prefix: prefix}
}

func (n *NamespacedStore) key(k string) string {
	return n.prefix + k
}

func (n *NamespacedStore) Read(key string) (any, bool) {
	return n.store.Read(n.key(key))
}

func (n *NamespacedStore) Write(key string, value any, ttl time.Duration) {
	n.store.Write(n.key(key), value, ttl)
}

func (n *NamespacedStore) Delete(key string) {
	n.store.Delete(n.key(key))
}

// DeleteMatched deletes keys matching pattern inside the namespace. It returns
// 0 when the underlying store cannot match.
func (n *NamespacedStore) DeleteMatched(pattern string) int {
	md, ok := n.store.(MatchDeleter)
	if !ok {
		return 0
	}
	return md.DeleteMatched(n.key(pattern))
}

func (n *NamespacedStore) Clear() {
	if md, ok := n.store.(MatchDeleter); ok {
		md.DeleteMatched(n.prefix + "*")
		return
	}
	n.store.Clear()
}

// Prefix returns the namespace prefix.
func (n *NamespacedStore) Prefix() string {
	return n.prefix
}
