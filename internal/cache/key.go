package cache

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
	"strings"
)

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// HashProps returns a stable FNV-64a hash of v's JSON encoding. Values that
// fail to encode hash to "unhashable" and should not be cached.
func HashProps(v any) (string, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return "unhashable", false
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return strconv.FormatUint(h.Sum64(), 16), true
}
