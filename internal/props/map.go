package props

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Map is an insertion-ordered string → Value map.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap creates an empty ordered map
func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// MapFromAny builds a Map from plain Go data. Keys are sorted because Go maps
// carry no order of their own.
func MapFromAny(m map[string]any) *Map {
	out := NewMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Set(k, FromAny(m[k]))
	}
	return out
}

// Set inserts or replaces a key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes a key.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Merge copies every entry of other into m, overwriting existing keys.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// Clone returns a shallow copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	out.Merge(m)
	return out
}

// ToAny converts the map to map[string]any.
func (m *Map) ToAny() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out[k] = m.values[k].Any()
	}
	return out
}

// MarshalJSON implements json.Marshaler and preserves key order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := m.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler and keeps document key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := decodeStrict(data)
	if err != nil {
		return err
	}
	if v.kind != KindObject {
		return fmt.Errorf("props: expected JSON object, got %s", v.kind)
	}
	m.keys = v.obj.keys
	m.values = v.obj.values
	return nil
}
