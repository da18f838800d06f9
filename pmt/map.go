package pmt

// Map is an insertion-ordered mapping from string keys to property values.
// The zero value is not usable, use New.
type Map struct {
	keys   []string
	values map[string]Value
}

// New returns an empty map.
func New() *Map {
	return &Map{values: make(map[string]Value)}
}

func (m *Map) Kind() Kind { return KindMap }

// Set inserts or replaces the value for key. Insertion order of new keys
// is preserved.
func (m *Map) Set(key string, v Value) *Map {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
	return m
}

// Get returns the value stored for key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Contains reports whether key is present.
func (m *Map) Contains(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key and keeps the order of remaining keys.
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

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Empty reports whether the map has no entries.
func (m *Map) Empty() bool { return m.Len() == 0 }

// Keys returns keys in insertion order. The returned slice is a copy.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Range calls fn for every entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a copy of the map. Nested maps are cloned recursively,
// vectors are shared.
func (m *Map) Clone() *Map {
	c := New()
	if m == nil {
		return c
	}
	for _, k := range m.keys {
		v := m.values[k]
		if nested, ok := v.(*Map); ok {
			v = nested.Clone()
		}
		c.Set(k, v)
	}
	return c
}

// Merge inserts or replaces all entries of src into m.
func (m *Map) Merge(src *Map) *Map {
	if src == nil {
		return m
	}
	src.Range(func(k string, v Value) bool {
		m.Set(k, v)
		return true
	})
	return m
}

// Clear removes all entries.
func (m *Map) Clear() {
	m.keys = m.keys[:0]
	for k := range m.values {
		delete(m.values, k)
	}
}

// Equal compares two maps by keys, order and values.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m == nil || other == nil {
		return true
	}
	for i, k := range m.keys {
		if other.keys[i] != k {
			return false
		}
		if !Equal(m.values[k], other.values[k]) {
			return false
		}
	}
	return true
}
