package pmt

import (
	"encoding/base64"
	"hash/fnv"
)

// goldenRatio is the mixing constant used to combine per-value hashes.
const goldenRatio = 0x9e3779b9

// HashCombine folds the hash of s into seed.
func HashCombine(seed uint64, s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return seed ^ (h.Sum64() + goldenRatio + (seed << 6) + (seed >> 2))
}

// HashValue folds the base-64 canonical encoding of v into seed.
func HashValue(seed uint64, v Value) uint64 {
	return HashCombine(seed, base64.StdEncoding.EncodeToString(AppendValue(nil, v)))
}

// Hash returns an order-sensitive hash over all entries.
func (m *Map) Hash() uint64 {
	var seed uint64
	m.Range(func(k string, v Value) bool {
		seed = HashCombine(seed, k)
		seed = HashValue(seed, v)
		return true
	})
	return seed
}
