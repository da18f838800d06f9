// Package ring provides the lock-free circular buffer backing every edge of
// a flow graph: monotonic sequences, wait strategies, single- and
// multi-producer writers and scoped producer/consumer spans.
package ring

import "sync/atomic"

// InitialCursorValue marks a sequence that never published an element.
const InitialCursorValue int64 = -1

// Sequence is a monotonic 64-bit cursor identifying a ring slot. It is
// padded to its own cache line to avoid false sharing between the producer
// and consumer cursors of a buffer.
type Sequence struct {
	_     [64]byte
	value atomic.Int64
	_     [56]byte
}

// NewSequence returns a sequence initialised to v.
func NewSequence(v int64) *Sequence {
	s := &Sequence{}
	s.value.Store(v)
	return s
}

// Load returns the current value with acquire ordering.
func (s *Sequence) Load() int64 { return s.value.Load() }

// Store publishes v with release ordering.
func (s *Sequence) Store(v int64) { s.value.Store(v) }

// CompareAndSet atomically replaces expected with v.
func (s *Sequence) CompareAndSet(expected, v int64) bool {
	return s.value.CompareAndSwap(expected, v)
}

// FetchAdd adds n and returns the previous value.
func (s *Sequence) FetchAdd(n int64) int64 {
	return s.value.Add(n) - n
}

// IncrementAndGet adds one and returns the new value.
func (s *Sequence) IncrementAndGet() int64 { return s.value.Add(1) }

// AddAndGet adds n and returns the new value.
func (s *Sequence) AddAndGet(n int64) int64 { return s.value.Add(n) }

// Minimum returns the smallest value among floor and all sequences. It is
// the canonical gating-sequence query: a producer may not claim slots past
// Minimum(readers, cursor) + capacity.
func Minimum(sequences []*Sequence, floor int64) int64 {
	min := floor
	for _, s := range sequences {
		if v := s.Load(); v < min {
			min = v
		}
	}
	return min
}
