package ring

// storage holds 2·capacity elements so that any view of up to capacity
// elements starting inside the first half is contiguous. On platforms with
// a map-twice primitive the second half aliases the first in hardware;
// otherwise it is a plain allocation kept coherent by sync after every
// publish.
type storage[T any] struct {
	data     []T
	capacity int
	mirrored bool
	unmap    func()
}

func newStorage[T any](capacity int) *storage[T] {
	if data, unmap, ok := doubleMap[T](capacity); ok {
		return &storage[T]{data: data, capacity: capacity, mirrored: true, unmap: unmap}
	}
	return &storage[T]{data: make([]T, 2*capacity), capacity: capacity}
}

// view returns the contiguous slots [idx, idx+n). idx must be < capacity
// and n ≤ capacity.
func (s *storage[T]) view(idx, n int) []T {
	return s.data[idx : idx+n]
}

// sync copies the written range [idx, idx+n) onto its mirror twin. A no-op
// for hardware-mirrored storage.
func (s *storage[T]) sync(idx, n int) {
	if s.mirrored || n == 0 {
		return
	}
	end := idx + n
	if end <= s.capacity {
		copy(s.data[s.capacity+idx:s.capacity+end], s.data[idx:end])
		return
	}
	copy(s.data[s.capacity+idx:], s.data[idx:s.capacity])
	copy(s.data[:end-s.capacity], s.data[s.capacity:end])
}

func (s *storage[T]) release() {
	if s.unmap != nil {
		s.unmap()
		s.unmap = nil
	}
	s.data = nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
