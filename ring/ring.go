package ring

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"
)

var (
	// ErrCapacity is returned for a non-positive requested capacity.
	ErrCapacity = errors.New("ring: invalid capacity")
	// ErrReserveSize is returned when a reservation exceeds the capacity.
	ErrReserveSize = errors.New("ring: reserve exceeds capacity")
	// ErrInsufficientSpace is returned by TryReserve when the claim would
	// overwrite unread slots.
	ErrInsufficientSpace = errors.New("ring: insufficient space")
	// ErrConsumeSize is returned when a consume exceeds the available range.
	ErrConsumeSize = errors.New("ring: consume exceeds available")
	// ErrPublishSize is returned when a publish exceeds the reserved range.
	ErrPublishSize = errors.New("ring: publish exceeds reserved")
	// ErrPendingSpan is returned by Reserve while a previous span of the
	// same writer is neither fully published nor released.
	ErrPendingSpan = errors.New("ring: unreleased producer span")
)

// removedReader parks a deregistered gating sequence beyond any cursor so
// producers holding a stale snapshot are not gated by it.
const removedReader = math.MaxInt64

type options struct {
	wait  WaitStrategy
	multi bool
}

// Option configures a buffer.
type Option func(*options)

// WithWaitStrategy replaces the default Blocking strategy.
func WithWaitStrategy(ws WaitStrategy) Option {
	return func(o *options) { o.wait = ws }
}

// WithMultipleProducers switches the buffer to the multi-producer claim
// protocol.
func WithMultipleProducers() Option {
	return func(o *options) { o.multi = true }
}

// Buffer is a bounded power-of-two circular buffer. Elements are addressed
// by monotonic sequences, slot s lives at storage[s & (capacity-1)] and any
// view of up to capacity elements is contiguous through the storage mirror.
type Buffer[T any] struct {
	capacity int64
	mask     int64
	shift    uint
	storage  *storage[T]
	wait     WaitStrategy

	cursor *Sequence // last published sequence
	claim  *Sequence // multi: last claimed sequence

	multi     bool
	available []atomic.Int32 // multi: publication round per slot

	mu      sync.Mutex
	readers atomic.Pointer[[]*Sequence]
}

// New creates a buffer with at least the requested capacity, rounded up to
// the next power of two.
func New[T any](capacity int, opts ...Option) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	o := options{wait: NewBlocking()}
	for _, opt := range opts {
		opt(&o)
	}
	capacity = nextPowerOfTwo(capacity)
	b := &Buffer[T]{
		capacity: int64(capacity),
		mask:     int64(capacity - 1),
		shift:    uint(bits.TrailingZeros64(uint64(capacity))),
		storage:  newStorage[T](capacity),
		wait:     o.wait,
		cursor:   NewSequence(InitialCursorValue),
		multi:    o.multi,
	}
	if o.multi {
		b.claim = NewSequence(InitialCursorValue)
		b.available = make([]atomic.Int32, capacity)
		for i := range b.available {
			b.available[i].Store(-1)
		}
	}
	b.readers.Store(new([]*Sequence))
	return b, nil
}

// Capacity returns the effective capacity.
func (b *Buffer[T]) Capacity() int { return int(b.capacity) }

// Cursor returns the last published sequence.
func (b *Buffer[T]) Cursor() int64 { return b.cursor.Load() }

// WaitStrategy returns the strategy the buffer signals on publish and
// consume.
func (b *Buffer[T]) WaitStrategy() WaitStrategy { return b.wait }

// Release unmaps double-mapped storage. The buffer must not be used after.
func (b *Buffer[T]) Release() { b.storage.release() }

func (b *Buffer[T]) readerSequences() []*Sequence { return *b.readers.Load() }

func (b *Buffer[T]) addReader(seq *Sequence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := *b.readers.Load()
	next := make([]*Sequence, len(old)+1)
	copy(next, old)
	next[len(old)] = seq
	b.readers.Store(&next)
}

func (b *Buffer[T]) removeReader(seq *Sequence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := *b.readers.Load()
	next := make([]*Sequence, 0, len(old))
	for _, s := range old {
		if s != seq {
			next = append(next, s)
		}
	}
	b.readers.Store(&next)
}

// NewReader registers a consumer whose gating sequence starts at the
// current cursor, it does not see history.
func (b *Buffer[T]) NewReader() *Reader[T] {
	seq := NewSequence(b.cursor.Load())
	b.addReader(seq)
	return &Reader[T]{b: b, seq: seq, outstanding: -1}
}

// NewWriter returns a producer handle. A single-producer buffer supports
// exactly one writer, a multi-producer buffer any number.
func (b *Buffer[T]) NewWriter() *Writer[T] {
	return &Writer[T]{b: b, next: b.cursor.Load()}
}

func (b *Buffer[T]) isAvailable(seq int64) bool {
	return b.available[seq&b.mask].Load() == int32(seq>>b.shift)
}

func (b *Buffer[T]) markAvailable(lo, hi int64) {
	for seq := lo; seq <= hi; seq++ {
		b.available[seq&b.mask].Store(int32(seq >> b.shift))
	}
}

// advanceCursor moves the published cursor through the contiguous prefix
// of published slots. The cursor never overtakes an unpublished claim.
func (b *Buffer[T]) advanceCursor() {
	for {
		cur := b.cursor.Load()
		next := cur
		for next-cur < b.capacity && b.isAvailable(next+1) {
			next++
		}
		if next == cur {
			return
		}
		if b.cursor.CompareAndSet(cur, next) {
			return
		}
	}
}

// Writer claims slots on a buffer and hands them out as producer spans.
type Writer[T any] struct {
	b      *Buffer[T]
	next   int64 // single producer: last claimed sequence
	active *ProducerSpan[T]
}

// Space returns the number of slots that can be reserved without blocking.
func (w *Writer[T]) Space() int {
	b := w.b
	claimed := w.next
	if b.multi {
		claimed = b.claim.Load()
	}
	gate := Minimum(b.readerSequences(), b.cursor.Load())
	free := b.capacity - (claimed - gate)
	if free < 0 {
		return 0
	}
	return int(free)
}

// Reserve claims n slots, waiting for reader headroom through the wait
// strategy, and returns a span over them.
func (w *Writer[T]) Reserve(n int) (*ProducerSpan[T], error) {
	return w.reserve(n, true)
}

// TryReserve claims n slots without blocking. It returns
// ErrInsufficientSpace when the headroom is not available right now.
func (w *Writer[T]) TryReserve(n int) (*ProducerSpan[T], error) {
	return w.reserve(n, false)
}

func (w *Writer[T]) reserve(n int, block bool) (*ProducerSpan[T], error) {
	b := w.b
	switch {
	case n < 0:
		return nil, fmt.Errorf("%w: %d", ErrReserveSize, n)
	case int64(n) > b.capacity:
		return nil, fmt.Errorf("%w: %d > %d", ErrReserveSize, n, b.capacity)
	case w.active != nil && !w.active.done():
		return nil, ErrPendingSpan
	}

	var lo int64
	if b.multi {
		// a claim cannot be returned, so the non-blocking probe happens
		// before claiming. A lost race falls back to a blocking wait for
		// the already-claimed slots.
		if !block {
			gate := Minimum(b.readerSequences(), b.cursor.Load())
			if b.claim.Load()+int64(n)-gate > b.capacity {
				return nil, ErrInsufficientSpace
			}
		}
		hi := b.claim.AddAndGet(int64(n))
		lo = hi - int64(n) + 1
		if err := w.waitHeadroom(hi, true); err != nil {
			return nil, err
		}
	} else {
		lo = w.next + 1
		if err := w.waitHeadroom(w.next+int64(n), block); err != nil {
			return nil, err
		}
	}

	span := &ProducerSpan[T]{
		w:    w,
		lo:   lo,
		data: b.storage.view(int(lo&b.mask), n),
	}
	w.active = span
	return span, nil
}

func (w *Writer[T]) waitHeadroom(hi int64, block bool) error {
	b := w.b
	expected := hi - b.capacity
	if !block {
		if gatingValue(b.cursor, b.readerSequences()) < expected {
			return ErrInsufficientSpace
		}
		return nil
	}
	_, err := b.wait.WaitFor(expected, b.cursor, b.readerSequences())
	return err
}

func (w *Writer[T]) publish(span *ProducerSpan[T], k int) {
	b := w.b
	start := span.lo + int64(span.published)
	b.storage.sync(int(start&b.mask), k)
	if b.multi {
		b.markAvailable(start, start+int64(k)-1)
		b.advanceCursor()
	} else {
		w.next = start + int64(k) - 1
		b.cursor.Store(w.next)
	}
	b.wait.SignalAll()
}

// Reader consumes published slots. It is owned by a single goroutine.
type Reader[T any] struct {
	b           *Buffer[T]
	seq         *Sequence
	outstanding int // size of the last unconsumed span, -1 when none
	closed      bool
}

// Available returns the number of published, not yet consumed samples.
func (r *Reader[T]) Available() int {
	return int(r.b.cursor.Load() - r.seq.Load())
}

// Position returns the last consumed sequence.
func (r *Reader[T]) Position() int64 { return r.seq.Load() }

// Get returns a span over at most n available samples. It never blocks:
// the span is clamped to what is available, and, before the previous span
// was consumed, to that span's size.
func (r *Reader[T]) Get(n int) *ConsumerSpan[T] {
	m := r.Available()
	if n < m {
		m = n
	}
	if r.outstanding >= 0 && r.outstanding < m {
		m = r.outstanding
	}
	if m < 0 {
		m = 0
	}
	r.outstanding = m
	idx := int((r.seq.Load() + 1) & r.b.mask)
	return &ConsumerSpan[T]{r: r, data: r.b.storage.view(idx, m)}
}

// GetAll returns a span over everything available.
func (r *Reader[T]) GetAll() *ConsumerSpan[T] {
	return r.Get(r.Available())
}

func (r *Reader[T]) consume(k int) error {
	if k < 0 || k > r.Available() {
		return fmt.Errorf("%w: %d of %d", ErrConsumeSize, k, r.Available())
	}
	r.outstanding = -1
	r.seq.Store(r.seq.Load() + int64(k))
	r.b.wait.SignalAll()
	return nil
}

// Close deregisters the gating sequence and wakes producers blocked on it.
func (r *Reader[T]) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.seq.Store(removedReader)
	r.b.removeReader(r.seq)
	r.b.wait.SignalAll()
}
