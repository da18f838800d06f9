package ring

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewBuffer(t *testing.T) {
	tests := []struct {
		description string
		capacity    int
		expected    int
		err         error
	}{
		{description: "power of two kept", capacity: 8, expected: 8},
		{description: "rounded up", capacity: 5, expected: 8},
		{description: "single slot", capacity: 1, expected: 1},
		{description: "zero rejected", capacity: 0, err: ErrCapacity},
		{description: "negative rejected", capacity: -1, err: ErrCapacity},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			b, err := New[int32](test.capacity)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, b.Capacity())
			assert.Equal(t, InitialCursorValue, b.Cursor())
		})
	}
}

func TestNewReaderStartsAtCursor(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()

	span, err := w.Reserve(3)
	require.NoError(t, err)
	copy(span.Data(), []int{1, 2, 3})
	require.NoError(t, span.Publish(3))

	// a new reader does not see history
	r := b.NewReader()
	assert.Equal(t, 0, r.Available())
	assert.Equal(t, int64(2), r.Position())
}

func TestSPSCWrap(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	publish := func(values ...int) {
		span, err := w.Reserve(len(values))
		require.NoError(t, err)
		copy(span.Data(), values)
		require.NoError(t, span.Publish(len(values)))
	}

	publish(1, 2, 3, 4, 5, 6)
	span := r.Get(6)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, span.Data())
	require.NoError(t, span.Consume(6))

	// the second batch wraps through the mirror
	publish(7, 8, 9, 10, 11, 12)
	span = r.Get(6)
	assert.Equal(t, []int{7, 8, 9, 10, 11, 12}, span.Data())
	require.NoError(t, span.Consume(6))

	assert.Equal(t, int64(11), b.Cursor())
	assert.Equal(t, 0, r.Available())
}

func TestGetClamping(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	span, err := w.Reserve(4)
	require.NoError(t, err)
	copy(span.Data(), []int{1, 2, 3, 4})
	require.NoError(t, span.Publish(4))

	// clamped to available, never blocks
	got := r.Get(100)
	assert.Equal(t, 4, got.Len())

	// before the first consume, further gets clamp to the previous span
	smaller := r.Get(2)
	assert.Equal(t, 2, smaller.Len())
	again := r.Get(100)
	assert.Equal(t, 2, again.Len())
	require.NoError(t, again.Consume(2))

	// after the consume the clamp is gone
	rest := r.Get(100)
	assert.Equal(t, 2, rest.Len())
	require.NoError(t, rest.Consume(2))
}

func TestConsumeValidation(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	span, err := w.Reserve(2)
	require.NoError(t, err)
	require.NoError(t, span.Publish(2))

	assert.ErrorIs(t, r.consume(3), ErrConsumeSize)
	assert.ErrorIs(t, r.consume(-1), ErrConsumeSize)
	assert.NoError(t, r.consume(2))
}

func TestReserveValidation(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()

	_, err = w.Reserve(9)
	assert.ErrorIs(t, err, ErrReserveSize)
	_, err = w.Reserve(-1)
	assert.ErrorIs(t, err, ErrReserveSize)

	span, err := w.Reserve(4)
	require.NoError(t, err)
	_, err = w.Reserve(1)
	assert.ErrorIs(t, err, ErrPendingSpan)
	span.Release()
	_, err = w.Reserve(1)
	assert.NoError(t, err)
}

func TestProducerSpanPartialPublish(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	span, err := w.Reserve(6)
	require.NoError(t, err)
	copy(span.Data(), []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, span.Publish(2))
	assert.Equal(t, 2, r.Available())
	require.NoError(t, span.Publish(3))
	assert.Equal(t, 5, r.Available())
	assert.ErrorIs(t, span.Publish(2), ErrPublishSize)

	// the unpublished suffix is returned to the writer
	span.Release()
	next, err := w.Reserve(1)
	require.NoError(t, err)
	next.Data()[0] = 42
	require.NoError(t, next.Publish(1))

	got := r.GetAll()
	assert.Equal(t, []int{1, 2, 3, 4, 5, 42}, got.Data())
	require.NoError(t, got.Consume(6))
}

func TestConsumerSpanPolicies(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	span, err := w.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, span.Publish(4))

	t.Run("process all", func(t *testing.T) {
		got := r.Get(2)
		got.Release()
		assert.Equal(t, 2, r.Available())
	})
	t.Run("process none", func(t *testing.T) {
		got := r.Get(2)
		got.Policy = ProcessNone
		got.Release()
		assert.Equal(t, 2, r.Available())
		// the clamp of the released span is gone
		assert.Equal(t, 2, r.Get(2).Len())
	})
	t.Run("terminate", func(t *testing.T) {
		got := r.Get(2)
		got.Policy = Terminate
		assert.Panics(t, func() { got.Release() })
	})
}

func TestBackpressure(t *testing.T) {
	defer goleak.VerifyNone(t)

	b, err := New[int](8)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	for i := 0; i < 8; i++ {
		span, err := w.Reserve(1)
		require.NoError(t, err)
		span.Data()[0] = i
		require.NoError(t, span.Publish(1))
	}

	_, err = w.TryReserve(1)
	assert.ErrorIs(t, err, ErrInsufficientSpace)

	unblocked := make(chan struct{})
	go func() {
		defer close(unblocked)
		for i := 8; i < 12; i++ {
			span, err := w.Reserve(1)
			if err != nil {
				return
			}
			span.Data()[0] = i
			_ = span.Publish(1)
		}
	}()

	select {
	case <-unblocked:
		t.Fatal("producer was not blocked")
	case <-time.After(50 * time.Millisecond):
	}

	span := r.Get(4)
	require.NoError(t, span.Consume(4))

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("producer stayed blocked")
	}
	assert.Equal(t, 8, r.Available())
}

func TestReaderCloseWakesProducer(t *testing.T) {
	defer goleak.VerifyNone(t)

	b, err := New[int](4)
	require.NoError(t, err)
	w := b.NewWriter()
	r := b.NewReader()

	span, err := w.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, span.Publish(4))

	unblocked := make(chan struct{})
	go func() {
		defer close(unblocked)
		if span, err := w.Reserve(1); err == nil {
			_ = span.Publish(1)
		}
	}()

	select {
	case <-unblocked:
		t.Fatal("producer was not blocked")
	case <-time.After(50 * time.Millisecond):
	}

	r.Close()
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("producer stayed blocked after reader left")
	}
}

func TestMPSCOrdering(t *testing.T) {
	defer goleak.VerifyNone(t)

	type sample struct {
		producer int64
		value    int64
	}
	const (
		producers = 5
		limit     = 20000
	)
	chunks := []int{1, 2, 3, 5, 7, 42}

	b, err := New[sample](1024, WithMultipleProducers())
	require.NoError(t, err)

	readers := []*Reader[sample]{b.NewReader(), b.NewReader()}
	results := make([]map[int64][]int64, len(readers))

	var wg sync.WaitGroup
	for ri, r := range readers {
		ri, r := ri, r
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen := map[int64][]int64{}
			total := 0
			for total < producers*limit {
				span := r.GetAll()
				if span.Len() == 0 {
					runtime.Gosched()
				}
				for _, s := range span.Data() {
					seen[s.producer] = append(seen[s.producer], s.value)
				}
				total += span.Len()
				if err := span.Consume(span.Len()); err != nil {
					return
				}
			}
			results[ri] = seen
		}()
	}

	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := b.NewWriter()
			pos, i := 0, 0
			for pos < limit {
				n := chunks[i%len(chunks)]
				if n > limit-pos {
					n = limit - pos
				}
				span, err := w.Reserve(n)
				if err != nil {
					return
				}
				data := span.Data()
				for j := range data {
					data[j] = sample{producer: int64(p), value: int64(pos + j)}
				}
				_ = span.Publish(n)
				pos += n
				i++
			}
		}()
	}
	wg.Wait()

	for ri := range readers {
		seen := results[ri]
		require.Len(t, seen, producers)
		for p := int64(0); p < producers; p++ {
			values := seen[p]
			require.Len(t, values, limit)
			for i, v := range values {
				// per producer the sequence is strictly increasing and
				// covers the full range
				require.Equal(t, int64(i), v)
			}
		}
	}
}

func TestTimeoutBlocking(t *testing.T) {
	b, err := New[int](4, WithWaitStrategy(NewTimeoutBlocking(20*time.Millisecond)))
	require.NoError(t, err)
	w := b.NewWriter()
	_ = b.NewReader()

	span, err := w.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, span.Publish(4))

	_, err = w.Reserve(1)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHistoryBuffer(t *testing.T) {
	_, err := NewHistory[int](0)
	assert.ErrorIs(t, err, ErrCapacity)

	h, err := NewHistory[int](3)
	require.NoError(t, err)
	assert.Equal(t, 4, h.Capacity())

	h.Push(1)
	h.Push(2)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.At(0))
	assert.Equal(t, 1, h.At(1))

	for v := 3; v <= 6; v++ {
		h.Push(v)
	}
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, 6, h.At(0))
	assert.Equal(t, 3, h.At(3))
}
