package ring

import "fmt"

// ReleasePolicy decides what a consumer span does when released without an
// explicit consume.
type ReleasePolicy int

const (
	// ProcessAll consumes the whole view. Default.
	ProcessAll ReleasePolicy = iota
	// ProcessNone consumes nothing.
	ProcessNone
	// Terminate panics, releasing without consuming is a programming error.
	Terminate
)

// ProducerSpan is a scoped reservation of contiguous slots. Fill Data and
// publish in one or more chunks, then Release. A span fully published is
// released implicitly.
type ProducerSpan[T any] struct {
	w         *Writer[T]
	data      []T
	lo        int64
	published int
	released  bool
}

// Data returns the mutable view over the reserved slots.
func (s *ProducerSpan[T]) Data() []T { return s.data }

// Len returns the reservation size.
func (s *ProducerSpan[T]) Len() int { return len(s.data) }

// Published returns how many slots were published so far.
func (s *ProducerSpan[T]) Published() int { return s.published }

func (s *ProducerSpan[T]) done() bool {
	return s.released || s.published == len(s.data)
}

// Publish makes the next k written slots visible to consumers with release
// ordering and signals the wait strategy.
func (s *ProducerSpan[T]) Publish(k int) error {
	if s.released {
		return fmt.Errorf("%w: span already released", ErrPublishSize)
	}
	if k < 0 || s.published+k > len(s.data) {
		return fmt.Errorf("%w: %d of %d remaining", ErrPublishSize, k, len(s.data)-s.published)
	}
	if k == 0 {
		return nil
	}
	s.w.publish(s, k)
	s.published += k
	return nil
}

// Release finalises the span. On a single-producer buffer the unpublished
// suffix is returned to the writer. On a multi-producer buffer claimed
// slots cannot be unclaimed, the suffix is zeroed and published so the
// contiguous prefix keeps advancing.
func (s *ProducerSpan[T]) Release() {
	if s.released {
		return
	}
	if s.w.b.multi && s.published < len(s.data) {
		var zero T
		for i := s.published; i < len(s.data); i++ {
			s.data[i] = zero
		}
		s.w.publish(s, len(s.data)-s.published)
		s.published = len(s.data)
	}
	s.released = true
	if s.w.active == s {
		s.w.active = nil
	}
}

// ConsumerSpan is a scoped read view over published slots. The view stays
// valid until Consume or Release.
type ConsumerSpan[T any] struct {
	r        *Reader[T]
	data     []T
	consumed bool

	// Policy applies when the span is released without an explicit
	// consume. Default ProcessAll.
	Policy ReleasePolicy
}

// Data returns the read view.
func (s *ConsumerSpan[T]) Data() []T { return s.data }

// Len returns the view size.
func (s *ConsumerSpan[T]) Len() int { return len(s.data) }

// Consume advances the reader cursor by k and invalidates the span.
// k must not exceed the available range.
func (s *ConsumerSpan[T]) Consume(k int) error {
	if s.consumed {
		return fmt.Errorf("%w: span already consumed", ErrConsumeSize)
	}
	if err := s.r.consume(k); err != nil {
		return err
	}
	s.consumed = true
	return nil
}

// Release finalises the span per its policy when no explicit consume
// happened.
func (s *ConsumerSpan[T]) Release() {
	if s.consumed {
		return
	}
	switch s.Policy {
	case ProcessAll:
		_ = s.Consume(len(s.data))
	case ProcessNone:
		s.consumed = true
		s.r.outstanding = -1
	case Terminate:
		panic("ring: consumer span released without consume")
	}
}
