package graph

import (
	"errors"
	"fmt"
	"reflect"

	"pipelined.dev/graph/pmt"
	"pipelined.dev/graph/ring"
)

// defaultCapacity backs edges whose output port did not request a size.
const defaultCapacity = 4096

var (
	// ErrTypeMismatch is returned by Init when connected ports carry
	// different sample types.
	ErrTypeMismatch = errors.New("graph: port type mismatch")
	// ErrNotConnected is returned by port I/O before Init resolved the
	// connection.
	ErrNotConnected = errors.New("graph: port not connected")
	// ErrAlreadyConnected is returned when an input port is wired twice.
	ErrAlreadyConnected = errors.New("graph: input port already connected")
	// ErrTagSpace is returned when the tag side-channel is full.
	ErrTagSpace = errors.New("graph: no space in tag buffer")
)

// Tag attaches metadata to the sample at Index. It is carried in a
// side-channel ring paired with the sample ring and logically precedes
// that sample.
type Tag struct {
	Index int64
	Map   *pmt.Map
}

// Port is a typed endpoint of a block. Available reports queued samples
// for inputs and free space for outputs.
type Port interface {
	Name() string
	SampleType() reflect.Type
	Connected() bool
	Available() int
}

// outConnector is implemented by output ports, Init drives the
// type-checked binding through it.
type outConnector interface {
	Port
	connectTo(Port) error
}

// PortOption configures an output port.
type PortOption func(*portOptions)

type portOptions struct {
	capacity int
	wait     ring.WaitStrategy
}

// WithCapacity sets the edge buffer capacity, rounded up to a power of
// two.
func WithCapacity(n int) PortOption {
	return func(o *portOptions) { o.capacity = n }
}

// WithWaitStrategy sets the wait strategy of the edge buffer.
func WithWaitStrategy(ws ring.WaitStrategy) PortOption {
	return func(o *portOptions) { o.wait = ws }
}

// Out is a typed output port. The first connection allocates the shared
// sample and tag rings, further connections add readers.
type Out[T any] struct {
	name string
	opts portOptions

	buf  *ring.Buffer[T]
	w    *ring.Writer[T]
	tags *ring.Buffer[Tag]
	tagw *ring.Writer[Tag]
}

// NewOut creates an output port.
func NewOut[T any](name string, opts ...PortOption) *Out[T] {
	o := portOptions{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Out[T]{name: name, opts: o}
}

func (p *Out[T]) Name() string { return p.name }

func (p *Out[T]) SampleType() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

func (p *Out[T]) Connected() bool { return p.buf != nil }

// Available returns the free space of the edge buffer.
func (p *Out[T]) Available() int {
	if p.w == nil {
		return 0
	}
	return p.w.Space()
}

func (p *Out[T]) connectTo(other Port) error {
	in, ok := other.(*In[T])
	if !ok {
		return fmt.Errorf("%w: %v vs %v", ErrTypeMismatch, p.SampleType(), other.SampleType())
	}
	if in.r != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, in.name)
	}
	if p.buf == nil {
		ringOpts := []ring.Option{}
		if p.opts.wait != nil {
			ringOpts = append(ringOpts, ring.WithWaitStrategy(p.opts.wait))
		}
		var err error
		if p.buf, err = ring.New[T](p.opts.capacity, ringOpts...); err != nil {
			return err
		}
		if p.tags, err = ring.New[Tag](p.opts.capacity); err != nil {
			return err
		}
		p.w = p.buf.NewWriter()
		p.tagw = p.tags.NewWriter()
	}
	in.r = p.buf.NewReader()
	in.tagr = p.tags.NewReader()
	return nil
}

// Reserve claims n output slots, waiting for downstream headroom.
func (p *Out[T]) Reserve(n int) (*ring.ProducerSpan[T], error) {
	if p.w == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, p.name)
	}
	return p.w.Reserve(n)
}

// TryReserve claims n output slots without blocking.
func (p *Out[T]) TryReserve(n int) (*ring.ProducerSpan[T], error) {
	if p.w == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, p.name)
	}
	return p.w.TryReserve(n)
}

// Cursor returns the last published sample sequence.
func (p *Out[T]) Cursor() int64 {
	if p.buf == nil {
		return ring.InitialCursorValue
	}
	return p.buf.Cursor()
}

// WriteTag attaches m to the sample at index. Tags must be written in
// ascending index order, before or at the publish of the sample they
// reference.
func (p *Out[T]) WriteTag(index int64, m *pmt.Map) error {
	if p.tagw == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, p.name)
	}
	span, err := p.tagw.TryReserve(1)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTagSpace, p.name)
	}
	span.Data()[0] = Tag{Index: index, Map: m}
	return span.Publish(1)
}

// In is a typed input port bound to the upstream ring at Init.
type In[T any] struct {
	name string
	r    *ring.Reader[T]
	tagr *ring.Reader[Tag]
}

// NewIn creates an input port.
func NewIn[T any](name string) *In[T] {
	return &In[T]{name: name}
}

func (p *In[T]) Name() string { return p.name }

func (p *In[T]) SampleType() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

func (p *In[T]) Connected() bool { return p.r != nil }

// Available returns the number of queued samples.
func (p *In[T]) Available() int {
	if p.r == nil {
		return 0
	}
	return p.r.Available()
}

// Position returns the last consumed sample sequence.
func (p *In[T]) Position() int64 {
	if p.r == nil {
		return ring.InitialCursorValue
	}
	return p.r.Position()
}

// Get returns a non-blocking span over at most n queued samples.
func (p *In[T]) Get(n int) (*ring.ConsumerSpan[T], error) {
	if p.r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, p.name)
	}
	return p.r.Get(n), nil
}

// Tags consumes and returns the tags attached to samples up to and
// including limit. Tags beyond limit stay queued: a consumer must not
// advance past a sample before reading the tag referencing it.
func (p *In[T]) Tags(limit int64) []Tag {
	if p.tagr == nil {
		return nil
	}
	span := p.tagr.GetAll()
	data := span.Data()
	n := 0
	for n < len(data) && data[n].Index <= limit {
		n++
	}
	out := make([]Tag, n)
	copy(out, data[:n])
	_ = span.Consume(n)
	return out
}

// Close releases the port's readers, waking blocked upstream producers.
func (p *In[T]) Close() {
	if p.r != nil {
		p.r.Close()
	}
	if p.tagr != nil {
		p.tagr.Close()
	}
}
