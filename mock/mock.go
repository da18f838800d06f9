// Package mock provides blocks to test flow graphs: a counting source, a
// gain processor and a collecting sink.
package mock

import (
	"errors"

	"pipelined.dev/graph"
	"pipelined.dev/graph/ring"
	"pipelined.dev/graph/settings"
)

// chunkSize limits how many samples a block moves per work call.
const chunkSize = 64

// Counter counts work calls and processed samples.
type Counter struct {
	Messages int
	Samples  int64
}

func (c *Counter) advance(samples int) {
	c.Messages++
	c.Samples += int64(samples)
}

// CounterSource emits an ascending float64 counter until Limit samples
// were produced, then reports done.
type CounterSource struct {
	// Limit is the total number of samples to emit.
	Limit int64
	// Tags are attached to their sample index as it gets published.
	Tags []graph.Tag
	// IO marks the source as blocking, it may receive more data even
	// after reporting done.
	IO bool
	// SampleRate is auto-forwarded downstream.
	SampleRate float32
	Counter    Counter

	out      *graph.Out[float64]
	sets     *settings.Settings
	value    float64
	produced int64
}

// NewCounterSource creates a source emitting limit samples. Port options
// configure the output edge.
func NewCounterSource(limit int64, opts ...graph.PortOption) *CounterSource {
	s := &CounterSource{
		Limit:      limit,
		SampleRate: 44100,
		out:        graph.NewOut[float64]("out", opts...),
	}
	s.sets = settings.New(s)
	return s
}

func (s *CounterSource) Name() string { return "counter-source" }

// Fields implements settings.Reflectable.
func (s *CounterSource) Fields() []settings.Field {
	return []settings.Field{
		settings.FieldOf("sample_rate", &s.SampleRate),
	}
}

// Settings returns the block's parameter engine.
func (s *CounterSource) Settings() *settings.Settings { return s.sets }

func (s *CounterSource) Blocking() bool { return s.IO }

func (s *CounterSource) InputPorts() []graph.Port { return nil }

func (s *CounterSource) OutputPorts() []graph.Port { return []graph.Port{s.out} }

// Out exposes the output port for direct wiring in tests.
func (s *CounterSource) Out() *graph.Out[float64] { return s.out }

func (s *CounterSource) Work(requested int64) graph.Result {
	if s.sets.Changed() {
		applied := s.sets.ApplyStaged()
		if !applied.Forward.Empty() {
			_ = s.out.WriteTag(s.out.Cursor()+1, applied.Forward)
		}
	}
	remaining := s.Limit - s.produced
	if remaining <= 0 {
		return graph.Result{Requested: requested, Status: graph.StatusDone}
	}
	n := min64(remaining, requested)
	n = min64(n, chunkSize)
	n = min64(n, int64(s.out.Available()))
	if n == 0 {
		return graph.Result{Requested: requested, Status: graph.StatusInsufficientOutput}
	}
	span, err := s.out.TryReserve(int(n))
	if err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusInsufficientOutput}
	}

	lo := s.out.Cursor() + 1
	for _, tag := range s.Tags {
		if tag.Index >= lo && tag.Index < lo+n {
			_ = s.out.WriteTag(tag.Index, tag.Map)
		}
	}
	data := span.Data()
	for i := range data {
		data[i] = s.value
		s.value++
	}
	if err := span.Publish(len(data)); err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusError, Err: err}
	}
	s.produced += n
	s.Counter.advance(int(n))
	return graph.Result{Requested: requested, Performed: n, Status: graph.StatusOK}
}

// Gain multiplies samples by a validated gain factor. Its sample_rate
// field auto-updates from incoming tags and auto-forwards downstream.
type Gain struct {
	Gain       settings.Annotated[float64]
	SampleRate float32
	Counter    Counter

	in   *graph.In[float64]
	out  *graph.Out[float64]
	sets *settings.Settings
}

// NewGain creates a processor with the provided gain factor.
func NewGain(gain float64) *Gain {
	g := &Gain{
		Gain: settings.Annotated[float64]{
			Value:       gain,
			Description: "multiplier applied to every sample",
			Visible:     true,
			Validator:   settings.Range(0.0, 1e6),
		},
		SampleRate: 44100,
		in:         graph.NewIn[float64]("in"),
		out:        graph.NewOut[float64]("out"),
	}
	g.sets = settings.New(g)
	return g
}

func (g *Gain) Name() string { return "gain" }

// Fields implements settings.Reflectable.
func (g *Gain) Fields() []settings.Field {
	return []settings.Field{
		g.Gain.Field("gain"),
		settings.FieldOf("sample_rate", &g.SampleRate),
	}
}

// Settings returns the block's parameter engine.
func (g *Gain) Settings() *settings.Settings { return g.sets }

func (g *Gain) Blocking() bool { return false }

func (g *Gain) InputPorts() []graph.Port { return []graph.Port{g.in} }

func (g *Gain) OutputPorts() []graph.Port { return []graph.Port{g.out} }

// In exposes the input port for direct wiring in tests.
func (g *Gain) In() *graph.In[float64] { return g.in }

// Out exposes the output port for direct wiring in tests.
func (g *Gain) Out() *graph.Out[float64] { return g.out }

func (g *Gain) Work(requested int64) graph.Result {
	available := int64(g.in.Available())
	if available == 0 {
		return graph.Result{Requested: requested, Status: graph.StatusInsufficientInput}
	}
	n := min64(available, requested)
	n = min64(n, chunkSize)
	n = min64(n, int64(g.out.Available()))
	if n == 0 {
		return graph.Result{Requested: requested, Status: graph.StatusInsufficientOutput}
	}

	// tags logically precede the samples they index and must be ingested
	// before those samples are consumed
	for _, tag := range g.in.Tags(g.in.Position() + n) {
		g.sets.AutoUpdate(tag.Map)
	}
	if g.sets.Changed() {
		applied := g.sets.ApplyStaged()
		if !applied.Forward.Empty() {
			_ = g.out.WriteTag(g.out.Cursor()+1, applied.Forward)
		}
	}

	in, err := g.in.Get(int(n))
	if err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusError, Err: err}
	}
	span, err := g.out.TryReserve(in.Len())
	if err != nil {
		in.Policy = ring.ProcessNone
		in.Release()
		return graph.Result{Requested: requested, Status: graph.StatusInsufficientOutput}
	}
	out := span.Data()
	for i, v := range in.Data() {
		out[i] = v * g.Gain.Value
	}
	if err := span.Publish(len(out)); err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusError, Err: err}
	}
	if err := in.Consume(in.Len()); err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusError, Err: err}
	}
	g.Counter.advance(len(out))
	return graph.Result{Requested: requested, Performed: int64(len(out)), Status: graph.StatusOK}
}

// Sink drains samples and keeps them for assertions unless Discard is
// set. Received tags are collected as well.
type Sink struct {
	Discard    bool
	SampleRate float32
	Values     []float64
	Tags       []graph.Tag
	Counter    Counter

	in   *graph.In[float64]
	sets *settings.Settings
}

// NewSink creates a collecting sink.
func NewSink() *Sink {
	s := &Sink{
		SampleRate: 44100,
		in:         graph.NewIn[float64]("in"),
	}
	s.sets = settings.New(s)
	return s
}

func (s *Sink) Name() string { return "sink" }

// Fields implements settings.Reflectable.
func (s *Sink) Fields() []settings.Field {
	return []settings.Field{
		settings.FieldOf("sample_rate", &s.SampleRate),
	}
}

// Settings returns the block's parameter engine.
func (s *Sink) Settings() *settings.Settings { return s.sets }

func (s *Sink) Blocking() bool { return false }

func (s *Sink) InputPorts() []graph.Port { return []graph.Port{s.in} }

func (s *Sink) OutputPorts() []graph.Port { return nil }

// In exposes the input port for direct wiring in tests.
func (s *Sink) In() *graph.In[float64] { return s.in }

func (s *Sink) Work(requested int64) graph.Result {
	available := int64(s.in.Available())
	if available == 0 {
		return graph.Result{Requested: requested, Status: graph.StatusInsufficientInput}
	}
	n := min64(available, requested)
	n = min64(n, chunkSize)

	tags := s.in.Tags(s.in.Position() + n)
	for _, tag := range tags {
		s.sets.AutoUpdate(tag.Map)
	}
	if s.sets.Changed() {
		s.sets.ApplyStaged()
	}
	s.Tags = append(s.Tags, tags...)

	span, err := s.in.Get(int(n))
	if err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusError, Err: err}
	}
	if !s.Discard {
		s.Values = append(s.Values, span.Data()...)
	}
	performed := span.Len()
	if err := span.Consume(performed); err != nil {
		return graph.Result{Requested: requested, Status: graph.StatusError, Err: err}
	}
	s.Counter.advance(performed)
	return graph.Result{Requested: requested, Performed: int64(performed), Status: graph.StatusOK}
}

// Failer fails its first work call with Err, testing the scheduler's
// error propagation.
type Failer struct {
	Err error
}

// NewFailer creates a failing block.
func NewFailer(err error) *Failer {
	if err == nil {
		err = errors.New("mock: work failed")
	}
	return &Failer{Err: err}
}

func (f *Failer) Name() string { return "failer" }

func (f *Failer) Blocking() bool { return false }

func (f *Failer) InputPorts() []graph.Port { return nil }

func (f *Failer) OutputPorts() []graph.Port { return nil }

func (f *Failer) Work(requested int64) graph.Result {
	return graph.Result{Requested: requested, Status: graph.StatusError, Err: f.Err}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
