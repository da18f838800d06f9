package scheduler_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/mock"
	"pipelined.dev/graph/pmt"
	"pipelined.dev/graph/scheduler"
)

func chain(limit int64) (*graph.Graph, *mock.CounterSource, *mock.Gain, *mock.Sink) {
	g := graph.New()
	source := mock.NewCounterSource(limit)
	gain := mock.NewGain(1)
	sink := mock.NewSink()
	g.Add(source)
	g.Add(gain)
	g.Add(sink)
	if err := g.Connect(source, "out", gain, "in"); err != nil {
		panic(err)
	}
	if err := g.Connect(gain, "out", sink, "in"); err != nil {
		panic(err)
	}
	return g, source, gain, sink
}

func TestSingleThreaded(t *testing.T) {
	defer goleak.VerifyNone(t)

	g, source, _, sink := chain(100)
	s := scheduler.New(g)
	require.NoError(t, s.Init())
	assert.Equal(t, scheduler.Initialised, s.State())

	require.NoError(t, s.RunAndWait())
	assert.Equal(t, scheduler.Stopped, s.State())
	assert.Equal(t, int64(100), source.Counter.Samples)
	assert.Equal(t, int64(100), sink.Counter.Samples)
	require.Len(t, sink.Values, 100)
	for i, v := range sink.Values {
		assert.Equal(t, float64(i), v)
	}
}

func TestMultiThreadedQuiescence(t *testing.T) {
	defer goleak.VerifyNone(t)

	g, source, _, sink := chain(100)
	s := scheduler.New(g, scheduler.WithWorkers(4), scheduler.WithPolicy(scheduler.BreadthFirst))
	require.NoError(t, s.RunAndWait())

	assert.Equal(t, scheduler.Stopped, s.State())
	assert.Equal(t, int64(100), source.Counter.Samples)
	assert.Equal(t, int64(100), sink.Counter.Samples)
	require.Len(t, sink.Values, 100)
	for i, v := range sink.Values {
		assert.Equal(t, float64(i), v)
	}
}

func TestGainApplied(t *testing.T) {
	defer goleak.VerifyNone(t)

	g, _, gain, sink := chain(10)
	gain.Gain.Value = 2
	s := scheduler.New(g)
	require.NoError(t, s.RunAndWait())

	require.Len(t, sink.Values, 10)
	for i, v := range sink.Values {
		assert.Equal(t, float64(i)*2, v)
	}
}

func TestTagAutoForward(t *testing.T) {
	defer goleak.VerifyNone(t)

	g, source, gain, sink := chain(50)
	tag := pmt.New()
	tag.Set("sample_rate", pmt.Float32(48000))
	source.Tags = []graph.Tag{{Index: 0, Map: tag}}

	s := scheduler.New(g, scheduler.WithWorkers(2))
	require.NoError(t, s.RunAndWait())

	// the gain block ingested the tag and forwarded it downstream
	assert.Equal(t, float32(48000), gain.SampleRate)
	assert.Equal(t, float32(48000), sink.SampleRate)
	require.NotEmpty(t, sink.Tags)
	v, ok := sink.Tags[0].Map.Get("sample_rate")
	require.True(t, ok)
	assert.Equal(t, pmt.Float32(48000), v)
}

func TestBlockError(t *testing.T) {
	defer goleak.VerifyNone(t)

	failure := errors.New("broken block")
	g := graph.New()
	source := mock.NewCounterSource(1000)
	sink := mock.NewSink()
	failer := mock.NewFailer(failure)
	g.Add(source)
	g.Add(sink)
	g.Add(failer)
	require.NoError(t, g.Connect(source, "out", sink, "in"))

	s := scheduler.New(g, scheduler.WithWorkers(2))
	err := s.RunAndWait()
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, scheduler.Error, s.State())

	// error is terminal
	assert.ErrorIs(t, s.Start(), scheduler.ErrNotInitialised)
}

func TestStartFromError(t *testing.T) {
	g := graph.New()
	source := mock.NewCounterSource(1)
	sink := &wrongSink{}
	g.Add(source)
	g.Add(sink)
	require.NoError(t, g.Connect(source, "out", sink, "in"))

	s := scheduler.New(g)
	require.Error(t, s.Init())
	assert.Equal(t, scheduler.Error, s.State())
	assert.ErrorIs(t, s.Start(), scheduler.ErrNotInitialised)
}

type wrongSink struct{}

func (*wrongSink) Name() string              { return "wrong-sink" }
func (*wrongSink) Blocking() bool            { return false }
func (*wrongSink) InputPorts() []graph.Port  { return nil }
func (*wrongSink) OutputPorts() []graph.Port { return nil }
func (*wrongSink) Work(requested int64) graph.Result {
	return graph.Result{Requested: requested, Status: graph.StatusDone}
}

func TestRestartAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	g, source, _, sink := chain(20)
	s := scheduler.New(g)
	require.NoError(t, s.RunAndWait())
	assert.Equal(t, scheduler.Stopped, s.State())

	// a fresh run finds no new samples but terminates cleanly
	require.NoError(t, s.RunAndWait())
	assert.Equal(t, scheduler.Stopped, s.State())
	assert.Equal(t, int64(20), source.Counter.Samples)
	assert.Equal(t, int64(20), sink.Counter.Samples)
}

// lazySink models a blocking I/O block: it always reports done, yet
// drains its input a few rounds later.
type lazySink struct {
	in      *graph.In[float64]
	delay   int
	calls   int
	drained int
}

func newLazySink(delay int) *lazySink {
	return &lazySink{in: graph.NewIn[float64]("in"), delay: delay}
}

func (l *lazySink) Name() string              { return "lazy-sink" }
func (l *lazySink) Blocking() bool            { return true }
func (l *lazySink) InputPorts() []graph.Port  { return []graph.Port{l.in} }
func (l *lazySink) OutputPorts() []graph.Port { return nil }

func (l *lazySink) Work(requested int64) graph.Result {
	l.calls++
	if l.calls > l.delay {
		if span, err := l.in.Get(l.in.Available()); err == nil {
			l.drained += span.Len()
			_ = span.Consume(span.Len())
		}
	}
	return graph.Result{Requested: requested, Status: graph.StatusDone}
}

func TestBlockingBlockForcesRound(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := graph.New()
	source := mock.NewCounterSource(10)
	sink := newLazySink(3)
	g.Add(source)
	g.Add(sink)
	require.NoError(t, g.Connect(source, "out", sink, "in"))

	// the sink always returns done, only its blocking flag and queued
	// input keep the scheduler running until it drained everything
	s := scheduler.New(g)
	require.NoError(t, s.RunAndWait())
	assert.Equal(t, 10, sink.drained)
	assert.Greater(t, sink.calls, 3)
}

func TestMetric(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := &metric.Metric{}
	g, source, _, _ := chain(30)
	s := scheduler.New(g, scheduler.WithMetric(m))
	require.NoError(t, s.Init())
	require.NoError(t, s.RunAndWait())

	counters := m.Get(g.InstanceID(source))
	assert.Equal(t, "30", counters[metric.SampleCounter])
	assert.NotEqual(t, "0", counters[metric.WorkCounter])
}

func TestBreadthFirstOrdersFromSources(t *testing.T) {
	defer goleak.VerifyNone(t)

	// definition order is sink, gain, source; BFS still drains the chain
	g := graph.New()
	sink := mock.NewSink()
	gain := mock.NewGain(1)
	source := mock.NewCounterSource(40)
	g.Add(sink)
	g.Add(gain)
	g.Add(source)
	require.NoError(t, g.Connect(source, "out", gain, "in"))
	require.NoError(t, g.Connect(gain, "out", sink, "in"))

	s := scheduler.New(g, scheduler.WithPolicy(scheduler.BreadthFirst), scheduler.WithWorkers(3))
	require.NoError(t, s.RunAndWait())
	assert.Equal(t, int64(40), sink.Counter.Samples)
}
