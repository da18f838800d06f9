package mock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph"
	"pipelined.dev/graph/mock"
)

func wire(t *testing.T, blocks ...graph.Block) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, b := range blocks {
		g.Add(b)
	}
	for i := 0; i+1 < len(blocks); i++ {
		require.NoError(t, g.Connect(blocks[i], "out", blocks[i+1], "in"))
	}
	require.NoError(t, g.Init())
	return g
}

func TestCounterSourceDone(t *testing.T) {
	source := mock.NewCounterSource(3)
	sink := mock.NewSink()
	wire(t, source, sink)

	res := source.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusOK, res.Status)
	assert.Equal(t, int64(3), res.Performed)

	res = source.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusDone, res.Status)
	assert.Equal(t, int64(3), source.Counter.Samples)
}

func TestCounterSourceBackpressure(t *testing.T) {
	// a tiny edge forces the source to report missing output space
	source := mock.NewCounterSource(100, graph.WithCapacity(8))
	sink := mock.NewSink()
	wire(t, source, sink)

	res := source.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusOK, res.Status)
	assert.Equal(t, int64(8), res.Performed)

	res = source.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusInsufficientOutput, res.Status)

	sink.Work(graph.MaxRequested)
	res = source.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusOK, res.Status)
	assert.Equal(t, int64(8), res.Performed)
}

func TestGainWithoutInput(t *testing.T) {
	source := mock.NewCounterSource(0)
	gain := mock.NewGain(2)
	sink := mock.NewSink()
	wire(t, source, gain, sink)

	res := gain.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusInsufficientInput, res.Status)
	res = sink.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusInsufficientInput, res.Status)
}

func TestGainScalesAndCounts(t *testing.T) {
	source := mock.NewCounterSource(4)
	gain := mock.NewGain(3)
	sink := mock.NewSink()
	wire(t, source, gain, sink)

	source.Work(graph.MaxRequested)
	res := gain.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusOK, res.Status)
	sink.Work(graph.MaxRequested)

	assert.Equal(t, []float64{0, 3, 6, 9}, sink.Values)
	assert.Equal(t, int64(4), gain.Counter.Samples)
	assert.Equal(t, 1, sink.Counter.Messages)
}

func TestSinkDiscard(t *testing.T) {
	source := mock.NewCounterSource(5)
	sink := mock.NewSink()
	sink.Discard = true
	wire(t, source, sink)

	source.Work(graph.MaxRequested)
	sink.Work(graph.MaxRequested)
	assert.Empty(t, sink.Values)
	assert.Equal(t, int64(5), sink.Counter.Samples)
}

func TestFailer(t *testing.T) {
	failer := mock.NewFailer(nil)
	res := failer.Work(graph.MaxRequested)
	assert.Equal(t, graph.StatusError, res.Status)
	assert.Error(t, res.Err)
}
