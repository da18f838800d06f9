package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph"
	"pipelined.dev/graph/mock"
	"pipelined.dev/graph/plugin"
	"pipelined.dev/graph/pmt"
)

func newTestPlugin(t *testing.T) *plugin.Base {
	t.Helper()
	p := plugin.NewBase(plugin.Metadata{
		Name:    "mock-blocks",
		Author:  "pipelined",
		License: "MIT",
		Version: "0.1.0",
	})
	require.NoError(t, p.RegisterBlockType("counter-source", func(name string, params *pmt.Map) (graph.Block, error) {
		limit := int64(0)
		if v, ok := params.Get("limit"); ok {
			if l, ok := v.(pmt.Int64); ok {
				limit = int64(l)
			}
		}
		return mock.NewCounterSource(limit), nil
	}))
	require.NoError(t, p.RegisterBlockType("sink", func(string, *pmt.Map) (graph.Block, error) {
		return mock.NewSink(), nil
	}))
	return p
}

func TestPluginContract(t *testing.T) {
	p := newTestPlugin(t)

	assert.Equal(t, plugin.ABIVersion, p.ABIVersion())
	assert.Equal(t, "mock-blocks", p.Metadata().Name)
	assert.Equal(t, []string{"counter-source", "sink"}, p.ProvidedBlocks())
}

func TestCreateBlock(t *testing.T) {
	p := newTestPlugin(t)

	params := pmt.New()
	params.Set("limit", pmt.Int64(10))
	b, err := p.CreateBlock("src", "counter-source", params)
	require.NoError(t, err)
	source, ok := b.(*mock.CounterSource)
	require.True(t, ok)
	assert.Equal(t, int64(10), source.Limit)

	_, err = p.CreateBlock("x", "unknown", pmt.New())
	assert.ErrorIs(t, err, plugin.ErrUnknownBlockType)
}

func TestDuplicateRegistration(t *testing.T) {
	p := newTestPlugin(t)
	err := p.RegisterBlockType("sink", func(string, *pmt.Map) (graph.Block, error) {
		return mock.NewSink(), nil
	})
	assert.ErrorIs(t, err, plugin.ErrDuplicateBlockType)
}

func TestLoadMissingArtefact(t *testing.T) {
	_, err := plugin.Load("testdata/does-not-exist.so")
	assert.Error(t, err)
}
