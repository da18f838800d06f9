// Package metric measures block execution through expvar counters.
package metric

import (
	"expvar"
	"fmt"
	"sync"
)

const componentsLabel = "graph.blocks"

const (
	// WorkCounter measures number of work calls.
	WorkCounter = "Works"
	// SampleCounter measures number of processed samples.
	SampleCounter = "Samples"
)

var counters = []string{
	WorkCounter,
	SampleCounter,
}

// MeasureFunc captures metrics when a block finished a work call.
type MeasureFunc func(performed int64)

// Metric keeps counters of all running blocks.
type Metric struct {
	m          sync.Mutex
	components map[string]*blockCounters
}

type blockCounters struct {
	works   *expvar.Int
	samples *expvar.Int
}

// Meter creates a new measure closure to capture block counters.
func (m *Metric) Meter(component string) MeasureFunc {
	m.m.Lock()
	defer m.m.Unlock()
	if m.components == nil {
		m.components = make(map[string]*blockCounters)
	}
	c, ok := m.components[component]
	if !ok {
		c = &blockCounters{
			works:   newInt(key(component, WorkCounter)),
			samples: newInt(key(component, SampleCounter)),
		}
		m.components[component] = c
	}
	return func(performed int64) {
		c.works.Add(1)
		c.samples.Add(performed)
	}
}

// Get returns counter values for the provided component.
func (m *Metric) Get(component string) map[string]string {
	values := make(map[string]string)
	for _, counter := range counters {
		if v := expvar.Get(key(component, counter)); v != nil {
			values[counter] = v.String()
		}
	}
	return values
}

// GetAll returns counters for all measured components.
func (m *Metric) GetAll() map[string]map[string]string {
	m.m.Lock()
	defer m.m.Unlock()
	values := make(map[string]map[string]string)
	for component := range m.components {
		values[component] = m.Get(component)
	}
	return values
}

func key(component, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, component, counter)
}

// newInt reuses an already published expvar to survive multiple metric
// instances within one process.
func newInt(name string) *expvar.Int {
	if v := expvar.Get(name); v != nil {
		if i, ok := v.(*expvar.Int); ok {
			i.Set(0)
			return i
		}
	}
	return expvar.NewInt(name)
}
