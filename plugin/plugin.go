// Package plugin defines the ABI through which dynamically loaded
// artefacts contribute block types to a flow graph.
package plugin

import (
	"errors"
	"fmt"
	goplugin "plugin"
	"sort"
	"sync"

	"pipelined.dev/graph"
	"pipelined.dev/graph/pmt"
)

// ABIVersion is the current plugin contract. Loaders refuse plugins built
// against a different version.
const ABIVersion uint8 = 1

// MakeSymbol and FreeSymbol are the two symbols a plugin artefact must
// export.
const (
	MakeSymbol = "PluginMake"
	FreeSymbol = "PluginFree"
)

var (
	// ErrABIVersion is returned for a plugin built against another ABI.
	ErrABIVersion = errors.New("plugin: ABI version mismatch")
	// ErrUnknownBlockType is returned by CreateBlock for an unregistered
	// type.
	ErrUnknownBlockType = errors.New("plugin: unknown block type")
	// ErrDuplicateBlockType is returned when a type is registered twice.
	ErrDuplicateBlockType = errors.New("plugin: duplicate block type")
)

// Metadata describes a plugin artefact.
type Metadata struct {
	Name    string
	Author  string
	License string
	Version string
}

// Plugin is the contract a loaded artefact exposes.
type Plugin interface {
	ABIVersion() uint8
	Metadata() Metadata
	ProvidedBlocks() []string
	CreateBlock(name, typ string, params *pmt.Map) (graph.Block, error)
}

// MakeFunc is the signature of the PluginMake symbol.
type MakeFunc func() Plugin

// FreeFunc is the signature of the PluginFree symbol.
type FreeFunc func(Plugin)

// Factory constructs a block instance from its name and construction
// parameters.
type Factory func(name string, params *pmt.Map) (graph.Block, error)

// Registry maps block type names to factories.
type Registry struct {
	mu    sync.Mutex
	types map[string]Factory
}

// RegisterBlockType adds a factory for the type name.
func (r *Registry) RegisterBlockType(typ string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.types == nil {
		r.types = make(map[string]Factory)
	}
	if _, ok := r.types[typ]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBlockType, typ)
	}
	r.types[typ] = factory
	return nil
}

// ProvidedBlocks returns the registered type names, sorted.
func (r *Registry) ProvidedBlocks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.types))
	for typ := range r.types {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// CreateBlock instantiates a registered type.
func (r *Registry) CreateBlock(name, typ string, params *pmt.Map) (graph.Block, error) {
	r.mu.Lock()
	factory, ok := r.types[typ]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockType, typ)
	}
	return factory(name, params)
}

// Base implements Plugin over a registry. Plugin authors embed it and
// register their block types.
type Base struct {
	Registry
	meta Metadata
}

// NewBase returns a plugin base with the provided metadata.
func NewBase(meta Metadata) *Base {
	return &Base{meta: meta}
}

func (b *Base) ABIVersion() uint8  { return ABIVersion }
func (b *Base) Metadata() Metadata { return b.meta }

// Load opens a plugin artefact, resolves PluginMake and verifies the ABI
// version.
func Load(path string) (Plugin, error) {
	artefact, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}
	sym, err := artefact.Lookup(MakeSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	makeFn, ok := sym.(func() Plugin)
	if !ok {
		return nil, fmt.Errorf("plugin: %s: %s has wrong signature", path, MakeSymbol)
	}
	p := makeFn()
	if v := p.ABIVersion(); v != ABIVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrABIVersion, v, ABIVersion)
	}
	return p, nil
}
