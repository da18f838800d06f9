package graph

import (
	"errors"
	"fmt"

	"github.com/rs/xid"
)

var (
	// ErrInitialised is returned when a frozen graph is mutated.
	ErrInitialised = errors.New("graph: already initialised")
	// ErrUnknownBlock is returned when connecting a block that was not
	// added to the graph.
	ErrUnknownBlock = errors.New("graph: unknown block")
	// ErrNoSuchPort is returned when a connection names a missing port.
	ErrNoSuchPort = errors.New("graph: no such port")
)

// Edge is a resolved directed link between two ports. Blocks are
// referenced back only, ownership stays with the graph.
type Edge struct {
	Src, Dst         Block
	SrcPort, DstPort string
}

// connection is a deferred connection definition executed at Init.
type connection struct {
	src, dst         Block
	srcPort, dstPort string
}

// Graph owns the blocks and the connection definitions between their
// ports. Connect records definitions, Init resolves them and freezes the
// topology.
type Graph struct {
	blocks      []Block
	ids         map[Block]string
	edges       []Edge
	definitions []connection
	initialised bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{ids: make(map[Block]string)}
}

// Add inserts a block and assigns it a unique instance id. It returns the
// block for chaining into Connect.
func (g *Graph) Add(b Block) Block {
	if _, ok := g.ids[b]; ok {
		return b
	}
	g.blocks = append(g.blocks, b)
	g.ids[b] = fmt.Sprintf("%s#%s", b.Name(), xid.New())
	return b
}

// InstanceID returns the unique id assigned at Add.
func (g *Graph) InstanceID(b Block) string { return g.ids[b] }

// Blocks returns the blocks in definition order.
func (g *Graph) Blocks() []Block { return g.blocks }

// Edges returns the resolved edges.
func (g *Graph) Edges() []Edge { return g.edges }

// Initialised reports whether the topology is frozen.
func (g *Graph) Initialised() bool { return g.initialised }

// Connect records a deferred connection definition between an output port
// of src and an input port of dst. Types are resolved at Init.
func (g *Graph) Connect(src Block, srcPort string, dst Block, dstPort string) error {
	if g.initialised {
		return ErrInitialised
	}
	if _, ok := g.ids[src]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, src.Name())
	}
	if _, ok := g.ids[dst]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, dst.Name())
	}
	g.definitions = append(g.definitions, connection{src: src, dst: dst, srcPort: srcPort, dstPort: dstPort})
	return nil
}

// Init executes every connection definition: it looks up both endpoints,
// verifies the sample types and installs the shared ring. On success the
// definitions are cleared and the graph freezes. Connect after Init is
// rejected with ErrInitialised.
func (g *Graph) Init() error {
	if g.initialised {
		return nil
	}
	for _, def := range g.definitions {
		out, err := findOutputPort(def.src, def.srcPort)
		if err != nil {
			return err
		}
		in, err := findInputPort(def.dst, def.dstPort)
		if err != nil {
			return err
		}
		if err := out.connectTo(in); err != nil {
			return fmt.Errorf("connect %s.%s to %s.%s: %w", def.src.Name(), def.srcPort, def.dst.Name(), def.dstPort, err)
		}
		g.edges = append(g.edges, Edge{Src: def.src, Dst: def.dst, SrcPort: def.srcPort, DstPort: def.dstPort})
	}
	g.definitions = nil
	g.initialised = true
	return nil
}

func findOutputPort(b Block, name string) (outConnector, error) {
	for _, p := range b.OutputPorts() {
		if p.Name() == name {
			if out, ok := p.(outConnector); ok {
				return out, nil
			}
			break
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchPort, b.Name(), name)
}

func findInputPort(b Block, name string) (Port, error) {
	for _, p := range b.InputPorts() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchPort, b.Name(), name)
}
