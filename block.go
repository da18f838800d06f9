// Package graph assembles processing blocks connected by typed sample
// ports into a directed flow graph. Edges are backed by the lock-free
// buffers of the ring package, parameters are managed by the settings
// package, execution is driven by the scheduler package.
package graph

import "math"

// MaxRequested asks a block for as much work as it can do.
const MaxRequested = math.MaxInt64

// Status is the outcome of a single work call.
type Status int

const (
	// StatusOK means the block processed samples and may have more to do.
	StatusOK Status = iota
	// StatusInsufficientInput means the block needs more input samples.
	StatusInsufficientInput
	// StatusInsufficientOutput means downstream buffers lack space.
	StatusInsufficientOutput
	// StatusDone means the stream ended for this block.
	StatusDone
	// StatusError aborts the scheduler round.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficientInput:
		return "insufficient input items"
	case StatusInsufficientOutput:
		return "insufficient output items"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Result is returned by Block.Work.
type Result struct {
	Requested int64
	Performed int64
	Status    Status
	// Err carries the failure cause when Status is StatusError.
	Err error
}

// Block is a node of the flow graph. Work advances the stream when input
// and downstream space allow. A single block instance is never invoked
// concurrently, distinct instances run in parallel.
//
// Blocking reports that the block may have latent work even after
// returning StatusDone, e.g. it is fed by external I/O. The scheduler then
// inspects the input ports for queued samples before quiescing.
type Block interface {
	Name() string
	Work(requested int64) Result
	Blocking() bool
	InputPorts() []Port
	OutputPorts() []Port
}

// AvailableInputSamples returns the queued sample count of every input
// port of the block.
func AvailableInputSamples(b Block) []int {
	ports := b.InputPorts()
	out := make([]int, len(ports))
	for i, p := range ports {
		out[i] = p.Available()
	}
	return out
}
