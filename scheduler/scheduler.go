// Package scheduler drives a flow graph to quiescence: it orders the
// blocks, partitions them across workers and repeatedly invokes work until
// every worker observes no progress within the same generation.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/graph"
	"pipelined.dev/graph/metric"
)

// State identifies one of the possible states a scheduler can be in.
type State int32

const (
	// Idle means the scheduler was constructed and not initialised yet.
	Idle State = iota
	// Initialised means the graph is resolved and jobs are partitioned.
	Initialised
	// Running means workers are executing blocks.
	Running
	// RequestedStop means a stop was requested, workers are draining.
	RequestedStop
	// RequestedPause means a pause was requested, workers are draining.
	RequestedPause
	// Stopped means the run finished, the scheduler can be reset.
	Stopped
	// Paused means the run is suspended and can be reinitialised.
	Paused
	// ShuttingDown means the scheduler is being torn down.
	ShuttingDown
	// Error is terminal, a fresh scheduler must be constructed.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initialised:
		return "initialised"
	case Running:
		return "running"
	case RequestedStop:
		return "requested stop"
	case RequestedPause:
		return "requested pause"
	case Stopped:
		return "stopped"
	case Paused:
		return "paused"
	case ShuttingDown:
		return "shutting down"
	case Error:
		return "error"
	}
	return "unknown"
}

// Policy selects the block execution order.
type Policy int

const (
	// Simple executes blocks in graph definition order.
	Simple Policy = iota
	// BreadthFirst discovers source blocks and orders by BFS over the
	// edges, ignoring back-edges of cycles.
	BreadthFirst
)

var (
	// ErrNotInitialised is returned by Start outside the Initialised
	// state.
	ErrNotInitialised = errors.New("scheduler: graph not initialised")
)

// Logger is the interface for scheduler loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

type silentLogger struct{}

func (silentLogger) Debug(...interface{}) {}
func (silentLogger) Info(...interface{})  {}

// Option provides a way to set functional parameters to the scheduler.
type Option func(*Scheduler)

// WithPolicy selects the execution order policy.
func WithPolicy(p Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithWorkers sets the worker count. The effective count is capped by the
// number of blocks. Default is one, a single-threaded run.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

// WithLogger sets the logger. If this option is not provided, a silent
// logger is used.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetric adds counters for all executed blocks.
func WithMetric(m *metric.Metric) Option {
	return func(s *Scheduler) { s.metric = m }
}

// Scheduler owns a graph and a pool of workers. The packed progress word
// holds (generation<<32 | doneCount): progress bumps the generation, a
// no-progress round bumps the done count, and the run ends once the done
// count reaches the worker count within a single generation.
type Scheduler struct {
	graph   *graph.Graph
	policy  Policy
	workers int
	log     Logger
	metric  *metric.Metric

	order  []graph.Block
	jobs   [][]graph.Block
	meters map[graph.Block]metric.MeasureFunc

	state    atomic.Int32
	stop     atomic.Bool
	progress atomic.Uint64
	pmu      sync.Mutex
	pcond    *sync.Cond
	group    *errgroup.Group
}

// New creates a scheduler for the graph and applies provided options.
func New(g *graph.Graph, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:   g,
		workers: 1,
		log:     silentLogger{},
	}
	s.pcond = sync.NewCond(&s.pmu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current scheduler state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug(fmt.Sprintf("scheduler is %v", st))
}

// Init resolves the graph connections, computes the execution order and
// partitions the blocks into fixed per-worker job sets.
func (s *Scheduler) Init() error {
	if s.State() != Idle {
		return nil
	}
	if err := s.graph.Init(); err != nil {
		s.setState(Error)
		return err
	}
	switch s.policy {
	case BreadthFirst:
		s.order = breadthFirstOrder(s.graph)
	default:
		s.order = s.graph.Blocks()
	}
	n := s.workers
	if n > len(s.order) {
		n = len(s.order)
	}
	if n < 1 {
		n = 1
	}
	s.jobs = make([][]graph.Block, n)
	for i, b := range s.order {
		s.jobs[i%n] = append(s.jobs[i%n], b)
	}
	if s.metric != nil {
		s.meters = make(map[graph.Block]metric.MeasureFunc, len(s.order))
		for _, b := range s.order {
			s.meters[b] = s.metric.Meter(s.graph.InstanceID(b))
		}
	}
	s.setState(Initialised)
	return nil
}

// Start launches the workers. It is legal only from the Initialised
// state, Idle triggers Init, Stopped a Reset and Paused reinitialises.
func (s *Scheduler) Start() error {
	switch s.State() {
	case Idle:
		if err := s.Init(); err != nil {
			return err
		}
	case Stopped:
		s.Reset()
	case Paused:
		s.setState(Initialised)
	}
	if s.State() != Initialised {
		return ErrNotInitialised
	}

	s.stop.Store(false)
	s.progress.Store(0)
	s.setState(Running)

	n := uint32(len(s.jobs))
	s.group = &errgroup.Group{}
	for _, jobs := range s.jobs {
		jobs := jobs
		s.group.Go(func() error {
			return s.runWorker(jobs, n)
		})
	}
	return nil
}

// Stop requests a stop and waits for the workers to drain. The scheduler
// ends Stopped and can be reset.
func (s *Scheduler) Stop() error {
	switch s.State() {
	case Stopped, Error, Idle:
		return nil
	case Running:
		s.request(RequestedStop)
	}
	return s.WaitDone()
}

// Pause requests a pause and waits for the workers to drain. The
// scheduler ends Paused and stays reusable.
func (s *Scheduler) Pause() error {
	switch s.State() {
	case Paused, Error, Idle:
		return nil
	case Running:
		s.request(RequestedPause)
	}
	return s.WaitDone()
}

func (s *Scheduler) request(st State) {
	s.setState(st)
	s.stop.Store(true)
	s.wakeAll()
}

// WaitDone blocks until all workers returned and surfaces the first block
// error of the run.
func (s *Scheduler) WaitDone() error {
	if s.group == nil {
		return nil
	}
	err := s.group.Wait()
	switch {
	case err != nil:
		s.setState(Error)
	case s.State() == RequestedPause:
		s.setState(Paused)
	case s.State() == Error:
	default:
		s.setState(Stopped)
	}
	return err
}

// RunAndWait starts the scheduler and waits for quiescence.
func (s *Scheduler) RunAndWait() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.WaitDone()
}

// Reset returns a stopped or paused scheduler to Initialised. The graph
// connections cannot be set up a second time, so the resolved topology is
// kept. Error is terminal.
func (s *Scheduler) Reset() {
	switch s.State() {
	case Idle:
		_ = s.Init()
	case Running, RequestedStop, RequestedPause:
		_ = s.Pause()
		fallthrough
	case Stopped, Paused:
		s.setState(Initialised)
	}
}

// runWorker iterates its job set until every worker observed no progress
// in the same generation or a stop was requested.
func (s *Scheduler) runWorker(jobs []graph.Block, workers uint32) error {
	var done, generation uint32
	for done < workers && !s.stop.Load() {
		happened, err := s.workOnce(jobs)
		if err != nil {
			s.stop.Store(true)
			s.wakeAll()
			return err
		}
		if happened {
			// progress: bump the generation, reset the done count
			for {
				word := s.progress.Load()
				generation = uint32(word >> 32)
				done = uint32(word)
				if s.progress.CompareAndSwap(word, uint64(generation+1)<<32) {
					break
				}
			}
			s.wakeAll()
		} else {
			// no progress: count this worker as done within the current
			// generation; a generation bumped by another worker reruns
			// the job set immediately
			observed := generation
			var word, next uint64
			for {
				word = s.progress.Load()
				generation = uint32(word >> 32)
				done = uint32(word)
				next = word
				if generation == observed {
					next = word + 1
				}
				if s.progress.CompareAndSwap(word, next) {
					break
				}
			}
			s.wakeAll()
			if generation == observed {
				done++
				// counted once per generation: park while only the done
				// count moves, rerun once the generation changes
				for done < workers && !s.stop.Load() {
					s.waitProgress(next)
					next = s.progress.Load()
					if uint32(next>>32) != observed {
						break
					}
					done = uint32(next)
				}
			}
		}
	}
	return nil
}

// workOnce invokes work on every block of the job set. It reports whether
// anything happened: a block returned OK or InsufficientOutput, or a
// blocking block has samples queued on any input port.
func (s *Scheduler) workOnce(jobs []graph.Block) (bool, error) {
	happened := false
	for _, b := range jobs {
		res := b.Work(graph.MaxRequested)
		if meter := s.meters[b]; meter != nil {
			meter(res.Performed)
		}
		switch res.Status {
		case graph.StatusError:
			if res.Err != nil {
				return false, fmt.Errorf("scheduler: block %s: %w", b.Name(), res.Err)
			}
			return false, fmt.Errorf("scheduler: block %s failed", b.Name())
		case graph.StatusOK, graph.StatusInsufficientOutput:
			happened = true
		}
		if b.Blocking() {
			for _, queued := range graph.AvailableInputSamples(b) {
				if queued > 0 {
					happened = true
					break
				}
			}
		}
	}
	return happened, nil
}

func (s *Scheduler) wakeAll() {
	s.pmu.Lock()
	s.pcond.Broadcast()
	s.pmu.Unlock()
}

// waitProgress parks until the progress word moves past expected. The
// word is strictly increasing within a run, a missed intermediate value
// cannot occur.
func (s *Scheduler) waitProgress(expected uint64) {
	s.pmu.Lock()
	for s.progress.Load() == expected && !s.stop.Load() {
		s.pcond.Wait()
	}
	s.pmu.Unlock()
}

// breadthFirstOrder discovers the source blocks and traverses the edges
// breadth first. Blocks reachable only through a cycle are appended in
// definition order so every block keeps executing.
func breadthFirstOrder(g *graph.Graph) []graph.Block {
	adjacency := make(map[graph.Block][]graph.Block)
	hasIncoming := make(map[graph.Block]bool)
	for _, e := range g.Edges() {
		adjacency[e.Src] = append(adjacency[e.Src], e.Dst)
		hasIncoming[e.Dst] = true
	}

	var queue, order []graph.Block
	reached := make(map[graph.Block]bool)
	for _, b := range g.Blocks() {
		if !hasIncoming[b] {
			queue = append(queue, b)
			reached[b] = true
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, dst := range adjacency[current] {
			if !reached[dst] {
				reached[dst] = true
				queue = append(queue, dst)
			}
		}
	}
	for _, b := range g.Blocks() {
		if !reached[b] {
			order = append(order, b)
		}
	}
	return order
}
