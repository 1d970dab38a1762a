package cascade

import (
	"log/slog"
	"sync"

	"github.com/petermattis/goid"
)

// ExecutionContext runs submitted units of work. The engine makes no
// assumption beyond "the context will eventually run submitted work":
// a context may be a strictly-ordered single-worker queue or an unordered
// parallel pool, and it reports which through IsOrderedSingleWorker.
type ExecutionContext interface {
	// Name returns the debug name of the context.
	Name() string

	// Execute submits one unit of work. It must not block the caller.
	Execute(work func())

	// IsOrderedSingleWorker reports whether all work submitted to this
	// context runs on a single worker in submission order. The blocking
	// adapter uses this to refuse guaranteed-deadlock waits.
	IsOrderedSingleWorker() bool
}

// workerIdentity is implemented by contexts that can tell whether the
// calling goroutine is one of their own workers.
type workerIdentity interface {
	onWorkerGoroutine() bool
}

// ContextOption configures an execution context at construction.
type ContextOption func(*contextConfig)

type contextConfig struct {
	logger  *slog.Logger
	workers int
}

// WithContextLogger sets the logger an execution context reports dropped
// work and recovered panics through.
func WithContextLogger(l *slog.Logger) ContextOption {
	return func(c *contextConfig) {
		c.logger = l
	}
}

func newContextConfig(opts []ContextOption) contextConfig {
	cfg := contextConfig{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}

// workQueue is an unbounded FIFO drained by one or more workers. Submitting
// never blocks; there is no back pressure, so a producer that outruns its
// workers grows the queue.
type workQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push reports false when the queue has been closed.
func (q *workQueue) push(work func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, work)
	q.cond.Signal()
	return true
}

// pop blocks until work is available or the queue is closed and drained.
func (q *workQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	work := q.items[0]
	q.items = q.items[1:]
	return work, true
}

func (q *workQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// SerialContext is a strictly-ordered execution context: one worker
// goroutine drains a FIFO queue, so work submitted to it runs one at a
// time in submission order.
type SerialContext struct {
	name   string
	logger *slog.Logger
	queue  *workQueue
	worker int64
	done   chan struct{}
	once   sync.Once
}

// NewSerialContext creates a serial context and starts its worker.
func NewSerialContext(name string, opts ...ContextOption) *SerialContext {
	cfg := newContextConfig(opts)
	c := &SerialContext{
		name:   name,
		logger: cfg.logger,
		queue:  newWorkQueue(),
		done:   make(chan struct{}),
	}
	ready := make(chan struct{})
	go func() {
		c.worker = goid.Get()
		close(ready)
		defer close(c.done)
		for {
			work, ok := c.queue.pop()
			if !ok {
				return
			}
			runGuarded(c.logger, c.name, work)
		}
	}()
	<-ready
	return c
}

func (c *SerialContext) Name() string { return c.name }

func (c *SerialContext) IsOrderedSingleWorker() bool { return true }

func (c *SerialContext) Execute(work func()) {
	if !c.queue.push(work) {
		c.logger.Warn("dropping work submitted to closed execution context", "context", c.name)
	}
}

// Close stops accepting new work, lets the worker drain what was already
// queued, and waits for it to exit.
func (c *SerialContext) Close() {
	c.once.Do(func() {
		c.queue.close()
	})
	<-c.done
}

func (c *SerialContext) onWorkerGoroutine() bool {
	return goid.Get() == c.worker
}

// PoolContext is an unordered execution context: n workers drain a shared
// queue in parallel, with no ordering guarantee between units of work.
type PoolContext struct {
	name    string
	logger  *slog.Logger
	queue   *workQueue
	mu      sync.Mutex
	workers map[int64]struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPoolContext creates a pool context with n parallel workers.
func NewPoolContext(name string, n int, opts ...ContextOption) *PoolContext {
	if n < 1 {
		panic("cascade: pool context needs at least one worker")
	}
	cfg := newContextConfig(opts)
	c := &PoolContext{
		name:    name,
		logger:  cfg.logger,
		queue:   newWorkQueue(),
		workers: make(map[int64]struct{}, n),
	}
	var ready sync.WaitGroup
	ready.Add(n)
	c.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer c.wg.Done()
			c.mu.Lock()
			c.workers[goid.Get()] = struct{}{}
			c.mu.Unlock()
			ready.Done()
			for {
				work, ok := c.queue.pop()
				if !ok {
					return
				}
				runGuarded(c.logger, c.name, work)
			}
		}()
	}
	ready.Wait()
	return c
}

func (c *PoolContext) Name() string { return c.name }

func (c *PoolContext) IsOrderedSingleWorker() bool { return false }

func (c *PoolContext) Execute(work func()) {
	if !c.queue.push(work) {
		c.logger.Warn("dropping work submitted to closed execution context", "context", c.name)
	}
}

// Close stops accepting new work, drains the queue and waits for all
// workers to exit.
func (c *PoolContext) Close() {
	c.once.Do(func() {
		c.queue.close()
	})
	c.wg.Wait()
}

func (c *PoolContext) onWorkerGoroutine() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.workers[goid.Get()]
	return ok
}

// ImmediateContext runs submitted work inline on the calling goroutine.
// Useful in tests and for priming chains deterministically.
type ImmediateContext struct {
	name   string
	logger *slog.Logger
}

// NewImmediateContext creates an inline execution context.
func NewImmediateContext(name string, opts ...ContextOption) *ImmediateContext {
	cfg := newContextConfig(opts)
	return &ImmediateContext{name: name, logger: cfg.logger}
}

func (c *ImmediateContext) Name() string { return c.name }

func (c *ImmediateContext) IsOrderedSingleWorker() bool { return false }

func (c *ImmediateContext) Execute(work func()) {
	runGuarded(c.logger, c.name, work)
}

// runGuarded keeps a panicking unit of work from taking the worker down
// with it. Step actions recover their own panics into the errored state;
// this is the safety net for raw submitted work.
func runGuarded(logger *slog.Logger, name string, work func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("unit of work panicked", "context", name, "panic", p)
		}
	}()
	work()
}
