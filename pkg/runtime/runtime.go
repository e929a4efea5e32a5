// Package runtime implements the worker-pool runtime from spec §4.I: a
// fixed set of goroutines, each an independent work queue, with
// round-robin assignment and named isolated queues outside the pool.
// Go has no native coroutine/event-loop primitive to mirror directly, so
// each "event loop" is a goroutine draining its own buffered chan func() —
// the queue-based stand-in spec §9 explicitly allows.
package runtime

import (
	"runtime"
	"sync"
)

// IOContext is one independent work queue. Submitting a func to a running
// IOContext runs it on that context's goroutine, serialized with every
// other func submitted to the same context.
type IOContext struct {
	queue   chan func()
	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

func newIOContext() *IOContext {
	return &IOContext{
		queue:   make(chan func(), 256),
		stopped: make(chan struct{}),
	}
}

// Post submits fn to run on this context. Post on a stopped context is a
// no-op, matching "dropping the last client stops it" without requiring
// callers to check running() themselves.
func (c *IOContext) Post(fn func()) {
	select {
	case <-c.stopped:
		return
	default:
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case c.queue <- fn:
		case <-c.stopped:
		}
	}()
}

func (c *IOContext) run() {
	for {
		select {
		case fn := <-c.queue:
			fn()
		case <-c.stopped:
			return
		}
	}
}

func (c *IOContext) stop() {
	c.once.Do(func() { close(c.stopped) })
}

// Pool is a fixed-size collection of IOContexts plus a separate registry
// of named isolated contexts (spec §4.I "isolated_io_context(name)").
type Pool struct {
	mu       sync.Mutex
	contexts []*IOContext
	isolated map[string]*IOContext
	next     int
	running  bool
	refs     int
}

// New returns a Pool sized to n worker goroutines. n<=0 defaults to
// runtime.NumCPU (spec §4.I "N defaults to hardware concurrency").
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{isolated: map[string]*IOContext{}}
	for i := 0; i < n; i++ {
		p.contexts = append(p.contexts, newIOContext())
	}
	return p
}

// Start launches the pool's worker goroutines. Safe to call more than
// once; only the first call has an effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for _, c := range p.contexts {
		go c.run()
	}
}

// Stop signals every context (pool and isolated) to exit, then waits for
// in-flight Post calls to return. Funcs still queued when a context stops
// are not guaranteed to run.
func (p *Pool) Stop() {
	p.mu.Lock()
	running := p.running
	p.running = false
	all := append([]*IOContext{}, p.contexts...)
	for _, c := range p.isolated {
		all = append(all, c)
	}
	p.mu.Unlock()

	if !running {
		return
	}
	for _, c := range all {
		c.stop()
		c.wg.Wait()
	}
}

// Wait blocks until every Post'd func has been accepted by its context's
// queue (not until the queue drains — a long-running fn does not block
// Wait's callers from continuing to Post elsewhere).
func (p *Pool) Wait() {
	p.mu.Lock()
	all := append([]*IOContext{}, p.contexts...)
	for _, c := range p.isolated {
		all = append(all, c)
	}
	p.mu.Unlock()
	for _, c := range all {
		c.wg.Wait()
	}
}

// Running reports whether Start has been called without a matching Stop.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextIOContext round-robins across the fixed pool (spec §4.I
// "next_io_context() round-robin assignment").
func (p *Pool) NextIOContext() *IOContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.contexts[p.next]
	p.next = (p.next + 1) % len(p.contexts)
	return c
}

// IsolatedIOContext returns the named context outside the round-robin
// pool, creating it on first use (spec §4.I "isolated_io_context(name)
// returning a unique loop by name"). A new context is started only if the
// pool is running at that moment; Start does not start isolated contexts.
func (p *Pool) IsolatedIOContext(name string) *IOContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.isolated[name]
	if !ok {
		c = newIOContext()
		p.isolated[name] = c
		if p.running {
			go c.run()
		}
	}
	return c
}

// acquire/release implement auto-management: the shared runtime starts
// when the first async client registers and stops when the last one
// drops (spec §4.I "auto-management", spec §9 "Global mutable state").
func (p *Pool) acquire() {
	p.mu.Lock()
	p.refs++
	needStart := !p.running
	p.mu.Unlock()
	if needStart {
		p.Start()
	}
}

func (p *Pool) release() {
	p.mu.Lock()
	p.refs--
	shouldStop := p.refs <= 0
	p.mu.Unlock()
	if shouldStop {
		p.Stop()
	}
}
