// Package executor is a small cooperative task scheduler: workers poll
// suspendable computations (Futures) to completion; a Future that is not
// yet finished is polled again once it calls its Waker. It is the Go analogue of a
// Future/Waker runtime, built to be driven by the reactor rather than by
// an OS thread blocking on I/O.
package executor

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/reactorhttp/reactorhttp/internal/future"
)

// Waker lets a suspended Future ask to be polled again once it has made
// progress (e.g. once the reactor observes its fd is readable).
type Waker interface {
	Wake()
}

// Future is a computation that may need several Poll calls to finish.
// It returns (value, true) once done; otherwise (nil, false), having
// arranged for w.Wake() to be called when it is worth polling again.
type Future interface {
	Poll(w Waker) (value any, done bool)
}

// FutureFunc adapts a plain poll function to the Future interface.
type FutureFunc func(w Waker) (any, bool)

func (f FutureFunc) Poll(w Waker) (any, bool) { return f(w) }

// Outcome is what a queued Future resolves to: either its value, or a
// non-nil Err if the Future panicked while being polled.
type Outcome struct {
	Value any
	Err   error
}

// Task is one scheduled Future plus the bookkeeping needed to re-poll it.
type Task struct {
	future Future
	pool   *Pool
	ch     chan *Task
	onDone func(any, error)
}

// Wake re-queues the task on its assigned worker channel. Called by the
// Future itself (directly, or via whatever mechanism - e.g. the reactor -
// observed the condition it was waiting on).
func (t *Task) Wake() {
	t.pool.enqueue(t)
}

// Pool is a fixed set of workers, each polling Futures from its own
// channel. Assigning each Task a single, stable channel (round-robin at
// creation) keeps one Future from ever being polled by two workers at
// once.
type Pool struct {
	chans  []chan *Task
	next   atomic.Uint64
	closed atomic.Bool
	log    zerolog.Logger
}

// NewPool builds a pool with the given worker count and per-worker queue
// depth. workers must be >= 1.
func NewPool(workers, queueDepth int, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	p := &Pool{log: log}
	p.chans = make([]chan *Task, workers)
	for i := range p.chans {
		p.chans[i] = make(chan *Task, queueDepth)
	}
	return p
}

// Start spawns one goroutine per worker channel. It does not block.
func (p *Pool) Start() {
	for i, ch := range p.chans {
		go p.runWorker(i, ch)
	}
}

func (p *Pool) runWorker(id int, ch <-chan *Task) {
	for t := range ch {
		value, done, err := safePoll(t.future, t)
		if !done {
			continue
		}
		if err != nil {
			p.log.Error().Int("worker", id).Err(err).Msg("task panicked")
		}
		if t.onDone != nil {
			t.onDone(value, err)
		}
	}
}

func safePoll(f Future, w Waker) (value any, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			done = true
			value = nil
		}
	}()
	value, done = f.Poll(w)
	return
}

func (p *Pool) enqueue(t *Task) {
	if p.closed.Load() {
		return
	}
	t.ch <- t
}

func (p *Pool) pickChan() chan *Task {
	idx := p.next.Add(1) % uint64(len(p.chans))
	return p.chans[idx]
}

// Queue schedules f with no interest in its result.
func (p *Pool) Queue(f Future) {
	t := &Task{future: f, pool: p, ch: p.pickChan()}
	p.enqueue(t)
}

// QueueWithResult schedules f and returns a handle that receives its
// Outcome once it completes (or panics).
func (p *Pool) QueueWithResult(f Future) *future.ResultHandle[Outcome] {
	h := future.New[Outcome]()
	t := &Task{future: f, pool: p}
	t.ch = p.pickChan()
	t.onDone = func(v any, err error) { h.Set(Outcome{Value: v, Err: err}) }
	p.enqueue(t)
	return h
}

// blockingFuture runs fn to completion the first (and only) time it is
// polled - for work that is already synchronous/CPU-bound rather than
// I/O-suspendable.
type blockingFuture func() any

func (f blockingFuture) Poll(Waker) (any, bool) { return f(), true }

// QueueBlocking schedules a plain function as a single-poll Future and
// returns its result handle.
func (p *Pool) QueueBlocking(fn func() any) *future.ResultHandle[Outcome] {
	return p.QueueWithResult(blockingFuture(fn))
}

// PoisonAll stops accepting new work and closes every worker channel,
// causing each worker goroutine to drain and exit.
func (p *Pool) PoisonAll() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for _, ch := range p.chans {
		close(ch)
	}
}

// Workers reports the configured worker count.
func (p *Pool) Workers() int { return len(p.chans) }
