// Package server is the async core's builder and lifecycle: wiring a
// route table and dependency registry to a reactor and worker pool, then
// starting and stopping the whole thing as a unit.
package server

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs" // adjusts GOMAXPROCS to the container's CPU quota before we read runtime.NumCPU

	"github.com/reactorhttp/reactorhttp/internal/connstate"
	"github.com/reactorhttp/reactorhttp/internal/executor"
	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/reactor"
	"github.com/reactorhttp/reactorhttp/internal/registry"
	"github.com/reactorhttp/reactorhttp/internal/router"
)

// Builder accumulates routes and dependencies before Build produces a
// runnable Server.
type Builder struct {
	router      *router.Router
	deps        *registry.Builder
	workerCount int
	queueDepth  int
	log         zerolog.Logger
	err         error
}

// NewBuilder returns an empty Builder. workerCount of 0 defaults to the
// host's available parallelism (go.uber.org/automaxprocs having already
// adjusted GOMAXPROCS for any cgroup CPU quota).
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{router: router.New(), deps: registry.NewBuilder(), queueDepth: 256, log: log}
}

// Handle registers h's (method, pattern) route.
func (b *Builder) Handle(method, pattern string, fn handler.Func) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.router.Add(handler.Handler{Method: method, Pattern: pattern, Fn: fn}); err != nil {
		b.err = err
	}
	return b
}

// WithWorkerCount overrides the worker pool size. 0 means "use
// runtime.NumCPU()".
func (b *Builder) WithWorkerCount(n int) *Builder {
	b.workerCount = n
	return b
}

// WithQueueDepth overrides the per-worker queue capacity.
func (b *Builder) WithQueueDepth(n int) *Builder {
	b.queueDepth = n
	return b
}

// Depend registers a dependency value, retrievable by handlers via
// registry.Get[T].
func Depend[T any](b *Builder, v T) *Builder {
	registry.Insert(b.deps, v)
	return b
}

// Server is a built, runnable instance: a reactor bound to an address,
// backed by a worker pool.
type Server struct {
	reactor *reactor.Reactor
	pool    *executor.Pool
	log     zerolog.Logger
}

// Build compiles the route table and freezes the dependency registry,
// returning an error if two handlers claimed the same (method, pattern).
func (b *Builder) Build() (*Server, error) {
	if b.err != nil {
		return nil, b.err
	}
	workers := b.workerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool := executor.NewPool(workers, b.queueDepth, b.log)
	machine := &connstate.Machine{Router: b.router, Deps: b.deps.Freeze(), Log: b.log}
	re := reactor.New(reactor.NewPoller(), pool, machine, b.log)
	return &Server{reactor: re, pool: pool, log: b.log}, nil
}

// StartBlocking binds addr and runs the reactor loop until
// ShutdownGracefully is called from another goroutine. It returns once
// the loop exits.
func (s *Server) StartBlocking(addr string) error {
	s.pool.Start()
	if err := s.reactor.Listen(addr); err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.log.Info().Str("addr", addr).Int("workers", s.pool.Workers()).Msg("listening")
	return s.reactor.Run()
}

// ShutdownGracefully stops accepting new readiness events, waits for the
// in-flight loop iteration to finish, then poisons the worker pool.
func (s *Server) ShutdownGracefully() {
	s.log.Info().Msg("shutting down")
	s.reactor.ShutdownGracefully()
}
