package server

import (
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/registry"
)

func TestBuildRejectsDuplicateRoute(t *testing.T) {
	fn := handler.Sync(func(*handler.Request) handler.Response { return handler.Plain(200, "ok") })
	b := NewBuilder(zerolog.Nop()).
		Handle("GET", "/x", fn).
		Handle("GET", "/x", fn)
	_, err := b.Build()
	require.Error(t, err)
}

func TestBuildDefaultsWorkerCountToNumCPU(t *testing.T) {
	b := NewBuilder(zerolog.Nop())
	s, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, runtime.NumCPU(), s.pool.Workers())
}

func TestBuildHonorsExplicitWorkerCount(t *testing.T) {
	b := NewBuilder(zerolog.Nop()).WithWorkerCount(3)
	s, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 3, s.pool.Workers())
}

type testDep struct{ name string }

func TestDependFlowsIntoHandlers(t *testing.T) {
	b := NewBuilder(zerolog.Nop())
	Depend(b, testDep{name: "db"})
	b.Handle("GET", "/dep", handler.Sync(func(req *handler.Request) handler.Response {
		d, ok := registry.Get[testDep](req.Deps)
		if !ok || d.name != "db" {
			return handler.Plain(500, "missing dep")
		}
		return handler.Plain(200, "ok")
	}))
	s, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, s)

	m := b.router.Route("GET", "/dep")
	require.True(t, m.Found)
	resp := handler.Invoke(m.Handler, &handler.Request{Deps: b.deps.Freeze()})
	require.Equal(t, 200, resp.Status)
}
