package router

import (
	"testing"

	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/stretchr/testify/require"
)

func h(method, pattern string) handler.Handler {
	return handler.Handler{Method: method, Pattern: pattern, Fn: handler.Sync(func(*handler.Request) handler.Response {
		return handler.Plain(200, pattern)
	})}
}

func TestRouteLiteral(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/status")))
	m := r.Route("GET", "/status")
	require.True(t, m.Found)
}

func TestRouteParam(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/users/:id/posts/:postId")))
	m := r.Route("GET", "/users/42/posts/7")
	require.True(t, m.Found)
	require.Equal(t, "42", m.PathParams["id"])
	require.Equal(t, "7", m.PathParams["postId"])
}

func TestRouteEmptySegmentsCollapse(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/users/posts")))
	m := r.Route("GET", "/users//posts/")
	require.True(t, m.Found)
}

func TestRouteMethodMismatchIsNotFound(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/status")))
	m := r.Route("POST", "/status")
	require.False(t, m.Found)
}

func TestRouteNoMatchingPath(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/status")))
	m := r.Route("GET", "/other")
	require.False(t, m.Found)
}

func TestAddRejectsDuplicateRoute(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/status")))
	err := r.Add(h("GET", "/status"))
	require.Error(t, err)
}

func TestFirstMatchWins(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/users/:id")))
	require.NoError(t, r.Add(h("GET", "/users/special")))
	m := r.Route("GET", "/users/special")
	require.True(t, m.Found)
	require.Equal(t, "special", m.PathParams["id"]) // first registered pattern wins
}

func TestSegmentCountMustMatch(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(h("GET", "/a/:b")))
	m := r.Route("GET", "/a/b/c")
	require.False(t, m.Found)
}
