// Package router implements the compiled path matcher: routes are
// parsed into literal/parameter segment lists once, at registration
// time, and matched by walking those segments - no per-request regex;
// only the request path itself is split on each lookup.
package router

import (
	"fmt"
	"strings"

	"github.com/reactorhttp/reactorhttp/internal/handler"
)

// -----------------------------------------------------------------------------
// Compilación de patrones: se parte una vez en segmentos literales/:param.
// -----------------------------------------------------------------------------

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
)

type segment struct {
	kind segmentKind
	text string // literal text, or parameter name (without the leading ':')
}

// compiledPath is a route pattern split into segments once at Add time.
type compiledPath struct {
	segments []segment
}

func compile(pattern string) compiledPath {
	var segs []segment
	for _, part := range strings.Split(pattern, "/") {
		if part == "" {
			continue // "/users//posts/" matches "/users/posts"
		}
		if strings.HasPrefix(part, ":") {
			segs = append(segs, segment{kind: segParam, text: part[1:]})
		} else {
			segs = append(segs, segment{kind: segLiteral, text: part})
		}
	}
	return compiledPath{segments: segs}
}

// match checks path against the compiled pattern, returning extracted
// parameters on success.
func (c compiledPath) match(path string) (map[string]string, bool) {
	var pathSegs []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			pathSegs = append(pathSegs, part)
		}
	}
	if len(pathSegs) != len(c.segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range c.segments {
		switch seg.kind {
		case segLiteral:
			if seg.text != pathSegs[i] {
				return nil, false
			}
		case segParam:
			if params == nil {
				params = make(map[string]string, len(c.segments))
			}
			params[seg.text] = pathSegs[i]
		}
	}
	if params == nil {
		params = map[string]string{}
	}
	return params, true
}

type route struct {
	method  string
	path    compiledPath
	handler handler.Handler
}

// Router holds the ordered, compiled route table. Routes are tried in
// insertion order; the first match wins.
type Router struct {
	routes []route
	seen   map[string]struct{}
}

// New returns an empty router.
func New() *Router {
	return &Router{seen: make(map[string]struct{})}
}

// Add registers h under (h.Method, h.Pattern), compiling the pattern. It
// returns an error if that (method, pattern) pair was already registered.
func (r *Router) Add(h handler.Handler) error {
	key := h.Key()
	if _, dup := r.seen[key]; dup {
		return fmt.Errorf("router: duplicate route %s", key)
	}
	r.seen[key] = struct{}{}
	r.routes = append(r.routes, route{method: h.Method, path: compile(h.Pattern), handler: h})
	return nil
}

// Match describes the outcome of a route lookup.
type Match struct {
	Handler    handler.Handler
	PathParams map[string]string
	Found      bool
}

// Route: primer match gana. Method distinto en un path que sí matchea -> 404, no 405.
func (r *Router) Route(method, path string) Match {
	for _, rt := range r.routes {
		params, ok := rt.path.match(path)
		if !ok {
			continue
		}
		if rt.method != method {
			continue
		}
		return Match{Handler: rt.handler, PathParams: params, Found: true}
	}
	return Match{Found: false}
}
