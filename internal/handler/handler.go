// Package handler defines the Handler, Request and Response types
// shared by the async reactor core and the blocking reference server.
package handler

import (
	"fmt"

	"github.com/reactorhttp/reactorhttp/internal/body"
	"github.com/reactorhttp/reactorhttp/internal/executor"
	"github.com/reactorhttp/reactorhttp/internal/headers"
	"github.com/reactorhttp/reactorhttp/internal/registry"
)

// Request is what a handler sees: the matched path's parameters, the
// parsed header set, the shared dependency registry, and the body, which
// both servers drain in full before the handler runs.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	PathParams map[string]string
	Headers    *headers.Headers
	Deps       *registry.Registry
	Body       *body.Reader
	// BodyErr is set when constructing Body failed (e.g. neither
	// Content-Length nor chunked framing was present, leaving Body nil)
	// or when draining Body failed (e.g. malformed chunked framing,
	// leaving Body partially filled). A handler that
	// doesn't read the body can ignore it; one that does (like an echo
	// handler) should surface it, typically via httperr.ErrLengthRequired.
	BodyErr error
}

// Response is a fully-formed, ready-to-serialize result.
type Response struct {
	Status  int
	Body    string
	Headers *headers.Headers
}

// WithHeader returns a copy of r with name: value added (or overwritten).
func (r Response) WithHeader(name, value string) Response {
	h := headers.New()
	if r.Headers != nil {
		r.Headers.Each(h.Insert)
	}
	h.Insert(name, value)
	r.Headers = h
	return r
}

// Plain builds a response with the given status and body and no extra
// headers.
func Plain(status int, body string) Response {
	return Response{Status: status, Body: body}
}

// Func is the async handler shape: given a Request, it returns a Future
// that resolves to a Response. Most handlers are synchronous and should
// be wrapped with Sync.
type Func func(req *Request) executor.Future

// Sync adapts a plain, non-suspending handler function into the async
// Func shape expected by the dispatcher.
func Sync(fn func(req *Request) Response) Func {
	return func(req *Request) executor.Future {
		return executor.FutureFunc(func(executor.Waker) (any, bool) {
			return fn(req), true
		})
	}
}

// Handler pairs a method+pattern route with the function that serves it.
// Two handlers are equal iff their Method and Pattern match. The
// synthetic not-found handler has an empty Method; the router compares
// methods exactly, so an empty Method matches no request.
type Handler struct {
	Method  string
	Pattern string
	Fn      Func
}

// Key returns the (method, pattern) identity used for duplicate-route
// detection.
func (h Handler) Key() string { return h.Method + " " + h.Pattern }

// Invoke drives h's Future to completion, containing any panic as a 500
// response. It is the single poll-to-completion loop shared by the
// async reactor core and the blocking reference server.
func Invoke(h Handler, req *Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Plain(500, fmt.Sprintf("Internal Server Error: %v", r))
		}
	}()

	f := h.Fn(req)
	wake := make(chan struct{}, 1)
	w := invokeWaker(func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	for {
		v, done := f.Poll(w)
		if done {
			r, ok := v.(Response)
			if !ok {
				return Plain(500, "Internal Server Error: handler returned non-Response value")
			}
			return r
		}
		<-wake
	}
}

type invokeWaker func()

func (w invokeWaker) Wake() { w() }

// NotFound synthesizes the handler substituted in whenever the router
// finds no route for a request's (method, path).
func NotFound(path string) Handler {
	body := "Resource: " + path + " not found."
	return Handler{
		Method:  "",
		Pattern: path,
		Fn: Sync(func(*Request) Response {
			return Plain(404, body)
		}),
	}
}
