// Package connstate implements the per-connection state machine: the
// Read -> Dispatch -> Write -> Flush sequence that advances one
// non-blocking step per Step call.
package connstate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reactorhttp/reactorhttp/internal/body"
	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/headers"
	"github.com/reactorhttp/reactorhttp/internal/httperr"
	"github.com/reactorhttp/reactorhttp/internal/registry"
	"github.com/reactorhttp/reactorhttp/internal/router"
)

// MaxHeaderBytes bounds how much of a request line + header block the
// Read state will accumulate before giving up on the connection.
const MaxHeaderBytes = 1 << 20 // 1 MiB

// initialPeekBufSize is the starting size of a connection's peek
// buffer; it doubles (capped at MaxHeaderBytes) only when a peek fills
// it without finding the header terminator, so ordinary small requests
// never pay for a MiB-sized allocation.
const initialPeekBufSize = 4096

// ErrWouldBlock mirrors body.ErrWouldBlock for connection-level I/O.
var ErrWouldBlock = body.ErrWouldBlock

// Conn is the non-blocking socket contract the state machine needs. A
// peek does not consume bytes; a read does.
type Conn interface {
	PeekNonBlocking(buf []byte) (int, error)
	ReadNonBlocking(buf []byte) (int, error)
	WriteNonBlocking(buf []byte) (int, error)
}

// State is the per-connection sum type: Read, Write or Flush.
type State interface {
	connState()
}

// Read accumulates header bytes via non-consuming peeks. Buf is the
// connection's reused peek buffer, carried across Step calls and grown
// only when it turns out to be too small.
type Read struct {
	Buf []byte
}

// Write holds the resolved (or not-yet-resolved) response and how much
// of its serialized bytes have been written so far.
type Write struct {
	Req     *handler.Request
	Handler handler.Handler
	Data    []byte // nil until the handler has been polled to completion
	Offset  int
}

// Flush is terminal: the reactor drops the connection once it sees this.
type Flush struct{}

func (Read) connState()  {}
func (Write) connState() {}
func (Flush) connState() {}

// Machine holds the shared, read-only state every connection's Step
// call needs: the compiled route table, the dependency registry, and a
// logger.
type Machine struct {
	Router *router.Router
	Deps   *registry.Registry
	Log    zerolog.Logger
}

// Step advances state by exactly one non-blocking unit of work and
// returns the next state. A non-nil error reports an I/O failure that
// could not be mapped to a state; the reactor then drops the connection
// without reinsertion, exactly as for Flush.
func (m *Machine) Step(conn Conn, state State) (State, error) {
	switch s := state.(type) {
	case Read:
		return m.stepRead(conn, s)
	case Write:
		return m.stepWrite(conn, s)
	case Flush:
		conn.WriteNonBlocking(nil) // best-effort final flush
		return Flush{}, nil
	default:
		return Flush{}, fmt.Errorf("connstate: unknown state %T", state)
	}
}

func (m *Machine) stepRead(conn Conn, s Read) (State, error) {
	buf := s.Buf
	if buf == nil {
		buf = make([]byte, initialPeekBufSize)
	}
	n, err := conn.PeekNonBlocking(buf)
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		if errors.Is(err, io.EOF) {
			return Flush{}, nil
		}
		return nil, err
	}

	idx := bytes.Index(buf[:n], []byte("\r\n\r\n"))
	if idx < 0 {
		if n >= len(buf) {
			if len(buf) >= MaxHeaderBytes {
				return Flush{}, nil
			}
			grown := len(buf) * 2
			if grown > MaxHeaderBytes {
				grown = MaxHeaderBytes
			}
			buf = make([]byte, grown)
		}
		return Read{Buf: buf}, nil // reactor re-notifies on next readiness
	}

	headerLen := idx + 4
	headerBuf := make([]byte, headerLen)
	if _, err := conn.ReadNonBlocking(headerBuf); err != nil {
		return nil, err
	}

	req, herr := parseHeaderBlock(headerBuf[:idx])
	if herr != nil {
		resp := errorResponse(herr)
		return Write{Req: nil, Handler: handler.Handler{Fn: handler.Sync(func(*handler.Request) handler.Response { return resp })}}, nil
	}

	match := m.Router.Route(req.method, req.path)
	h := match.Handler
	params := match.PathParams
	if !match.Found {
		h = handler.NotFound(req.path)
		params = map[string]string{}
	}

	bodyReader, bodyErr := body.New(req.headers) // nil if neither framing header present; handlers must tolerate nil
	if bodyReader != nil {
		// Eager drain: this Step already runs inside a pool worker (see
		// reactor.dispatch), so looping here only occupies that one
		// goroutine, never the reactor's poll loop. Simpler than handing
		// the handler a duplicated, mutex-guarded socket handle; the
		// tradeoff (a slow client's body pins a worker) is the one
		// spec.md's design note calls out as equally acceptable.
		for !bodyReader.Done() {
			if _, err := bodyReader.Step(conn); err != nil {
				if errors.Is(err, ErrWouldBlock) {
					time.Sleep(time.Millisecond)
					continue
				}
				bodyErr = err // surfaced to the handler via Request.BodyErr
				break
			}
		}
	}

	ar := &handler.Request{
		Method:     req.method,
		Path:       req.path,
		RawQuery:   req.rawQuery,
		PathParams: params,
		Headers:    req.headers,
		Deps:       m.Deps,
		Body:       bodyReader,
		BodyErr:    bodyErr,
	}
	return Write{Req: ar, Handler: h, Offset: 0}, nil
}

func (m *Machine) stepWrite(conn Conn, s Write) (State, error) {
	if s.Data == nil {
		resp := m.resolve(s.Handler, s.Req)
		s.Data = serialize(resp)
	}

	remaining := s.Data[s.Offset:]
	if len(remaining) == 0 {
		return Flush{}, nil
	}
	n, err := conn.WriteNonBlocking(remaining)
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		return Flush{}, nil
	}
	s.Offset += n
	if s.Offset >= len(s.Data) {
		return Flush{}, nil
	}
	return s, nil
}

// resolve invokes the handler's computation and polls it to completion,
// converting any panic into a 500 response.
func (m *Machine) resolve(h handler.Handler, req *handler.Request) handler.Response {
	return handler.Invoke(h, req)
}

func serialize(r handler.Response) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, httperr.ReasonPhrase(r.Status))
	hasContentLength := r.Headers != nil && r.Headers.Contains("Content-Length")
	if r.Headers != nil {
		r.Headers.Each(func(name, value string) {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		})
	}
	if !hasContentLength {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	}
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	return b.Bytes()
}

func errorResponse(err error) handler.Response {
	var he *httperr.Error
	if errors.As(err, &he) {
		status, body := he.StatusAndBody()
		return handler.Plain(status, body)
	}
	return handler.Plain(400, "Bad Request")
}

type parsedRequest struct {
	method   string
	path     string
	rawQuery string
	headers  *headers.Headers
}

// parseHeaderBlock parses the request-line + header lines (everything
// before the blank line) of an HTTP/1.1 message.
func parseHeaderBlock(block []byte) (parsedRequest, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return parsedRequest{}, httperr.HTTPParse("empty request", 400)
	}
	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 {
		return parsedRequest{}, httperr.HTTPParse("malformed request line", 400)
	}
	method, target, version := parts[0], parts[1], parts[2]
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		return parsedRequest{}, httperr.HTTPParse("unsupported HTTP version: "+version, 505)
	}
	path := target
	var rawQuery string
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
		rawQuery = target[i+1:]
	}
	h := headers.ParseLines(lines[1:])
	return parsedRequest{method: method, path: path, rawQuery: rawQuery, headers: h}, nil
}
