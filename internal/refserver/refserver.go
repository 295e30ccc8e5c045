// Package refserver is the blocking, goroutine-per-connection reference
// server: a synchronous analogue of the async reactor core that shares
// its router and handler types, kept for side-by-side comparison.
package refserver

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/reactorhttp/reactorhttp/internal/body"
	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/headers"
	"github.com/reactorhttp/reactorhttp/internal/httperr"
	"github.com/reactorhttp/reactorhttp/internal/registry"
	"github.com/reactorhttp/reactorhttp/internal/router"
	"github.com/reactorhttp/reactorhttp/internal/util"
)

var (
	startedAt = time.Now()
	connCount uint64
)

// Server is the blocking reference server: one goroutine per accepted
// connection, each handled to completion with ordinary blocking reads
// and writes.
type Server struct {
	Router *router.Router
	Deps   *registry.Registry
	Log    zerolog.Logger
}

// HandleConn serves a single connection end to end, closing it when
// done - HTTP/1.1 without keep-alive, matching the async core's
// single-shot-per-connection behavior.
func (s *Server) HandleConn(c net.Conn) {
	defer c.Close()
	atomic.AddUint64(&connCount, 1)

	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	if err != nil {
		writePlain(c, 400, "Bad Request")
		return
	}
	parts := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(parts) != 3 {
		writePlain(c, 400, "Bad Request: malformed request line")
		return
	}
	method, target := parts[0], parts[1]
	path := target
	var rawQuery string
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
		rawQuery = target[i+1:]
	}

	var rawHeaders []string
	for {
		hline, err := r.ReadString('\n')
		if err != nil {
			writePlain(c, 400, "Bad Request")
			return
		}
		hline = strings.TrimRight(hline, "\r\n")
		if hline == "" {
			break
		}
		rawHeaders = append(rawHeaders, hline)
	}
	h := headers.ParseLines(rawHeaders)

	match := s.Router.Route(method, path)
	hnd := match.Handler
	params := match.PathParams
	if !match.Found {
		hnd = handler.NotFound(path)
		params = map[string]string{}
	}

	bodyReader, bodyErr := body.New(h)
	req := &handler.Request{
		Method:     method,
		Path:       path,
		RawQuery:   rawQuery,
		PathParams: params,
		Headers:    h,
		Deps:       s.Deps,
		Body:       bodyReader,
		BodyErr:    bodyErr,
	}
	if req.Body != nil {
		if err := drainBody(req.Body, r); err != nil {
			req.BodyErr = err
		}
	}

	resp := handler.Invoke(hnd, req)
	resp = resp.WithHeader("X-Request-Id", util.NewReqID()).WithHeader("X-Worker-Pid", strconv.Itoa(os.Getpid()))
	writeResponse(c, resp)
}

// drainBody blocks until the body is fully read from the buffered
// reader - the synchronous analogue of the async core's step-by-step
// non-blocking body reads. A non-ErrWouldBlock error (malformed
// chunked framing, a body that overruns its Content-Length) aborts the
// drain and is returned for the caller to surface as Request.BodyErr.
func drainBody(br *body.Reader, r *bufio.Reader) error {
	src := bufioSource{r: r}
	for !br.Done() {
		if _, err := br.Step(src); err != nil && err != body.ErrWouldBlock {
			return err
		}
	}
	return nil
}

type bufioSource struct{ r *bufio.Reader }

func (s bufioSource) ReadNonBlocking(buf []byte) (int, error) {
	return s.r.Read(buf)
}

func writePlain(c net.Conn, status int, body string) {
	writeResponse(c, handler.Plain(status, body))
}

func writeResponse(c net.Conn, resp handler.Response) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.Status, httperr.ReasonPhrase(resp.Status))
	hasCL := resp.Headers != nil && resp.Headers.Contains("Content-Length")
	if resp.Headers != nil {
		resp.Headers.Each(func(name, value string) {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		})
	}
	if !hasCL {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(resp.Body))
	}
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(resp.Body)
	c.Write(b.Bytes())
}

// ListenAndServe blocks, accepting and serving connections until the
// listener is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.HandleConn(conn)
	}
}

// Uptime and ConnCount back the /status reference endpoint.
func Uptime() time.Duration { return time.Since(startedAt) }
func ConnCount() uint64     { return atomic.LoadUint64(&connCount) }
func PID() int              { return os.Getpid() }
func StartedAt() time.Time  { return startedAt }
