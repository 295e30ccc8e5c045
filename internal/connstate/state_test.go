package connstate

import (
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/reactorhttp/reactorhttp/internal/demo"
	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/registry"
	"github.com/reactorhttp/reactorhttp/internal/router"
)

// fakeConn is an in-memory Conn: inbound bytes are delivered from a
// fixed buffer, outbound bytes are collected for assertions.
type fakeConn struct {
	in     []byte
	out    []byte
	closed bool
}

func (c *fakeConn) PeekNonBlocking(buf []byte) (int, error) {
	if len(c.in) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(buf, c.in)
	return n, nil
}

func (c *fakeConn) ReadNonBlocking(buf []byte) (int, error) {
	if len(c.in) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(buf, c.in)
	c.in = c.in[n:]
	return n, nil
}

func (c *fakeConn) WriteNonBlocking(buf []byte) (int, error) {
	c.out = append(c.out, buf...)
	return len(buf), nil
}

func newMachine(t *testing.T) *Machine {
	t.Helper()
	r := router.New()
	require.NoError(t, r.Add(handler.Handler{
		Method:  "GET",
		Pattern: "/hello",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			return handler.Plain(200, "hi")
		}),
	}))
	return &Machine{Router: r, Deps: registry.NewBuilder().Freeze(), Log: zerolog.Nop()}
}

func TestStepReadIncompleteHeaders(t *testing.T) {
	m := newMachine(t)
	conn := &fakeConn{in: []byte("GET /hello HTTP/1.1\r\nHost: x")}
	next, err := m.Step(conn, Read{})
	require.NoError(t, err)
	_, ok := next.(Read)
	require.True(t, ok)
}

// peekOnlyConn never consumes bytes via Read - only long enough for
// stepRead's growing-peek-buffer loop to be exercised against an
// over-long, delimiter-free header region.
type peekOnlyConn struct{ in []byte }

func (c *peekOnlyConn) PeekNonBlocking(buf []byte) (int, error) {
	return copy(buf, c.in), nil
}
func (c *peekOnlyConn) ReadNonBlocking(buf []byte) (int, error)  { return 0, ErrWouldBlock }
func (c *peekOnlyConn) WriteNonBlocking(buf []byte) (int, error) { return len(buf), nil }

func TestStepReadOversizedHeaderFlushes(t *testing.T) {
	m := newMachine(t)
	conn := &peekOnlyConn{in: []byte(strings.Repeat("a", MaxHeaderBytes+1))}

	state := State(Read{})
	for i := 0; i < 64; i++ {
		next, err := m.Step(conn, state)
		require.NoError(t, err)
		if _, ok := next.(Flush); ok {
			return
		}
		state = next
	}
	t.Fatal("over-long header region never reached Flush")
}

func TestStepReadToWriteToFlush(t *testing.T) {
	m := newMachine(t)
	conn := &fakeConn{in: []byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n")}

	state, err := m.Step(conn, Read{})
	require.NoError(t, err)
	w, ok := state.(Write)
	require.True(t, ok)

	state, err = m.Step(conn, w)
	require.NoError(t, err)
	_, ok = state.(Flush)
	require.True(t, ok)
	require.Contains(t, string(conn.out), "HTTP/1.1 200 OK")
	require.Contains(t, string(conn.out), "hi")
}

func TestStepRouteNotFoundSynthesizes404(t *testing.T) {
	m := newMachine(t)
	conn := &fakeConn{in: []byte("GET /missing HTTP/1.1\r\n\r\n")}
	state, err := m.Step(conn, Read{})
	require.NoError(t, err)
	w := state.(Write)
	state, err = m.Step(conn, w)
	require.NoError(t, err)
	require.IsType(t, Flush{}, state)
	require.Contains(t, string(conn.out), "404")
	require.Contains(t, string(conn.out), "Resource: /missing not found.")
}

func TestStepHandlerPanicBecomes500(t *testing.T) {
	r := router.New()
	require.NoError(t, r.Add(handler.Handler{
		Method:  "GET",
		Pattern: "/boom",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			panic("kaboom")
		}),
	}))
	m := &Machine{Router: r, Deps: registry.NewBuilder().Freeze(), Log: zerolog.Nop()}
	conn := &fakeConn{in: []byte("GET /boom HTTP/1.1\r\n\r\n")}
	state, err := m.Step(conn, Read{})
	require.NoError(t, err)
	_, err = m.Step(conn, state.(Write))
	require.NoError(t, err)
	require.Contains(t, string(conn.out), "500")
	require.Contains(t, string(conn.out), "kaboom")
}

func TestStepPeerHangupGoesToFlush(t *testing.T) {
	m := newMachine(t)
	conn := &eofConn{}
	state, err := m.Step(conn, Read{})
	require.NoError(t, err)
	require.IsType(t, Flush{}, state)
}

type eofConn struct{}

func (eofConn) PeekNonBlocking([]byte) (int, error)  { return 0, io.EOF }
func (eofConn) ReadNonBlocking([]byte) (int, error)  { return 0, io.EOF }
func (eofConn) WriteNonBlocking([]byte) (int, error) { return 0, nil }

func newEchoMachine(t *testing.T) *Machine {
	t.Helper()
	r := router.New()
	require.NoError(t, r.Add(demo.Echo()))
	return &Machine{Router: r, Deps: registry.NewBuilder().Freeze(), Log: zerolog.Nop()}
}

func runToFlush(t *testing.T, m *Machine, conn Conn) {
	t.Helper()
	state := State(Read{})
	for i := 0; i < 10; i++ {
		next, err := m.Step(conn, state)
		require.NoError(t, err)
		if _, ok := next.(Flush); ok {
			return
		}
		state = next
	}
	t.Fatal("did not reach Flush within step budget")
}

func TestStepChunkedBodyEcho(t *testing.T) {
	m := newEchoMachine(t)
	conn := &fakeConn{in: []byte("POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nHello\r\n6\r\n World\r\n0\r\n\r\n")}
	runToFlush(t, m, conn)
	require.Contains(t, string(conn.out), "200 OK")
	require.Contains(t, string(conn.out), "Hello World")
}

func TestStepMissingLengthPOSTReturns411(t *testing.T) {
	m := newEchoMachine(t)
	conn := &fakeConn{in: []byte("POST /echo HTTP/1.1\r\nHost: x\r\n\r\n")}
	runToFlush(t, m, conn)
	require.Contains(t, string(conn.out), "411")
}

// trickleConn accepts at most max bytes per write, so a response takes
// several Write steps to go out.
type trickleConn struct {
	fakeConn
	max int
}

func (c *trickleConn) WriteNonBlocking(buf []byte) (int, error) {
	if len(buf) > c.max {
		buf = buf[:c.max]
	}
	return c.fakeConn.WriteNonBlocking(buf)
}

func TestStepWritePartialWritesAccumulate(t *testing.T) {
	m := newMachine(t)
	conn := &trickleConn{fakeConn: fakeConn{in: []byte("GET /hello HTTP/1.1\r\n\r\n")}, max: 8}
	state, err := m.Step(conn, Read{})
	require.NoError(t, err)
	w := state.(Write)

	state, err = m.Step(conn, w)
	require.NoError(t, err)
	w, ok := state.(Write)
	require.True(t, ok)
	require.Equal(t, 8, w.Offset)

	for i := 0; i < 10; i++ {
		state, err = m.Step(conn, state)
		require.NoError(t, err)
		if _, done := state.(Flush); done {
			break
		}
	}
	require.IsType(t, Flush{}, state)
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi", string(conn.out))
}
