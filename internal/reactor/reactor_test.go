//go:build linux

package reactor

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/reactorhttp/reactorhttp/internal/connstate"
	"github.com/reactorhttp/reactorhttp/internal/executor"
	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/registry"
	"github.com/reactorhttp/reactorhttp/internal/router"
)

func TestReactorServesOneRequest(t *testing.T) {
	r := router.New()
	require.NoError(t, r.Add(handler.Handler{
		Method:  "GET",
		Pattern: "/ping",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			return handler.Plain(200, "pong")
		}),
	}))
	machine := &connstate.Machine{Router: r, Deps: registry.NewBuilder().Freeze(), Log: zerolog.Nop()}
	pool := executor.NewPool(2, 32, zerolog.Nop())
	pool.Start()

	re := New(NewPoller(), pool, machine, zerolog.Nop())
	require.NoError(t, re.Listen("127.0.0.1:0"))
	addr, err := re.Addr()
	require.NoError(t, err)

	go re.Run()
	defer re.ShutdownGracefully()

	// Give the reactor goroutine a moment to enter its poll loop.
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "200")
}
