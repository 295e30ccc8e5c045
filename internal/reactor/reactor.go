// Package reactor is the single-threaded readiness loop: it owns the
// listening socket and a table of live connections keyed by fd, and
// hands each readiness event to the executor as one task that advances
// the connection state machine by exactly one step.
package reactor

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/reactorhttp/reactorhttp/internal/body"
	"github.com/reactorhttp/reactorhttp/internal/connstate"
	"github.com/reactorhttp/reactorhttp/internal/executor"
)

// -----------------------------------------------------------------------------
// Eventos de lectura/escritura que reporta el Poller (epoll/kqueue).
// -----------------------------------------------------------------------------

// IOEvents is the readiness bitmask a Poller reports and accepts for
// registration.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Poller is the platform-specific readiness notifier (epoll on Linux,
// kqueue on BSD/Darwin). Both implementations satisfy this interface
// identically so Reactor itself has no build tags.
type Poller interface {
	Init() error
	Close() error
	RegisterFD(fd int, events IOEvents, cb func(IOEvents)) error
	UnregisterFD(fd int) error
	PollIO(timeoutMs int) (int, error)
}

// entry is what the connection table stores per fd.
type entry struct {
	conn  *rawConn
	state connstate.State
}

// Reactor binds a listener, runs the readiness loop, and dispatches
// per-connection work onto an executor.Pool.
type Reactor struct {
	poller  Poller
	pool    *executor.Pool
	machine *connstate.Machine
	log     zerolog.Logger

	listenFD int
	table    sync.Map // int (fd) -> *entry

	shutdown atomic.Bool
	done     chan struct{}
}

// New constructs an unbound Reactor. The caller must call Listen to bind
// an address and then Run to start serving.
func New(poller Poller, pool *executor.Pool, machine *connstate.Machine, log zerolog.Logger) *Reactor {
	return &Reactor{poller: poller, pool: pool, machine: machine, log: log, done: make(chan struct{})}
}

// Listen binds and sets up the listening socket for non-blocking accept.
func (r *Reactor) Listen(addr string) error {
	if err := r.poller.Init(); err != nil {
		return err
	}
	fd, err := bindListenFD(addr)
	if err != nil {
		return err
	}
	r.listenFD = fd
	return r.poller.RegisterFD(fd, EventRead, r.onListenerReadable)
}

// Addr reports the bound listening address, including the OS-assigned
// port when the caller passed port 0.
func (r *Reactor) Addr() (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(r.listenFD)
	if err != nil {
		return nil, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	default:
		return nil, errors.New("reactor: unsupported socket address type")
	}
}

// Run drives the readiness loop until ShutdownGracefully is called. It
// blocks the calling goroutine - callers typically run it in its own
// goroutine or as the final call of main.
func (r *Reactor) Run() error {
	defer close(r.done)
	for !r.shutdown.Load() {
		if _, err := r.poller.PollIO(250); err != nil {
			r.log.Error().Err(err).Msg("poller wait failed")
		}
	}
	return nil
}

// ShutdownGracefully stops the loop after its current iteration and
// poisons the worker pool; in-flight handlers run to completion.
func (r *Reactor) ShutdownGracefully() {
	r.shutdown.Store(true)
	<-r.done
	r.pool.PoisonAll()
	r.poller.Close()
	unix.Close(r.listenFD)
}

func (r *Reactor) onListenerReadable(IOEvents) {
	for {
		nfd, _, err := unix.Accept(r.listenFD)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			r.log.Error().Err(err).Msg("accept failed")
			return
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		conn := &rawConn{fd: nfd}
		e := &entry{conn: conn, state: connstate.Read{}}
		r.table.Store(nfd, e)
		if err := r.poller.RegisterFD(nfd, EventRead|EventWrite, func(ev IOEvents) { r.onConnReady(nfd, ev) }); err != nil {
			r.log.Error().Err(err).Int("fd", nfd).Msg("register failed")
			r.table.Delete(nfd)
			unix.Close(nfd)
		}
	}
}

func (r *Reactor) onConnReady(fd int, ev IOEvents) {
	v, ok := r.table.LoadAndDelete(fd)
	if !ok {
		return // another worker is already processing this fd
	}
	e := v.(*entry)
	r.poller.UnregisterFD(fd)

	if ev&EventHangup != 0 {
		unix.Close(fd)
		return
	}
	if _, isFlush := e.state.(connstate.Flush); isFlush {
		unix.Close(fd)
		return
	}

	r.dispatch(fd, e)
}

// dispatch queues the one-step task and reinserts or drops the
// connection once it completes.
func (r *Reactor) dispatch(fd int, e *entry) {
	h := r.pool.QueueBlocking(func() any {
		next, err := r.machine.Step(e.conn, e.state)
		if err != nil {
			r.log.Error().Err(err).Int("fd", fd).Msg("connection step failed")
			return connstate.Flush{}
		}
		return next
	})
	go func() {
		out := h.Get()
		if out.Err != nil {
			unix.Close(fd)
			return
		}
		next, _ := out.Value.(connstate.State)
		if _, isFlush := next.(connstate.Flush); isFlush {
			unix.Close(fd)
			return
		}
		e.state = next
		r.table.Store(fd, e)
		var want IOEvents
		switch next.(type) {
		case connstate.Write:
			want = EventWrite | EventRead
		default:
			want = EventRead
		}
		if err := r.poller.RegisterFD(fd, want, func(ev IOEvents) { r.onConnReady(fd, ev) }); err != nil {
			r.log.Error().Err(err).Int("fd", fd).Msg("re-register failed")
			r.table.Delete(fd)
			unix.Close(fd)
		}
	}()
}

// rawConn adapts a raw non-blocking fd to connstate.Conn and body.Source.
type rawConn struct {
	fd int
}

func (c *rawConn) PeekNonBlocking(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(c.fd, buf, unix.MSG_PEEK)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, body.ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *rawConn) ReadNonBlocking(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, body.ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *rawConn) WriteNonBlocking(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := unix.Write(c.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, body.ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func bindListenFD(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, err
	}
	var domain int
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		domain = unix.AF_INET
		var a [4]byte
		copy(a[:], ip4)
		sa = &unix.SockaddrInet4{Port: tcpAddr.Port, Addr: a}
	} else {
		domain = unix.AF_INET6
		var a [16]byte
		copy(a[:], tcpAddr.IP.To16())
		sa = &unix.SockaddrInet6{Port: tcpAddr.Port, Addr: a}
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}
	return fd, nil
}
