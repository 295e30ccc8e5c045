//go:build linux

package reactor

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

const maxFDs = 65536

var (
	errFDOutOfRange    = errors.New("reactor: fd out of range")
	errPollerClosed    = errors.New("reactor: poller closed")
	errFDNotRegistered = errors.New("reactor: fd not registered")
)

type fdInfo struct {
	callback func(IOEvents)
	events   IOEvents
	active   bool
}

// EpollPoller is the Linux Poller implementation, built directly on
// golang.org/x/sys/unix's epoll bindings.
type EpollPoller struct {
	epfd     int
	closed   bool
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex
}

func (p *EpollPoller) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	return nil
}

func (p *EpollPoller) Close() error {
	p.fdMu.Lock()
	p.closed = true
	p.fdMu.Unlock()
	return unix.Close(p.epfd)
}

func (p *EpollPoller) RegisterFD(fd int, events IOEvents, cb func(IOEvents)) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.fdMu.Lock()
	if p.closed {
		p.fdMu.Unlock()
		return errPollerClosed
	}
	wasActive := p.fds[fd].active
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	op := unix.EPOLL_CTL_ADD
	if wasActive {
		op = unix.EPOLL_CTL_MOD
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *EpollPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *EpollPoller) PollIO(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *EpollPoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 || e&unix.EPOLLRDHUP != 0 {
		events |= EventHangup
	}
	return events
}

// NewPoller builds the platform-default Poller.
func NewPoller() Poller {
	return &EpollPoller{}
}
