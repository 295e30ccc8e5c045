//go:build darwin

package reactor

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

type fdInfo struct {
	callback func(IOEvents)
	events   IOEvents
	active   bool
}

var (
	errFDOutOfRange    = errors.New("reactor: fd out of range")
	errPollerClosed    = errors.New("reactor: poller closed")
	errFDNotRegistered = errors.New("reactor: fd not registered")
)

// KqueuePoller is the Darwin/BSD Poller implementation, built on
// golang.org/x/sys/unix's kqueue bindings.
type KqueuePoller struct {
	kq       int
	closed   bool
	eventBuf [256]unix.Kevent_t
	fds      []fdInfo
	fdMu     sync.RWMutex
}

func (p *KqueuePoller) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = kq
	p.fds = make([]fdInfo, 4096)
	return nil
}

func (p *KqueuePoller) Close() error {
	p.fdMu.Lock()
	p.closed = true
	p.fdMu.Unlock()
	return unix.Close(p.kq)
}

func (p *KqueuePoller) grow(fd int) {
	if fd < len(p.fds) {
		return
	}
	newFds := make([]fdInfo, fd*2+1)
	copy(newFds, p.fds)
	p.fds = newFds
}

func (p *KqueuePoller) RegisterFD(fd int, events IOEvents, cb func(IOEvents)) error {
	if fd < 0 {
		return errFDOutOfRange
	}
	p.fdMu.Lock()
	if p.closed {
		p.fdMu.Unlock()
		return errPollerClosed
	}
	p.grow(fd)
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	kevs := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) > 0 {
		if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdInfo{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

func (p *KqueuePoller) UnregisterFD(fd int) error {
	if fd < 0 {
		return errFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDNotRegistered
	}
	events := p.fds[fd].events
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	kevs := eventsToKevents(fd, events, unix.EV_DELETE)
	if len(kevs) > 0 {
		unix.Kevent(p.kq, kevs, nil, nil)
	}
	return nil
}

func (p *KqueuePoller) PollIO(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64((timeoutMs % 1000) * 1000000)}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *KqueuePoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 {
			continue
		}
		p.fdMu.RLock()
		var info fdInfo
		if fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(keventToEvents(&p.eventBuf[i]))
		}
	}
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevs []unix.Kevent_t
	if events&EventRead != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevs
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}

// NewPoller builds the platform-default Poller.
func NewPoller() Poller {
	return &KqueuePoller{}
}
