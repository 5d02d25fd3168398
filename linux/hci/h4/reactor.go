//go:build linux

package h4

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// reactor is a single-threaded, readiness-driven event loop. Callbacks run on one goroutine
// locked to its OS thread.
type reactor struct {
	epfd   int
	wakefd int

	mu        sync.Mutex
	regs      map[int]*registration
	executing *registration
	idle      *sync.Cond
	stopping  bool

	tid  atomic.Int32
	done chan struct{}
}

type registration struct {
	fd      int
	onRead  func()
	onWrite func()
	removed bool
}

func newReactor() (*reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	r := &reactor{
		epfd:   epfd,
		wakefd: wakefd,
		regs:   make(map[int]*registration),
		done:   make(chan struct{}),
	}
	r.idle = sync.NewCond(&r.mu)

	started := make(chan struct{})
	go r.run(started)
	<-started
	return r, nil
}

func (r *reactor) run(started chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		unix.Close(r.wakefd)
		unix.Close(r.epfd)
		close(r.done)
	}()

	r.tid.Store(int32(unix.Gettid()))
	close(started)

	events := make([]unix.EpollEvent, 16)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.wakefd {
				if r.drainWakeup() {
					return
				}
				continue
			}
			r.dispatch(fd, events[i].Events)
		}
	}
}

// drainWakeup consumes the wakeup counter and reports whether the loop should exit.
func (r *reactor) drainWakeup() bool {
	var b [8]byte
	unix.Read(r.wakefd, b[:])

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

func (r *reactor) dispatch(fd int, events uint32) {
	r.mu.Lock()
	reg, ok := r.regs[fd]
	if !ok || reg.removed {
		r.mu.Unlock()
		return
	}
	r.executing = reg
	onRead := reg.onRead
	r.mu.Unlock()

	if events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && onRead != nil {
		onRead()
	}

	r.mu.Lock()
	onWrite := reg.onWrite
	removed := reg.removed
	r.mu.Unlock()

	if !removed && events&unix.EPOLLOUT != 0 && onWrite != nil {
		onWrite()
	}

	r.mu.Lock()
	r.executing = nil
	r.idle.Broadcast()
	r.mu.Unlock()
}

func eventMask(onRead, onWrite func()) uint32 {
	var m uint32
	if onRead != nil {
		m |= unix.EPOLLIN
	}
	if onWrite != nil {
		m |= unix.EPOLLOUT
	}
	return m
}

// Register watches fd. A nil callback leaves that readiness unwatched.
func (r *reactor) Register(fd int, onRead, onWrite func()) (*registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := unix.EpollEvent{Events: eventMask(onRead, onWrite), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, err
	}

	reg := &registration{fd: fd, onRead: onRead, onWrite: onWrite}
	r.regs[fd] = reg
	return reg, nil
}

// SetWriteCallback arms (fn != nil) or disarms (fn == nil) write readiness for reg.
func (r *reactor) SetWriteCallback(reg *registration, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg.removed {
		return nil
	}

	ev := unix.EpollEvent{Events: eventMask(reg.onRead, fn), Fd: int32(reg.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, reg.fd, &ev); err != nil {
		return err
	}
	reg.onWrite = fn
	return nil
}

// Unregister stops callbacks for reg. Unless called from the loop itself, it waits for a
// callback of reg that is currently running.
func (r *reactor) Unregister(reg *registration) error {
	if reg == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reg.removed {
		return nil
	}
	reg.removed = true
	delete(r.regs, reg.fd)

	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, reg.fd, nil)
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
		err = nil
	}

	if !r.onLoop() {
		for r.executing == reg {
			r.idle.Wait()
		}
	}
	return err
}

// Stop terminates the loop. It waits for the loop to exit unless called from it.
func (r *reactor) Stop() {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	r.mu.Unlock()

	one := [8]byte{1}
	unix.Write(r.wakefd, one[:])

	if !r.onLoop() {
		<-r.done
	}
}

// onLoop reports whether the caller runs on the loop goroutine. The loop owns its OS thread,
// so the thread id identifies it.
func (r *reactor) onLoop() bool {
	return int32(unix.Gettid()) == r.tid.Load()
}
