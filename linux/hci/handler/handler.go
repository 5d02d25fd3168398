// Package handler runs tasks one at a time, in submission order, on a dedicated goroutine.
package handler

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("handler: closed")

// Handler is a serialized execution context. Tasks posted to it never run concurrently
// with each other.
type Handler struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func New() *Handler {
	h := &Handler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go h.loop()
	return h
}

// Post queues fn without waiting. The queue is unbounded.
func (h *Handler) Post(fn func()) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.tasks = append(h.tasks, fn)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call runs fn on the handler and waits for it to return. It must not be called from a
// task, which would deadlock.
func (h *Handler) Call(fn func()) error {
	ran := make(chan struct{})
	if err := h.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-h.done:
		// the loop drains everything queued before it exits
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close rejects further tasks. Tasks already queued still run; Done reports when the last
// one returned. Safe to call from a task.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the handler stopped.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

func (h *Handler) loop() {
	defer close(h.done)

	for range h.wake {
		for {
			h.mu.Lock()
			if len(h.tasks) == 0 {
				closed := h.closed
				h.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := h.tasks[0]
			h.tasks[0] = nil
			h.tasks = h.tasks[1:]
			h.mu.Unlock()

			fn()
		}
	}
}
