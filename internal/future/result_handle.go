// Package future provides the single-slot rendezvous primitive used to
// hand a value from a worker back to whoever queued the work.
package future

import "sync"

// ResultHandle is a one-shot mailbox: at most one value is ever in
// flight between Set and Get. A second Set blocks until the previous
// value has been taken by Get.
type ResultHandle[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
	has   bool
}

// New returns a ready-to-use, empty handle.
func New[T any]() *ResultHandle[T] {
	h := &ResultHandle[T]{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Set stores v, waking anyone blocked in Get. If a value is already
// present, Set blocks until it is consumed.
func (h *ResultHandle[T]) Set(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.has {
		h.cond.Wait()
	}
	h.value = v
	h.has = true
	h.cond.Broadcast()
}

// Get blocks until a value is available, then takes and returns it.
func (h *ResultHandle[T]) Get() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.has {
		h.cond.Wait()
	}
	v := h.value
	var zero T
	h.value = zero
	h.has = false
	h.cond.Broadcast()
	return v
}

// TryGet returns the value without blocking if one is present.
func (h *ResultHandle[T]) TryGet() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.has {
		var zero T
		return zero, false
	}
	v := h.value
	var zero T
	h.value = zero
	h.has = false
	h.cond.Broadcast()
	return v, true
}

// IsReady reports whether a value is currently held, without consuming it.
func (h *ResultHandle[T]) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.has
}
