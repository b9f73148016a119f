// Package snackbar shows a transient message on a single notification
// surface and hides it again after a fixed delay.
package snackbar

import (
	"errors"
	"sync"
	"time"
)

// HideDelay is how long a message stays visible after Notify.
const HideDelay = 8000 * time.Millisecond

var (
	ErrSurfaceMissing = errors.New("snackbar: notification surface missing")
	ErrClosed         = errors.New("snackbar: notifier closed")
)

// Surface is the element the notifier writes to. Hide clears only the
// visible state; the text stays as it was.
type Surface interface {
	SetText(text string)
	Show()
	Hide()
}

// availability is implemented by surfaces that can be detached at runtime.
type availability interface {
	Available() bool
}

// OverlapPolicy decides what happens to a pending hide when Notify is
// called again before it fires.
type OverlapPolicy int

const (
	// ResetOnNotify stops the pending hide and starts a fresh window.
	ResetOnNotify OverlapPolicy = iota
	// IndependentTimers lets every call hide the surface when its own
	// timer fires, even if a newer message is on screen.
	IndependentTimers
)

// Option customises a Notifier.
type Option func(*Notifier)

// WithOverlapPolicy selects how overlapping calls are coordinated.
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(n *Notifier) { n.policy = p }
}

// WithClock swaps the timer source.
func WithClock(c Clock) Option {
	return func(n *Notifier) {
		if c != nil {
			n.clock = c
		}
	}
}

// Notifier owns the hide timers for one surface.
type Notifier struct {
	mu      sync.Mutex
	surface Surface
	clock   Clock
	policy  OverlapPolicy
	pending []*hide
	gen     uint64
	closed  bool
}

func New(surface Surface, opts ...Option) *Notifier {
	n := &Notifier{surface: surface, clock: realClock{}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify puts message on the surface, shows it and schedules the hide.
func (n *Notifier) Notify(message string) error {
	if n == nil || n.surface == nil {
		return ErrSurfaceMissing
	}
	if av, ok := n.surface.(availability); ok && !av.Available() {
		return ErrSurfaceMissing
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.policy == ResetOnNotify {
		n.stopPending()
	}
	n.gen++
	gen := n.gen

	n.surface.SetText(message)
	n.surface.Show()

	h := &hide{gen: gen}
	h.timer = n.clock.AfterFunc(HideDelay, func() { n.expire(h) })
	n.pending = append(n.pending, h)
	return nil
}

// Close stops pending hides and hides the surface.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.stopPending()
	n.gen++
	if n.surface != nil {
		n.surface.Hide()
	}
}

// hide is one scheduled hide; gen is the Notify call that scheduled it.
type hide struct {
	gen   uint64
	timer Timer
}

func (n *Notifier) expire(h *hide) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.forget(h) || n.closed {
		return
	}
	// A reset may race with a timer that already fired.
	if n.policy == ResetOnNotify && h.gen != n.gen {
		return
	}
	n.surface.Hide()
}

func (n *Notifier) stopPending() {
	for _, h := range n.pending {
		h.timer.Stop()
	}
	n.pending = n.pending[:0]
}

func (n *Notifier) forget(h *hide) bool {
	for i, p := range n.pending {
		if p == h {
			n.pending = append(n.pending[:i], n.pending[i+1:]...)
			return true
		}
	}
	return false
}
