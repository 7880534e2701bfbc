package watcher

// SlidingWindow is a fixed-capacity FIFO of request outcomes backed by a
// ring buffer. The error count is maintained on push, so reading the rate
// never rescans the buffer.
type SlidingWindow struct {
	buf    []bool
	next   int // slot written by the next Push
	size   int
	errors int
}

// NewSlidingWindow creates an empty window holding at most capacity outcomes.
func NewSlidingWindow(capacity int) *SlidingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &SlidingWindow{buf: make([]bool, capacity)}
}

// Push appends an outcome, evicting the oldest one when the window is full.
func (w *SlidingWindow) Push(isError bool) {
	if w.size == len(w.buf) {
		if w.buf[w.next] {
			w.errors--
		}
	} else {
		w.size++
	}

	w.buf[w.next] = isError
	if isError {
		w.errors++
	}
	w.next = (w.next + 1) % len(w.buf)
}

// Len returns the number of outcomes currently held.
func (w *SlidingWindow) Len() int { return w.size }

// Cap returns the window capacity.
func (w *SlidingWindow) Cap() int { return len(w.buf) }

// Full reports whether the window has reached capacity.
func (w *SlidingWindow) Full() bool { return w.size == len(w.buf) }

// Errors returns the number of error outcomes in the window.
func (w *SlidingWindow) Errors() int { return w.errors }
