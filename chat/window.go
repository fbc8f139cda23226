package chat

import (
	"sync"

	"github.com/deskhq/deskchat/api"
)

const (
	// DefaultWindowSize is the initial number of messages materialized on
	// room entry.
	DefaultWindowSize = 30

	// NearTopThreshold is the viewport scroll offset (px) below which the
	// shell should ask for more history.
	NearTopThreshold = 80
)

// Window computes which suffix of the canonical message list should be
// materialized in the viewport. It holds no messages itself and knows nothing
// about rendering: growth decisions are pure functions of counts, and scroll
// correction is handed back to the shell through Anchor.
type Window struct {
	mu       sync.Mutex
	pageSize int
	visible  int
}

// NewWindow creates a window exposing the pageSize most recent messages
func NewWindow(pageSize int) *Window {
	if pageSize <= 0 {
		pageSize = DefaultWindowSize
	}
	return &Window{pageSize: pageSize, visible: pageSize}
}

// VisibleCount returns how many of the most recent messages are exposed
func (w *Window) VisibleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Visible returns the window's slice of msgs: the most recent VisibleCount
// entries.
func (w *Window) Visible(msgs []*api.Message) []*api.Message {
	w.mu.Lock()
	n := w.visible
	w.mu.Unlock()

	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// GrowOnScrollTop expands the window by one page when messages exist beyond
// it. A true return means the window grew and the shell must preserve the
// scroll anchor (see Anchor).
func (w *Window) GrowOnScrollTop(total int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.visible >= total {
		return false
	}
	w.visible = min(total, w.visible+w.pageSize)
	return true
}

// GrowOnAppend grows the window with delta messages appended at the tail so
// new arrivals stay visible. A true return means the shell should auto-scroll
// to the bottom.
func (w *Window) GrowOnAppend(total, delta int) bool {
	if delta <= 0 {
		return false
	}

	w.mu.Lock()
	if w.visible < total {
		w.visible = min(total, w.visible+delta)
	}
	w.mu.Unlock()
	return true
}

// Reset restores the initial window size, for room changes
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = w.pageSize
}

// Anchor captures viewport geometry before a top expansion. After layout the
// shell sets its scroll offset to Corrected(newHeight) so the previously
// topmost visible message stays put.
type Anchor struct {
	Height float64
	Offset float64
}

// Corrected returns the scroll offset that keeps the anchor stable
func (a Anchor) Corrected(newHeight float64) float64 {
	if newHeight <= a.Height {
		return a.Offset
	}
	return a.Offset + (newHeight - a.Height)
}
