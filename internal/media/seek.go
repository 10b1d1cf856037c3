package media

import (
	"context"
	"sync"
)

// SeekState is the per-decoder seek discipline: at most one seek in flight.
type SeekState int

const (
	SeekIdle SeekState = iota
	SeekPending
)

func (s SeekState) String() string {
	if s == SeekPending {
		return "pending"
	}
	return "idle"
}

// SeekResult tells the caller what RequestFrame did.
type SeekResult int

const (
	// SeekIssued means a new SeekToFrame call was started.
	SeekIssued SeekResult = iota
	// SeekUnchanged means the frame equals the last requested frame.
	SeekUnchanged
	// SeekDropped means a seek was already pending; the request was discarded, not queued.
	SeekDropped
)

// NativeHandle pairs a NativeDecoder with its seek state.
type NativeHandle struct {
	Decoder NativeDecoder

	mu      sync.Mutex
	state   SeekState
	target  int
	last    int
	hasLast bool
}

// NewNativeHandle wraps d in the Idle state.
func NewNativeHandle(d NativeDecoder) *NativeHandle {
	return &NativeHandle{Decoder: d}
}

// ID returns the decoder id.
func (h *NativeHandle) ID() string { return h.Decoder.ID() }

// State returns the current seek state and, when pending, its target frame.
func (h *NativeHandle) State() (SeekState, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.target
}

// LastFrame returns the last successfully requested frame.
func (h *NativeHandle) LastFrame() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.hasLast
}

// RequestFrame starts an asynchronous seek to frame unless the frame is
// unchanged or another seek is still pending. done, if non-nil, runs on the
// seek goroutine after the state has returned to Idle. A failed seek forgets
// the last frame so the next request for the same frame retries.
func (h *NativeHandle) RequestFrame(ctx context.Context, frame int, fast bool, done func(error)) SeekResult {
	h.mu.Lock()
	if h.state == SeekPending {
		h.mu.Unlock()
		return SeekDropped
	}
	if h.hasLast && h.last == frame {
		h.mu.Unlock()
		return SeekUnchanged
	}
	h.state = SeekPending
	h.target = frame
	h.last = frame
	h.hasLast = true
	h.mu.Unlock()

	go func() {
		err := h.Decoder.SeekToFrame(ctx, frame, fast)

		h.mu.Lock()
		h.state = SeekIdle
		if err != nil {
			h.hasLast = false
		}
		h.mu.Unlock()

		if done != nil {
			done(err)
		}
	}()
	return SeekIssued
}
