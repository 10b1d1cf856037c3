// Package media defines the handles the playback core drives: ordinary
// video/audio resources with a readable clock, and hardware decoders with a
// seek-by-frame contract. The core never owns or frees these; it only seeks,
// plays and pauses them.
package media

import "context"

// Resource is a playable source whose current position can be read and commanded.
type Resource interface {
	ID() string
	// Position is the resource's own clock in source seconds.
	Position() float64
	Seek(t float64)
	// Play may be rejected (autoplay policy, decode error); callers log and continue.
	Play() error
	Pause()
	Paused() bool
}

// RateSetter is implemented by resources whose playback rate can be
// changed. Rate is unsigned; direction is never reversed natively.
type RateSetter interface {
	SetRate(rate float64)
}

// AudioResource is a Resource that can also act as the master clock.
type AudioResource interface {
	Resource
	RateSetter
	// Ready reports whether enough is buffered for Position to be trusted.
	Ready() bool
	SetMuted(muted bool)
	SetPreservesPitch(preserve bool)
}

// NativeDecoder is a hardware/native decoder addressed by frame number.
type NativeDecoder interface {
	ID() string
	FrameRate() float64
	SeekToFrame(ctx context.Context, frame int, fast bool) error
}

// FrameAt converts a source time to a frame index at fps.
func FrameAt(t, fps float64) int {
	if fps <= 0 || t <= 0 {
		return 0
	}
	// epsilon keeps 2.0s @ 30fps on frame 60 despite float error
	return int(t*fps + 1e-6)
}
