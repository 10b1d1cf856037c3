package playback

import (
	"time"

	"nle-playback/internal/platform/config"
)

// Config holds the playback core's timing and tolerance knobs.
type Config struct {
	// TickInterval is the clock's animation-frame period.
	TickInterval time.Duration
	// PublishInterval throttles PlayheadState.PublishedPosition.
	PublishInterval time.Duration
	// MaxTickDelta caps the wall-clock delta integrated in one tick.
	MaxTickDelta time.Duration
	// ReconcileThrottle is the minimum gap between full passes while playing.
	ReconcileThrottle time.Duration

	SeekThreshold     float64 // seconds, settled
	DragSeekThreshold float64 // seconds, while the playhead is dragged
	NestedDrift       float64 // seconds, resources inside nested compositions
	AudioDrift        float64 // seconds

	// ProxyNearest is the max frame distance of the nearest-cached fallback.
	ProxyNearest int
	// NestedDepth bounds composition recursion.
	NestedDepth int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:      16 * time.Millisecond,
		PublishInterval:   33 * time.Millisecond,
		MaxTickDelta:      100 * time.Millisecond,
		ReconcileThrottle: 100 * time.Millisecond,
		SeekThreshold:     0.05,
		DragSeekThreshold: 0.25,
		NestedDrift:       0.05,
		AudioDrift:        0.2,
		ProxyNearest:      30,
		NestedDepth:       8,
	}
}

// ConfigFromEnv reads PLAYBACK_* variables over DefaultConfig.
func ConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		TickInterval:      config.GetEnvDuration("PLAYBACK_TICK_INTERVAL", d.TickInterval),
		PublishInterval:   config.GetEnvDuration("PLAYBACK_PUBLISH_INTERVAL", d.PublishInterval),
		MaxTickDelta:      config.GetEnvDuration("PLAYBACK_MAX_TICK_DELTA", d.MaxTickDelta),
		ReconcileThrottle: config.GetEnvDuration("PLAYBACK_RECONCILE_THROTTLE", d.ReconcileThrottle),
		SeekThreshold:     config.GetEnvFloat("PLAYBACK_SEEK_THRESHOLD", d.SeekThreshold),
		DragSeekThreshold: config.GetEnvFloat("PLAYBACK_DRAG_SEEK_THRESHOLD", d.DragSeekThreshold),
		NestedDrift:       config.GetEnvFloat("PLAYBACK_NESTED_DRIFT", d.NestedDrift),
		AudioDrift:        config.GetEnvFloat("PLAYBACK_AUDIO_DRIFT", d.AudioDrift),
		ProxyNearest:      config.GetEnvInt("PLAYBACK_PROXY_NEAREST", d.ProxyNearest),
		NestedDepth:       config.GetEnvInt("PLAYBACK_NESTED_DEPTH", d.NestedDepth),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = d.PublishInterval
	}
	if c.MaxTickDelta <= 0 {
		c.MaxTickDelta = d.MaxTickDelta
	}
	if c.ReconcileThrottle <= 0 {
		c.ReconcileThrottle = d.ReconcileThrottle
	}
	if c.SeekThreshold <= 0 {
		c.SeekThreshold = d.SeekThreshold
	}
	if c.DragSeekThreshold <= 0 {
		c.DragSeekThreshold = d.DragSeekThreshold
	}
	if c.NestedDrift <= 0 {
		c.NestedDrift = d.NestedDrift
	}
	if c.AudioDrift <= 0 {
		c.AudioDrift = d.AudioDrift
	}
	if c.ProxyNearest < 0 {
		c.ProxyNearest = d.ProxyNearest
	}
	if c.NestedDepth <= 0 {
		c.NestedDepth = d.NestedDepth
	}
	return c
}
