package playback

import (
	"log/slog"
	"time"

	"nle-playback/internal/platform/metrics"
)

// Clock produces the playhead position while playing. It never commands
// media: it only reads the master audio resource's position. Boundary
// actions go through two hooks the owner installs.
//
// Clock is not safe for concurrent use; the Session serializes calls.
type Clock struct {
	cfg     Config
	state   *PlayheadState
	log     *slog.Logger
	metrics *metrics.Metrics

	// resetToBounds re-aligns every clip's media when the playhead wraps;
	// toStart is true when wrapping to the start.
	resetToBounds func(toStart bool)
	// onBoundaryStop runs after the clock has stopped itself at a bound.
	onBoundaryStop func()

	running     bool
	lastTick    time.Time
	lastPublish time.Time
}

func newClock(cfg Config, state *PlayheadState, log *slog.Logger, m *metrics.Metrics) *Clock {
	return &Clock{cfg: cfg, state: state, log: log, metrics: m}
}

// Running reports whether the clock is ticking.
func (c *Clock) Running() bool { return c.running }

// Start enters Running, seeding the internal position from the published one.
func (c *Clock) Start(now time.Time) {
	if c.running {
		return
	}
	st := c.state
	st.Position = st.PublishedPosition
	st.UsingInternal = true
	st.Playing = true
	st.JustStarted = true
	st.clearMaster()

	c.running = true
	c.lastTick = now
	c.lastPublish = now
	c.log.Debug("clock started", slog.Float64("position", st.Position), slog.Float64("speed", st.Speed))
}

// Stop leaves Running. The published position catches up with the
// internal one, internal usage is disabled and the master is cleared.
func (c *Clock) Stop() {
	st := c.state
	if c.running {
		st.PublishedPosition = st.Position
	}
	c.running = false
	st.Playing = false
	st.UsingInternal = false
	st.JustStarted = false
	st.clearMaster()
}

// Tick advances the playhead to now. It returns false when the clock is not
// running after the tick, either because it was already stopped or because it
// stopped at a boundary during this tick.
func (c *Clock) Tick(now time.Time) bool {
	if !c.running {
		return false
	}
	c.metrics.IncTicks()
	st := c.state
	dt := now.Sub(c.lastTick)
	c.lastTick = now

	pos, fromMaster := c.masterPosition()
	if !fromMaster {
		if dt > c.cfg.MaxTickDelta {
			dt = c.cfg.MaxTickDelta
		}
		if dt < 0 {
			dt = 0
		}
		pos = st.Position + dt.Seconds()*st.Speed
	}

	start, end := st.EffectiveStart(), st.EffectiveEnd()
	forward := st.Speed >= 0
	if (forward && pos >= end) || (!forward && pos <= start) {
		return c.boundary(now, forward, start, end)
	}

	st.Position = clampf(pos, start, end)
	if now.Sub(c.lastPublish) >= c.cfg.PublishInterval {
		st.PublishedPosition = st.Position
		c.lastPublish = now
	}
	return true
}

func (c *Clock) boundary(now time.Time, forward bool, start, end float64) bool {
	st := c.state
	if st.Loop {
		to := start
		if !forward {
			to = end
		}
		c.log.Debug("playhead looped", slog.Float64("to", to))
		st.clearMaster()
		st.Position = to
		st.PublishedPosition = to
		c.lastPublish = now
		if c.resetToBounds != nil {
			c.resetToBounds(forward)
		}
		return true
	}

	bound := end
	if !forward {
		bound = start
	}
	st.Position = bound
	st.PublishedPosition = bound
	st.Speed = 1
	c.Stop()
	c.log.Debug("playhead stopped at boundary", slog.Float64("position", bound))
	if c.onBoundaryStop != nil {
		c.onBoundaryStop()
	}
	return false
}

// masterPosition derives the position from the master audio resource when
// it can be trusted: unit playback speed, resource playing and buffered.
func (c *Clock) masterPosition() (float64, bool) {
	st := c.state
	m := st.Master
	if m == nil || m.Resource == nil || st.Speed != 1 || m.Speed <= 0 {
		return 0, false
	}
	if m.Resource.Paused() || !m.Resource.Ready() {
		return 0, false
	}
	return m.StartTime + (m.Resource.Position()-m.InPoint)/m.Speed, true
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
