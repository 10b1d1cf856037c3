package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nle-playback/internal/platform/metrics"
)

var (
	ErrNoTimeline      = errors.New("session needs a timeline source")
	ErrNothingToPlay   = errors.New("nothing to play")
	ErrInvalidSpeed    = errors.New("playback speed must be non-zero")
	ErrInvalidWorkArea = errors.New("invalid work area")
	ErrSessionClosed   = errors.New("session closed")
)

// Options configures a Session. Timeline is required.
type Options struct {
	Config   Config
	Timeline TimelineSource
	Renderer Renderer
	Proxies  FrameCache
	// ResumeAudio is called once before each start of playback, e.g. to
	// resume a suspended audio output.
	ResumeAudio func() error
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Session owns the playhead state, the clock and the reconciler and is the
// single writer of all three. Every exported method is safe for concurrent
// use; readers observe state through Snapshot and Subscribe.
type Session struct {
	id          string
	cfg         Config
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	resumeAudio func() error
	cancel      context.CancelFunc

	mu     sync.Mutex
	state  *PlayheadState
	clock  *Clock
	rec    *Reconciler
	stop   chan struct{}
	closed bool

	hub *hub
}

// NewSession builds a paused session at position 0 and runs the first pass.
func NewSession(opts Options) (*Session, error) {
	if opts.Timeline == nil {
		return nil, ErrNoTimeline
	}
	cfg := opts.Config.withDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	log := opts.Logger.With(slog.String("session_id", id))
	ctx, cancel := context.WithCancel(context.Background())
	state := newPlayheadState()

	s := &Session{
		id:          id,
		cfg:         cfg,
		log:         log,
		metrics:     opts.Metrics,
		now:         opts.Now,
		resumeAudio: opts.ResumeAudio,
		cancel:      cancel,
		state:       state,
		hub:         newHub(),
	}
	s.clock = newClock(cfg, state, log, opts.Metrics)
	s.rec = newReconciler(ctx, cfg, state, reconcilerDeps{
		timeline: opts.Timeline,
		renderer: opts.Renderer,
		proxies:  opts.Proxies,
		log:      log,
		metrics:  opts.Metrics,
	})
	s.clock.resetToBounds = s.rec.ResetToBounds
	s.clock.onBoundaryStop = s.haltLocked
	s.rec.onFrameReady = s.Invalidate

	s.mu.Lock()
	s.refreshLocked()
	s.rec.Reconcile(s.now())
	s.mu.Unlock()
	return s, nil
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.id }

// Play starts the clock. Playing from the far bound rewinds to the near one.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playLocked()
}

func (s *Session) playLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.clock.Running() {
		return nil
	}
	s.refreshLocked()
	st := s.state
	start, end := st.EffectiveStart(), st.EffectiveEnd()
	if end <= start {
		return ErrNothingToPlay
	}
	pos := st.PublishedPosition
	if st.Speed > 0 && (pos >= end || pos < start) {
		pos = start
	} else if st.Speed < 0 && (pos <= start || pos > end) {
		pos = end
	}
	st.Position, st.PublishedPosition = pos, pos

	if s.resumeAudio != nil {
		if err := s.resumeAudio(); err != nil {
			s.log.Warn("resume audio failed", slog.String("error", err.Error()))
		}
	}

	now := s.now()
	s.clock.Start(now)
	s.rec.ForcePass()
	s.rec.SyncPlaying(now)
	s.metrics.SetPlaying(true)
	s.publishLocked()

	stop := make(chan struct{})
	s.stop = stop
	go s.run(stop)

	s.log.Info("playback started",
		slog.Float64("position", pos),
		slog.Float64("speed", st.Speed),
		slog.Bool("loop", st.Loop))
	return nil
}

// Pause stops the clock synchronously: no tick runs after Pause returns.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked()
}

func (s *Session) pauseLocked() {
	if !s.clock.Running() {
		return
	}
	s.clock.Stop()
	s.haltLocked()
}

// TogglePlay pauses when playing and plays otherwise, as one step.
func (s *Session) TogglePlay() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock.Running() {
		s.pauseLocked()
		return nil
	}
	return s.playLocked()
}

// haltLocked finishes any stop of the clock, user-requested or at a bound.
func (s *Session) haltLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.rec.releasePlaying()
	s.metrics.SetPlaying(false)
	s.rec.Reconcile(s.now())
	s.publishLocked()
	s.log.Info("playback stopped", slog.Float64("position", s.state.PublishedPosition))
}

func (s *Session) run(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		select {
		case <-stop:
			s.mu.Unlock()
			return
		default:
		}
		s.tickLocked(s.now())
		s.mu.Unlock()
	}
}

// tickLocked is one animation frame: the clock moves first, then the
// reconciler reads the new position.
func (s *Session) tickLocked(now time.Time) {
	if !s.clock.Tick(now) {
		return
	}
	s.rec.SyncPlaying(now)
	s.publishLocked()
}

// Seek moves the playhead, clamped to [0, duration].
func (s *Session) Seek(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	st := s.state
	t = clampf(t, 0, st.Duration)
	st.Position, st.PublishedPosition = t, t
	if s.clock.Running() {
		// playing resources are at the old position; let the pass re-seek them
		st.clearMaster()
		st.JustStarted = true
		s.rec.releasePlaying()
		s.rec.ForcePass()
		s.rec.SyncPlaying(s.now())
	} else {
		s.rec.Reconcile(s.now())
	}
	s.publishLocked()
}

// SetSpeed sets the signed playback speed. Negative plays in reverse.
func (s *Session) SetSpeed(speed float64) error {
	if speed == 0 {
		return ErrInvalidSpeed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Speed = speed
	s.settleLocked()
	return nil
}

// SetLoop enables or disables looping at the work-area bounds.
func (s *Session) SetLoop(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loop = enabled
	s.publishLocked()
}

// SetDragging marks the playhead as being dragged, which loosens the video
// seek threshold and switches native decoders to fast seeks.
func (s *Session) SetDragging(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Dragging == active {
		return
	}
	s.state.Dragging = active
	s.settleLocked()
}

// SetWorkArea restricts playback to wa. nil clears it.
func (s *Session) SetWorkArea(wa *WorkArea) error {
	if wa != nil && (wa.In < 0 || wa.Out <= wa.In) {
		return fmt.Errorf("%w: in=%.3f out=%.3f", ErrInvalidWorkArea, wa.In, wa.Out)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if wa != nil {
		cp := *wa
		wa = &cp
	}
	s.state.WorkArea = wa
	s.publishLocked()
	return nil
}

// SetRAMPreview installs the RAM-preview description used by paused passes.
func (s *Session) SetRAMPreview(p RAMPreview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.ramPreview = p
	s.settleLocked()
}

// Invalidate tells the session the timeline or cached media changed.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.refreshLocked()
	s.settleLocked()
}

// settleLocked re-resolves after a state change: immediately when paused,
// on the next tick when playing.
func (s *Session) settleLocked() {
	if s.clock.Running() {
		s.rec.ForcePass()
	} else {
		s.rec.Reconcile(s.now())
	}
	s.publishLocked()
}

// Snapshot returns the current published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot(s.id)
}

// Subscribe returns a subscription primed with the current state and a
// func that cancels it.
func (s *Session) Subscribe() (*Subscription, func()) {
	s.mu.Lock()
	sub := s.hub.subscribe(s.state.snapshot(s.id))
	s.mu.Unlock()
	return sub, func() { s.hub.unsubscribe(sub.ID) }
}

// Subscribers is the number of live subscriptions.
func (s *Session) Subscribers() int { return s.hub.count() }

// Close stops playback, cancels in-flight media requests and closes every
// subscription. The session cannot be played again.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.clock.Running() {
		s.clock.Stop()
		s.haltLocked()
	}
	s.closed = true
	s.cancel()
	s.hub.closeAll()
}

func (s *Session) refreshLocked() {
	st := s.state
	st.Duration = s.rec.snapshot().Duration()
	if st.PublishedPosition > st.Duration {
		st.PublishedPosition = st.Duration
	}
	if st.Position > st.Duration {
		st.Position = st.Duration
	}
}

func (s *Session) publishLocked() {
	s.metrics.SetPosition(s.state.PublishedPosition)
	s.hub.publish(s.state.snapshot(s.id))
}
