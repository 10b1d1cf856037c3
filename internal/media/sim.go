package media

import (
	"context"
	"sync"
	"time"
)

// Sim is an in-memory Resource/AudioResource whose clock advances with
// wall time while playing. The demo server plays projects made of Sims and
// tests use them to observe the commands the core issues.
type Sim struct {
	id       string
	duration float64
	now      func() time.Time

	mu             sync.Mutex
	pos            float64
	anchor         time.Time
	paused         bool
	rate           float64
	muted          bool
	preservesPitch bool
	ready          bool
	playErr        error
	seeks          []float64
	plays          int
	pauses         int
}

// NewSim returns a paused, ready resource of the given duration.
func NewSim(id string, duration float64) *Sim {
	return &Sim{
		id:             id,
		duration:       duration,
		now:            time.Now,
		paused:         true,
		rate:           1,
		ready:          true,
		preservesPitch: true,
	}
}

// WithClock replaces the time source. Call before use.
func (s *Sim) WithClock(now func() time.Time) *Sim {
	s.now = now
	return s
}

func (s *Sim) ID() string { return s.id }

// Position implements Resource.
func (s *Sim) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Sim) positionLocked() float64 {
	if s.paused {
		return s.pos
	}
	p := s.pos + s.now().Sub(s.anchor).Seconds()*s.rate
	return clamp(p, 0, s.duration)
}

// settleLocked folds elapsed play time into pos.
func (s *Sim) settleLocked() {
	s.pos = s.positionLocked()
	s.anchor = s.now()
}

// Seek implements Resource and records the target.
func (s *Sim) Seek(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = clamp(t, 0, s.duration)
	s.anchor = s.now()
	s.seeks = append(s.seeks, t)
}

// SetPosition moves the clock without recording a seek, e.g. to simulate drift.
func (s *Sim) SetPosition(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = clamp(t, 0, s.duration)
	s.anchor = s.now()
}

func (s *Sim) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	if s.paused {
		s.anchor = s.now()
		s.paused = false
	}
	s.plays++
	return nil
}

func (s *Sim) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.settleLocked()
		s.paused = true
	}
	s.pauses++
}

func (s *Sim) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Sim) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Sim) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *Sim) SetRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked()
	s.rate = rate
}

func (s *Sim) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *Sim) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Sim) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Sim) SetPreservesPitch(preserve bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preservesPitch = preserve
}

func (s *Sim) PreservesPitch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preservesPitch
}

// FailPlay makes subsequent Play calls return err (nil restores success).
func (s *Sim) FailPlay(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playErr = err
}

// Seeks returns a copy of every Seek target so far.
func (s *Sim) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.seeks...)
}

func (s *Sim) SeekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeks)
}

func (s *Sim) PlayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// SimDecoder is a NativeDecoder that records requested frames. Hold blocks
// seeks until the returned release func is called.
type SimDecoder struct {
	id  string
	fps float64

	mu     sync.Mutex
	frames []int
	fast   []bool
	gate   chan struct{}
	err    error
}

func NewSimDecoder(id string, fps float64) *SimDecoder {
	return &SimDecoder{id: id, fps: fps}
}

func (d *SimDecoder) ID() string        { return d.id }
func (d *SimDecoder) FrameRate() float64 { return d.fps }

func (d *SimDecoder) SeekToFrame(ctx context.Context, frame int, fast bool) error {
	d.mu.Lock()
	d.frames = append(d.frames, frame)
	d.fast = append(d.fast, fast)
	gate, err := d.gate, d.err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Hold makes seeks block until release is called.
func (d *SimDecoder) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.gate = nil
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Fail makes subsequent seeks return err.
func (d *SimDecoder) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Frames returns every requested frame so far.
func (d *SimDecoder) Frames() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.frames...)
}

// FastFlags returns the fast flag of every request so far.
func (d *SimDecoder) FastFlags() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.fast...)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > lo && v > hi {
		return hi
	}
	return v
}
