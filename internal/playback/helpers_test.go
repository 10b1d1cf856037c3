package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"nle-playback/internal/media"
	"nle-playback/internal/platform/logger"
	"nle-playback/internal/timeline"
)

var t0 = time.Unix(1_700_000_000, 0)

// frozenClock is a controllable time source for simulated media.
type frozenClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFrozenClock() *frozenClock { return &frozenClock{t: t0} }

func (c *frozenClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *frozenClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeRenderer struct {
	mu          sync.Mutex
	renders     int
	last        []*Layer
	cached      bool
	cachedCalls int
}

func (r *fakeRenderer) Render(layers []*Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	r.last = layers
}

func (r *fakeRenderer) RenderCachedFrame(t float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cachedCalls++
	return r.cached
}

func (r *fakeRenderer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// fixture is a reconciler over a fresh repository, without a session.
type fixture struct {
	repo  *timeline.Repository
	state *PlayheadState
	rec   *Reconciler
	rnd   *fakeRenderer
	clock *frozenClock
}

func newFixture(t *testing.T, proxies FrameCache) *fixture {
	t.Helper()
	f := &fixture{
		repo:  timeline.NewRepository(),
		state: newPlayheadState(),
		rnd:   &fakeRenderer{},
		clock: newFrozenClock(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.rec = newReconciler(ctx, DefaultConfig(), f.state, reconcilerDeps{
		timeline: f.repo,
		renderer: f.rnd,
		proxies:  proxies,
		log:      logger.Discard(),
	})
	f.track(t, "v1", timeline.KindVideo, 0)
	f.track(t, "a1", timeline.KindAudio, 0)
	return f
}

func (f *fixture) track(t *testing.T, id timeline.TrackID, kind timeline.TrackKind, index int) {
	t.Helper()
	if err := f.repo.AddTrack(timeline.Track{ID: id, Kind: kind, Index: index, Visible: true}); err != nil {
		t.Fatalf("AddTrack %s: %v", id, err)
	}
}

func (f *fixture) clip(t *testing.T, c timeline.Clip) {
	t.Helper()
	if err := f.repo.AddClip(c); err != nil {
		t.Fatalf("AddClip %s: %v", c.ID, err)
	}
}

func (f *fixture) sim(id string, duration float64) *media.Sim {
	return media.NewSim(id, duration).WithClock(f.clock.now)
}

// videoClip places a full-resolution video clip on v1.
func (f *fixture) videoClip(t *testing.T, id timeline.ClipID, start, duration, in float64) *media.Sim {
	t.Helper()
	res := f.sim(string(id)+"-media", in+duration+10)
	f.clip(t, timeline.Clip{
		ID: id, TrackID: "v1", StartTime: start, Duration: duration,
		InPoint: in, OutPoint: in + duration,
		Source: &timeline.VideoSource{Resource: res},
	})
	return res
}

// audioClip places an audio clip on track.
func (f *fixture) audioClip(t *testing.T, id timeline.ClipID, track timeline.TrackID, start, duration, in float64) *media.Sim {
	t.Helper()
	res := f.sim(string(id)+"-media", in+duration+10)
	f.clip(t, timeline.Clip{
		ID: id, TrackID: track, StartTime: start, Duration: duration,
		InPoint: in, OutPoint: in + duration,
		Source: &timeline.AudioSource{Resource: res},
	})
	return res
}

func (f *fixture) at(pos float64) {
	f.state.Position = pos
	f.state.PublishedPosition = pos
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
