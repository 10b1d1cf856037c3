package playback

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"nle-playback/internal/media"
	"nle-playback/internal/platform/metrics"
	"nle-playback/internal/proxycache"
	"nle-playback/internal/timeline"
)

// TimelineSource yields the current timeline. *timeline.Repository implements it.
type TimelineSource interface {
	Snapshot() *timeline.Snapshot
}

// FrameCache is the part of the proxy cache the reconciler uses.
// *proxycache.Cache implements it.
type FrameCache interface {
	PeekCached(sourceID string, frame int) (*proxycache.Image, bool)
	NearestCached(sourceID string, frame, maxDistance int) (*proxycache.Image, bool)
	FetchAsync(ctx context.Context, req proxycache.Request, current func() uint64, apply func(proxycache.Request, *proxycache.Image))
}

// RAMPreview describes the pre-rendered composite cache. With Bounded set,
// only positions inside [Start, End] are served from it.
type RAMPreview struct {
	Enabled bool    `json:"enabled"`
	Bounded bool    `json:"bounded"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

func (p RAMPreview) covers(t float64) bool {
	return p.Enabled && (!p.Bounded || (p.Start <= t && t <= p.End))
}

// Reconciler turns the clips active at the playhead into the layer list
// and drives media resources into the matching play/pause/seek state. It is
// the only component that commands media.
//
// Reconciler is not safe for concurrent use; the Session serializes calls.
type Reconciler struct {
	cfg      Config
	ctx      context.Context
	state    *PlayheadState
	timeline TimelineSource
	renderer Renderer
	proxies  FrameCache
	log      *slog.Logger
	metrics  *metrics.Metrics

	ramPreview RAMPreview
	// onFrameReady runs on a fetch goroutine when a current-epoch proxy
	// frame has landed in the cache.
	onFrameReady func()

	snap        *timeline.Snapshot
	epoch       atomic.Uint64
	lastPass    time.Time
	forcePass   bool
	lastActive  []timeline.ClipID
	keepPlaying []media.Resource
}

type reconcilerDeps struct {
	timeline TimelineSource
	renderer Renderer
	proxies  FrameCache
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func newReconciler(ctx context.Context, cfg Config, state *PlayheadState, deps reconcilerDeps) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		ctx:      ctx,
		state:    state,
		timeline: deps.timeline,
		renderer: deps.renderer,
		proxies:  deps.proxies,
		log:      deps.log,
		metrics:  deps.metrics,
	}
}

// snapshot reuses the last timeline snapshot while the source reports the
// same version.
func (r *Reconciler) snapshot() *timeline.Snapshot {
	if v, ok := r.timeline.(interface{ Version() uint64 }); ok && r.snap != nil && r.snap.Version == v.Version() {
		return r.snap
	}
	r.snap = r.timeline.Snapshot()
	return r.snap
}

// Epoch is the generation of the last full pass.
func (r *Reconciler) Epoch() uint64 { return r.epoch.Load() }

// ForcePass makes the next SyncPlaying run a full pass.
func (r *Reconciler) ForcePass() { r.forcePass = true }

// releasePlaying pauses the resources the last pass left playing, so the
// next pass re-aligns them before playing them again.
func (r *Reconciler) releasePlaying() {
	for _, res := range r.keepPlaying {
		if !res.Paused() {
			res.Pause()
		}
	}
	r.keepPlaying = nil
}

// resolveContext is the per-pass, per-composition-level input.
type resolveContext struct {
	snap     *timeline.Snapshot
	pos      float64
	playing  bool
	speed    float64 // signed rate of this composition level
	dragging bool
	epoch    uint64
	depth    int
}

// nested returns the context for the contents of a nested composition at
// composition time pos, played at clipSpeed times the parent's speed.
func (rc *resolveContext) nested(pos, clipSpeed float64) *resolveContext {
	child := *rc
	child.pos = pos
	child.speed = rc.speed * clipSpeed
	child.depth++
	return &child
}

func (rc *resolveContext) threshold(cfg Config) float64 {
	switch {
	case rc.depth > 0:
		return cfg.NestedDrift
	case rc.dragging:
		return cfg.DragSeekThreshold
	default:
		return cfg.SeekThreshold
	}
}

func (rc *resolveContext) seekKind() string {
	if rc.depth > 0 {
		return metrics.SeekNested
	}
	return metrics.SeekVideo
}

// Reconcile runs the paused path: a full pass followed by an explicit
// render. While playing it does nothing. A RAM-preview hit renders the
// cached frame and skips the pass entirely. It reports whether a pass ran.
func (r *Reconciler) Reconcile(now time.Time) bool {
	st := r.state
	if st.Playing {
		return false
	}
	pos := st.Current()
	if r.renderer != nil && r.ramPreview.covers(pos) && r.renderer.RenderCachedFrame(pos) {
		r.metrics.IncReconcileSkipped()
		return false
	}
	r.pass(now)
	if r.renderer != nil {
		r.renderer.Render(st.Layers)
	}
	return true
}

// SyncPlaying runs once per tick while playing. Resources resolved by the
// last pass are kept playing every tick; the full pass only runs when the
// throttle has elapsed or the set of active clips changed.
func (r *Reconciler) SyncPlaying(now time.Time) bool {
	st := r.state
	if !st.Playing {
		return false
	}
	for _, res := range r.keepPlaying {
		if res.Paused() {
			if err := res.Play(); err != nil {
				r.log.Debug("resume rejected", slog.String("resource_id", res.ID()), slog.String("error", err.Error()))
			}
		}
	}

	due := r.forcePass || now.Sub(r.lastPass) >= r.cfg.ReconcileThrottle
	if !due {
		snap := r.snapshot()
		due = !slices.Equal(snap.ActiveClipIDs(st.Current()), r.lastActive)
	}
	if !due {
		r.metrics.IncReconcileSkipped()
		return false
	}
	r.pass(now)
	return true
}

// pass is one full reconciliation at the current position.
func (r *Reconciler) pass(now time.Time) {
	st := r.state
	snap := r.snapshot()
	pos := st.Current()
	rc := &resolveContext{
		snap:     snap,
		pos:      pos,
		playing:  st.Playing,
		speed:    st.Speed,
		dragging: st.Dragging,
		epoch:    r.epoch.Add(1),
	}
	r.metrics.IncReconcilePasses()
	wasPlaying := r.keepPlaying
	r.keepPlaying = nil

	prev := layersByTrack(st.Layers)
	tracks := snap.VideoTracks()
	next := make([]*Layer, len(tracks))
	replaced := 0
	for i, tr := range tracks {
		old := prev[tr.ID]
		var l *Layer
		if c, ok := snap.ActiveClip(tr.ID, pos); ok {
			l = r.resolveClip(rc, tr.ID, snap.TrackVisible(tr.ID), c, old)
		}
		if layerEqual(old, l) {
			l = old
		} else {
			replaced++
		}
		next[i] = l
	}
	if replaced > 0 || len(next) != len(st.Layers) {
		st.Layers = next
	}
	r.metrics.AddLayerReplacements(replaced)

	// video whose clip left the playhead must not keep running
	for _, res := range wasPlaying {
		if !slices.Contains(r.keepPlaying, res) && !res.Paused() {
			res.Pause()
		}
	}

	r.syncAudio(rc)

	r.lastActive = snap.ActiveClipIDs(pos)
	r.lastPass = now
	r.forcePass = false
}

// resolveClip builds the layer for clip c on a track, or nil when the clip
// has no resolvable source.
func (r *Reconciler) resolveClip(rc *resolveContext, track timeline.TrackID, visible bool, c timeline.Clip, prev *Layer) *Layer {
	strategy := strategyFor(c)
	if strategy == nil {
		return nil
	}
	local := timeline.LocalTime(c, rc.pos)
	src, ok := strategy.resolve(r, rc, c, local, prev)
	if !ok {
		return nil
	}
	tf := rc.snap.Transform(c, local)
	return &Layer{
		TrackID:   track,
		ClipID:    c.ID,
		Visible:   visible,
		Opacity:   tf.Opacity,
		BlendMode: tf.BlendMode,
		Position:  tf.Position,
		Scale:     tf.Scale,
		Rotation:  tf.Rotation * math.Pi / 180,
		Effects:   rc.snap.Effects(c, local),
		Source:    src,
	}
}

func (r *Reconciler) seek(res media.Resource, t float64, kind string) {
	res.Seek(t)
	r.metrics.IncSeeks(kind)
}

func (r *Reconciler) requestProxyFrame(req proxycache.Request) {
	r.proxies.FetchAsync(r.ctx, req, r.epoch.Load, func(req proxycache.Request, _ *proxycache.Image) {
		r.log.Debug("proxy frame ready",
			slog.String("source_id", req.SourceID),
			slog.Int("frame", req.Frame))
		if r.onFrameReady != nil {
			r.onFrameReady()
		}
	})
}

// ResetToBounds seeks every clip's media to the source time it has at the
// bound the playhead just wrapped to, so the next tick starts clip-aligned.
func (r *Reconciler) ResetToBounds(toStart bool) {
	snap := r.snapshot()
	for _, c := range snap.Clips() {
		t := c.OutPoint
		if toStart != c.Reversed {
			t = c.InPoint
		}
		switch src := c.Source.(type) {
		case *timeline.VideoSource:
			if src.Resource != nil {
				r.seek(src.Resource, t, metrics.SeekLoop)
			}
		case *timeline.AudioSource:
			if src.Resource != nil {
				r.seek(src.Resource, t, metrics.SeekLoop)
			}
		case *timeline.NativeSource:
			if src.Handle != nil && src.Handle.Decoder != nil {
				frame := media.FrameAt(t, src.Handle.Decoder.FrameRate())
				if src.Handle.RequestFrame(r.ctx, frame, false, nil) == media.SeekIssued {
					r.metrics.IncSeeks(metrics.SeekLoop)
				}
			}
		}
		if c.Nested != nil && c.Nested.Mixdown != nil {
			r.seek(c.Nested.Mixdown, t, metrics.SeekLoop)
		}
	}
	r.forcePass = true
}
