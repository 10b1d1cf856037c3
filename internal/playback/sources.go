package playback

import (
	"log/slog"
	"math"

	"nle-playback/internal/media"
	"nle-playback/internal/platform/metrics"
	"nle-playback/internal/proxycache"
	"nle-playback/internal/timeline"
)

// sourceStrategy resolves one clip source variant into a layer source and
// performs the media side effects that variant needs.
type sourceStrategy interface {
	resolve(r *Reconciler, rc *resolveContext, c timeline.Clip, local float64, prev *Layer) (LayerSource, bool)
}

// strategyFor picks the strategy for c. A nested composition with content
// wins over the clip's own source; nil means nothing to show.
func strategyFor(c timeline.Clip) sourceStrategy {
	if c.Nested.HasContent() {
		return nestedStrategy{comp: c.Nested}
	}
	switch src := c.Source.(type) {
	case *timeline.NativeSource:
		return nativeStrategy{src: src}
	case *timeline.VideoSource:
		if src.Proxy != nil && src.Proxy.Enabled && src.Proxy.FPS > 0 {
			return proxyStrategy{src: src}
		}
		return videoStrategy{src: src}
	case *timeline.ImageSource:
		return imageStrategy{src: src}
	case *timeline.TextSource:
		return textStrategy{src: src}
	}
	return nil
}

type nestedStrategy struct{ comp *timeline.Composition }

func (s nestedStrategy) resolve(r *Reconciler, rc *resolveContext, c timeline.Clip, local float64, prev *Layer) (LayerSource, bool) {
	if rc.depth+1 > r.cfg.NestedDepth {
		r.log.Warn("nested composition too deep",
			slog.String("clip_id", string(c.ID)),
			slog.Int("depth", rc.depth))
		return LayerSource{}, false
	}
	clipSpeed := rc.snap.Speed(c, local)
	if c.Reversed {
		clipSpeed = -clipSpeed
	}
	child := rc.nested(rc.snap.SourceTime(c, local), clipSpeed)

	var prevLayers map[timeline.TrackID]*Layer
	if prev != nil && prev.ClipID == c.ID && prev.Source.Nested != nil {
		prevLayers = layersByTrack(prev.Source.Nested.Layers)
	}

	var layers []*Layer
	for _, tr := range s.comp.VideoTracks() {
		nc, ok := s.comp.ActiveClip(tr.ID, child.pos)
		if !ok {
			continue
		}
		l := r.resolveClip(child, tr.ID, tr.Visible, nc, prevLayers[tr.ID])
		if l == nil {
			continue
		}
		if old := prevLayers[tr.ID]; layerEqual(old, l) {
			l = old
		}
		layers = append(layers, l)
	}
	if len(layers) == 0 {
		return LayerSource{}, false
	}
	return LayerSource{
		Kind: SourceNested,
		ID:   s.comp.ID,
		Nested: &NestedComposition{
			CompositionID: s.comp.ID,
			Layers:        layers,
			Width:         s.comp.Width,
			Height:        s.comp.Height,
		},
	}, true
}

type nativeStrategy struct{ src *timeline.NativeSource }

func (s nativeStrategy) resolve(r *Reconciler, rc *resolveContext, c timeline.Clip, local float64, _ *Layer) (LayerSource, bool) {
	h := s.src.Handle
	if h == nil || h.Decoder == nil {
		return LayerSource{}, false
	}
	frame := media.FrameAt(rc.snap.SourceTime(c, local), h.Decoder.FrameRate())
	id := h.ID()

	switch h.RequestFrame(r.ctx, frame, rc.dragging, func(err error) {
		if err != nil {
			r.log.Warn("native decoder seek failed",
				slog.String("decoder_id", id),
				slog.Int("frame", frame),
				slog.String("error", err.Error()))
		}
	}) {
	case media.SeekIssued:
		r.metrics.IncSeeks(metrics.SeekNative)
	case media.SeekDropped:
		r.metrics.IncSeeksDropped()
	}
	return LayerSource{Kind: SourceNative, ID: id, Frame: frame}, true
}

type proxyStrategy struct{ src *timeline.VideoSource }

func (s proxyStrategy) resolve(r *Reconciler, rc *resolveContext, c timeline.Clip, local float64, prev *Layer) (LayerSource, bool) {
	full := videoStrategy(s)
	if r.proxies == nil || s.src.Resource == nil {
		return full.resolve(r, rc, c, local, prev)
	}
	p := s.src.Proxy
	frame := media.FrameAt(rc.snap.SourceTime(c, local), p.FPS)
	if !p.Eligible(frame) {
		return full.resolve(r, rc, c, local, prev)
	}

	res := s.src.Resource
	id := res.ID()
	if !res.Paused() {
		res.Pause()
	}

	if img, ok := r.proxies.PeekCached(id, frame); ok {
		r.metrics.IncProxyLookup(metrics.ProxyHit)
		return LayerSource{Kind: SourceProxy, ID: id, Frame: img.Frame, Image: img}, true
	}

	r.requestProxyFrame(proxycache.Request{SourceID: id, Frame: frame, FPS: p.FPS, Epoch: rc.epoch})

	if img, ok := r.proxies.NearestCached(id, frame, r.cfg.ProxyNearest); ok {
		r.metrics.IncProxyLookup(metrics.ProxyNearest)
		return LayerSource{Kind: SourceProxy, ID: id, Frame: img.Frame, Image: img}, true
	}
	r.metrics.IncProxyLookup(metrics.ProxyMiss)
	if prev != nil && prev.ClipID == c.ID {
		return prev.Source, true
	}
	return full.resolve(r, rc, c, local, prev)
}

type videoStrategy struct{ src *timeline.VideoSource }

func (s videoStrategy) resolve(r *Reconciler, rc *resolveContext, c timeline.Clip, local float64, _ *Layer) (LayerSource, bool) {
	res := s.src.Resource
	if res == nil {
		return LayerSource{}, false
	}
	target := rc.snap.SourceTime(c, local)
	threshold := rc.threshold(r.cfg)
	drifted := func() bool { return math.Abs(res.Position()-target) > threshold }

	speed := rc.snap.Speed(c, local) * rc.speed
	if c.Reversed {
		speed = -speed
	}
	rs, canRate := res.(media.RateSetter)

	// backwards motion, or a rate the resource cannot run at, is driven by seeks only
	seekDriven := speed <= 0 || (!canRate && speed != 1)
	switch {
	case seekDriven || !rc.playing:
		if !res.Paused() {
			res.Pause()
		}
		if drifted() {
			r.seek(res, target, rc.seekKind())
		}
	case res.Paused():
		if canRate {
			rs.SetRate(speed)
		}
		if drifted() {
			r.seek(res, target, rc.seekKind())
		}
		if err := res.Play(); err != nil {
			r.log.Warn("video play rejected",
				slog.String("resource_id", res.ID()),
				slog.String("error", err.Error()))
		}
		r.keepPlaying = append(r.keepPlaying, res)
	default:
		// already playing: follow keyframed speed, trust the resource's own advance
		if canRate {
			rs.SetRate(speed)
		}
		if rc.depth > 0 && drifted() {
			r.seek(res, target, rc.seekKind())
		}
		r.keepPlaying = append(r.keepPlaying, res)
	}
	return LayerSource{Kind: SourceVideo, ID: res.ID()}, true
}

type imageStrategy struct{ src *timeline.ImageSource }

func (s imageStrategy) resolve(*Reconciler, *resolveContext, timeline.Clip, float64, *Layer) (LayerSource, bool) {
	return LayerSource{Kind: SourceImage, ID: s.src.ImageID}, true
}

type textStrategy struct{ src *timeline.TextSource }

func (s textStrategy) resolve(*Reconciler, *resolveContext, timeline.Clip, float64, *Layer) (LayerSource, bool) {
	return LayerSource{Kind: SourceText, ID: s.src.CanvasID, Revision: s.src.Revision}, true
}

func layersByTrack(layers []*Layer) map[timeline.TrackID]*Layer {
	m := make(map[timeline.TrackID]*Layer, len(layers))
	for _, l := range layers {
		if l != nil {
			m[l.TrackID] = l
		}
	}
	return m
}
