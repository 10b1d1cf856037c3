package playback

import (
	"nle-playback/internal/proxycache"
	"nle-playback/internal/timeline"
)

// SourceKind names the kind of content a layer shows.
type SourceKind string

const (
	SourceVideo  SourceKind = "video"
	SourceNative SourceKind = "native"
	SourceProxy  SourceKind = "proxy"
	SourceImage  SourceKind = "image"
	SourceText   SourceKind = "text"
	SourceNested SourceKind = "nested"
)

// LayerSource is the one resolved source of a layer.
type LayerSource struct {
	Kind SourceKind `json:"kind"`
	// ID is the resource, decoder, image, canvas or composition id.
	ID       string `json:"id"`
	Frame    int    `json:"frame,omitempty"`
	Revision int    `json:"revision,omitempty"`

	Image  *proxycache.Image  `json:"-"`
	Nested *NestedComposition `json:"nested,omitempty"`
}

// NestedComposition is the pre-resolved content of a clip holding a
// sub-timeline, drawn by the renderer as one surface.
type NestedComposition struct {
	CompositionID string   `json:"compositionId"`
	Layers        []*Layer `json:"layers"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
}

// Layer is the renderer-facing projection of one video track at one instant.
type Layer struct {
	TrackID   timeline.TrackID  `json:"trackId"`
	ClipID    timeline.ClipID   `json:"clipId"`
	Visible   bool              `json:"visible"`
	Opacity   float64           `json:"opacity"`
	BlendMode string            `json:"blendMode"`
	Position  timeline.Vec2     `json:"position"`
	Scale     timeline.Vec2     `json:"scale"`
	Rotation  float64           `json:"rotation"` // radians
	Effects   []timeline.Effect `json:"effects,omitempty"`
	Source    LayerSource       `json:"source"`
}

// Renderer consumes layer lists. Render is called on the paused path only;
// while playing the renderer reads published snapshots on its own loop.
type Renderer interface {
	Render(layers []*Layer)
	// RenderCachedFrame draws a RAM-preview frame for t if one exists.
	RenderCachedFrame(t float64) bool
}

// layerEqual reports whether b would look the same as a to the renderer.
func layerEqual(a, b *Layer) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.TrackID != b.TrackID || a.ClipID != b.ClipID ||
		a.Visible != b.Visible || a.Opacity != b.Opacity || a.BlendMode != b.BlendMode ||
		a.Position != b.Position || a.Scale != b.Scale || a.Rotation != b.Rotation {
		return false
	}
	return sourceEqual(a.Source, b.Source) && timeline.EffectsEqual(a.Effects, b.Effects)
}

func sourceEqual(a, b LayerSource) bool {
	if a.Kind != b.Kind || a.ID != b.ID || a.Frame != b.Frame || a.Revision != b.Revision || a.Image != b.Image {
		return false
	}
	if a.Nested == nil || b.Nested == nil {
		return a.Nested == b.Nested
	}
	na, nb := a.Nested, b.Nested
	if na.CompositionID != nb.CompositionID || na.Width != nb.Width || na.Height != nb.Height ||
		len(na.Layers) != len(nb.Layers) {
		return false
	}
	for i := range na.Layers {
		if !layerEqual(na.Layers[i], nb.Layers[i]) {
			return false
		}
	}
	return true
}
