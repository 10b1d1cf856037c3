// Package timeline holds the editor's timeline model: tracks, clips,
// keyframes and nested compositions, plus the numeric rules that turn a
// clip and a clip-local time into a transform, an effect list, a speed and
// a source time.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"nle-playback/internal/media"
)

// ClipID uniquely identifies a clip (nested clips included).
type ClipID string

// TrackID identifies a lane of clips.
type TrackID string

// TrackKind is the medium of a track.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrClipNotFound  = errors.New("clip not found")
	ErrInvalidClip   = errors.New("invalid clip")
	ErrInvalidTrack  = errors.New("invalid track")
)

// Track is an ordered lane of clips of one medium. Index orders tracks of the
// same kind; for video, index 0 is the bottom (rendered first).
type Track struct {
	ID      TrackID   `json:"id"`
	Kind    TrackKind `json:"kind"`
	Name    string    `json:"name,omitempty"`
	Index   int       `json:"index"`
	Visible bool      `json:"visible"`
	Muted   bool      `json:"muted"`
	Solo    bool      `json:"solo"`
}

// Vec2 is a 2D position or scale.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform is the authored (pre-keyframe or interpolated) placement of a clip.
// Rotation is in degrees.
type Transform struct {
	Opacity   float64 `json:"opacity"`
	BlendMode string  `json:"blendMode"`
	Position  Vec2    `json:"position"`
	Scale     Vec2    `json:"scale"`
	Rotation  float64 `json:"rotation"`
}

// DefaultTransform is an identity transform at full opacity.
func DefaultTransform() Transform {
	return Transform{Opacity: 1, BlendMode: "normal", Scale: Vec2{X: 1, Y: 1}}
}

// normalized fills unauthored fields. The zero Transform is the identity;
// otherwise a zero scale axis means 1 and an empty blend mode means normal.
// Opacity is taken as written.
func (t Transform) normalized() Transform {
	if t == (Transform{}) {
		return DefaultTransform()
	}
	if t.Scale.X == 0 {
		t.Scale.X = 1
	}
	if t.Scale.Y == 0 {
		t.Scale.Y = 1
	}
	if t.BlendMode == "" {
		t.BlendMode = "normal"
	}
	return t
}

// UnmarshalJSON decodes over DefaultTransform, so omitted fields keep
// their identity values.
func (t *Transform) UnmarshalJSON(data []byte) error {
	type plain Transform
	v := plain(DefaultTransform())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Transform(v)
	return nil
}

// Effect is one entry of a clip's effect stack.
type Effect struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Enabled bool               `json:"enabled"`
	Params  map[string]float64 `json:"params,omitempty"`
}

// Equal compares id, enabled flag and every numeric parameter.
func (e Effect) Equal(o Effect) bool {
	if e.ID != o.ID || e.Enabled != o.Enabled || len(e.Params) != len(o.Params) {
		return false
	}
	for k, v := range e.Params {
		if ov, ok := o.Params[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (e Effect) clone() Effect {
	if e.Params != nil {
		params := make(map[string]float64, len(e.Params))
		for k, v := range e.Params {
			params[k] = v
		}
		e.Params = params
	}
	return e
}

// EffectsEqual compares two effect lists element by element.
func EffectsEqual(a, b []Effect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Source is the tagged union of things a clip can play. The concrete
// variants are VideoSource, NativeSource, AudioSource, ImageSource and TextSource.
type Source interface {
	// SourceID identifies the underlying media (stable across clips).
	SourceID() string
	isSource()
}

// ProxyStatus is the generation state of a low-resolution proxy.
type ProxyStatus string

const (
	ProxyNone       ProxyStatus = "none"
	ProxyGenerating ProxyStatus = "generating"
	ProxyReady      ProxyStatus = "ready"
)

// Proxy describes the proxy representation of a video source.
type Proxy struct {
	Enabled     bool        `json:"enabled"`
	FPS         float64     `json:"fps"`
	Status      ProxyStatus `json:"status"`
	Progress    float64     `json:"progress"` // percent, 0..100
	TotalFrames int         `json:"totalFrames"`
}

// Eligible reports whether frame can be served from the proxy: every frame
// once generation is complete, otherwise only frames already generated.
func (p *Proxy) Eligible(frame int) bool {
	if p == nil || !p.Enabled || p.FPS <= 0 || frame < 0 {
		return false
	}
	switch p.Status {
	case ProxyReady:
		return true
	case ProxyGenerating:
		generated := int(p.Progress / 100 * float64(p.TotalFrames))
		return frame < generated
	default:
		return false
	}
}

// VideoSource is an ordinary decoded video resource, optionally with a proxy.
type VideoSource struct {
	Resource media.Resource
	Proxy    *Proxy
}

// NativeSource is a hardware/native decoder addressed by frame.
type NativeSource struct {
	Handle *media.NativeHandle
}

// AudioSource is an audio resource on an audio track.
type AudioSource struct {
	Resource media.AudioResource
}

// ImageSource is a still image.
type ImageSource struct {
	ImageID string
	Width   int
	Height  int
}

// TextSource is a generated text surface. Revision changes whenever the
// surface is re-rendered.
type TextSource struct {
	CanvasID string
	Revision int
}

func (s *VideoSource) SourceID() string  { return s.Resource.ID() }
func (s *NativeSource) SourceID() string { return s.Handle.ID() }
func (s *AudioSource) SourceID() string  { return s.Resource.ID() }
func (s *ImageSource) SourceID() string  { return s.ImageID }
func (s *TextSource) SourceID() string   { return s.CanvasID }

func (*VideoSource) isSource()  {}
func (*NativeSource) isSource() {}
func (*AudioSource) isSource()  {}
func (*ImageSource) isSource()  {}
func (*TextSource) isSource()   {}

// Composition is a sub-timeline carried by a clip. Mixdown, if set, is the
// pre-mixed audio of the composition.
type Composition struct {
	ID      string
	Width   int
	Height  int
	Tracks  []Track
	Clips   []Clip
	Mixdown media.AudioResource
}

// HasContent reports whether the composition has any video clip to show.
func (c *Composition) HasContent() bool {
	if c == nil {
		return false
	}
	for _, cl := range c.Clips {
		for _, t := range c.Tracks {
			if t.ID == cl.TrackID && t.Kind == KindVideo {
				return true
			}
		}
	}
	return false
}

// VideoTracks returns the composition's video tracks bottom-to-top.
func (c *Composition) VideoTracks() []Track {
	return sortedTracks(c.Tracks, KindVideo)
}

// ActiveClip returns the clip on track active at t.
func (c *Composition) ActiveClip(track TrackID, t float64) (Clip, bool) {
	for _, cl := range c.Clips {
		if cl.TrackID == track && cl.ActiveAt(t) {
			return cl, true
		}
	}
	return Clip{}, false
}

// Clip is a placed region of a source on a track.
type Clip struct {
	ID             ClipID       `json:"id"`
	TrackID        TrackID      `json:"trackId"`
	Name           string       `json:"name,omitempty"`
	StartTime      float64      `json:"startTime"`
	Duration       float64      `json:"duration"`
	InPoint        float64      `json:"inPoint"`
	OutPoint       float64      `json:"outPoint"`
	Reversed       bool         `json:"reversed,omitempty"`
	PreservesPitch bool         `json:"preservesPitch,omitempty"`
	Speed          float64      `json:"speed,omitempty"` // 0 means 1
	Transform      Transform    `json:"transform"`
	Effects        []Effect     `json:"effects,omitempty"`
	Source         Source       `json:"-"`
	Nested         *Composition `json:"-"`
}

// ActiveAt reports whether t falls in [StartTime, StartTime+Duration).
func (c Clip) ActiveAt(t float64) bool {
	return c.StartTime <= t && t < c.StartTime+c.Duration
}

// End is the timeline time just after the clip.
func (c Clip) End() float64 { return c.StartTime + c.Duration }

// BaseSpeed is the clip speed with the zero value mapped to 1.
func (c Clip) BaseSpeed() float64 {
	if c.Speed == 0 {
		return 1
	}
	return c.Speed
}

// Validate checks the clip's own invariants.
func (c Clip) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidClip)
	case c.Duration <= 0:
		return fmt.Errorf("%w: %s has non-positive duration", ErrInvalidClip, c.ID)
	case c.InPoint > c.OutPoint:
		return fmt.Errorf("%w: %s in point %.3f after out point %.3f", ErrInvalidClip, c.ID, c.InPoint, c.OutPoint)
	}
	return nil
}

func (c Clip) clone() Clip {
	if c.Effects != nil {
		effects := make([]Effect, len(c.Effects))
		for i, e := range c.Effects {
			effects[i] = e.clone()
		}
		c.Effects = effects
	}
	return c
}
