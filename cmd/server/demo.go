package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nle-playback/internal/media"
	"nle-playback/internal/playback"
	"nle-playback/internal/proxycache"
	"nle-playback/internal/timeline"
)

const demoDuration = 10.0

// buildDemo fills repo with a 10 s project over simulated media: a proxied
// background video, a nested composition followed by a hardware-decoded
// clip, a logo still and a music bed.
func buildDemo(repo *timeline.Repository) error {
	tracks := []timeline.Track{
		{ID: "v1", Kind: timeline.KindVideo, Name: "Background", Index: 0, Visible: true},
		{ID: "v2", Kind: timeline.KindVideo, Name: "Inserts", Index: 1, Visible: true},
		{ID: "v3", Kind: timeline.KindVideo, Name: "Logo", Index: 2, Visible: true},
		{ID: "a1", Kind: timeline.KindAudio, Name: "Music", Index: 0, Visible: true},
	}
	for _, t := range tracks {
		if err := repo.AddTrack(t); err != nil {
			return err
		}
	}

	insert := media.NewSim(mediaID("insert"), 8)
	comp := &timeline.Composition{
		ID:     "title-sequence",
		Width:  1920,
		Height: 1080,
		Tracks: []timeline.Track{
			{ID: "n-v1", Kind: timeline.KindVideo, Index: 0, Visible: true},
			{ID: "n-v2", Kind: timeline.KindVideo, Index: 1, Visible: true},
		},
		Clips: []timeline.Clip{
			{ID: "n-insert", TrackID: "n-v1", Duration: 4, InPoint: 1, OutPoint: 5,
				Transform: timeline.DefaultTransform(),
				Source:    &timeline.VideoSource{Resource: insert}},
			{ID: "n-title", TrackID: "n-v2", StartTime: 0.5, Duration: 3,
				Transform: timeline.DefaultTransform(),
				Source:    &timeline.TextSource{CanvasID: "title-text", Revision: 1}},
		},
		Mixdown: media.NewSim(mediaID("title-mix"), 4),
	}

	clips := []timeline.Clip{
		{ID: "bg", TrackID: "v1", Duration: demoDuration, OutPoint: demoDuration,
			Transform: timeline.DefaultTransform(),
			Source: &timeline.VideoSource{
				Resource: media.NewSim(mediaID("bg"), demoDuration),
				Proxy:    &timeline.Proxy{Enabled: true, FPS: 30, Status: timeline.ProxyReady, Progress: 100, TotalFrames: 300},
			}},
		{ID: "titles", TrackID: "v2", StartTime: 2, Duration: 4, OutPoint: 4,
			Transform: timeline.DefaultTransform(),
			Nested:    comp},
		{ID: "hw", TrackID: "v2", StartTime: 6, Duration: 4, InPoint: 2, OutPoint: 6,
			Transform: timeline.DefaultTransform(),
			Source:    &timeline.NativeSource{Handle: media.NewNativeHandle(media.NewSimDecoder(mediaID("hw"), 25))}},
		{ID: "logo", TrackID: "v3", Duration: demoDuration,
			Transform: timeline.Transform{Opacity: 0.8, BlendMode: "screen", Position: timeline.Vec2{X: 860, Y: -480}, Scale: timeline.Vec2{X: 0.25, Y: 0.25}},
			Source:    &timeline.ImageSource{ImageID: "logo", Width: 512, Height: 512}},
		{ID: "music", TrackID: "a1", Duration: demoDuration, OutPoint: demoDuration, PreservesPitch: true,
			Source: &timeline.AudioSource{Resource: media.NewSim(mediaID("music"), demoDuration)}},
	}
	for _, c := range clips {
		if err := repo.AddClip(c); err != nil {
			return err
		}
	}

	if err := repo.SetKeyframes("logo", []timeline.Keyframe{
		{Time: 0, Property: timeline.PropOpacity, Value: 0, Easing: timeline.EaseOut},
		{Time: 1, Property: timeline.PropOpacity, Value: 0.8},
		{Time: 0, Property: timeline.PropRotation, Value: 0, Easing: timeline.EaseInOut},
		{Time: demoDuration, Property: timeline.PropRotation, Value: 360},
	}); err != nil {
		return err
	}
	// the hardware clip ramps from half to double speed
	return repo.SetKeyframes("hw", []timeline.Keyframe{
		{Time: 0, Property: timeline.PropSpeed, Value: 0.5},
		{Time: 4, Property: timeline.PropSpeed, Value: 2},
	})
}

func mediaID(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

// demoDecoder synthesizes flat grey proxy frames after a short delay.
type demoDecoder struct {
	latency time.Duration
}

func newDemoDecoder() demoDecoder { return demoDecoder{latency: 4 * time.Millisecond} }

func (d demoDecoder) DecodeFrame(ctx context.Context, sourceID string, frame int, fps float64) (*proxycache.Image, error) {
	select {
	case <-time.After(d.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	const w, h = 16, 9
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(frame)
	}
	return &proxycache.Image{Width: w, Height: h, Data: data}, nil
}

// logRenderer stands in for a compositor: it logs what it would draw.
type logRenderer struct {
	log *slog.Logger
}

func (r logRenderer) Render(layers []*playback.Layer) {
	visible := 0
	for _, l := range layers {
		if l != nil && l.Visible {
			visible++
		}
	}
	r.log.Debug("render", slog.Int("layers", len(layers)), slog.Int("visible", visible))
}

func (logRenderer) RenderCachedFrame(float64) bool { return false }
