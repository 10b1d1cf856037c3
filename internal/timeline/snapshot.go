package timeline

import (
	"sort"

	"nle-playback/internal/media"
)

// Snapshot is an immutable view of the timeline at one Version. It answers
// the queries the playback core needs and doubles as the transform resolver.
type Snapshot struct {
	Version uint64

	tracks       []Track
	trackByID    map[TrackID]Track
	clipsByTrack map[TrackID][]Clip
	keyframes    map[ClipID]map[string][]Keyframe
	solo         map[TrackKind]bool
}

// Tracks returns all tracks, video first, each kind ordered by Index.
func (s *Snapshot) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}

// VideoTracks returns video tracks bottom-to-top (render back-to-front).
func (s *Snapshot) VideoTracks() []Track { return sortedTracks(s.tracks, KindVideo) }

// AudioTracks returns audio tracks by ascending Index.
func (s *Snapshot) AudioTracks() []Track { return sortedTracks(s.tracks, KindAudio) }

// Track looks up a track by id.
func (s *Snapshot) Track(id TrackID) (Track, bool) {
	t, ok := s.trackByID[id]
	return t, ok
}

// Clips returns every top-level clip ordered by start time.
func (s *Snapshot) Clips() []Clip {
	var out []Clip
	for _, t := range s.tracks {
		out = append(out, s.clipsByTrack[t.ID]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// ActiveClip returns the clip on track that is active at t.
func (s *Snapshot) ActiveClip(track TrackID, t float64) (Clip, bool) {
	for _, c := range s.clipsByTrack[track] {
		if c.ActiveAt(t) {
			return c, true
		}
	}
	return Clip{}, false
}

// ActiveClips returns every top-level clip active at t, in track order.
func (s *Snapshot) ActiveClips(t float64) []Clip {
	var out []Clip
	for _, tr := range s.tracks {
		if c, ok := s.ActiveClip(tr.ID, t); ok {
			out = append(out, c)
		}
	}
	return out
}

// ActiveClipIDs returns the sorted ids of clips active at t.
func (s *Snapshot) ActiveClipIDs(t float64) []ClipID {
	clips := s.ActiveClips(t)
	ids := make([]ClipID, len(clips))
	for i, c := range clips {
		ids[i] = c.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TrackVisible resolves visibility with solo: when any track of the same
// kind is soloed, only soloed tracks are visible.
func (s *Snapshot) TrackVisible(id TrackID) bool {
	t, ok := s.trackByID[id]
	if !ok {
		return false
	}
	return t.Visible && (!s.solo[t.Kind] || t.Solo)
}

// TrackMuted resolves mute with solo. A hidden video track also mutes the
// audio of compositions placed on it.
func (s *Snapshot) TrackMuted(id TrackID) bool {
	t, ok := s.trackByID[id]
	if !ok {
		return true
	}
	if t.Muted || (s.solo[t.Kind] && !t.Solo) {
		return true
	}
	return t.Kind == KindVideo && !t.Visible
}

// Duration is the end of the last clip.
func (s *Snapshot) Duration() float64 {
	d := 0.0
	for _, clips := range s.clipsByTrack {
		for _, c := range clips {
			if c.End() > d {
				d = c.End()
			}
		}
	}
	return d
}

// Keyframes returns the time-sorted keyframes of one clip property.
func (s *Snapshot) Keyframes(id ClipID, property string) []Keyframe {
	return s.keyframes[id][property]
}

func sortedTracks(tracks []Track, kind TrackKind) []Track {
	var out []Track
	for _, t := range tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// AudioResources returns every audio resource the timeline references:
// audio clip sources and the mixdowns of nested compositions, once each.
func (s *Snapshot) AudioResources() []media.AudioResource {
	var out []media.AudioResource
	seen := make(map[string]bool)
	add := func(res media.AudioResource) {
		if res == nil || seen[res.ID()] {
			return
		}
		seen[res.ID()] = true
		out = append(out, res)
	}
	for _, t := range s.tracks {
		for _, c := range s.clipsByTrack[t.ID] {
			if src, ok := c.Source.(*AudioSource); ok {
				add(src.Resource)
			}
			if c.Nested != nil {
				add(c.Nested.Mixdown)
			}
		}
	}
	return out
}
