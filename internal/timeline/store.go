package timeline

import "sort"

// Store is the persistence abstraction for the timeline graph.
// The Repository uses Store for all reads and writes and serializes access;
// Store implementations need not be safe for concurrent use.
type Store interface {
	GetTrack(id TrackID) (Track, bool)
	SetTrack(t Track)
	ListTracks() []Track

	GetClip(id ClipID) (Clip, bool)
	SetClip(c Clip)
	DeleteClip(id ClipID)
	ListClips() []Clip

	Keyframes(id ClipID) []Keyframe
	SetKeyframes(id ClipID, kfs []Keyframe)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	tracks    map[TrackID]Track
	clips     map[ClipID]Clip
	keyframes map[ClipID][]Keyframe
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tracks:    make(map[TrackID]Track),
		clips:     make(map[ClipID]Clip),
		keyframes: make(map[ClipID][]Keyframe),
	}
}

// GetTrack implements Store.GetTrack.
func (s *InMemoryStore) GetTrack(id TrackID) (Track, bool) {
	t, ok := s.tracks[id]
	return t, ok
}

// SetTrack implements Store.SetTrack.
func (s *InMemoryStore) SetTrack(t Track) {
	s.tracks[t.ID] = t
}

// ListTracks implements Store.ListTracks. Order is by kind, then Index, then ID.
func (s *InMemoryStore) ListTracks() []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind // video before audio
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetClip implements Store.GetClip.
func (s *InMemoryStore) GetClip(id ClipID) (Clip, bool) {
	c, ok := s.clips[id]
	return c, ok
}

// SetClip implements Store.SetClip.
func (s *InMemoryStore) SetClip(c Clip) {
	s.clips[c.ID] = c
}

// DeleteClip implements Store.DeleteClip. Keyframes of the clip go with it.
func (s *InMemoryStore) DeleteClip(id ClipID) {
	delete(s.clips, id)
	delete(s.keyframes, id)
}

// ListClips implements Store.ListClips, ordered by start time.
func (s *InMemoryStore) ListClips() []Clip {
	out := make([]Clip, 0, len(s.clips))
	for _, c := range s.clips {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Keyframes implements Store.Keyframes.
func (s *InMemoryStore) Keyframes(id ClipID) []Keyframe {
	return s.keyframes[id]
}

// SetKeyframes implements Store.SetKeyframes.
func (s *InMemoryStore) SetKeyframes(id ClipID, kfs []Keyframe) {
	if len(kfs) == 0 {
		delete(s.keyframes, id)
		return
	}
	s.keyframes[id] = kfs
}
