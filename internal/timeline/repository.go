package timeline

import (
	"fmt"
	"sync"
)

// Repository is the concurrency-safe owner of the timeline graph. Every
// mutation bumps Version; readers take immutable Snapshots.
type Repository struct {
	mu      sync.RWMutex
	store   Store
	version uint64
}

// NewRepository constructs a repository with a default in-memory store.
func NewRepository() *Repository {
	return NewRepositoryWithStore(NewInMemoryStore())
}

// NewRepositoryWithStore constructs a repository that uses the given Store.
func NewRepositoryWithStore(store Store) *Repository {
	return &Repository{store: store}
}

// Version returns the mutation counter.
func (r *Repository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// AddTrack creates or replaces a track.
func (r *Repository) AddTrack(t Track) error {
	if t.ID == "" || (t.Kind != KindVideo && t.Kind != KindAudio) {
		return fmt.Errorf("%w: id=%q kind=%q", ErrInvalidTrack, t.ID, t.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.SetTrack(t)
	r.version++
	return nil
}

// UpdateTrack applies fn to a copy of the track and stores the result.
// fn must not change the track ID or kind.
func (r *Repository) UpdateTrack(id TrackID, fn func(*Track)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.store.GetTrack(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	kind := t.Kind
	fn(&t)
	t.ID, t.Kind = id, kind
	r.store.SetTrack(t)
	r.version++
	return nil
}

// AddClip validates and stores a clip. The track must exist and the source
// medium must match it: audio sources only on audio tracks and vice versa.
func (r *Repository) AddClip(c Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkPlacementLocked(c); err != nil {
		return err
	}
	r.store.SetClip(c.clone())
	r.version++
	return nil
}

// UpdateClip applies fn to a copy of the clip, validates it and stores it.
func (r *Repository) UpdateClip(id ClipID, fn func(*Clip)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.store.GetClip(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	c = c.clone()
	fn(&c)
	c.ID = id
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.checkPlacementLocked(c); err != nil {
		return err
	}
	r.store.SetClip(c)
	r.version++
	return nil
}

// RemoveClip deletes a clip and its keyframes. Removing a missing clip is a no-op.
func (r *Repository) RemoveClip(id ClipID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store.GetClip(id); !ok {
		return nil
	}
	r.store.DeleteClip(id)
	r.version++
	return nil
}

// SetKeyframes replaces every keyframe of a clip. Keyframe ClipIDs are
// forced to id. Nested clips may have keyframes too, so the clip is not
// required to exist at the top level.
func (r *Repository) SetKeyframes(id ClipID, kfs []Keyframe) error {
	cp := make([]Keyframe, len(kfs))
	for i, kf := range kfs {
		kf.ClipID = id
		cp[i] = kf
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.SetKeyframes(id, cp)
	r.version++
	return nil
}

// Snapshot returns an immutable view of the current graph.
func (r *Repository) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tracks := r.store.ListTracks()
	clips := r.store.ListClips()

	s := &Snapshot{
		Version:      r.version,
		tracks:       tracks,
		trackByID:    make(map[TrackID]Track, len(tracks)),
		clipsByTrack: make(map[TrackID][]Clip),
		keyframes:    make(map[ClipID]map[string][]Keyframe),
		solo:         make(map[TrackKind]bool),
	}
	for _, t := range tracks {
		s.trackByID[t.ID] = t
		if t.Solo {
			s.solo[t.Kind] = true
		}
	}
	for _, c := range clips {
		s.clipsByTrack[c.TrackID] = append(s.clipsByTrack[c.TrackID], c.clone())
		s.collectKeyframesLocked(r.store, c)
	}
	return s
}

func (s *Snapshot) collectKeyframesLocked(store Store, c Clip) {
	if kfs := store.Keyframes(c.ID); len(kfs) > 0 {
		s.keyframes[c.ID] = groupKeyframes(kfs)
	}
	if c.Nested != nil {
		for _, nc := range c.Nested.Clips {
			s.collectKeyframesLocked(store, nc)
		}
	}
}

// checkPlacementLocked verifies the clip's track exists and matches its source.
// Caller must hold r.mu in write mode.
func (r *Repository) checkPlacementLocked(c Clip) error {
	t, ok := r.store.GetTrack(c.TrackID)
	if !ok {
		return fmt.Errorf("%w: %s (clip %s)", ErrTrackNotFound, c.TrackID, c.ID)
	}
	_, isAudio := c.Source.(*AudioSource)
	if isAudio != (t.Kind == KindAudio) && c.Source != nil {
		return fmt.Errorf("%w: %s source does not match %s track %s", ErrInvalidClip, c.ID, t.Kind, t.ID)
	}
	return nil
}
