package playback

import (
	"sync"

	"github.com/google/uuid"

	"nle-playback/internal/media"
	"nle-playback/internal/timeline"
)

// WorkArea restricts playback to [In, Out] of the timeline.
type WorkArea struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// MasterAudio identifies the audio resource the clock currently follows.
type MasterAudio struct {
	Resource  media.AudioResource
	ClipID    timeline.ClipID
	StartTime float64
	InPoint   float64
	Speed     float64
}

// AudioStatus aggregates the last audio pass.
type AudioStatus struct {
	PlayingCount int     `json:"playingCount"`
	MaxDrift     float64 `json:"maxDrift"`
	HasError     bool    `json:"hasError"`
}

// PlayheadState is the mutable playback context. It has one writer at a
// time: the Session serializes every mutation, and the Clock and Reconciler
// only touch it from inside the Session's critical section.
type PlayheadState struct {
	// Position is the high-frequency internal position, updated every tick.
	Position float64
	// PublishedPosition is the throttled position the UI renders from.
	PublishedPosition float64
	// UsingInternal reports whether Position is authoritative over PublishedPosition.
	UsingInternal bool

	Playing  bool
	Speed    float64
	Loop     bool
	Dragging bool
	WorkArea *WorkArea
	Duration float64

	Master      *MasterAudio
	JustStarted bool

	// Layers is indexed like the snapshot's video tracks, bottom to top.
	// A nil entry is a track with nothing to show.
	Layers []*Layer
	Audio  AudioStatus
}

func newPlayheadState() *PlayheadState {
	return &PlayheadState{Speed: 1}
}

// Current is the position readers in the core should use.
func (s *PlayheadState) Current() float64 {
	if s.UsingInternal {
		return s.Position
	}
	return s.PublishedPosition
}

// EffectiveStart is the work-area in point, or 0.
func (s *PlayheadState) EffectiveStart() float64 {
	if s.WorkArea != nil {
		return s.WorkArea.In
	}
	return 0
}

// EffectiveEnd is the work-area out point, or the timeline duration.
func (s *PlayheadState) EffectiveEnd() float64 {
	if s.WorkArea != nil {
		return s.WorkArea.Out
	}
	return s.Duration
}

func (s *PlayheadState) clearMaster() { s.Master = nil }

// Snapshot is an immutable copy of the published state. Layers are shared
// with the core but never mutated after publication.
type Snapshot struct {
	SessionID             string          `json:"sessionId"`
	Position              float64         `json:"position"`
	PlayheadPosition      float64         `json:"playheadPosition"`
	UsingInternalPosition bool            `json:"usingInternalPosition"`
	Playing               bool            `json:"playing"`
	Speed                 float64         `json:"speed"`
	Loop                  bool            `json:"loop"`
	Dragging              bool            `json:"dragging"`
	Duration              float64         `json:"duration"`
	WorkArea              *WorkArea       `json:"workArea,omitempty"`
	HasMasterAudio        bool            `json:"hasMasterAudio"`
	MasterClipID          timeline.ClipID `json:"masterClipId,omitempty"`
	Layers                []*Layer        `json:"layers"`
	Audio                 AudioStatus     `json:"audio"`
}

func (s *PlayheadState) snapshot(sessionID string) Snapshot {
	snap := Snapshot{
		SessionID:             sessionID,
		Position:              s.Position,
		PlayheadPosition:      s.PublishedPosition,
		UsingInternalPosition: s.UsingInternal,
		Playing:               s.Playing,
		Speed:                 s.Speed,
		Loop:                  s.Loop,
		Dragging:              s.Dragging,
		Duration:              s.Duration,
		Layers:                append([]*Layer(nil), s.Layers...),
		Audio:                 s.Audio,
	}
	if s.WorkArea != nil {
		wa := *s.WorkArea
		snap.WorkArea = &wa
	}
	if s.Master != nil {
		snap.HasMasterAudio = true
		snap.MasterClipID = s.Master.ClipID
	}
	return snap
}

// Subscription receives published snapshots. C holds at most one pending
// value: a newer snapshot replaces an unread one.
type Subscription struct {
	ID string
	C  <-chan Snapshot
}

type hub struct {
	mu   sync.Mutex
	subs map[string]chan Snapshot
}

func newHub() *hub {
	return &hub{subs: make(map[string]chan Snapshot)}
}

func (h *hub) subscribe(initial Snapshot) *Subscription {
	ch := make(chan Snapshot, 1)
	ch <- initial
	id := uuid.NewString()
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return &Subscription{ID: id, C: ch}
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// drop the unread value, keep the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
