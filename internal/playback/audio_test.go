package playback

import (
	"errors"
	"testing"
	"time"

	"nle-playback/internal/timeline"
)

func TestSyncAudio_driftThreshold(t *testing.T) {
	f := newFixture(t, nil)
	res := f.audioClip(t, "a", "a1", 0, 10, 0)
	f.at(3)
	f.state.Playing = true

	res.SetPosition(3.05)
	f.rec.pass(t0)
	if res.SeekCount() != 0 {
		t.Fatalf("0.05s drift must not reseek: %v", res.Seeks())
	}
	if res.Paused() {
		t.Error("active audio should play")
	}

	res.SetPosition(3.25)
	f.rec.pass(t0)
	if got := res.Seeks(); len(got) != 1 || got[0] != 3 {
		t.Errorf("0.25s drift: seeks = %v, want exactly [3]", got)
	}
	if !near(f.state.Audio.MaxDrift, 0.25) {
		t.Errorf("MaxDrift = %v", f.state.Audio.MaxDrift)
	}
}

func TestSyncAudio_rateMuteAndPitch(t *testing.T) {
	f := newFixture(t, nil)
	res := f.sim("voice", 30)
	f.clip(t, timeline.Clip{
		ID: "a", TrackID: "a1", Duration: 10, OutPoint: 20, Speed: 1.5, PreservesPitch: false,
		Source: &timeline.AudioSource{Resource: res},
	})
	_ = f.repo.UpdateTrack("a1", func(tr *timeline.Track) { tr.Muted = true })
	f.at(2)

	f.rec.pass(t0)

	if res.Rate() != 1.5 {
		t.Errorf("rate = %v, want 1.5", res.Rate())
	}
	if !res.Muted() || res.PreservesPitch() {
		t.Errorf("muted=%v preservesPitch=%v", res.Muted(), res.PreservesPitch())
	}
}

func TestSyncAudio_soloMutesOtherTracks(t *testing.T) {
	f := newFixture(t, nil)
	f.track(t, "a2", timeline.KindAudio, 1)
	music := f.audioClip(t, "m", "a1", 0, 10, 0)
	voice := f.audioClip(t, "v", "a2", 0, 10, 0)
	_ = f.repo.UpdateTrack("a2", func(tr *timeline.Track) { tr.Solo = true })
	f.at(1)

	f.rec.pass(t0)

	if !music.Muted() || voice.Muted() {
		t.Errorf("music muted=%v voice muted=%v, want only music muted", music.Muted(), voice.Muted())
	}
}

func TestSyncAudio_pausesInactive(t *testing.T) {
	f := newFixture(t, nil)
	res := f.audioClip(t, "a", "a1", 0, 2, 0)
	_ = res.Play()
	f.at(5)
	f.state.Playing = true

	f.rec.pass(t0)

	if !res.Paused() {
		t.Error("audio of an inactive clip must be paused")
	}
	if f.state.Audio.PlayingCount != 0 {
		t.Errorf("PlayingCount = %d", f.state.Audio.PlayingCount)
	}
}

func TestSyncAudio_pausedTransportPausesAudio(t *testing.T) {
	f := newFixture(t, nil)
	res := f.audioClip(t, "a", "a1", 0, 10, 0)
	_ = res.Play()
	f.at(1)

	f.rec.pass(t0)

	if !res.Paused() {
		t.Error("audio must pause when the transport is paused")
	}
}

func TestSyncAudio_reversePlaybackSilencesAudio(t *testing.T) {
	f := newFixture(t, nil)
	res := f.audioClip(t, "a", "a1", 0, 10, 0)
	f.at(4)
	f.state.Playing = true
	f.state.Speed = -1

	f.rec.pass(t0)

	if !res.Paused() {
		t.Error("audio cannot play backwards")
	}
}

func TestSyncAudio_reversedClipStaysSilent(t *testing.T) {
	f := newFixture(t, nil)
	res := f.sim("rev", 10)
	f.clip(t, timeline.Clip{
		ID: "a", TrackID: "a1", Duration: 5, OutPoint: 5, Reversed: true,
		Source: &timeline.AudioSource{Resource: res},
	})
	_ = res.Play()
	f.at(0)
	f.state.Playing = true
	f.state.UsingInternal = true

	for i := 0; i <= 20; i++ {
		f.rec.pass(t0.Add(time.Duration(i) * 100 * time.Millisecond))
		f.clock.advance(100 * time.Millisecond)
		f.state.Position += 0.1
	}

	if !res.Paused() {
		t.Error("reversed audio clip should be paused")
	}
	if n := res.SeekCount(); n != 0 {
		t.Errorf("reversed audio clip was reseeked %d times: %v", n, res.Seeks())
	}
	if f.state.Audio.PlayingCount != 0 || f.state.Master != nil {
		t.Errorf("audio status = %+v master=%v", f.state.Audio, f.state.Master)
	}
}

func TestSyncAudio_playErrorRecorded(t *testing.T) {
	f := newFixture(t, nil)
	res := f.audioClip(t, "a", "a1", 0, 10, 0)
	res.FailPlay(errors.New("autoplay blocked"))
	video := f.videoClip(t, "c1", 0, 10, 0)
	f.at(1)
	f.state.Playing = true

	f.rec.pass(t0)

	if !f.state.Audio.HasError || f.state.Audio.PlayingCount != 0 {
		t.Errorf("audio status = %+v", f.state.Audio)
	}
	if video.Paused() {
		t.Error("an audio failure must not stop other layers")
	}

	res.FailPlay(nil)
	f.rec.pass(t0)
	if !f.state.Audio.HasError {
		t.Error("error flag should hold for the rest of the playback run")
	}
}

func TestSyncAudio_nestedMixdown(t *testing.T) {
	f := newFixture(t, nil)
	mix := f.sim("mix", 30)
	comp := &timeline.Composition{
		ID:      "comp1",
		Tracks:  []timeline.Track{{ID: "nv", Kind: timeline.KindVideo, Visible: true}},
		Clips:   []timeline.Clip{{ID: "n1", TrackID: "nv", Duration: 10, OutPoint: 10, Source: &timeline.ImageSource{ImageID: "still"}}},
		Mixdown: mix,
	}
	f.clip(t, timeline.Clip{ID: "p", TrackID: "v1", StartTime: 1, Duration: 5, InPoint: 2, OutPoint: 7, Nested: comp})
	f.state.Playing = true

	f.at(3)
	f.rec.pass(t0)
	if got := mix.Seeks(); len(got) != 1 || got[0] != 4 {
		t.Errorf("mixdown seeks = %v, want [4]", got)
	}
	if mix.Paused() {
		t.Error("mixdown of an active composition should play")
	}

	f.at(8)
	f.rec.pass(t0)
	if !mix.Paused() {
		t.Error("mixdown of an inactive composition must be paused")
	}
}

func TestSelectMaster_firstUnmutedPlayingTrack(t *testing.T) {
	f := newFixture(t, nil)
	f.track(t, "a2", timeline.KindAudio, 1)
	f.track(t, "a3", timeline.KindAudio, 2)
	f.audioClip(t, "muted", "a1", 0, 10, 0)
	f.audioClip(t, "second", "a2", 1, 10, 3)
	f.audioClip(t, "third", "a3", 0, 10, 0)
	_ = f.repo.UpdateTrack("a1", func(tr *timeline.Track) { tr.Muted = true })
	f.at(2)
	f.state.Playing = true
	f.state.JustStarted = true

	f.rec.pass(t0)

	m := f.state.Master
	if m == nil || m.ClipID != "second" {
		t.Fatalf("master = %+v, want clip second", m)
	}
	if m.StartTime != 1 || m.InPoint != 3 || m.Speed != 1 {
		t.Errorf("master = %+v", m)
	}
	if f.state.JustStarted {
		t.Error("JustStarted should be consumed by selection")
	}
}

func TestSelectMaster_skipsNotReady(t *testing.T) {
	f := newFixture(t, nil)
	f.track(t, "a2", timeline.KindAudio, 1)
	first := f.audioClip(t, "first", "a1", 0, 10, 0)
	first.SetReady(false)
	f.audioClip(t, "second", "a2", 0, 10, 0)
	f.at(1)
	f.state.Playing = true
	f.state.JustStarted = true

	f.rec.pass(t0)

	if m := f.state.Master; m == nil || m.ClipID != "second" {
		t.Errorf("master = %+v, want second", m)
	}
}

func TestSelectMaster_reselectsWhenClipLeaves(t *testing.T) {
	f := newFixture(t, nil)
	f.audioClip(t, "one", "a1", 0, 2, 0)
	f.audioClip(t, "two", "a1", 2, 3, 0)
	f.state.Playing = true
	f.state.JustStarted = true

	f.at(1)
	f.rec.pass(t0)
	if m := f.state.Master; m == nil || m.ClipID != "one" {
		t.Fatalf("master = %+v", m)
	}

	f.at(2.5)
	f.rec.pass(t0)
	if m := f.state.Master; m == nil || m.ClipID != "two" {
		t.Errorf("master after boundary = %+v, want two", m)
	}

	f.state.Playing = false
	f.rec.pass(t0)
	if f.state.Master != nil {
		t.Error("paused pass must clear the master")
	}
}
