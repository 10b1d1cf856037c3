package playback

import (
	"log/slog"
	"math"

	"nle-playback/internal/media"
	"nle-playback/internal/platform/metrics"
	"nle-playback/internal/timeline"
)

// audioTarget is one audio resource that should be sounding at the playhead.
type audioTarget struct {
	res      media.AudioResource
	clip     timeline.Clip
	target   float64 // source time
	speed    float64 // interpolated clip speed
	muted    bool
	eligible bool // may become the master clock
}

func (t audioTarget) forward() bool { return !t.clip.Reversed && t.speed > 0 }

// syncAudio is the audio pass: every active audio clip and every nested
// composition mixdown is kept within AudioDrift of its target, rated,
// muted and played or paused; every other audio resource is paused.
func (r *Reconciler) syncAudio(rc *resolveContext) {
	st := r.state
	targets := r.audioTargets(rc)

	// audio cannot run backwards
	shouldPlay := st.Playing && st.Speed > 0
	status := AudioStatus{HasError: st.Playing && st.Audio.HasError}
	active := make(map[string]bool, len(targets))

	for _, t := range targets {
		active[t.res.ID()] = true
		res := t.res

		// reversed or negative-speed clips are silent; only video runs backwards
		if !t.forward() {
			if !res.Paused() {
				res.Pause()
			}
			continue
		}

		drift := math.Abs(res.Position() - t.target)
		status.MaxDrift = math.Max(status.MaxDrift, drift)
		if drift > r.cfg.AudioDrift {
			r.seek(res, t.target, metrics.SeekAudio)
			r.metrics.IncAudioResyncs()
		}

		res.SetRate(math.Abs(t.speed) * math.Abs(st.Speed))
		res.SetMuted(t.muted)
		res.SetPreservesPitch(t.clip.PreservesPitch)

		if shouldPlay {
			if res.Paused() {
				if err := res.Play(); err != nil {
					status.HasError = true
					r.metrics.IncAudioErrors()
					r.log.Warn("audio play rejected",
						slog.String("resource_id", res.ID()),
						slog.String("clip_id", string(t.clip.ID)),
						slog.String("error", err.Error()))
				}
			}
		} else if !res.Paused() {
			res.Pause()
		}
		if !res.Paused() {
			status.PlayingCount++
		}
	}

	for _, res := range rc.snap.AudioResources() {
		if !active[res.ID()] && !res.Paused() {
			res.Pause()
		}
	}

	st.Audio = status
	r.selectMaster(targets)
}

// audioTargets lists the audio that belongs at the playhead: audio-track
// clips in ascending track order, then nested mixdowns on video tracks.
func (r *Reconciler) audioTargets(rc *resolveContext) []audioTarget {
	snap := rc.snap
	var out []audioTarget
	for _, tr := range snap.AudioTracks() {
		c, ok := snap.ActiveClip(tr.ID, rc.pos)
		if !ok {
			continue
		}
		src, ok := c.Source.(*timeline.AudioSource)
		if !ok || src.Resource == nil {
			continue
		}
		local := timeline.LocalTime(c, rc.pos)
		muted := snap.TrackMuted(tr.ID)
		out = append(out, audioTarget{
			res:      src.Resource,
			clip:     c,
			target:   snap.SourceTime(c, local),
			speed:    snap.Speed(c, local),
			muted:    muted,
			eligible: !muted && !c.Reversed,
		})
	}
	for _, tr := range snap.VideoTracks() {
		c, ok := snap.ActiveClip(tr.ID, rc.pos)
		if !ok || c.Nested == nil || c.Nested.Mixdown == nil {
			continue
		}
		local := timeline.LocalTime(c, rc.pos)
		out = append(out, audioTarget{
			res:    c.Nested.Mixdown,
			clip:   c,
			target: snap.SourceTime(c, local),
			speed:  snap.Speed(c, local),
			muted:  snap.TrackMuted(tr.ID),
		})
	}
	return out
}

// selectMaster keeps or (re)selects the master clock. A new master is
// chosen when playback just started or the current master's clip left the
// playhead: the first unmuted audio-track resource that is playing and ready.
func (r *Reconciler) selectMaster(targets []audioTarget) {
	st := r.state
	if !st.Playing {
		st.clearMaster()
		return
	}
	if st.Master != nil && !st.JustStarted {
		for _, t := range targets {
			if t.clip.ID == st.Master.ClipID && t.eligible {
				return
			}
		}
		r.log.Debug("master audio left the playhead", slog.String("clip_id", string(st.Master.ClipID)))
		st.clearMaster()
	}
	st.JustStarted = false

	for _, t := range targets {
		if !t.eligible || t.speed <= 0 || t.res.Paused() || !t.res.Ready() {
			continue
		}
		st.Master = &MasterAudio{
			Resource:  t.res,
			ClipID:    t.clip.ID,
			StartTime: t.clip.StartTime,
			InPoint:   t.clip.InPoint,
			Speed:     t.speed,
		}
		r.log.Debug("master audio selected",
			slog.String("clip_id", string(t.clip.ID)),
			slog.String("resource_id", t.res.ID()))
		return
	}
}
