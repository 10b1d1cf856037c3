package timeline

import "strings"

// Transform returns the clip's transform at clip-local time local, with
// every keyframed property interpolated over the clip's base values.
func (s *Snapshot) Transform(c Clip, local float64) Transform {
	tr := c.Transform.normalized()
	kf := s.keyframes[c.ID]
	if len(kf) == 0 {
		return tr
	}
	tr.Opacity = Interpolate(kf[PropOpacity], local, tr.Opacity)
	tr.Position.X = Interpolate(kf[PropPositionX], local, tr.Position.X)
	tr.Position.Y = Interpolate(kf[PropPositionY], local, tr.Position.Y)
	tr.Scale.X = Interpolate(kf[PropScaleX], local, tr.Scale.X)
	tr.Scale.Y = Interpolate(kf[PropScaleY], local, tr.Scale.Y)
	tr.Rotation = Interpolate(kf[PropRotation], local, tr.Rotation)
	return tr
}

// Effects returns a copy of the clip's effect stack with keyframed
// parameters interpolated at local.
func (s *Snapshot) Effects(c Clip, local float64) []Effect {
	if len(c.Effects) == 0 {
		return nil
	}
	kf := s.keyframes[c.ID]
	out := make([]Effect, len(c.Effects))
	for i, e := range c.Effects {
		e = e.clone()
		for prop, kfs := range kf {
			rest, ok := strings.CutPrefix(prop, "effect."+e.ID+".")
			if !ok {
				continue
			}
			if e.Params == nil {
				e.Params = make(map[string]float64)
			}
			e.Params[rest] = Interpolate(kfs, local, e.Params[rest])
		}
		out[i] = e
	}
	return out
}

// Speed returns the signed playback speed of the clip at local.
func (s *Snapshot) Speed(c Clip, local float64) float64 {
	return Interpolate(s.keyframes[c.ID][PropSpeed], local, c.BaseSpeed())
}

// SourceTime maps clip-local time to source time by integrating speed from
// the clip start. Forward clips count up from InPoint, reversed clips count
// down from OutPoint; the result is clamped to [InPoint, OutPoint].
func (s *Snapshot) SourceTime(c Clip, local float64) float64 {
	if local < 0 {
		local = 0
	}
	elapsed := integrate(s.keyframes[c.ID][PropSpeed], local, c.BaseSpeed())
	t := c.InPoint + elapsed
	if c.Reversed {
		t = c.OutPoint - elapsed
	}
	if t < c.InPoint {
		return c.InPoint
	}
	if t > c.OutPoint {
		return c.OutPoint
	}
	return t
}

// LocalTime converts a timeline time to clip-local time.
func LocalTime(c Clip, t float64) float64 { return t - c.StartTime }
