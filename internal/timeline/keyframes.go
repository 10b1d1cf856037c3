package timeline

import (
	"math"
	"sort"
)

// Easing selects the curve between a keyframe and the next one.
type Easing string

const (
	EaseLinear Easing = "linear"
	EaseIn     Easing = "ease-in"
	EaseOut    Easing = "ease-out"
	EaseInOut  Easing = "ease-in-out"
	EaseHold   Easing = "hold"
)

// Keyframeable properties. Effect parameters use EffectProperty.
const (
	PropOpacity   = "opacity"
	PropPositionX = "position.x"
	PropPositionY = "position.y"
	PropScaleX    = "scale.x"
	PropScaleY    = "scale.y"
	PropRotation  = "rotation"
	PropSpeed     = "speed"
)

// EffectProperty names the keyframe property of an effect parameter.
func EffectProperty(effectID, param string) string {
	return "effect." + effectID + "." + param
}

// Keyframe is a value of one clip property at a clip-local time.
type Keyframe struct {
	ClipID   ClipID  `json:"clipId"`
	Time     float64 `json:"time"`
	Property string  `json:"property"`
	Value    float64 `json:"value"`
	Easing   Easing  `json:"easing,omitempty"`
}

// groupKeyframes splits kfs by property, each group sorted by time.
func groupKeyframes(kfs []Keyframe) map[string][]Keyframe {
	out := make(map[string][]Keyframe)
	for _, kf := range kfs {
		out[kf.Property] = append(out[kf.Property], kf)
	}
	for _, g := range out {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Time < g[j].Time })
	}
	return out
}

func ease(e Easing, p float64) float64 {
	switch e {
	case EaseIn:
		return p * p
	case EaseOut:
		return 1 - (1-p)*(1-p)
	case EaseInOut:
		return 0.5 - math.Cos(p*math.Pi)/2
	case EaseHold:
		return 0
	default:
		return p
	}
}

// Interpolate evaluates a time-sorted keyframe list at t. Outside the first
// and last keyframe the boundary value holds; an empty list yields fallback.
func Interpolate(kfs []Keyframe, t, fallback float64) float64 {
	n := len(kfs)
	if n == 0 {
		return fallback
	}
	if t <= kfs[0].Time {
		return kfs[0].Value
	}
	if t >= kfs[n-1].Time {
		return kfs[n-1].Value
	}
	i := sort.Search(n, func(i int) bool { return kfs[i].Time > t }) - 1
	a, b := kfs[i], kfs[i+1]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	p := ease(a.Easing, (t-a.Time)/span)
	return a.Value + (b.Value-a.Value)*p
}

// integrate returns the integral of the keyframed curve over [0, t],
// using fallback where there are no keyframes. Each keyframe segment is
// integrated with Simpson's rule, which is exact for linear segments.
func integrate(kfs []Keyframe, t, fallback float64) float64 {
	if t <= 0 {
		return 0
	}
	if len(kfs) == 0 {
		return fallback * t
	}

	bounds := []float64{0}
	for _, kf := range kfs {
		if kf.Time > 0 && kf.Time < t {
			bounds = append(bounds, kf.Time)
		}
	}
	bounds = append(bounds, t)

	const steps = 16 // even
	total := 0.0
	for i := 0; i+1 < len(bounds); i++ {
		a, b := bounds[i], bounds[i+1]
		h := (b - a) / steps
		if h <= 0 {
			continue
		}
		// left limit at b so a hold segment does not pick up the next value
		sum := Interpolate(kfs, a, fallback) + Interpolate(kfs, b-1e-9, fallback)
		for k := 1; k < steps; k++ {
			w := 2.0
			if k%2 == 1 {
				w = 4
			}
			sum += w * Interpolate(kfs, a+float64(k)*h, fallback)
		}
		total += sum * h / 3
	}
	return total
}
