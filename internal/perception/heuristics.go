package perception

import (
	"math"

	"github.com/yoockh/rehearse/internal/models"
)

const (
	FaceThreshold = 0.15

	EyeLumMin      = 50.0
	EyeLumMax      = 220.0
	EyeLumMaxDelta = 30.0

	MotionStride = 16 // bytes between motion samples

	TooStill    = 0.01
	TooMuch     = 0.15
	StillScore  = 0.2
	FidgetScore = 0.3

	BodyThreshold    = 0.3
	GestureThreshold = 0.08
)

// IsSkin is the RGB skin-tone rule.
func IsSkin(r, g, b uint8) bool {
	ri, gi, bi := int(r), int(g), int(b)
	return ri > 60 && gi > 40 && bi > 20 &&
		ri > gi && ri > bi &&
		ri-gi > 15 && ri-bi > 15
}

// isBodyTone accepts skin or mid-luminance saturated colours (clothing).
func isBodyTone(r, g, b uint8) bool {
	if IsSkin(r, g, b) {
		return true
	}
	lum := luminance(r, g, b)
	spread := int(max(r, g, b)) - int(min(r, g, b))
	return lum >= 30 && lum <= 200 && spread > 20
}

func luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func ratio(s *Surface, reg Region, match func(r, g, b uint8) bool) float64 {
	reg = reg.clip(s)
	if reg.Empty() {
		return 0
	}
	var hit, total int
	for y := reg.Y0; y < reg.Y1; y++ {
		for x := reg.X0; x < reg.X1; x++ {
			if match(s.RGB(x, y)) {
				hit++
			}
			total++
		}
	}
	return float64(hit) / float64(total)
}

// SkinRatio is the fraction of reg matching IsSkin.
func SkinRatio(s *Surface, reg Region) float64 { return ratio(s, reg, IsSkin) }

func faceRegion(s *Surface) Region { return s.Rel(0.25, 0.25, 0.75, 0.75) }

func eyeRegion(s *Surface) Region { return s.Rel(0.375, 0.25, 0.625, 0.5) }

// DetectFace reports whether the centre region looks like a face.
func DetectFace(s *Surface) (bool, float64) {
	r := SkinRatio(s, faceRegion(s))
	return r > FaceThreshold, r
}

// MeanLuminance of reg, 0 when reg is empty.
func MeanLuminance(s *Surface, reg Region) float64 {
	reg = reg.clip(s)
	if reg.Empty() {
		return 0
	}
	var sum float64
	for y := reg.Y0; y < reg.Y1; y++ {
		for x := reg.X0; x < reg.X1; x++ {
			sum += luminance(s.RGB(x, y))
		}
	}
	return sum / float64((reg.X1-reg.X0)*(reg.Y1-reg.Y0))
}

// EyeContact applies the luminance stability proxy to the eye sub-region.
// prev is the previous tick's luminance; hasPrev is false on the first tick.
func EyeContact(s *Surface, prev float64, hasPrev bool) (bool, float64) {
	lum := MeanLuminance(s, eyeRegion(s))
	if lum < EyeLumMin || lum > EyeLumMax {
		return false, lum
	}
	if hasPrev && math.Abs(lum-prev) >= EyeLumMaxDelta {
		return false, lum
	}
	return true, lum
}

// EstimateMotion is the mean absolute byte delta between two frames over
// every MotionStride-th byte, normalised to [0,1]. Mismatched frames give 0.
func EstimateMotion(curr, prev *Surface) float64 {
	if !curr.sameSize(prev) || len(curr.Pix) == 0 {
		return 0
	}
	var sum, n int
	for i := 0; i < len(curr.Pix); i += MotionStride {
		d := int(curr.Pix[i]) - int(prev.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
		n++
	}
	return float64(sum) / float64(n) / 255
}

// RegionMotion is EstimateMotion restricted to reg. It samples every fourth
// pixel of each row, the same byte stride as the full-frame estimate.
func RegionMotion(curr, prev *Surface, reg Region) float64 {
	if !curr.sameSize(prev) {
		return 0
	}
	reg = reg.clip(curr)
	if reg.Empty() {
		return 0
	}
	step := MotionStride / 4
	var sum, n int
	for y := reg.Y0; y < reg.Y1; y++ {
		for x := reg.X0; x < reg.X1; x += step {
			i := (y*curr.W + x) * 4
			d := int(curr.Pix[i]) - int(prev.Pix[i])
			if d < 0 {
				d = -d
			}
			sum += d
			n++
		}
	}
	return float64(sum) / float64(n) / 255
}

// Engagement maps frame motion through the three-band curve. Both extremes
// score low; excess motion is also flagged as fidgety.
func Engagement(motion float64) (score float64, fidgety bool) {
	switch {
	case motion < TooStill:
		return StillScore, false
	case motion > TooMuch:
		return FidgetScore, true
	default:
		return 0.4 + (motion-TooStill)/(TooMuch-TooStill)*0.6, false
	}
}

// Posture is the body/gesture estimate for one tick.
type Posture struct {
	BodyDetected     bool
	ShoulderOpenness float64
	IsGesturing      bool
	GestureMotion    float64
	PostureStability float64
}

// AnalyzeBody inspects the lower half of the frame split into left, centre
// and right thirds. prev may be nil, in which case no motion is measured and
// posture is reported as stable.
func AnalyzeBody(curr, prev *Surface) Posture {
	left := curr.Rel(0, 0.5, 1.0/3, 1)
	center := curr.Rel(1.0/3, 0.5, 2.0/3, 1)
	right := curr.Rel(2.0/3, 0.5, 1, 1)

	centerRatio := ratio(curr, center, isBodyTone)
	p := Posture{BodyDetected: centerRatio > BodyThreshold, PostureStability: 1}
	if centerRatio > 0 {
		side := (ratio(curr, left, isBodyTone) + ratio(curr, right, isBodyTone)) / 2
		p.ShoulderOpenness = models.Clamp01(side / centerRatio)
	}

	if prev == nil || !curr.sameSize(prev) {
		return p
	}
	leftArm := curr.Rel(0, 0.5, 0.25, 1)
	rightArm := curr.Rel(0.75, 0.5, 1, 1)
	p.GestureMotion = models.Clamp01(max(RegionMotion(curr, prev, leftArm), RegionMotion(curr, prev, rightArm)))
	p.IsGesturing = p.GestureMotion > GestureThreshold

	torso := RegionMotion(curr, prev, center)
	p.PostureStability = 1 - math.Min(1, torso*5)
	return p
}
