package perception

import (
	"time"

	"github.com/yoockh/rehearse/internal/models"
)

// FrameSample is one tick of analysis. It is folded into an Accumulator
// and never stored on its own.
type FrameSample struct {
	Timestamp       time.Time
	FaceDetected    bool
	EyeContact      bool
	HeadMotionDelta float64
	FacialActivity  float64
	// MotionValid is false on the first tick, when there is no previous
	// frame to diff against.
	MotionValid bool

	BodyAnalyzed     bool
	BodyDetected     bool
	ShoulderOpenness float64
	IsGesturing      bool
	GestureMotion    float64
	PostureStability float64
}

// Accumulator folds FrameSamples into running sums. Each ratio keeps its
// own denominator: eye contact counts face ticks only, body metrics count
// body ticks only.
type Accumulator struct {
	start, last time.Time

	frames     int
	faceFrames int
	eyeFrames  int

	// Welford running variance of head motion over face ticks.
	headN    int
	headMean float64
	headM2   float64

	engageSum float64
	engageN   int

	bodyTicks     int
	bodyFrames    int
	opennessSum   float64
	stabilitySum  float64
	gestureOnsets int
	gestureTicks  int
	amplitudeSum  float64
	wasGesturing  bool
}

// Begin resets the accumulator and anchors wall-clock duration at t.
func (a *Accumulator) Begin(t time.Time) {
	*a = Accumulator{start: t, last: t}
}

// Touch extends the measured duration to t, e.g. when sampling stops.
func (a *Accumulator) Touch(t time.Time) {
	if a.start.IsZero() {
		a.start = t
	}
	if t.After(a.last) {
		a.last = t
	}
}

func (a *Accumulator) Add(s FrameSample) {
	a.Touch(s.Timestamp)
	a.frames++

	if s.FaceDetected {
		a.faceFrames++
		if s.EyeContact {
			a.eyeFrames++
		}
		if s.MotionValid {
			a.headN++
			d := s.HeadMotionDelta - a.headMean
			a.headMean += d / float64(a.headN)
			a.headM2 += d * (s.HeadMotionDelta - a.headMean)

			a.engageSum += s.FacialActivity
			a.engageN++
		}
	}

	if !s.BodyAnalyzed {
		return
	}
	a.bodyTicks++
	if s.IsGesturing {
		if !a.wasGesturing {
			a.gestureOnsets++
		}
		a.gestureTicks++
		a.amplitudeSum += s.GestureMotion
	}
	a.wasGesturing = s.IsGesturing
	if s.BodyDetected {
		a.bodyFrames++
		a.opennessSum += s.ShoulderOpenness
		a.stabilitySum += s.PostureStability
	}
}

func (a *Accumulator) Frames() int { return a.frames }

// Metrics computes the aggregate. It does not mutate the accumulator, so
// repeated calls without new samples return identical values.
func (a *Accumulator) Metrics() models.VideoMetrics {
	m := models.VideoMetrics{TotalFrames: a.frames}
	if a.frames == 0 {
		return m
	}
	m.FacePresenceRatio = div(a.faceFrames, a.frames)
	m.EyeContactRatio = div(a.eyeFrames, a.faceFrames)
	if a.headN > 0 {
		m.HeadMotionVariance = a.headM2 / float64(a.headN)
	}
	if a.engageN > 0 {
		m.FacialEngagementScore = a.engageSum / float64(a.engageN)
	}

	if a.bodyTicks > 0 {
		m.BodyDetectedRatio = div(a.bodyFrames, a.bodyTicks)
		if a.bodyFrames > 0 {
			m.ShoulderOpenness = a.opennessSum / float64(a.bodyFrames)
			m.PostureStability = a.stabilitySum / float64(a.bodyFrames)
		}
		if secs := a.last.Sub(a.start).Seconds(); secs > 0 {
			m.GestureFrequency = float64(a.gestureOnsets) / secs
		}
		if a.gestureTicks > 0 {
			m.GestureAmplitude = a.amplitudeSum / float64(a.gestureTicks)
		}
	}
	return m.Sanitized()
}

func div(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
