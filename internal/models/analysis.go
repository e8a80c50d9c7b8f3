package models

import "math"

// VideoMetrics is the session-level aggregate of perception frame samples.
// Every ratio is in [0,1]; GestureFrequency is gestures per second.
type VideoMetrics struct {
	FacePresenceRatio     float64 `bson:"face_presence_ratio" json:"face_presence_ratio"`
	EyeContactRatio       float64 `bson:"eye_contact_ratio" json:"eye_contact_ratio"`
	HeadMotionVariance    float64 `bson:"head_motion_variance" json:"head_motion_variance"`
	FacialEngagementScore float64 `bson:"facial_engagement_score" json:"facial_engagement_score"`
	BodyDetectedRatio     float64 `bson:"body_detected_ratio" json:"body_detected_ratio"`
	ShoulderOpenness      float64 `bson:"shoulder_openness" json:"shoulder_openness"`
	GestureFrequency      float64 `bson:"gesture_frequency" json:"gesture_frequency"`
	PostureStability      float64 `bson:"posture_stability" json:"posture_stability"`
	GestureAmplitude      float64 `bson:"gesture_amplitude" json:"gesture_amplitude"`
	TotalFrames           int     `bson:"total_frames" json:"total_frames"`
}

// Sanitized clamps client-supplied values into their documented ranges.
func (v VideoMetrics) Sanitized() VideoMetrics {
	c := func(x float64) float64 { return Round3(Clamp01(x)) }
	out := VideoMetrics{
		FacePresenceRatio:     c(v.FacePresenceRatio),
		EyeContactRatio:       c(v.EyeContactRatio),
		HeadMotionVariance:    c(v.HeadMotionVariance),
		FacialEngagementScore: c(v.FacialEngagementScore),
		BodyDetectedRatio:     c(v.BodyDetectedRatio),
		ShoulderOpenness:      c(v.ShoulderOpenness),
		GestureFrequency:      c(v.GestureFrequency),
		PostureStability:      c(v.PostureStability),
		GestureAmplitude:      c(v.GestureAmplitude),
		TotalFrames:           v.TotalFrames,
	}
	if out.TotalFrames < 0 {
		out.TotalFrames = 0
	}
	return out
}

// AsFeatures flattens the aggregate into the scoring service's feature names.
func (v VideoMetrics) AsFeatures() map[string]float64 {
	return map[string]float64{
		"face_presence_ratio":     v.FacePresenceRatio,
		"eye_contact_ratio":       v.EyeContactRatio,
		"head_motion_variance":    v.HeadMotionVariance,
		"facial_engagement_score": v.FacialEngagementScore,
		"body_detected_ratio":     v.BodyDetectedRatio,
		"shoulder_openness":       v.ShoulderOpenness,
		"gesture_frequency":       v.GestureFrequency,
		"posture_stability":       v.PostureStability,
		"gesture_amplitude":       v.GestureAmplitude,
		"total_frames":            float64(v.TotalFrames),
		"video_available":         1,
	}
}

type ScoreVector struct {
	Confidence    int `bson:"confidence" json:"confidence"`
	Clarity       int `bson:"clarity" json:"clarity"`
	Empathy       int `bson:"empathy" json:"empathy"`
	Communication int `bson:"communication" json:"communication"`
	Overall       int `bson:"overall" json:"overall"`
}

// Clamped forces every component into [0,100].
func (s ScoreVector) Clamped() ScoreVector {
	c := func(v int) int { return min(max(v, 0), 100) }
	return ScoreVector{
		Confidence:    c(s.Confidence),
		Clarity:       c(s.Clarity),
		Empathy:       c(s.Empathy),
		Communication: c(s.Communication),
		Overall:       c(s.Overall),
	}
}

type Feedback struct {
	Strengths    []string `bson:"strengths" json:"strengths"`
	Improvements []string `bson:"improvements" json:"improvements"`
	Tips         []string `bson:"tips" json:"tips"`
}

// SessionAnalysis is the scoring pipeline's output for one session.
type SessionAnalysis struct {
	Scores       ScoreVector        `json:"scores"`
	Feedback     Feedback           `json:"feedback"`
	LowFeatures  []string           `json:"low_features"`
	Suggestions  []string           `json:"improvement_suggestions"`
	TextMetrics  map[string]float64 `json:"text_metrics,omitempty"`
	AudioMetrics map[string]float64 `json:"audio_metrics,omitempty"`
	Video        *VideoMetrics      `json:"video_metrics,omitempty"`
	Source       string             `json:"source"` // ml|placeholder
}

func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
