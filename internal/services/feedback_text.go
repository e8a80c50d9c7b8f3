package services

import "github.com/yoockh/rehearse/internal/models"

// StrengthThreshold is the score at which a skill is praised.
const StrengthThreshold = 70

const maxTips = 5

// featureTips maps scoring feature names to coaching tips.
var featureTips = map[string]string{
	"silence_ratio":             "Reduce pauses and hesitation in your responses",
	"audio_nervous_prob":        "Practice speaking with a more calm and steady tone",
	"hedge_ratio":               "Use more definitive language instead of hedging phrases like 'maybe' or 'I think'",
	"filler_word_ratio":         "Minimize filler words like 'um', 'uh', 'like', 'you know'",
	"assertive_phrase_ratio":    "Use more assertive language such as 'I did', 'I achieved', 'I led'",
	"monotony_score":            "Add more variation to your voice tone and speaking pace",
	"topic_drift_ratio":         "Stay more focused on the question being asked",
	"semantic_relevance_mean":   "Keep your answers more relevant and on-topic",
	"empathy_phrase_ratio":      "Use more empathetic language like 'I understand', 'I see your point'",
	"reflective_response_ratio": "Show understanding by reflecting back key points",
	"eye_contact_ratio":         "Maintain more consistent eye contact with the camera",
	"audio_confidence_prob":     "Project more confidence through your voice",
	"emotion_consistency":       "Maintain a more consistent emotional tone throughout",
}

type skillText struct {
	strength    string
	improvement string
}

var skillFeedback = []struct {
	score func(models.ScoreVector) int
	text  skillText
}{
	{func(s models.ScoreVector) int { return s.Confidence }, skillText{
		"You spoke with confidence and owned your answers",
		"Focus on projecting confidence through body language and voice",
	}},
	{func(s models.ScoreVector) int { return s.Clarity }, skillText{
		"Your answers were clear and easy to follow",
		"Structure your responses with clear beginnings, middles, and ends",
	}},
	{func(s models.ScoreVector) int { return s.Empathy }, skillText{
		"You showed real engagement with the other person's perspective",
		"Show more engagement and understanding of the interviewer's perspective",
	}},
	{func(s models.ScoreVector) int { return s.Communication }, skillText{
		"You kept the conversation flowing naturally",
		"Give fuller answers that connect back to the question",
	}},
}

var (
	defaultStrengths    = []string{"You completed the full practice session"}
	defaultImprovements = []string{"Keep practicing to build a consistent speaking rhythm"}
	defaultTips         = []string{
		"Use concrete examples with a clear situation, action and result",
		"Pause briefly to collect your thoughts instead of filling silence",
	}
)

// BuildFeedback turns scores, low features and service suggestions into the
// feedback bundle. Every list is non-empty.
func BuildFeedback(scores models.ScoreVector, lowFeatures, suggestions []string) models.Feedback {
	var fb models.Feedback
	for _, sk := range skillFeedback {
		if sk.score(scores) >= StrengthThreshold {
			fb.Strengths = append(fb.Strengths, sk.text.strength)
		} else {
			fb.Improvements = append(fb.Improvements, sk.text.improvement)
		}
	}

	var tips []string
	for _, f := range lowFeatures {
		if tip, ok := featureTips[f]; ok {
			tips = append(tips, tip)
		}
	}
	tips = append(tips, suggestions...)
	fb.Tips = dedupe(tips, maxTips)

	if len(fb.Strengths) == 0 {
		fb.Strengths = append([]string(nil), defaultStrengths...)
	}
	if len(fb.Improvements) == 0 {
		fb.Improvements = append([]string(nil), defaultImprovements...)
	}
	if len(fb.Tips) == 0 {
		fb.Tips = append([]string(nil), defaultTips...)
	}
	return fb
}

func dedupe(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
