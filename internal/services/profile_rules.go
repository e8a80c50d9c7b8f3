package services

import (
	"fmt"
	"math"

	"github.com/yoockh/rehearse/internal/models"
)

const (
	OnboardingWeight = 1.0
	DriftWeight      = 0.3
)

// feature ranges used for min-max normalisation into [0,100]
type featureRange struct{ lo, hi float64 }

var (
	rangeSpeechRate = featureRange{80, 180} // wpm
	rangeTopicDrift = featureRange{0, 0.5}  // ratio of off-topic answers
	rangeFiller     = featureRange{0, 0.15} // filler words per word
	rangeHedge      = featureRange{0, 0.3}  // hedge phrases per sentence
	rangeAssertive  = featureRange{0, 0.4}  // assertive phrases per sentence
	rangeEmpathy    = featureRange{0, 0.2}  // empathy phrases per sentence
	rangeSentiment  = featureRange{-1, 1}   // polarity
)

func (r featureRange) norm(v float64) float64 {
	if math.IsNaN(v) || r.hi <= r.lo {
		return models.Neutral
	}
	return models.Clamp01((v-r.lo)/(r.hi-r.lo)) * 100
}

func lookup(ms ...map[string]float64) func(string) (float64, bool) {
	return func(name string) (float64, bool) {
		for _, m := range ms {
			if v, ok := m[name]; ok {
				return v, true
			}
		}
		return 0, false
	}
}

func toScore(v float64) int {
	return min(max(int(math.Round(v)), 0), 100)
}

// ExtractMetrics maps one session analysis onto the seven profile
// dimensions. A dimension whose source features are missing falls back to
// the closest skill score.
func ExtractMetrics(a models.SessionAnalysis) models.ProfileMetrics {
	get := lookup(a.TextMetrics, a.AudioMetrics)
	sc := a.Scores
	m := models.NeutralMetrics()

	if v, ok := get("speech_rate_wpm"); ok {
		m[models.DimPacing] = toScore(rangeSpeechRate.norm(v))
	}

	if v, ok := get("topic_drift_ratio"); ok {
		m[models.DimStructure] = toScore(100 - rangeTopicDrift.norm(v))
	} else {
		m[models.DimStructure] = sc.Clarity
	}

	var hes []float64
	if v, ok := get("filler_word_ratio"); ok {
		hes = append(hes, rangeFiller.norm(v))
	}
	if v, ok := get("hedge_ratio"); ok {
		hes = append(hes, rangeHedge.norm(v))
	}
	if len(hes) > 0 {
		sum := 0.0
		for _, h := range hes {
			sum += h
		}
		m[models.DimHesitation] = toScore(sum / float64(len(hes)))
	} else {
		m[models.DimHesitation] = 100 - sc.Confidence
	}

	if v, ok := get("assertive_phrase_ratio"); ok {
		m[models.DimAssertiveness] = toScore(rangeAssertive.norm(v))
	} else {
		m[models.DimAssertiveness] = sc.Confidence
	}

	m[models.DimClarity] = sc.Clarity

	if v, ok := get("empathy_phrase_ratio"); ok {
		m[models.DimWarmth] = toScore(rangeEmpathy.norm(v))
	} else {
		m[models.DimWarmth] = sc.Empathy
	}

	switch v, ok := get("avg_sentiment"); {
	case a.Video != nil && a.Video.TotalFrames > 0:
		m[models.DimEnergy] = toScore(a.Video.FacialEngagementScore * 100)
	case ok:
		m[models.DimEnergy] = toScore(rangeSentiment.norm(v))
	default:
		m[models.DimEnergy] = sc.Communication
	}

	for _, d := range models.Dimensions {
		m[d] = min(max(m[d], 0), 100)
	}
	return m
}

// Blend returns round(old*(1-w) + incoming*w) per dimension.
func Blend(old, incoming models.ProfileMetrics, w float64) models.ProfileMetrics {
	w = math.Min(math.Max(w, 0), 1)
	out := make(models.ProfileMetrics, len(models.Dimensions))
	for _, d := range models.Dimensions {
		o, ok := old[d]
		if !ok {
			o = models.Neutral
		}
		out[d] = toScore(float64(o)*(1-w) + float64(incoming[d])*w)
	}
	return out
}

// confidenceComposite averages assertiveness, fluency and energy.
func confidenceComposite(m models.ProfileMetrics) float64 {
	return float64(m[models.DimAssertiveness]+(100-m[models.DimHesitation])+m[models.DimEnergy]) / 3
}

type dispositionRule struct {
	label models.Disposition
	when  func(m models.ProfileMetrics) bool
}

// dispositionRules are evaluated top to bottom; the last always matches.
var dispositionRules = []dispositionRule{
	{models.DispositionAnxious, func(m models.ProfileMetrics) bool {
		return m[models.DimHesitation] > 70 && confidenceComposite(m) < 40
	}},
	{models.DispositionOverconfident, func(m models.ProfileMetrics) bool {
		return m[models.DimAssertiveness] > 80 && m[models.DimWarmth] < 35 && m[models.DimPacing] > 70
	}},
	{models.DispositionCautious, func(m models.ProfileMetrics) bool {
		return m[models.DimHesitation] > 55 || m[models.DimAssertiveness] < 40
	}},
	{models.DispositionConfident, func(m models.ProfileMetrics) bool {
		return confidenceComposite(m) > 65 && m[models.DimHesitation] < 40
	}},
	{models.DispositionNeutral, func(models.ProfileMetrics) bool { return true }},
}

type archetypeRule struct {
	label models.Archetype
	when  func(m models.ProfileMetrics) bool
}

var archetypeRules = []archetypeRule{
	{models.ArchetypeClearDirector, func(m models.ProfileMetrics) bool {
		return m[models.DimAssertiveness] > 60 && m[models.DimClarity] > 55 && m[models.DimStructure] > 50
	}},
	{models.ArchetypeWarmConnector, func(m models.ProfileMetrics) bool {
		return m[models.DimWarmth] > 65 && m[models.DimEnergy] > 50
	}},
	{models.ArchetypeAnalyticalArchitect, func(m models.ProfileMetrics) bool {
		return m[models.DimStructure] > 65 && m[models.DimPacing] < 55
	}},
	{models.ArchetypeEnergeticStoryteller, func(m models.ProfileMetrics) bool {
		return m[models.DimEnergy] > 65 && m[models.DimPacing] > 55
	}},
	{models.ArchetypeReflectiveExplorer, func(models.ProfileMetrics) bool { return true }},
}

func ClassifyDisposition(m models.ProfileMetrics) models.Disposition {
	for _, r := range dispositionRules {
		if r.when(m) {
			return r.label
		}
	}
	return models.DispositionNeutral
}

func ClassifyArchetype(m models.ProfileMetrics) models.Archetype {
	for _, r := range archetypeRules {
		if r.when(m) {
			return r.label
		}
	}
	return models.ArchetypeReflectiveExplorer
}

type Direction string

const (
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
)

// SelectFocus picks the dimension furthest from neutral. Ties go to the
// earlier dimension.
func SelectFocus(m models.ProfileMetrics) (models.Dimension, Direction) {
	best, bestDev := models.Dimensions[0], -1
	for _, d := range models.Dimensions {
		dev := m[d] - models.Neutral
		if dev < 0 {
			dev = -dev
		}
		if dev > bestDev {
			best, bestDev = d, dev
		}
	}
	if m[best] < models.Neutral {
		return best, DirectionLow
	}
	return best, DirectionHigh
}

type focusText struct {
	rationale  string
	experiment string
}

type focusKey struct {
	dim models.Dimension
	dir Direction
}

var focusTable = map[focusKey]focusText{
	{models.DimPacing, DirectionLow}: {
		"Your answers unfold slowly, which can make listeners lose the thread.",
		"In your next session, try answering one question in under 45 seconds.",
	},
	{models.DimPacing, DirectionHigh}: {
		"You speak quickly, which can make it hard for listeners to keep up.",
		"Take one deliberate breath before each answer and pause after your key point.",
	},
	{models.DimStructure, DirectionLow}: {
		"Your answers tend to wander away from the question.",
		"Start your next three answers by restating the question in one sentence.",
	},
	{models.DimStructure, DirectionHigh}: {
		"Your answers are tightly organized, which is a strength to build on.",
		"Try adding one personal detail to a well-structured answer to make it memorable.",
	},
	{models.DimHesitation, DirectionLow}: {
		"You speak fluently with very little hesitation.",
		"Use that fluency to add a short pause before your most important point.",
	},
	{models.DimHesitation, DirectionHigh}: {
		"Fillers and hedges are softening what you say.",
		"Replace one 'I think' with a direct statement in each answer next session.",
	},
	{models.DimAssertiveness, DirectionLow}: {
		"You often hold back from stating your own role and results.",
		"Use 'I decided' or 'I led' at least once in each answer next session.",
	},
	{models.DimAssertiveness, DirectionHigh}: {
		"You state your views strongly, which can leave little room for others.",
		"Ask the other person one question about their view before making your point.",
	},
	{models.DimClarity, DirectionLow}: {
		"Your main point is sometimes hard to pick out.",
		"Lead with your conclusion, then give one supporting example.",
	},
	{models.DimClarity, DirectionHigh}: {
		"Your points land clearly.",
		"Challenge yourself with a harder scenario to keep that clarity under pressure.",
	},
	{models.DimWarmth, DirectionLow}: {
		"Your answers can come across as detached from the other person.",
		"Acknowledge the question or the other person's view once before answering.",
	},
	{models.DimWarmth, DirectionHigh}: {
		"You connect easily and make people feel heard.",
		"Pair that warmth with one concrete result in each answer.",
	},
	{models.DimEnergy, DirectionLow}: {
		"Your delivery can feel flat, which makes strong content easy to miss.",
		"Vary your tone on the one sentence you most want remembered.",
	},
	{models.DimEnergy, DirectionHigh}: {
		"You bring a lot of energy to the conversation.",
		"Try one answer at a calmer pace and notice how it changes the response.",
	},
}

var dimensionLabels = map[models.Dimension]string{
	models.DimPacing:        "Pacing",
	models.DimStructure:     "Structure",
	models.DimHesitation:    "Hesitation",
	models.DimAssertiveness: "Assertiveness",
	models.DimClarity:       "Clarity",
	models.DimWarmth:        "Warmth",
	models.DimEnergy:        "Energy",
}

var dispositionPhrases = map[models.Disposition]string{
	models.DispositionAnxious:       "a little tense, with hesitation showing when answers get long",
	models.DispositionOverconfident: "very sure of yourself, sometimes moving faster than your listener",
	models.DispositionCautious:      "careful and measured, holding back before committing to a point",
	models.DispositionConfident:     "steady and self-assured",
	models.DispositionNeutral:       "balanced, without a strong lean in any direction",
}

type archetypeText struct {
	label       string
	description string
}

var archetypeTexts = map[models.Archetype]archetypeText{
	models.ArchetypeClearDirector:        {"Clear Director", "you lead with the point and keep answers organized"},
	models.ArchetypeWarmConnector:        {"Warm Connector", "you build rapport and make people feel heard"},
	models.ArchetypeAnalyticalArchitect:  {"Analytical Architect", "you build answers carefully, step by step"},
	models.ArchetypeEnergeticStoryteller: {"Energetic Storyteller", "you bring energy and pull listeners into your stories"},
	models.ArchetypeReflectiveExplorer:   {"Reflective Explorer", "you think out loud and explore ideas as you go"},
}

var dispositionHints = map[models.Disposition]string{
	models.DispositionAnxious:       "Use a warm, encouraging tone and acknowledge effort before probing further.",
	models.DispositionOverconfident: "Ask for evidence and invite the user to consider other perspectives.",
	models.DispositionCautious:      "Invite the user to commit to a clear position by asking what they would decide.",
	models.DispositionConfident:     "Raise the difficulty with probing follow-up questions.",
	models.DispositionNeutral:       "Keep a friendly, even tone.",
}

var archetypeHints = map[models.Archetype]string{
	models.ArchetypeClearDirector:        "Ask how they bring other people along, not only what they decided.",
	models.ArchetypeWarmConnector:        "Ask for concrete outcomes behind their stories.",
	models.ArchetypeAnalyticalArchitect:  "Ask them to give the headline first and the detail second.",
	models.ArchetypeEnergeticStoryteller: "Ask them to sum up the key takeaway in one sentence.",
	models.ArchetypeReflectiveExplorer:   "Ask one focused question at a time and request a concrete example.",
}

func StyleLabel(a models.Archetype) string { return archetypeTexts[a].label }

// Reflect renders the dashboard reflection for a classification.
func Reflect(d models.Disposition, a models.Archetype) string {
	at := archetypeTexts[a]
	return fmt.Sprintf("You come across as %s. Your style is closest to the %s: %s.",
		dispositionPhrases[d], at.label, at.description)
}

// FocusText returns the focus label, rationale and experiment.
func FocusText(dim models.Dimension, dir Direction) (label, rationale, experiment string) {
	t := focusTable[focusKey{dim, dir}]
	return dimensionLabels[dim], t.rationale, t.experiment
}

// HintsFor returns the dialogue adaptation hints for a classification.
func HintsFor(d models.Disposition, a models.Archetype) []string {
	var out []string
	if h, ok := dispositionHints[d]; ok {
		out = append(out, h)
	}
	if h, ok := archetypeHints[a]; ok {
		out = append(out, h)
	}
	return out
}
