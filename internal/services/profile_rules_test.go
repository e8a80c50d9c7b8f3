package services

import (
	"math"
	"testing"

	"github.com/yoockh/rehearse/internal/models"
)

func metrics(pacing, structure, hesitation, assertiveness, clarity, warmth, energy int) models.ProfileMetrics {
	return models.ProfileMetrics{
		models.DimPacing:        pacing,
		models.DimStructure:     structure,
		models.DimHesitation:    hesitation,
		models.DimAssertiveness: assertiveness,
		models.DimClarity:       clarity,
		models.DimWarmth:        warmth,
		models.DimEnergy:        energy,
	}
}

func TestBlendOnboardingReplaces(t *testing.T) {
	old := metrics(10, 20, 30, 40, 50, 60, 70)
	in := metrics(91, 82, 73, 64, 55, 46, 37)
	got := Blend(old, in, OnboardingWeight)
	for _, d := range models.Dimensions {
		if got[d] != in[d] {
			t.Fatalf("%s = %d, want %d", d, got[d], in[d])
		}
	}
}

func TestBlendDrift(t *testing.T) {
	old := metrics(50, 20, 90, 0, 100, 33, 71)
	in := metrics(80, 60, 10, 100, 0, 77, 12)
	got := Blend(old, in, DriftWeight)
	for _, d := range models.Dimensions {
		want := int(math.Round(float64(old[d])*0.7 + float64(in[d])*0.3))
		if got[d] != want {
			t.Fatalf("%s = %d, want %d", d, got[d], want)
		}
	}
}

func TestClassifyDisposition(t *testing.T) {
	tests := []struct {
		name string
		m    models.ProfileMetrics
		want models.Disposition
	}{
		// composite = (20 + 20 + 30)/3 = 23.3
		{"anxious", metrics(50, 50, 80, 20, 50, 50, 30), models.DispositionAnxious},
		{"overconfident", metrics(75, 50, 20, 85, 50, 30, 60), models.DispositionOverconfident},
		{"cautious by hesitation", metrics(50, 50, 60, 60, 50, 50, 60), models.DispositionCautious},
		{"cautious by assertiveness", metrics(50, 50, 30, 35, 50, 50, 60), models.DispositionCautious},
		// composite = (75 + 70 + 70)/3 = 71.7
		{"confident", metrics(50, 50, 30, 75, 50, 50, 70), models.DispositionConfident},
		{"neutral", models.NeutralMetrics(), models.DispositionNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDisposition(tt.m); got != tt.want {
				t.Fatalf("ClassifyDisposition = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyArchetype(t *testing.T) {
	tests := []struct {
		name string
		m    models.ProfileMetrics
		want models.Archetype
	}{
		{"clear director", metrics(50, 51, 50, 61, 56, 50, 50), models.ArchetypeClearDirector},
		{"director wins over connector", metrics(50, 70, 50, 70, 70, 90, 90), models.ArchetypeClearDirector},
		{"warm connector", metrics(50, 50, 50, 50, 50, 66, 51), models.ArchetypeWarmConnector},
		{"analytical architect", metrics(40, 70, 50, 50, 50, 50, 50), models.ArchetypeAnalyticalArchitect},
		{"energetic storyteller", metrics(60, 50, 50, 50, 50, 50, 70), models.ArchetypeEnergeticStoryteller},
		{"catch-all", models.NeutralMetrics(), models.ArchetypeReflectiveExplorer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyArchetype(tt.m); got != tt.want {
				t.Fatalf("ClassifyArchetype = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectFocus(t *testing.T) {
	dim, dir := SelectFocus(metrics(55, 50, 80, 50, 50, 50, 50))
	if dim != models.DimHesitation || dir != DirectionHigh {
		t.Fatalf("focus = %s/%s", dim, dir)
	}
	dim, dir = SelectFocus(metrics(50, 50, 50, 50, 50, 20, 50))
	if dim != models.DimWarmth || dir != DirectionLow {
		t.Fatalf("focus = %s/%s", dim, dir)
	}
	// equal deviations resolve to the earlier dimension
	dim, _ = SelectFocus(metrics(50, 30, 50, 50, 50, 50, 70))
	if dim != models.DimStructure {
		t.Fatalf("tie focus = %s, want structure", dim)
	}
}

func TestFocusTableComplete(t *testing.T) {
	for _, d := range models.Dimensions {
		for _, dir := range []Direction{DirectionLow, DirectionHigh} {
			label, rationale, experiment := FocusText(d, dir)
			if label == "" || rationale == "" || experiment == "" {
				t.Errorf("missing focus text for %s/%s", d, dir)
			}
		}
	}
}

func TestExtractMetricsFromRawFeatures(t *testing.T) {
	a := models.SessionAnalysis{
		Scores: models.ScoreVector{Confidence: 10, Clarity: 64, Empathy: 10, Communication: 10},
		TextMetrics: map[string]float64{
			"topic_drift_ratio":      0.25,
			"filler_word_ratio":      0.15,
			"hedge_ratio":            0,
			"assertive_phrase_ratio": 0.1,
			"empathy_phrase_ratio":   0.3,
		},
		AudioMetrics: map[string]float64{"speech_rate_wpm": 130},
		Video:        &models.VideoMetrics{FacialEngagementScore: 0.42, TotalFrames: 50},
	}
	got := ExtractMetrics(a)
	want := metrics(50, 50, 50, 25, 64, 100, 42)
	for _, d := range models.Dimensions {
		if got[d] != want[d] {
			t.Errorf("%s = %d, want %d", d, got[d], want[d])
		}
	}
}

func TestExtractMetricsFallsBackToScores(t *testing.T) {
	a := models.SessionAnalysis{Scores: models.ScoreVector{Confidence: 80, Clarity: 65, Empathy: 40, Communication: 72}}
	got := ExtractMetrics(a)
	want := metrics(models.Neutral, 65, 20, 80, 65, 40, 72)
	for _, d := range models.Dimensions {
		if got[d] != want[d] {
			t.Errorf("%s = %d, want %d", d, got[d], want[d])
		}
	}
}

func TestHintsAndReflection(t *testing.T) {
	hints := HintsFor(models.DispositionAnxious, models.ArchetypeWarmConnector)
	if len(hints) != 2 || hints[0] != dispositionHints[models.DispositionAnxious] {
		t.Fatalf("hints = %v", hints)
	}
	if r := Reflect(models.DispositionConfident, models.ArchetypeClearDirector); r == "" {
		t.Fatal("empty reflection")
	}
	if StyleLabel(models.ArchetypeAnalyticalArchitect) != "Analytical Architect" {
		t.Fatal("wrong style label")
	}
}
