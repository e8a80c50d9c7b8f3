package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/yoockh/rehearse/internal/cache"
	"github.com/yoockh/rehearse/internal/logger"
	"github.com/yoockh/rehearse/internal/models"
)

func strongAnalysis() models.SessionAnalysis {
	return models.SessionAnalysis{
		Scores: models.ScoreVector{Confidence: 90, Clarity: 85, Empathy: 40, Communication: 80, Overall: 74},
		Source: SourcePlaceholder,
	}
}

func TestUpdateProfileOnboardingSetsBaseline(t *testing.T) {
	repo := newMemProfiles()
	svc := NewProfileService(repo, nil, 0, logger.Discard())
	ctx := context.Background()

	a := strongAnalysis()
	p, err := svc.UpdateProfile(ctx, "u1", a, true)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got := models.MetricsFromVector(p.Metrics)
	want := ExtractMetrics(a)
	for _, d := range models.Dimensions {
		if got[d] != want[d] {
			t.Fatalf("%s = %d, want %d (onboarding replaces)", d, got[d], want[d])
		}
	}
	if !p.HasBaseline || p.SessionCount != 1 {
		t.Fatalf("baseline=%v count=%d", p.HasBaseline, p.SessionCount)
	}
	if len(p.AdaptationHints) == 0 || p.Reflection == "" || p.MicroExperiment == "" {
		t.Fatalf("derived text missing: %#v", p)
	}

	has, err := svc.HasBaseline(ctx, "u1")
	if err != nil || !has {
		t.Fatalf("HasBaseline = %v, %v", has, err)
	}
}

func TestUpdateProfileDrifts(t *testing.T) {
	repo := newMemProfiles()
	svc := NewProfileService(repo, nil, 0, logger.Discard())
	ctx := context.Background()

	first := strongAnalysis()
	if _, err := svc.UpdateProfile(ctx, "u1", first, true); err != nil {
		t.Fatal(err)
	}
	second := models.SessionAnalysis{Scores: models.ScoreVector{Confidence: 10, Clarity: 10, Empathy: 10, Communication: 10}}
	p, err := svc.UpdateProfile(ctx, "u1", second, false)
	if err != nil {
		t.Fatal(err)
	}

	want := Blend(ExtractMetrics(first), ExtractMetrics(second), DriftWeight)
	got := models.MetricsFromVector(p.Metrics)
	for _, d := range models.Dimensions {
		if got[d] != want[d] {
			t.Fatalf("%s = %d, want %d", d, got[d], want[d])
		}
	}
	if p.SessionCount != 2 || !p.HasBaseline {
		t.Fatalf("count=%d baseline=%v", p.SessionCount, p.HasBaseline)
	}
}

func TestProfileViewHidesMetrics(t *testing.T) {
	repo := newMemProfiles()
	svc := NewProfileService(repo, nil, 0, logger.Discard())
	ctx := context.Background()
	if _, err := svc.UpdateProfile(ctx, "u1", strongAnalysis(), true); err != nil {
		t.Fatal(err)
	}

	v, err := svc.GetView(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(v)
	var fields map[string]any
	_ = json.Unmarshal(raw, &fields)
	for _, banned := range []string{"metrics", "adaptation_hints", "last_analysis"} {
		if _, ok := fields[banned]; ok {
			t.Fatalf("view exposes %q: %s", banned, raw)
		}
	}
	for _, d := range models.Dimensions {
		if _, ok := fields[string(d)]; ok {
			t.Fatalf("view exposes dimension %q", d)
		}
	}
	if v.StyleLabel == "" || v.FocusArea == "" {
		t.Fatalf("view incomplete: %#v", v)
	}

	// the stored profile does not leak metrics when serialized either
	p, _ := repo.GetByUserID(ctx, "u1")
	raw, _ = json.Marshal(p)
	if strings.Contains(string(raw), `"metrics"`) {
		t.Fatalf("profile json exposes metrics: %s", raw)
	}
}

func TestProfileViewNewUser(t *testing.T) {
	svc := NewProfileService(newMemProfiles(), nil, 0, logger.Discard())
	v, err := svc.GetView(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if v.HasBaseline || v.SessionCount != 0 || v.Style != models.ArchetypeReflectiveExplorer {
		t.Fatalf("new-user view = %#v", v)
	}
	hints, err := svc.AdaptationHints(context.Background(), "nobody")
	if err != nil || len(hints) != 0 {
		t.Fatalf("hints = %v, %v", hints, err)
	}
}

func TestProfileViewCacheInvalidatedOnUpdate(t *testing.T) {
	repo := newMemProfiles()
	c := cache.NewMemoryCache()
	svc := NewProfileService(repo, c, 0, logger.Discard())
	ctx := context.Background()

	if _, err := svc.UpdateProfile(ctx, "u1", strongAnalysis(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetView(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	var cached models.ProfileView
	if hit, _ := c.GetJSON(ctx, cache.ProfileViewKey("u1"), &cached); !hit || cached.SessionCount != 1 {
		t.Fatalf("view not cached: hit=%v %#v", hit, cached)
	}

	if _, err := svc.UpdateProfile(ctx, "u1", strongAnalysis(), false); err != nil {
		t.Fatal(err)
	}
	v, _ := svc.GetView(ctx, "u1")
	if v.SessionCount != 2 {
		t.Fatalf("stale view after update: %#v", v)
	}
}
