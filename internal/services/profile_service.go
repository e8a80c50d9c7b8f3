package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/rehearse/internal/cache"
	"github.com/yoockh/rehearse/internal/models"
	pgrepo "github.com/yoockh/rehearse/internal/repositories/postgres"
	"github.com/yoockh/rehearse/internal/utils"
)

// ProfileService maintains the per-user behavioral profile. The metrics
// vector stays server side; readers get ProfileView or adaptation hints.
type ProfileService interface {
	UpdateProfile(ctx context.Context, userID string, analysis models.SessionAnalysis, isOnboarding bool) (*models.BehavioralProfile, error)
	GetView(ctx context.Context, userID string) (*models.ProfileView, error)
	AdaptationHints(ctx context.Context, userID string) ([]string, error)
	HasBaseline(ctx context.Context, userID string) (bool, error)
}

type profileService struct {
	profiles pgrepo.ProfileRepository
	cache    cache.Cache
	ttl      time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewProfileService accepts a nil cache.
func NewProfileService(profiles pgrepo.ProfileRepository, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) ProfileService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &profileService{profiles: profiles, cache: c, ttl: ttl, log: log, now: time.Now}
}

func (s *profileService) load(ctx context.Context, userID string) (*models.BehavioralProfile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *profileService) UpdateProfile(ctx context.Context, userID string, analysis models.SessionAnalysis, isOnboarding bool) (*models.BehavioralProfile, error) {
	const op = "ProfileService.UpdateProfile"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	cur, err := s.load(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	old := models.NeutralMetrics()
	p := &models.BehavioralProfile{UserID: userID}
	if cur != nil {
		old = models.MetricsFromVector(cur.Metrics)
		p = cur
	}

	w := DriftWeight
	if isOnboarding {
		w = OnboardingWeight
	}
	m := Blend(old, ExtractMetrics(analysis), w)

	disp := ClassifyDisposition(m)
	style := ClassifyArchetype(m)
	dim, dir := SelectFocus(m)
	_, rationale, experiment := FocusText(dim, dir)

	p.Metrics = m.Vector()
	p.Disposition = disp
	p.Style = style
	p.Reflection = Reflect(disp, style)
	p.FocusArea = dim
	p.FocusRationale = rationale
	p.MicroExperiment = experiment
	p.AdaptationHints = pq.StringArray(HintsFor(disp, style))
	p.SessionCount++
	p.HasBaseline = p.HasBaseline || isOnboarding
	p.UpdatedAt = s.now().UTC()
	if raw, err := json.Marshal(analysis); err == nil {
		p.LastAnalysis = datatypes.JSON(raw)
	}

	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to save profile", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.ProfileViewKey(userID)); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to invalidate profile view")
		}
	}
	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"disposition": disp,
		"style":       style,
		"onboarding":  isOnboarding,
	}).Info("behavioral profile updated")
	return p, nil
}

// ViewOf projects a profile onto its dashboard fields.
func ViewOf(p *models.BehavioralProfile) *models.ProfileView {
	label, _, _ := FocusText(p.FocusArea, DirectionHigh)
	return &models.ProfileView{
		Disposition:     p.Disposition,
		Style:           p.Style,
		StyleLabel:      StyleLabel(p.Style),
		Reflection:      p.Reflection,
		FocusArea:       label,
		FocusRationale:  p.FocusRationale,
		MicroExperiment: p.MicroExperiment,
		SessionCount:    p.SessionCount,
		HasBaseline:     p.HasBaseline,
		UpdatedAt:       p.UpdatedAt,
	}
}

// neutralView is shown before the first completed session.
func neutralView() *models.ProfileView {
	m := models.NeutralMetrics()
	disp, style := ClassifyDisposition(m), ClassifyArchetype(m)
	return &models.ProfileView{
		Disposition:    disp,
		Style:          style,
		StyleLabel:     StyleLabel(style),
		Reflection:     "Complete your first session to see how you come across.",
		FocusRationale: "Your focus area appears after your first session.",
	}
}

func (s *profileService) GetView(ctx context.Context, userID string) (*models.ProfileView, error) {
	const op = "ProfileService.GetView"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	key := cache.ProfileViewKey(userID)
	if s.cache != nil {
		var v models.ProfileView
		if hit, err := s.cache.GetJSON(ctx, key, &v); err == nil && hit {
			return &v, nil
		}
	}

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	if p == nil {
		return neutralView(), nil
	}
	v := ViewOf(p)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, v, s.ttl); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to cache profile view")
		}
	}
	return v, nil
}

func (s *profileService) AdaptationHints(ctx context.Context, userID string) ([]string, error) {
	const op = "ProfileService.AdaptationHints"

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	if p == nil {
		return nil, nil
	}
	return []string(p.AdaptationHints), nil
}

func (s *profileService) HasBaseline(ctx context.Context, userID string) (bool, error) {
	const op = "ProfileService.HasBaseline"

	p, err := s.load(ctx, userID)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}
	return p != nil && p.HasBaseline, nil
}
