package services

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/rehearse/internal/fallback"
	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/observe"
	"github.com/yoockh/rehearse/internal/providers/mlclient"
)

const (
	SourceML          = "ml"
	SourcePlaceholder = "placeholder"

	placeholderCap = 95
)

// ScoringInput is what a finished session contributes to its analysis.
type ScoringInput struct {
	UserResponses        []string
	ResponseDurations    []float64
	InterviewerQuestions []string
	AudioMetrics         map[string]float64
	Video                *models.VideoMetrics
}

// ScoringService always produces a complete analysis. When the ML services
// are unhealthy, fail, or exceed the timeout the placeholder scorer is used.
type ScoringService interface {
	Analyze(ctx context.Context, in ScoringInput) models.SessionAnalysis
}

// FeatureExtractor and SkillScorer are the two ML services.
type FeatureExtractor interface {
	Healthy(ctx context.Context) bool
	AnalyzeText(ctx context.Context, req mlclient.TextRequest) (*mlclient.TextAnalysis, error)
}

type SkillScorer interface {
	Healthy(ctx context.Context) bool
	Score(ctx context.Context, req mlclient.ScoreRequest) (*mlclient.ScoreReply, error)
}

type scoringService struct {
	features FeatureExtractor
	scorer   SkillScorer
	timeout  time.Duration
	jitter   func(n int) int
	chain    *fallback.Chain[ScoringInput, models.SessionAnalysis]
	log      logrus.FieldLogger
	met      *observe.Metrics
}

type ScoringOption func(*scoringService)

// WithJitter replaces the placeholder's random source. jitter(n) must
// return a value in [0,n).
func WithJitter(jitter func(n int) int) ScoringOption {
	return func(s *scoringService) { s.jitter = jitter }
}

// NewScoringService bounds each analysis by timeout. Either client may be
// nil, which disables the ML path.
func NewScoringService(features FeatureExtractor, scorer SkillScorer, timeout time.Duration, log logrus.FieldLogger, met *observe.Metrics, opts ...ScoringOption) ScoringService {
	if met == nil {
		met = observe.Noop()
	}
	s := &scoringService{
		features: features,
		scorer:   scorer,
		timeout:  timeout,
		jitter:   rand.IntN,
		log:      log,
		met:      met,
	}
	for _, o := range opts {
		o(s)
	}

	s.chain = fallback.New("score", log,
		fallback.Strategy[ScoringInput, models.SessionAnalysis]{
			Name:      SourceML,
			Available: s.mlAvailable,
			Run:       s.scoreML,
		},
		fallback.Strategy[ScoringInput, models.SessionAnalysis]{
			Name: SourcePlaceholder,
			Run: func(_ context.Context, in ScoringInput) (models.SessionAnalysis, error) {
				return s.placeholder(in), nil
			},
		},
	).Observe(met.RecordStrategy)
	return s
}

func (s *scoringService) Analyze(ctx context.Context, in ScoringInput) models.SessionAnalysis {
	if len(in.UserResponses) == 0 {
		s.log.WithField("stage", "score").Debug("no user responses, using placeholder")
		return s.placeholder(in)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, _, err := s.chain.Run(ctx, in)
	if err != nil {
		s.log.WithField("stage", "score").WithError(err).Error("scoring chain exhausted")
		out = s.placeholder(in)
	}
	out.Scores = out.Scores.Clamped()
	return out
}

func (s *scoringService) mlAvailable(ctx context.Context) bool {
	if s.features == nil || s.scorer == nil {
		return false
	}
	return s.features.Healthy(ctx) && s.scorer.Healthy(ctx)
}

var errNoResponses = errors.New("no user responses")

func (s *scoringService) scoreML(ctx context.Context, in ScoringInput) (models.SessionAnalysis, error) {
	if len(in.UserResponses) == 0 {
		return models.SessionAnalysis{}, errNoResponses
	}
	text, err := s.features.AnalyzeText(ctx, mlclient.TextRequest{
		UserResponses:        in.UserResponses,
		InterviewerQuestions: in.InterviewerQuestions,
		ResponseDurations:    in.ResponseDurations,
	})
	if err != nil {
		return models.SessionAnalysis{}, err
	}

	req := mlclient.ScoreRequest{TextMetrics: text.TextMetrics, AudioMetrics: in.AudioMetrics}
	if in.Video != nil && in.Video.TotalFrames > 0 {
		req.VideoMetrics = in.Video.AsFeatures()
	}
	reply, err := s.scorer.Score(ctx, req)
	if err != nil {
		return models.SessionAnalysis{}, err
	}

	scores := models.ScoreVector{
		Confidence:    reply.Confidence,
		Clarity:       reply.Clarity,
		Empathy:       reply.Empathy,
		Communication: reply.Communication,
		Overall:       reply.Overall,
	}.Clamped()

	raw := text.RawMetrics
	if len(raw) == 0 {
		raw = text.TextMetrics
	}
	return models.SessionAnalysis{
		Scores:       scores,
		Feedback:     BuildFeedback(scores, reply.LowFeatures, reply.ImprovementSuggestions),
		LowFeatures:  reply.LowFeatures,
		Suggestions:  reply.ImprovementSuggestions,
		TextMetrics:  raw,
		AudioMetrics: in.AudioMetrics,
		Video:        in.Video,
		Source:       SourceML,
	}, nil
}

// placeholder scores from response count and mean response length with
// +-5 of jitter per skill, capped at 95.
func (s *scoringService) placeholder(in ScoringInput) models.SessionAnalysis {
	n := len(in.UserResponses)
	words := 0
	for _, r := range in.UserResponses {
		words += len(strings.Fields(r))
	}
	avgWords := 0.0
	if n > 0 {
		avgWords = float64(words) / float64(n)
	}
	base := 50 + min(n*3, 15) + int(math.Min(avgWords/5, 15))

	skill := func() int {
		v := base + s.jitter(11) - 5
		return min(max(v, 0), placeholderCap)
	}
	scores := models.ScoreVector{
		Confidence:    skill(),
		Clarity:       skill(),
		Empathy:       skill(),
		Communication: skill(),
	}
	scores.Overall = int(math.Round(float64(scores.Confidence+scores.Clarity+scores.Empathy+scores.Communication) / 4))

	return models.SessionAnalysis{
		Scores:       scores,
		Feedback:     BuildFeedback(scores, nil, nil),
		AudioMetrics: in.AudioMetrics,
		Video:        in.Video,
		Source:       SourcePlaceholder,
	}
}
