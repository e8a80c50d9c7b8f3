package mlclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// TextRequest mirrors the /analyze/text body.
type TextRequest struct {
	UserResponses        []string  `json:"user_responses"`
	InterviewerQuestions []string  `json:"interviewer_questions,omitempty"`
	ResponseDurations    []float64 `json:"response_durations,omitempty"`
}

// TextAnalysis carries the normalised metrics used for scoring and the raw
// ones used for the behavioral profile.
type TextAnalysis struct {
	TextMetrics      map[string]float64 `json:"text_metrics"`
	RawMetrics       map[string]float64 `json:"raw_metrics"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
}

type FeatureClient struct{ base }

func NewFeatureClient(baseURL string, timeout time.Duration) *FeatureClient {
	return &FeatureClient{newBase(baseURL, timeout)}
}

func (c *FeatureClient) Healthy(ctx context.Context) bool { return c.healthy(ctx) }

func (c *FeatureClient) AnalyzeText(ctx context.Context, req TextRequest) (*TextAnalysis, error) {
	if len(req.UserResponses) == 0 {
		return nil, errors.New("mlclient: no user responses")
	}
	var out TextAnalysis
	if err := c.do(ctx, http.MethodPost, "/analyze/text", req, &out); err != nil {
		return nil, err
	}
	if out.TextMetrics == nil {
		return nil, errors.New("mlclient: analyze/text returned no text_metrics")
	}
	return &out, nil
}
