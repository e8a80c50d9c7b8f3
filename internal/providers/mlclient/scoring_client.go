package mlclient

import (
	"context"
	"net/http"
	"time"
)

type ScoreRequest struct {
	TextMetrics  map[string]float64 `json:"text_metrics,omitempty"`
	AudioMetrics map[string]float64 `json:"audio_metrics,omitempty"`
	VideoMetrics map[string]float64 `json:"video_metrics,omitempty"`
}

type ScoreReply struct {
	Confidence             int      `json:"confidence"`
	Clarity                int      `json:"clarity"`
	Empathy                int      `json:"empathy"`
	Communication          int      `json:"communication"`
	Overall                int      `json:"overall"`
	LowFeatures            []string `json:"low_features"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
	VideoAvailable         bool     `json:"video_available"`
}

type ScoringClient struct{ base }

func NewScoringClient(baseURL string, timeout time.Duration) *ScoringClient {
	return &ScoringClient{newBase(baseURL, timeout)}
}

func (c *ScoringClient) Healthy(ctx context.Context) bool { return c.healthy(ctx) }

func (c *ScoringClient) Score(ctx context.Context, req ScoreRequest) (*ScoreReply, error) {
	var out ScoreReply
	if err := c.do(ctx, http.MethodPost, "/score", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
