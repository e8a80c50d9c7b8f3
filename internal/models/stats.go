package models

// SessionStats is the per-user summary shown on the dashboard.
type SessionStats struct {
	TotalSessions     int64        `json:"total_sessions"`
	CompletedSessions int64        `json:"completed_sessions"`
	AverageScores     *ScoreVector `json:"average_scores,omitempty"`
	PracticeMinutes   float64      `json:"practice_minutes"`
}

// TrendPoint averages the completed sessions of one UTC day.
type TrendPoint struct {
	Date     string      `json:"date"` // 2006-01-02
	Sessions int         `json:"sessions"`
	Scores   ScoreVector `json:"scores"`
}
