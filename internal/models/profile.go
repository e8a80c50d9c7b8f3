package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Dimension names one axis of the behavioral metrics vector. The order of
// Dimensions is the storage order of the vector column.
type Dimension string

const (
	DimPacing        Dimension = "pacing"
	DimStructure     Dimension = "structure"
	DimHesitation    Dimension = "hesitation"
	DimAssertiveness Dimension = "assertiveness"
	DimClarity       Dimension = "clarity"
	DimWarmth        Dimension = "warmth"
	DimEnergy        Dimension = "energy"
)

var Dimensions = []Dimension{
	DimPacing, DimStructure, DimHesitation, DimAssertiveness, DimClarity, DimWarmth, DimEnergy,
}

// Neutral is the midpoint every dimension starts at.
const Neutral = 50

// ProfileMetrics holds one value in [0,100] per dimension.
type ProfileMetrics map[Dimension]int

// NeutralMetrics is the profile of a user with no sessions yet.
func NeutralMetrics() ProfileMetrics {
	m := make(ProfileMetrics, len(Dimensions))
	for _, d := range Dimensions {
		m[d] = Neutral
	}
	return m
}

func (m ProfileMetrics) Vector() pgvector.Vector {
	vals := make([]float32, len(Dimensions))
	for i, d := range Dimensions {
		vals[i] = float32(m[d])
	}
	return pgvector.NewVector(vals)
}

// MetricsFromVector reads a stored vector; missing trailing values are neutral.
func MetricsFromVector(v pgvector.Vector) ProfileMetrics {
	vals := v.Slice()
	m := NeutralMetrics()
	for i, d := range Dimensions {
		if i < len(vals) {
			m[d] = int(vals[i] + 0.5)
		}
	}
	return m
}

type Disposition string

const (
	DispositionCautious      Disposition = "cautious"
	DispositionAnxious       Disposition = "anxious"
	DispositionNeutral       Disposition = "neutral"
	DispositionConfident     Disposition = "confident"
	DispositionOverconfident Disposition = "overconfident"
)

type Archetype string

const (
	ArchetypeClearDirector        Archetype = "clear_director"
	ArchetypeWarmConnector        Archetype = "warm_connector"
	ArchetypeAnalyticalArchitect  Archetype = "analytical_architect"
	ArchetypeEnergeticStoryteller Archetype = "energetic_storyteller"
	ArchetypeReflectiveExplorer   Archetype = "reflective_explorer"
)

// BehavioralProfile is the long-lived per-user profile. Metrics never leave
// the server; clients only receive ProfileView.
type BehavioralProfile struct {
	UserID  string          `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Metrics pgvector.Vector `gorm:"column:metrics;type:vector(7)" json:"-"`

	Disposition     Disposition    `gorm:"column:disposition;type:text" json:"disposition"`
	Style           Archetype      `gorm:"column:style;type:text" json:"style"`
	Reflection      string         `gorm:"column:reflection;type:text" json:"reflection"`
	FocusArea       Dimension      `gorm:"column:focus_area;type:text" json:"focus_area"`
	FocusRationale  string         `gorm:"column:focus_rationale;type:text" json:"focus_rationale"`
	MicroExperiment string         `gorm:"column:micro_experiment;type:text" json:"micro_experiment"`
	AdaptationHints pq.StringArray `gorm:"column:adaptation_hints;type:text[]" json:"-"`

	SessionCount int  `gorm:"column:session_count;type:integer" json:"session_count"`
	HasBaseline  bool `gorm:"column:has_baseline;type:boolean" json:"has_baseline"`

	// last analysis the profile was blended from, kept for support queries
	LastAnalysis datatypes.JSON `gorm:"column:last_analysis;type:jsonb" json:"-"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (BehavioralProfile) TableName() string { return "behavioral_profiles" }

// ProfileView is the dashboard payload: natural-language fields only.
type ProfileView struct {
	Disposition     Disposition `json:"disposition"`
	Style           Archetype   `json:"style"`
	StyleLabel      string      `json:"style_label"`
	Reflection      string      `json:"reflection"`
	FocusArea       string      `json:"focus_area"`
	FocusRationale  string      `json:"focus_rationale"`
	MicroExperiment string      `json:"micro_experiment"`
	SessionCount    int         `json:"session_count"`
	HasBaseline     bool        `json:"has_baseline"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
