package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Experience is the raw observation handed to the memory engine. One
// experience fans out into up to four stripe units.
type Experience struct {
	EventType       string         `json:"event_type"`
	Description     string         `json:"description"`
	Context         map[string]any `json:"context,omitempty"`
	Outcome         map[string]any `json:"outcome,omitempty"`
	Participants    []string       `json:"participants,omitempty"`
	LessonsLearned  []string       `json:"lessons_learned,omitempty"`
	EmotionalImpact float64        `json:"emotional_impact"`
	Owner           string         `json:"owner,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Timestamp       time.Time      `json:"timestamp,omitzero"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`

	// Optional observations that trigger the emotional and procedural stripes.
	Emotional *EmotionalObservation `json:"emotional,omitempty"`
	Process   *ProcessObservation   `json:"process,omitempty"`
}

// Validate checks the minimum fields required to store an experience.
func (x *Experience) Validate() error {
	if x.EventType == "" {
		return goerr.Wrap(ErrInvalidInput, "experience requires an event_type")
	}
	if x.Description == "" {
		return goerr.Wrap(ErrInvalidInput, "experience requires a description")
	}
	return nil
}

// EmotionalObservation is the emotional reading attached to an experience.
type EmotionalObservation struct {
	Response  float64 `json:"response"`
	Valence   float64 `json:"valence"`
	Intensity float64 `json:"intensity"`
	Behavior  string  `json:"behavior,omitempty"`
	Lesson    string  `json:"lesson,omitempty"`
}

// ProcessObservation is the repeatable-process reading attached to an
// experience.
type ProcessObservation struct {
	SkillName           string          `json:"skill_name"`
	Steps               []ProcedureStep `json:"steps,omitempty"`
	Prerequisites       []string        `json:"prerequisites,omitempty"`
	Success             bool            `json:"success"`
	CompletionTime      float64         `json:"completion_time,omitempty"`
	Difficulty          string          `json:"difficulty,omitempty"`
	AutomationPotential float64         `json:"automation_potential,omitempty"`
}

// QueryType routes retrieval toward the stripe most likely to answer it.
type QueryType string

const (
	QueryDecision  QueryType = "decision"
	QueryLearning  QueryType = "learning"
	QueryExecution QueryType = "execution"
	QueryGeneral   QueryType = "general"
)

// RetrievalQuery describes what the caller wants back from the engine.
type RetrievalQuery struct {
	QueryType      QueryType        `json:"query_type"`
	Description    string           `json:"description"`
	Context        map[string]any   `json:"context,omitempty"`
	ContextTags    []string         `json:"context_tags,omitempty"`
	RequiredSkills []string         `json:"required_skills,omitempty"`
	DesiredOutcome string           `json:"desired_outcome,omitempty"`
	Owner          string           `json:"owner,omitempty"`
	Priorities     []MemoryPriority `json:"priorities,omitempty"`
	Statuses       []MemoryStatus   `json:"statuses,omitempty"`
	Limit          int              `json:"limit,omitempty"`
}

func (q *RetrievalQuery) Validate() error {
	if q.Description == "" {
		return goerr.Wrap(ErrInvalidInput, "query requires a description")
	}
	switch q.QueryType {
	case QueryDecision, QueryLearning, QueryExecution, QueryGeneral, "":
	default:
		return goerr.Wrap(ErrInvalidInput, "unknown query type", goerr.V("query_type", q.QueryType))
	}
	return nil
}

// MemoryHit is one scored unit returned by a stripe retrieval.
type MemoryHit struct {
	Unit      *MemoryUnit `json:"unit"`
	Relevance float64     `json:"relevance"`
}

// EmotionalAggregate summarizes the emotional ring for a situation.
type EmotionalAggregate struct {
	AvgResponse        float64  `json:"avg_response"`
	AvgValence         float64  `json:"avg_valence"`
	Congruence         float64  `json:"congruence"`
	SampleSize         int      `json:"sample_size"`
	BehavioralPatterns []string `json:"behavioral_patterns,omitempty"`
}

// StripeResults is the per-stripe output of retrieval, consumed by fusion.
type StripeResults struct {
	Episodic   []MemoryHit         `json:"episodic,omitempty"`
	Semantic   []MemoryHit         `json:"semantic,omitempty"`
	Procedural []MemoryHit         `json:"procedural,omitempty"`
	Emotional  *EmotionalAggregate `json:"emotional,omitempty"`
}

// StripeCount returns how many of the episodic, semantic and procedural
// stripes contributed at least one result. The emotional aggregate is scored
// separately by fusion.
func (r *StripeResults) StripeCount() int {
	n := 0
	if len(r.Episodic) > 0 {
		n++
	}
	if len(r.Semantic) > 0 {
		n++
	}
	if len(r.Procedural) > 0 {
		n++
	}
	return n
}

// SourceCounts records how many units each stripe contributed to an answer.
type SourceCounts struct {
	Episodic   int `json:"episodic"`
	Semantic   int `json:"semantic"`
	Procedural int `json:"procedural"`
	Emotional  int `json:"emotional"`
	TruthBase  int `json:"truth_base"`
}

// FusedAnswer is the cross-stripe answer returned by knowledge fusion.
type FusedAnswer struct {
	PrimaryRecommendation any                 `json:"primary_recommendation,omitempty"`
	SupportingEvidence    []string            `json:"supporting_evidence,omitempty"`
	AlternativeApproaches []string            `json:"alternative_approaches,omitempty"`
	RiskAssessment        map[string]any      `json:"risk_assessment,omitempty"`
	EmotionalContext      *EmotionalAggregate `json:"emotional_context,omitempty"`
	SourcesUsed           SourceCounts        `json:"sources_used"`
	Confidence            float64             `json:"confidence"`
}

// ConsolidationMethod names the path that produced a derived memory.
type ConsolidationMethod string

const (
	ConsolidationPatternExtraction ConsolidationMethod = "pattern_extraction"
	ConsolidationLessonLearning    ConsolidationMethod = "lesson_learning"
	ConsolidationOutcomeAnalysis   ConsolidationMethod = "outcome_analysis"
	ConsolidationGeneral           ConsolidationMethod = "general"
)

// ConsolidationResult ties a derived semantic unit back to its sources.
type ConsolidationResult struct {
	Derived    *MemoryUnit         `json:"derived"`
	SourceIDs  []MemoryID          `json:"source_ids"`
	Method     ConsolidationMethod `json:"method"`
	Confidence float64             `json:"confidence"`
	CreatedAt  time.Time           `json:"created_at"`
}

// MemoryStats is a point-in-time snapshot of the engine's population.
type MemoryStats struct {
	Total         int                    `json:"total"`
	ByType        map[MemoryType]int     `json:"by_type"`
	ByStatus      map[MemoryStatus]int   `json:"by_status"`
	ByPriority    map[MemoryPriority]int `json:"by_priority"`
	AvgRelevance  float64                `json:"avg_relevance"`
	AvgDecay      float64                `json:"avg_decay"`
	EmotionalRing int                    `json:"emotional_ring"`
}
