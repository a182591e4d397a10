package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// MemoryContent is the tagged payload of a MemoryUnit. Exactly one branch is
// non-nil and it must match the unit's Type.
type MemoryContent struct {
	Episodic   *EpisodicContent   `json:"episodic,omitempty"`
	Semantic   *SemanticContent   `json:"semantic,omitempty"`
	Procedural *ProceduralContent `json:"procedural,omitempty"`
	Emotional  *EmotionalContent  `json:"emotional,omitempty"`
	Insight    *InsightContent    `json:"insight,omitempty"`
	Summary    *SummaryContent    `json:"summary,omitempty"`
}

// EpisodicContent captures a single concrete event.
type EpisodicContent struct {
	EventType       string         `json:"event_type"`
	Description     string         `json:"description"`
	ContextSnapshot map[string]any `json:"context_snapshot,omitempty"`
	Outcome         map[string]any `json:"outcome,omitempty"`
	Participants    []string       `json:"participants,omitempty"`
	LessonsLearned  []string       `json:"lessons_learned,omitempty"`
	EmotionalImpact float64        `json:"emotional_impact"`
	RecurrenceCount int            `json:"recurrence_count"`
}

// OutcomeCategory collapses the outcome map into a coarse label used by
// pattern extraction.
func (c *EpisodicContent) OutcomeCategory() string {
	if c.Outcome == nil {
		return "unknown"
	}
	if v, ok := c.Outcome["success"].(bool); ok {
		if v {
			return "success"
		}
		return "failure"
	}
	if v, ok := c.Outcome["result"].(string); ok && v != "" {
		return strings.ToLower(v)
	}
	return "neutral"
}

// SemanticContent holds distilled knowledge. Units created directly carry a
// concept and definition; units derived by consolidation carry a subject and
// the extracted facts instead.
type SemanticContent struct {
	Concept       string              `json:"concept,omitempty"`
	Definition    string              `json:"definition,omitempty"`
	Subject       string              `json:"subject,omitempty"`
	Facts         []string            `json:"facts,omitempty"`
	Relationships map[string][]string `json:"relationships,omitempty"`
	Examples      []string            `json:"examples,omitempty"`
	SourceCount   int                 `json:"source_count,omitempty"`
	UsageCount    int                 `json:"usage_count"`
}

// KnowledgeStrength scores how well established the knowledge is, from the
// richness of its relationships, examples and usage.
func (c *SemanticContent) KnowledgeStrength() float64 {
	strength := 0.3
	strength += min(0.3, float64(len(c.Relationships))*0.1)
	strength += min(0.2, float64(len(c.Examples))*0.05)
	strength += min(0.2, float64(c.UsageCount)*0.02)
	return clamp01(strength)
}

// ProceduralContent describes a learned skill.
type ProceduralContent struct {
	SkillName           string          `json:"skill_name"`
	Steps               []ProcedureStep `json:"steps"`
	Prerequisites       []string        `json:"prerequisites,omitempty"`
	SuccessRate         float64         `json:"success_rate"`
	AvgCompletionTime   float64         `json:"avg_completion_time"`
	Difficulty          string          `json:"difficulty,omitempty"`
	AutomationPotential float64         `json:"automation_potential"`
	PracticeCount       int             `json:"practice_count"`
}

type ProcedureStep struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// RecordPractice folds one more execution into the running success rate and
// completion-time average.
func (c *ProceduralContent) RecordPractice(success bool, completionTime float64) {
	n := float64(c.PracticeCount)
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	c.SuccessRate = (c.SuccessRate*n + outcome) / (n + 1)
	if completionTime > 0 {
		c.AvgCompletionTime = (c.AvgCompletionTime*n + completionTime) / (n + 1)
	}
	c.PracticeCount++
}

// EmotionalContent is a single emotional observation.
type EmotionalContent struct {
	Situation          string  `json:"situation"`
	EmotionalResponse  float64 `json:"emotional_response"`
	OutcomeValence     float64 `json:"outcome_valence"`
	BehavioralResponse string  `json:"behavioral_response,omitempty"`
	Lesson             string  `json:"lesson,omitempty"`
	Intensity          float64 `json:"intensity"`
}

// InsightContent backs reflection insights and meta patterns.
type InsightContent struct {
	Statement string   `json:"statement"`
	Evidence  []string `json:"evidence,omitempty"`
}

// SummaryContent backs consolidated summaries of archived periods.
type SummaryContent struct {
	TotalMemories int            `json:"total_memories"`
	RangeStart    string         `json:"range_start,omitempty"`
	RangeEnd      string         `json:"range_end,omitempty"`
	Owners        []string       `json:"owners,omitempty"`
	Patterns      map[string]int `json:"patterns,omitempty"`
	KeyInsights   []string       `json:"key_insights,omitempty"`
}

// Validate checks that exactly one branch is set and that it matches the
// given stripe type.
func (c MemoryContent) Validate(memType MemoryType) error {
	branches := 0
	var actual MemoryType
	if c.Episodic != nil {
		branches++
		actual = MemoryTypeEpisodic
	}
	if c.Semantic != nil {
		branches++
		actual = MemoryTypeSemantic
	}
	if c.Procedural != nil {
		branches++
		actual = MemoryTypeProcedural
	}
	if c.Emotional != nil {
		branches++
		actual = MemoryTypeEmotional
	}
	if c.Insight != nil {
		branches++
		actual = MemoryTypeReflection
	}
	if c.Summary != nil {
		branches++
		actual = MemoryTypeConsolidated
	}

	if branches != 1 {
		return goerr.Wrap(ErrInvalidInput, "memory content must have exactly one branch", goerr.V("branches", branches))
	}

	switch memType {
	case MemoryTypeReflection, MemoryTypeMetaPattern:
		if actual != MemoryTypeReflection {
			return goerr.Wrap(ErrInvalidInput, "content branch does not match memory type", goerr.V("memory_type", memType))
		}
	case MemoryTypeEpisodic, MemoryTypeSemantic, MemoryTypeProcedural, MemoryTypeEmotional, MemoryTypeConsolidated:
		if actual != memType {
			return goerr.Wrap(ErrInvalidInput, "content branch does not match memory type", goerr.V("memory_type", memType))
		}
	default:
		return goerr.Wrap(ErrInvalidInput, "unknown memory type", goerr.V("memory_type", memType))
	}
	return nil
}

// Texts flattens all human readable strings in the content branch, used for
// keyword extraction and search snippets.
func (c MemoryContent) Texts() []string {
	var out []string
	switch {
	case c.Episodic != nil:
		out = append(out, c.Episodic.EventType, c.Episodic.Description)
		out = append(out, c.Episodic.LessonsLearned...)
		out = append(out, c.Episodic.Participants...)
	case c.Semantic != nil:
		out = append(out, c.Semantic.Concept, c.Semantic.Definition, c.Semantic.Subject)
		out = append(out, c.Semantic.Facts...)
		out = append(out, c.Semantic.Examples...)
		for rel, targets := range c.Semantic.Relationships {
			out = append(out, rel)
			out = append(out, targets...)
		}
	case c.Procedural != nil:
		out = append(out, c.Procedural.SkillName, c.Procedural.Difficulty)
		for _, s := range c.Procedural.Steps {
			out = append(out, s.Name, s.Detail)
		}
		out = append(out, c.Procedural.Prerequisites...)
	case c.Emotional != nil:
		out = append(out, c.Emotional.Situation, c.Emotional.BehavioralResponse, c.Emotional.Lesson)
	case c.Insight != nil:
		out = append(out, c.Insight.Statement)
		out = append(out, c.Insight.Evidence...)
	case c.Summary != nil:
		out = append(out, c.Summary.KeyInsights...)
	}

	filtered := out[:0]
	for _, s := range out {
		if strings.TrimSpace(s) != "" {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
