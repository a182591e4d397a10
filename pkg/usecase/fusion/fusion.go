// Package fusion merges per-stripe retrieval results and truth base hits into
// a single ranked answer with provenance. All functions are pure: fusion never
// touches storage, the indexes or the clock.
package fusion

import (
	"fmt"

	"github.com/m-mizutani/llbmem/pkg/model"
)

// Fuse builds the cross-stripe answer for one query. The query type picks the
// primary source stripe; the remaining stripes contribute supporting evidence
// and alternatives. With no results at all it returns the structured empty
// answer (confidence 0, zero source counts) rather than an error, so callers
// can tell "no evidence" from a failure.
func Fuse(queryType model.QueryType, stripes *model.StripeResults, truth []model.ScoredChunk) *model.FusedAnswer {
	if stripes == nil {
		stripes = &model.StripeResults{}
	}

	answer := &model.FusedAnswer{
		SourcesUsed: model.SourceCounts{
			Episodic:   len(stripes.Episodic),
			Semantic:   len(stripes.Semantic),
			Procedural: len(stripes.Procedural),
			TruthBase:  len(truth),
		},
	}
	if stripes.Emotional != nil && stripes.Emotional.SampleSize > 0 {
		answer.SourcesUsed.Emotional = stripes.Emotional.SampleSize
		answer.EmotionalContext = stripes.Emotional
	}

	switch queryType {
	case model.QueryDecision:
		fuseDecision(answer, stripes)
	case model.QueryLearning:
		fuseLearning(answer, stripes)
	case model.QueryExecution:
		fuseExecution(answer, stripes)
	default:
		fuseGeneral(answer, stripes)
	}

	for _, sc := range truth {
		answer.SupportingEvidence = append(answer.SupportingEvidence,
			fmt.Sprintf("%s %s", sc.Chunk.Citation(), snippet(sc.Chunk.Text)))
	}

	answer.RiskAssessment = assessRisk(stripes)
	answer.Confidence = confidence(stripes, answer)
	return answer
}

// fuseDecision takes the top episodic pattern as the recommendation and the
// episodic lessons as evidence.
func fuseDecision(answer *model.FusedAnswer, stripes *model.StripeResults) {
	if len(stripes.Episodic) > 0 {
		top := stripes.Episodic[0]
		if ep := top.Unit.Content.Episodic; ep != nil {
			answer.PrimaryRecommendation = map[string]any{
				"event_type":  ep.EventType,
				"description": ep.Description,
				"outcome":     ep.OutcomeCategory(),
				"based_on":    string(top.Unit.ID),
				"relevance":   top.Relevance,
			}
		}
		for _, hit := range stripes.Episodic {
			if ep := hit.Unit.Content.Episodic; ep != nil {
				answer.SupportingEvidence = append(answer.SupportingEvidence, ep.LessonsLearned...)
			}
		}
	}
	answer.AlternativeApproaches = append(answer.AlternativeApproaches, skillNames(stripes.Procedural)...)
	answer.AlternativeApproaches = append(answer.AlternativeApproaches, semanticSubjects(stripes.Semantic)...)
}

// fuseLearning takes the strongest semantic definition and its examples.
func fuseLearning(answer *model.FusedAnswer, stripes *model.StripeResults) {
	if len(stripes.Semantic) > 0 {
		top := stripes.Semantic[0]
		if sem := top.Unit.Content.Semantic; sem != nil {
			answer.PrimaryRecommendation = map[string]any{
				"concept":    semanticTitle(sem),
				"definition": semanticBody(sem),
				"strength":   sem.KnowledgeStrength(),
				"based_on":   string(top.Unit.ID),
			}
		}
		for _, hit := range stripes.Semantic {
			if sem := hit.Unit.Content.Semantic; sem != nil {
				answer.SupportingEvidence = append(answer.SupportingEvidence, sem.Examples...)
				answer.SupportingEvidence = append(answer.SupportingEvidence, sem.Facts...)
			}
		}
	}
	answer.AlternativeApproaches = append(answer.AlternativeApproaches, episodicDescriptions(stripes.Episodic)...)
}

// fuseExecution turns the top procedural skill into a dry-run plan.
func fuseExecution(answer *model.FusedAnswer, stripes *model.StripeResults) {
	if len(stripes.Procedural) > 0 {
		top := stripes.Procedural[0]
		if proc := top.Unit.Content.Procedural; proc != nil {
			plan := make([]string, 0, len(proc.Steps))
			for _, step := range proc.Steps {
				plan = append(plan, step.Name)
			}
			answer.PrimaryRecommendation = map[string]any{
				"skill":          proc.SkillName,
				"plan":           plan,
				"success_rate":   proc.SuccessRate,
				"practice_count": proc.PracticeCount,
				"prerequisites":  proc.Prerequisites,
				"based_on":       string(top.Unit.ID),
			}
		}
		for _, hit := range stripes.Procedural {
			if proc := hit.Unit.Content.Procedural; proc != nil {
				answer.SupportingEvidence = append(answer.SupportingEvidence,
					fmt.Sprintf("%s: %.0f%% success over %d runs",
						proc.SkillName, proc.SuccessRate*100, proc.PracticeCount))
			}
		}
	}
	answer.AlternativeApproaches = append(answer.AlternativeApproaches, episodicDescriptions(stripes.Episodic)...)
}

// fuseGeneral routes to the stripe whose top hit scored highest.
func fuseGeneral(answer *model.FusedAnswer, stripes *model.StripeResults) {
	episodic, semantic, procedural := topRelevance(stripes.Episodic), topRelevance(stripes.Semantic), topRelevance(stripes.Procedural)
	switch {
	case episodic >= semantic && episodic >= procedural && episodic > 0:
		fuseDecision(answer, stripes)
	case semantic >= procedural && semantic > 0:
		fuseLearning(answer, stripes)
	case procedural > 0:
		fuseExecution(answer, stripes)
	}
}

// assessRisk derives an advisory risk map from the emotional aggregate, the
// episodic failure history and procedural reliability.
func assessRisk(stripes *model.StripeResults) map[string]any {
	risk := map[string]any{"level": "low"}
	score := 0

	failures := 0
	for _, hit := range stripes.Episodic {
		if ep := hit.Unit.Content.Episodic; ep != nil && ep.OutcomeCategory() == "failure" {
			failures++
		}
	}
	if failures > 0 {
		risk["failure_history"] = failures
		score++
	}

	if agg := stripes.Emotional; agg != nil && agg.SampleSize > 0 {
		if agg.AvgValence < 0 {
			risk["negative_emotional_signal"] = agg.AvgValence
			score++
		}
		if agg.Congruence < 0.5 {
			risk["low_emotional_congruence"] = agg.Congruence
			score++
		}
	}

	for _, hit := range stripes.Procedural {
		if proc := hit.Unit.Content.Procedural; proc != nil && proc.PracticeCount > 0 && proc.SuccessRate < 0.5 {
			risk["unreliable_skill"] = proc.SkillName
			score++
			break
		}
	}

	switch {
	case score >= 2:
		risk["level"] = "high"
	case score == 1:
		risk["level"] = "medium"
	}
	return risk
}

// confidence scores the fused answer from stripe coverage, the presence of a
// primary recommendation and the depth of supporting evidence, capped at 1.
func confidence(stripes *model.StripeResults, answer *model.FusedAnswer) float64 {
	conf := 0.3 * float64(stripes.StripeCount())
	if answer.EmotionalContext != nil {
		conf += 0.2
	}
	if answer.PrimaryRecommendation != nil {
		conf += 0.2
	}
	if len(answer.SupportingEvidence) >= 3 {
		conf += 0.1
	}
	if conf > 1 {
		return 1
	}
	return conf
}

func topRelevance(hits []model.MemoryHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	return hits[0].Relevance
}

func skillNames(hits []model.MemoryHit) []string {
	var out []string
	for _, hit := range hits {
		if proc := hit.Unit.Content.Procedural; proc != nil {
			out = append(out, fmt.Sprintf("apply skill: %s", proc.SkillName))
		}
	}
	return out
}

func semanticSubjects(hits []model.MemoryHit) []string {
	var out []string
	for _, hit := range hits {
		if sem := hit.Unit.Content.Semantic; sem != nil {
			out = append(out, fmt.Sprintf("consider: %s", semanticTitle(sem)))
		}
	}
	return out
}

func episodicDescriptions(hits []model.MemoryHit) []string {
	var out []string
	for _, hit := range hits {
		if ep := hit.Unit.Content.Episodic; ep != nil {
			out = append(out, ep.Description)
		}
	}
	return out
}

// semanticTitle prefers the concept name; consolidation-derived units carry a
// subject instead.
func semanticTitle(sem *model.SemanticContent) string {
	if sem.Concept != "" {
		return sem.Concept
	}
	return sem.Subject
}

func semanticBody(sem *model.SemanticContent) string {
	if sem.Definition != "" {
		return sem.Definition
	}
	if len(sem.Facts) > 0 {
		return sem.Facts[0]
	}
	return ""
}

const maxSnippet = 160

func snippet(text string) string {
	if len(text) <= maxSnippet {
		return text
	}
	return text[:maxSnippet] + "..."
}
