package fusion_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/usecase/fusion"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func episodicHit(relevance float64, description, outcome string, lessons ...string) model.MemoryHit {
	unit := model.NewMemoryUnit(model.MemoryTypeEpisodic, "diana", model.MemoryContent{
		Episodic: &model.EpisodicContent{
			EventType:      "client_meeting",
			Description:    description,
			Outcome:        map[string]any{"result": outcome},
			LessonsLearned: lessons,
		},
	}, testNow)
	return model.MemoryHit{Unit: unit, Relevance: relevance}
}

func semanticHit(relevance float64, concept, definition string, examples ...string) model.MemoryHit {
	unit := model.NewMemoryUnit(model.MemoryTypeSemantic, "diana", model.MemoryContent{
		Semantic: &model.SemanticContent{
			Concept:    concept,
			Definition: definition,
			Examples:   examples,
			UsageCount: len(examples),
		},
	}, testNow)
	return model.MemoryHit{Unit: unit, Relevance: relevance}
}

func proceduralHit(relevance float64, skill string, successRate float64, practiceCount int, steps ...string) model.MemoryHit {
	procSteps := make([]model.ProcedureStep, 0, len(steps))
	for _, s := range steps {
		procSteps = append(procSteps, model.ProcedureStep{Name: s})
	}
	unit := model.NewMemoryUnit(model.MemoryTypeProcedural, "diana", model.MemoryContent{
		Procedural: &model.ProceduralContent{
			SkillName:     skill,
			Steps:         procSteps,
			SuccessRate:   successRate,
			PracticeCount: practiceCount,
		},
	}, testNow)
	return model.MemoryHit{Unit: unit, Relevance: relevance}
}

func TestFuseDecision(t *testing.T) {
	stripes := &model.StripeResults{
		Episodic: []model.MemoryHit{
			episodicHit(0.9, "closed marketplace deal with acme", "success", "stay firm", "prepare numbers"),
			episodicHit(0.6, "lost renewal with beta corp", "failure", "follow up earlier"),
		},
		Procedural: []model.MemoryHit{
			proceduralHit(0.5, "contract_negotiation", 0.8, 5, "prepare", "negotiate", "close"),
		},
		Emotional: &model.EmotionalAggregate{
			AvgResponse: 0.8,
			AvgValence:  0.8,
			Congruence:  1.0,
			SampleSize:  1,
		},
	}

	answer := fusion.Fuse(model.QueryDecision, stripes, nil)

	primary := answer.PrimaryRecommendation.(map[string]any)
	gt.V(t, primary["description"]).Equal("closed marketplace deal with acme")
	gt.V(t, primary["outcome"]).Equal("success")

	gt.A(t, answer.SupportingEvidence).Longer(2)
	gt.S(t, answer.SupportingEvidence[0]).Contains("stay firm")
	gt.S(t, answer.AlternativeApproaches[0]).Contains("contract_negotiation")

	gt.V(t, answer.SourcesUsed.Episodic).Equal(2)
	gt.V(t, answer.SourcesUsed.Procedural).Equal(1)
	gt.V(t, answer.SourcesUsed.Emotional).Equal(1)
	gt.NotNil(t, answer.EmotionalContext)

	// three stripes, emotional present, primary set, evidence >= 3
	gt.Number(t, answer.Confidence).GreaterOrEqual(0.5)
}

func TestFuseLearning(t *testing.T) {
	stripes := &model.StripeResults{
		Semantic: []model.MemoryHit{
			semanticHit(0.8, "pricing", "how the platform prices marketplace deals",
				"acme deal priced at cost plus 12%"),
		},
	}

	answer := fusion.Fuse(model.QueryLearning, stripes, nil)

	primary := answer.PrimaryRecommendation.(map[string]any)
	gt.V(t, primary["concept"]).Equal("pricing")
	gt.S(t, primary["definition"].(string)).Contains("marketplace deals")
	gt.A(t, answer.SupportingEvidence).Length(1)
	gt.V(t, answer.SourcesUsed.Semantic).Equal(1)
}

func TestFuseLearningConsolidatedSubject(t *testing.T) {
	unit := model.NewMemoryUnit(model.MemoryTypeSemantic, "diana", model.MemoryContent{
		Semantic: &model.SemanticContent{
			Subject:     "Padrões Comportamentais Consolidado - client_meeting",
			Facts:       []string{"Evento recorrente: client_meeting (3 ocorrências)"},
			SourceCount: 3,
		},
	}, testNow)

	answer := fusion.Fuse(model.QueryLearning, &model.StripeResults{
		Semantic: []model.MemoryHit{{Unit: unit, Relevance: 0.7}},
	}, nil)

	primary := answer.PrimaryRecommendation.(map[string]any)
	gt.S(t, primary["concept"].(string)).Contains("Padrões Comportamentais")
	gt.S(t, primary["definition"].(string)).Contains("Evento recorrente")
}

func TestFuseExecution(t *testing.T) {
	stripes := &model.StripeResults{
		Procedural: []model.MemoryHit{
			proceduralHit(0.9, "partner_onboarding", 0.75, 8, "collect documents", "verify identity", "activate account"),
		},
		Episodic: []model.MemoryHit{
			episodicHit(0.4, "onboarded acme as a partner", "success"),
		},
	}

	answer := fusion.Fuse(model.QueryExecution, stripes, nil)

	primary := answer.PrimaryRecommendation.(map[string]any)
	gt.V(t, primary["skill"]).Equal("partner_onboarding")
	plan := primary["plan"].([]string)
	gt.A(t, plan).Length(3)
	gt.V(t, plan[0]).Equal("collect documents")

	gt.S(t, answer.SupportingEvidence[0]).Contains("75% success over 8 runs")
	gt.A(t, answer.AlternativeApproaches).Length(1)
}

func TestFuseGeneralPicksBestStripe(t *testing.T) {
	stripes := &model.StripeResults{
		Episodic: []model.MemoryHit{episodicHit(0.4, "minor incident", "neutral")},
		Semantic: []model.MemoryHit{semanticHit(0.9, "escalation", "when to escalate incidents")},
	}

	answer := fusion.Fuse(model.QueryGeneral, stripes, nil)

	primary := answer.PrimaryRecommendation.(map[string]any)
	gt.V(t, primary["concept"]).Equal("escalation")
}

func TestFuseEmptyReturnsStructuredAnswer(t *testing.T) {
	answer := fusion.Fuse(model.QueryDecision, nil, nil)

	gt.V(t, answer.Confidence).Equal(0.0)
	gt.V(t, answer.PrimaryRecommendation).Equal(nil)
	gt.V(t, answer.SourcesUsed.Episodic).Equal(0)
	gt.V(t, answer.SourcesUsed.TruthBase).Equal(0)
	gt.V(t, answer.RiskAssessment["level"]).Equal("low")
}

func TestFuseIncludesTruthBaseEvidence(t *testing.T) {
	chunk := &model.DocumentChunk{
		ID:         model.NewChunkID(),
		SourcePath: "docs/services.md",
		Section:    "service-y",
		Text:       "Service Y launched in 2022.",
	}
	stripes := &model.StripeResults{
		Episodic: []model.MemoryHit{episodicHit(0.8, "pitched service y to acme", "success")},
	}

	answer := fusion.Fuse(model.QueryDecision, stripes, []model.ScoredChunk{{Chunk: chunk, Score: 0.9}})

	gt.V(t, answer.SourcesUsed.TruthBase).Equal(1)
	var found bool
	for _, ev := range answer.SupportingEvidence {
		if ev == "[Source: docs/services.md#service-y] Service Y launched in 2022." {
			found = true
		}
	}
	gt.True(t, found)
}

func TestRiskAssessment(t *testing.T) {
	stripes := &model.StripeResults{
		Episodic: []model.MemoryHit{
			episodicHit(0.8, "lost the renewal", "failure"),
		},
		Procedural: []model.MemoryHit{
			proceduralHit(0.6, "cold_outreach", 0.2, 10, "draft", "send"),
		},
		Emotional: &model.EmotionalAggregate{
			AvgResponse: -0.6,
			AvgValence:  -0.7,
			Congruence:  0.9,
			SampleSize:  2,
		},
	}

	answer := fusion.Fuse(model.QueryDecision, stripes, nil)

	risk := answer.RiskAssessment
	gt.V(t, risk["level"]).Equal("high")
	gt.V(t, risk["failure_history"]).Equal(1)
	gt.V(t, risk["unreliable_skill"]).Equal("cold_outreach")
	gt.V(t, risk["negative_emotional_signal"]).Equal(-0.7)
}

func TestConfidenceCaps(t *testing.T) {
	stripes := &model.StripeResults{
		Episodic:   []model.MemoryHit{episodicHit(0.9, "a", "success", "l1", "l2", "l3")},
		Semantic:   []model.MemoryHit{semanticHit(0.8, "b", "def")},
		Procedural: []model.MemoryHit{proceduralHit(0.7, "c", 0.9, 4, "s1")},
		Emotional:  &model.EmotionalAggregate{AvgValence: 0.5, SampleSize: 3},
	}

	// 3 stripes * 0.3 + emotional 0.2 + primary 0.2 + evidence 0.1 > 1
	answer := fusion.Fuse(model.QueryDecision, stripes, nil)
	gt.V(t, answer.Confidence).Equal(1.0)
}

func TestConfidenceScoresEmotionalOnce(t *testing.T) {
	stripes := &model.StripeResults{
		Episodic:  []model.MemoryHit{episodicHit(0.9, "single deal", "success", "one lesson")},
		Emotional: &model.EmotionalAggregate{AvgValence: 0.5, SampleSize: 2},
	}

	// one stripe 0.3 + emotional 0.2 + primary 0.2, emotional is not a stripe
	answer := fusion.Fuse(model.QueryDecision, stripes, nil)
	gt.V(t, answer.Confidence).Equal(0.7)
}
