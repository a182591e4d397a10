package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/model"
)

func TestConsolidateGroupsByEventType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for _, desc := range []string{
		"review with acme, pushed back on pricing",
		"review with globex, pushed back on pricing",
		"review with initech, accepted pricing",
	} {
		_, err := env.mgr.StoreExperience(ctx, clientMeeting(desc, "send the agenda two days ahead"))
		gt.NoError(t, err)
	}
	// an isolated event type must not form a group
	_, err := env.mgr.StoreExperience(ctx, &model.Experience{
		EventType:   "incident_postmortem",
		Description: "database outage review",
		Owner:       "diana",
	})
	gt.NoError(t, err)

	results, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)

	r := results[0]
	gt.V(t, r.Method).Equal(model.ConsolidationPatternExtraction)
	gt.A(t, r.SourceIDs).Length(3)
	gt.Number(t, r.Confidence).Greater(0.8)

	derived := r.Derived
	gt.V(t, derived.Type).Equal(model.MemoryTypeSemantic)
	gt.V(t, derived.Priority).Equal(model.PriorityHigh)
	gt.S(t, derived.Content.Semantic.Subject).Contains("Padrões Comportamentais Consolidado - client_meeting")
	gt.V(t, derived.Content.Semantic.SourceCount).Equal(3)

	foundOccurrences := false
	foundLesson := false
	for _, fact := range derived.Content.Semantic.Facts {
		if fact == "Evento recorrente: client_meeting (3 ocorrências)" {
			foundOccurrences = true
		}
		if fact == "Lição: send the agenda two days ahead" {
			foundLesson = true
		}
	}
	gt.True(t, foundOccurrences)
	gt.True(t, foundLesson)

	// sources are marked, linked and kept
	for _, id := range r.SourceIDs {
		src, err := env.mgr.GetMemory(ctx, id)
		gt.NoError(t, err)
		gt.V(t, src.Status).Equal(model.StatusConsolidated)
		target, ok := src.ConsolidatedInto()
		gt.True(t, ok)
		gt.V(t, target).Equal(derived.ID)
	}
}

func TestConsolidateMemoriesExplicit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var ids []model.MemoryID
	for i := 0; i < 3; i++ {
		res, err := env.mgr.StoreExperience(ctx, &model.Experience{
			EventType:   "contract_negotiation",
			Description: "negotiated contract terms",
			Owner:       "diana",
			Outcome:     map[string]any{"result": "success"},
		})
		gt.NoError(t, err)
		ids = append(ids, res.EpisodicID)
	}

	result, err := env.mgr.ConsolidateMemories(ctx, ids, model.ConsolidationPatternExtraction)
	gt.NoError(t, err)
	gt.S(t, result.Derived.Content.Semantic.Subject).Contains("Padrões Comportamentais")
	gt.Number(t, result.Confidence).GreaterOrEqual(0.7)
	for _, id := range ids {
		src, err := env.mgr.GetMemory(ctx, id)
		gt.NoError(t, err)
		gt.V(t, src.Status).Equal(model.StatusConsolidated)
	}
}

func TestConsolidateMemoriesRejectsSingleSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.mgr.StoreExperience(ctx, clientMeeting("lonely memory"))
	gt.NoError(t, err)

	_, err = env.mgr.ConsolidateMemories(ctx, []model.MemoryID{res.EpisodicID}, "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestConsolidateMemoriesConflictWhenAllConsolidated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var ids []model.MemoryID
	for i := 0; i < 3; i++ {
		res, err := env.mgr.StoreExperience(ctx, clientMeeting("repeat escalation"))
		gt.NoError(t, err)
		ids = append(ids, res.EpisodicID)
	}
	_, err := env.mgr.ConsolidateMemories(ctx, ids, "")
	gt.NoError(t, err)

	_, err = env.mgr.ConsolidateMemories(ctx, ids, "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConsolidationConflict))
}

func TestConsolidateMemoriesRejectsNonEpisodic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	x := clientMeeting("meeting with feelings")
	x.Emotional = &model.EmotionalObservation{Response: 0.2, Valence: 0.1}
	res, err := env.mgr.StoreExperience(ctx, x)
	gt.NoError(t, err)

	_, err = env.mgr.ConsolidateMemories(ctx, []model.MemoryID{res.EpisodicID, *res.EmotionalID}, "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestConsolidateRequiresThreeMembers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.mgr.StoreExperience(ctx, clientMeeting("first of two"))
	gt.NoError(t, err)
	_, err = env.mgr.StoreExperience(ctx, clientMeeting("second of two"))
	gt.NoError(t, err)

	results, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}

func TestConsolidateDoesNotFoldTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		_, err := env.mgr.StoreExperience(ctx, clientMeeting("recurring escalation call"))
		gt.NoError(t, err)
	}

	first, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, first).Length(1)

	// sources are now Consolidated, so a second pass finds nothing
	second, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, second).Length(0)
}

func TestConsolidateLessonLearning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	lessons := []string{
		"confirm scope before quoting",
		"loop in legal on custom terms",
		"log every verbal agreement",
	}
	for i, lesson := range lessons {
		_, err := env.mgr.StoreExperience(ctx, &model.Experience{
			EventType:      "deal_review",
			Description:    "deal review session",
			Owner:          "diana",
			LessonsLearned: []string{lesson, lessons[(i+1)%3]},
		})
		gt.NoError(t, err)
	}

	results, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.V(t, results[0].Method).Equal(model.ConsolidationLessonLearning)
	gt.S(t, results[0].Derived.Content.Semantic.Subject).Contains("Lições Aprendidas Consolidado")
	// duplicated lessons collapse
	gt.A(t, results[0].Derived.Content.Semantic.Facts).Length(4) // recurrence fact + 3 lessons
}

func TestConsolidatedUnitIsRetrievable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		_, err := env.mgr.StoreExperience(ctx, clientMeeting("pricing negotiation round"))
		gt.NoError(t, err)
	}
	results, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)

	hits, err := env.mgr.RetrieveStripes(ctx, &model.RetrievalQuery{
		QueryType:   model.QueryDecision,
		Description: "Padrões Comportamentais Consolidado - client_meeting",
	})
	gt.NoError(t, err)
	gt.A(t, hits.Semantic).Longer(0)
	gt.V(t, hits.Semantic[0].Unit.ID).Equal(results[0].Derived.ID)
	// consolidated sources stay out of episodic retrieval
	gt.A(t, hits.Episodic).Length(0)
}

func TestRebuildRevertsOrphanedConsolidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		_, err := env.mgr.StoreExperience(ctx, clientMeeting("repeat planning session"))
		gt.NoError(t, err)
	}
	results, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)

	// a death between the source flips and the derived write leaves the
	// sources pointing at a unit that never landed
	derivedPath := filepath.Join(env.base, "memory_store", "compressed",
		string(results[0].Derived.ID)+".llb.gz")
	gt.NoError(t, os.Remove(derivedPath))

	report, err := env.mgr.RebuildIndexes(ctx)
	gt.NoError(t, err)
	gt.V(t, report.Recovered).Equal(3)

	for _, id := range results[0].SourceIDs {
		unit, err := env.mgr.GetMemory(ctx, id)
		gt.NoError(t, err)
		gt.V(t, unit.Status).Equal(model.StatusActive)
	}
}
