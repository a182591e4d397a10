package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

const (
	minGroupSize = 3
	maxLessons   = 10
)

// Consolidate runs the automatic consolidation pass: episodic units that are
// still relevant and recently accessed are grouped by event type, and groups
// of at least three members are folded into derived semantic units. The
// method per group is chosen from what the group offers.
func (m *Manager) Consolidate(ctx context.Context) ([]*model.ConsolidationResult, error) {
	now := m.now()

	var eligible []*model.MemoryUnit
	for _, rec := range m.indexes.List(func(rec *repository.MemorySummary) bool {
		return rec.Type == model.MemoryTypeEpisodic &&
			(rec.Status == model.StatusActive || rec.Status == model.StatusDecaying)
	}) {
		unit, err := m.blobs.Load(ctx, rec.ID)
		if err != nil {
			logging.From(ctx).Warn("skipping unreadable memory during consolidation",
				"memory_id", rec.ID, "error", err)
			continue
		}
		if unit.ShouldConsolidate(now) && unit.Content.Episodic != nil {
			eligible = append(eligible, unit)
		}
	}

	groups := make(map[string][]*model.MemoryUnit)
	for _, unit := range eligible {
		groups[unit.Content.Episodic.EventType] = append(groups[unit.Content.Episodic.EventType], unit)
	}

	eventTypes := make([]string, 0, len(groups))
	for et := range groups {
		eventTypes = append(eventTypes, et)
	}
	sort.Strings(eventTypes)

	var results []*model.ConsolidationResult
	for _, eventType := range eventTypes {
		group := groups[eventType]
		if len(group) < minGroupSize {
			continue
		}
		ids := make([]model.MemoryID, 0, len(group))
		for _, unit := range group {
			ids = append(ids, unit.ID)
		}
		result, err := m.ConsolidateMemories(ctx, ids, "")
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if len(results) > 0 {
		logging.From(ctx).Info("consolidated memories", "derived_units", len(results))
	}
	return results, nil
}

// ConsolidateMemories folds the named episodic memories into one derived
// semantic unit. At least two sources are required. Sources that were already
// consolidated by an earlier pass are excluded; when none remain the call
// fails with ErrConsolidationConflict. An empty method picks one from the
// group's lessons and outcomes. Sources are linked to the derived unit and
// marked Consolidated, never deleted.
func (m *Manager) ConsolidateMemories(ctx context.Context, ids []model.MemoryID, method model.ConsolidationMethod) (*model.ConsolidationResult, error) {
	if len(ids) < 2 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "consolidation requires at least two source memories",
			goerr.V("count", len(ids)))
	}

	var group []*model.MemoryUnit
	var alreadyConsolidated int
	for _, id := range ids {
		unit, err := m.blobs.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if unit.Content.Episodic == nil {
			return nil, goerr.Wrap(model.ErrInvalidInput, "only episodic memories can be consolidated",
				goerr.V("memory_id", id), goerr.V("memory_type", unit.Type))
		}
		if unit.Status == model.StatusConsolidated {
			alreadyConsolidated++
			continue
		}
		group = append(group, unit)
	}
	if len(group) < 2 {
		if alreadyConsolidated > 0 {
			return nil, goerr.Wrap(model.ErrConsolidationConflict, "sources already consolidated",
				goerr.V("already_consolidated", alreadyConsolidated))
		}
		return nil, goerr.Wrap(model.ErrInvalidInput, "consolidation requires at least two source memories",
			goerr.V("count", len(group)))
	}

	now := m.now()
	lessons := dedupeLessons(group)
	outcomes := outcomeHistogram(group)
	if method == "" {
		method = chooseMethod(lessons, outcomes)
	}

	eventTypes := make(map[string]int)
	for _, src := range group {
		eventTypes[src.Content.Episodic.EventType]++
	}
	dominant := dominantEventType(eventTypes)

	facts := []string{
		fmt.Sprintf("Evento recorrente: %s (%d ocorrências)", dominant, eventTypes[dominant]),
	}
	switch method {
	case model.ConsolidationLessonLearning:
		for _, lesson := range lessons {
			facts = append(facts, "Lição: "+lesson)
		}
	case model.ConsolidationOutcomeAnalysis:
		if len(outcomes) > 0 {
			facts = append(facts, "Distribuição de resultados: "+formatHistogram(outcomes))
		}
	case model.ConsolidationGeneral:
	default:
		if len(outcomes) > 0 {
			facts = append(facts, "Distribuição de resultados: "+formatHistogram(outcomes))
		}
		for _, lesson := range lessons {
			facts = append(facts, "Lição: "+lesson)
		}
	}

	var tagSet = map[string]struct{}{}
	var confidenceSum float64
	for _, src := range group {
		confidenceSum += src.Confidence
		for _, tag := range src.Tags {
			tagSet[tag] = struct{}{}
		}
	}
	homogeneity := 1 - float64(len(eventTypes))/float64(len(group))
	confidence := (homogeneity + confidenceSum/float64(len(group))) / 2

	derived := model.NewMemoryUnit(model.MemoryTypeSemantic, group[0].Owner, model.MemoryContent{
		Semantic: &model.SemanticContent{
			Subject: subjectFor(method, dominant),
			Facts:   facts,
			Relationships: map[string][]string{
				"derived_from": {dominant},
			},
			SourceCount: len(group),
		},
	}, now)
	derived.Priority = model.PriorityHigh
	derived.Confidence = confidence
	for tag := range tagSet {
		derived.Tags = append(derived.Tags, tag)
	}
	sort.Strings(derived.Tags)

	sourceIDs := make([]model.MemoryID, 0, len(group))
	for _, src := range group {
		derived.AddRelationship(src.ID, "consolidated_from", now)
		sourceIDs = append(sourceIDs, src.ID)
	}

	// Sources flip first, derived unit last. Retrieval hides Consolidated
	// units, so a reader mid-step sees neither half-state; if the process
	// dies before the derived unit lands, rebuild reverts sources whose
	// consolidated_into target is missing.
	for _, src := range group {
		src.AddRelationship(derived.ID, "consolidated_into", now)
		src.Status = model.StatusConsolidated
		src.UpdatedAt = now
		if err := m.persist(ctx, src, ""); err != nil {
			return nil, err
		}
	}

	if err := m.persist(ctx, derived, derived.Content.Semantic.Subject+" "+strings.Join(facts, " ")); err != nil {
		return nil, err
	}

	return &model.ConsolidationResult{
		Derived:    derived,
		SourceIDs:  sourceIDs,
		Method:     method,
		Confidence: confidence,
		CreatedAt:  now,
	}, nil
}

// chooseMethod picks the consolidation strategy from what the group offers:
// shared behavior is the default, lesson-heavy groups aggregate lessons, and
// groups whose only signal is varied outcomes analyze those.
func chooseMethod(lessons []string, outcomes map[string]int) model.ConsolidationMethod {
	if len(lessons) == 0 && len(outcomes) > 1 {
		return model.ConsolidationOutcomeAnalysis
	}
	if len(outcomes) == 0 && len(lessons) >= minGroupSize {
		return model.ConsolidationLessonLearning
	}
	if len(lessons) == 0 && len(outcomes) == 0 {
		return model.ConsolidationGeneral
	}
	return model.ConsolidationPatternExtraction
}

func subjectFor(method model.ConsolidationMethod, eventType string) string {
	switch method {
	case model.ConsolidationLessonLearning:
		return "Lições Aprendidas Consolidado - " + eventType
	case model.ConsolidationOutcomeAnalysis:
		return "Padrões de Resultado Consolidado - " + eventType
	case model.ConsolidationGeneral:
		return "Padrões Gerais Consolidado - " + eventType
	default:
		return "Padrões Comportamentais Consolidado - " + eventType
	}
}

func dominantEventType(hist map[string]int) string {
	var dominant string
	var best int
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if hist[k] > best {
			dominant, best = k, hist[k]
		}
	}
	return dominant
}

func dedupeLessons(group []*model.MemoryUnit) []string {
	seen := make(map[string]struct{})
	var lessons []string
	for _, unit := range group {
		for _, lesson := range unit.Content.Episodic.LessonsLearned {
			key := strings.ToLower(strings.TrimSpace(lesson))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			lessons = append(lessons, lesson)
			if len(lessons) >= maxLessons {
				return lessons
			}
		}
	}
	return lessons
}

func outcomeHistogram(group []*model.MemoryUnit) map[string]int {
	hist := make(map[string]int)
	for _, unit := range group {
		if cat := unit.Content.Episodic.OutcomeCategory(); cat != "unknown" {
			hist[cat]++
		}
	}
	return hist
}

func formatHistogram(hist map[string]int) string {
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, hist[k]))
	}
	return strings.Join(parts, ", ")
}
