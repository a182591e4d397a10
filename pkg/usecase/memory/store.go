package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// StoreResult reports which units one experience produced.
type StoreResult struct {
	EpisodicID   model.MemoryID   `json:"episodic_id"`
	EmotionalID  *model.MemoryID  `json:"emotional_id,omitempty"`
	ProceduralID *model.MemoryID  `json:"procedural_id,omitempty"`
	SemanticIDs  []model.MemoryID `json:"semantic_ids,omitempty"`
	KeyConcepts  []string         `json:"key_concepts,omitempty"`
}

// StoreExperience fans a raw experience out into stripe units: always an
// episodic unit, plus an emotional unit when an emotional observation is
// attached, plus a procedural unit when a process observation is attached.
// Procedural units reuse an existing unit for the same skill and owner
// instead of creating a duplicate.
func (m *Manager) StoreExperience(ctx context.Context, x *model.Experience) (*StoreResult, error) {
	if x == nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "experience is nil")
	}
	if err := x.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	if !x.Timestamp.IsZero() {
		now = x.Timestamp
	}

	// concepts come from the description plus the outcome, an outcome like
	// {"closed": "revenue up"} tags the experience even when the description
	// carries no vocabulary term
	conceptText := x.Description
	if len(x.Outcome) > 0 {
		if raw, err := json.Marshal(x.Outcome); err == nil {
			conceptText += " " + string(raw)
		}
	}
	concepts := extractKeyConcepts(conceptText)
	tags := append(append([]string{}, x.Tags...), concepts...)

	episodic := model.NewMemoryUnit(model.MemoryTypeEpisodic, x.Owner, model.MemoryContent{
		Episodic: &model.EpisodicContent{
			EventType:       x.EventType,
			Description:     x.Description,
			ContextSnapshot: x.Context,
			Outcome:         x.Outcome,
			Participants:    x.Participants,
			LessonsLearned:  x.LessonsLearned,
			EmotionalImpact: x.EmotionalImpact,
		},
	}, now)
	episodic.Priority = inferPriority(x)
	episodic.Tags = tags
	episodic.ExpiresAt = x.ExpiresAt
	if x.Context != nil {
		episodic.Context = x.Context
	}

	if err := m.persist(ctx, episodic, x.EventType+" "+x.Description); err != nil {
		return nil, err
	}

	result := &StoreResult{EpisodicID: episodic.ID, KeyConcepts: concepts}
	logger := logging.From(ctx)

	if x.Emotional != nil {
		emotional := model.NewMemoryUnit(model.MemoryTypeEmotional, x.Owner, model.MemoryContent{
			Emotional: &model.EmotionalContent{
				Situation:          x.Description,
				EmotionalResponse:  x.Emotional.Response,
				OutcomeValence:     x.Emotional.Valence,
				BehavioralResponse: x.Emotional.Behavior,
				Lesson:             x.Emotional.Lesson,
				Intensity:          x.Emotional.Intensity,
			},
		}, now)
		emotional.Priority = episodic.Priority
		emotional.Tags = tags
		emotional.AddRelationship(episodic.ID, "derived_from", now)

		if err := m.persist(ctx, emotional, "emotional "+x.Description); err != nil {
			return nil, err
		}
		m.recordEmotion(emotional, now)
		result.EmotionalID = &emotional.ID
	}

	if x.Process != nil {
		proceduralID, err := m.storeProcess(ctx, x, tags, now)
		if err != nil {
			return nil, err
		}
		result.ProceduralID = &proceduralID
	}

	for _, concept := range concepts {
		id, err := m.reinforceConcept(ctx, concept, x, episodic.ID, now)
		if err != nil {
			return nil, err
		}
		result.SemanticIDs = append(result.SemanticIDs, id)
	}

	logger.Info("stored experience",
		"event_type", x.EventType,
		"episodic_id", episodic.ID,
		"priority", episodic.Priority,
		"key_concepts", concepts,
	)
	return result, nil
}

// storeProcess either reinforces an existing procedural unit for the skill or
// creates a new one.
func (m *Manager) storeProcess(ctx context.Context, x *model.Experience, tags []string, now time.Time) (model.MemoryID, error) {
	skill := x.Process.SkillName
	if skill == "" {
		return "", goerr.Wrap(model.ErrInvalidInput, "process observation requires a skill name")
	}

	if existing := m.findProcedural(ctx, skill, x.Owner); existing != nil {
		existing.Content.Procedural.RecordPractice(x.Process.Success, x.Process.CompletionTime)
		if len(x.Process.Steps) > 0 {
			existing.Content.Procedural.Steps = x.Process.Steps
		}
		existing.Access(now)
		existing.UpdatedAt = now
		if err := m.persist(ctx, existing, "skill "+skill); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	unit := model.NewMemoryUnit(model.MemoryTypeProcedural, x.Owner, model.MemoryContent{
		Procedural: &model.ProceduralContent{
			SkillName:           skill,
			Steps:               x.Process.Steps,
			Prerequisites:       x.Process.Prerequisites,
			Difficulty:          x.Process.Difficulty,
			AutomationPotential: x.Process.AutomationPotential,
		},
	}, now)
	unit.Content.Procedural.RecordPractice(x.Process.Success, x.Process.CompletionTime)
	unit.Tags = tags

	if err := m.persist(ctx, unit, "skill "+skill); err != nil {
		return "", err
	}
	return unit.ID, nil
}

// reinforceConcept creates or updates the semantic unit tracking one key
// concept. An existing unit gains the experience as an example and a
// related_experiences edge; a new one starts as a definition stub.
func (m *Manager) reinforceConcept(ctx context.Context, concept string, x *model.Experience, episodicID model.MemoryID, now time.Time) (model.MemoryID, error) {
	if existing := m.findConcept(ctx, concept, x.Owner); existing != nil {
		sem := existing.Content.Semantic
		sem.Examples = append(sem.Examples, x.Description)
		sem.UsageCount++
		existing.AddRelationship(episodicID, "related_experiences", now)
		existing.Access(now)
		existing.UpdatedAt = now
		if err := m.persist(ctx, existing, concept+" "+sem.Definition); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	unit := model.NewMemoryUnit(model.MemoryTypeSemantic, x.Owner, model.MemoryContent{
		Semantic: &model.SemanticContent{
			Concept:    concept,
			Definition: "Conceito identificado a partir de experiências: " + concept,
			Examples:   []string{x.Description},
			UsageCount: 1,
		},
	}, now)
	unit.Tags = []string{concept}
	unit.AddRelationship(episodicID, "related_experiences", now)

	if err := m.persist(ctx, unit, concept+" "+unit.Content.Semantic.Definition); err != nil {
		return "", err
	}
	return unit.ID, nil
}

// findConcept locates the live semantic unit for a key concept and owner.
func (m *Manager) findConcept(ctx context.Context, concept, owner string) *model.MemoryUnit {
	for _, rec := range m.indexes.List(func(rec *repository.MemorySummary) bool {
		return rec.Type == model.MemoryTypeSemantic && rec.Owner == owner &&
			(rec.Status == model.StatusActive || rec.Status == model.StatusDecaying)
	}) {
		unit, err := m.blobs.Load(ctx, rec.ID)
		if err != nil {
			continue
		}
		if unit.Content.Semantic != nil && unit.Content.Semantic.Concept == concept {
			return unit
		}
	}
	return nil
}

// findProcedural locates an active procedural unit by skill name and owner.
func (m *Manager) findProcedural(ctx context.Context, skill, owner string) *model.MemoryUnit {
	for _, rec := range m.indexes.List(func(rec *repository.MemorySummary) bool {
		return rec.Type == model.MemoryTypeProcedural && rec.Owner == owner &&
			rec.Status != model.StatusForgotten && rec.Status != model.StatusArchived
	}) {
		unit, err := m.blobs.Load(ctx, rec.ID)
		if err != nil {
			continue
		}
		if unit.Content.Procedural != nil && unit.Content.Procedural.SkillName == skill {
			return unit
		}
	}
	return nil
}

// recordEmotion appends to the emotional ring, evicting the oldest entry when
// the ring is full.
func (m *Manager) recordEmotion(unit *model.MemoryUnit, now time.Time) {
	m.emoMu.Lock()
	defer m.emoMu.Unlock()

	m.ring = append(m.ring, &emotionalEntry{
		content:    unit.Content.Emotional,
		memoryID:   unit.ID,
		recordedAt: now,
	})
	if limit := m.cfg.Sweep.MaxEmotionalEntries; len(m.ring) > limit {
		m.ring = m.ring[len(m.ring)-limit:]
	}
}
