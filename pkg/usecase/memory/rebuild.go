package memory

import (
	"context"
	"errors"

	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// RebuildReport summarizes an index rebuild.
type RebuildReport struct {
	Indexed   int `json:"indexed"`
	Corrupted int `json:"corrupted"`
	Recovered int `json:"recovered"`
}

// RebuildIndexes reconstructs the keyword index, the metadata index and the
// vector collection from the blob store alone. Corrupted blobs are skipped
// and counted, never fatal; the rebuilt indexes are checkpointed at the end.
func (m *Manager) RebuildIndexes(ctx context.Context) (*RebuildReport, error) {
	ids, err := m.blobs.List(ctx)
	if err != nil {
		return nil, err
	}

	m.indexes.Reset()
	report := &RebuildReport{}
	var emotions []*emotionalEntry

	present := make(map[model.MemoryID]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}

	for _, id := range ids {
		unit, err := m.blobs.Load(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrCorruptedMemory) {
				report.Corrupted++
				m.noteCorrupted(id, err)
				logging.From(ctx).Warn("skipping corrupted blob during rebuild", "memory_id", id)
				continue
			}
			return nil, err
		}

		// a source consolidated into a unit that never landed means the
		// process died mid-consolidation, bring the source back
		if unit.Status == model.StatusConsolidated {
			if target := consolidationTarget(unit); target != "" {
				if _, ok := present[target]; !ok {
					unit.Status = model.StatusActive
					unit.UpdatedAt = m.now()
					if err := m.blobs.Save(ctx, unit); err != nil {
						return nil, err
					}
					report.Recovered++
					logging.From(ctx).Warn("reverted orphaned consolidation source",
						"memory_id", unit.ID, "missing_derived", target)
				}
			}
		}

		if err := m.indexes.Index(ctx, unit); err != nil {
			return nil, err
		}

		if unit.Content.Emotional != nil && unit.Status != model.StatusForgotten {
			emotions = append(emotions, &emotionalEntry{
				content:    unit.Content.Emotional,
				memoryID:   unit.ID,
				recordedAt: unit.CreatedAt,
			})
		}

		if unit.Status == model.StatusActive || unit.Status == model.StatusDecaying {
			text := embedTextFor(unit)
			if text != "" {
				vec, err := m.embedder.Embed(ctx, text)
				if err != nil {
					return nil, err
				}
				point := interfaces.VectorPoint{
					ID:     string(unit.ID),
					Vector: vec,
					Payload: map[string]any{
						"memory_type": string(unit.Type),
						"owner":       unit.Owner,
					},
				}
				if err := m.vectors.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{point}); err != nil {
					return nil, err
				}
				if mirror := mirrorCollection(unit); mirror != "" {
					if err := m.vectors.Upsert(ctx, mirror, []interfaces.VectorPoint{point}); err != nil {
						return nil, err
					}
				}
			}
		}
		report.Indexed++
	}

	m.restoreEmotionalRing(emotions)

	if err := m.indexes.Checkpoint(ctx); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("rebuilt memory indexes",
		"indexed", report.Indexed,
		"corrupted", report.Corrupted,
		"recovered", report.Recovered,
	)
	return report, nil
}

// consolidationTarget returns the id of the derived unit this source was
// folded into, or "" when the unit carries no consolidated_into edge.
func consolidationTarget(unit *model.MemoryUnit) model.MemoryID {
	rels, _ := unit.Metadata["relationships"].(map[string]any)
	for id, raw := range rels {
		edge, _ := raw.(map[string]any)
		if kind, _ := edge["type"].(string); kind == "consolidated_into" {
			return model.MemoryID(id)
		}
	}
	return ""
}

// embedTextFor returns the text a unit is embedded under, mirroring what the
// store operations use.
func embedTextFor(unit *model.MemoryUnit) string {
	switch {
	case unit.Content.Episodic != nil:
		return unit.Content.Episodic.EventType + " " + unit.Content.Episodic.Description
	case unit.Content.Emotional != nil:
		return "emotional " + unit.Content.Emotional.Situation
	case unit.Content.Procedural != nil:
		return "skill " + unit.Content.Procedural.SkillName
	case unit.Content.Semantic != nil:
		texts := unit.Content.Texts()
		out := ""
		for _, t := range texts {
			if out != "" {
				out += " "
			}
			out += t
		}
		return out
	default:
		return ""
	}
}
