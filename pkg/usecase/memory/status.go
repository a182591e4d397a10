package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
)

// Stats returns a snapshot of the memory population from the metadata index.
func (m *Manager) Stats() *model.MemoryStats {
	stats := &model.MemoryStats{
		ByType:     make(map[model.MemoryType]int),
		ByStatus:   make(map[model.MemoryStatus]int),
		ByPriority: make(map[model.MemoryPriority]int),
	}

	for _, rec := range m.indexes.List() {
		stats.Total++
		stats.ByType[rec.Type]++
		stats.ByStatus[rec.Status]++
		stats.ByPriority[rec.Priority]++
		stats.AvgRelevance += rec.Relevance
		stats.AvgDecay += rec.Decay
	}
	if stats.Total > 0 {
		stats.AvgRelevance /= float64(stats.Total)
		stats.AvgDecay /= float64(stats.Total)
	}

	m.emoMu.RLock()
	stats.EmotionalRing = len(m.ring)
	m.emoMu.RUnlock()

	return stats
}

// Health reports per-component availability, the memory distribution across
// stripes, the ids of blobs that failed integrity checks since startup, and
// advisory notes about the memory population.
type Health struct {
	VectorIndex  bool                     `json:"vector_index"`
	BlobStore    bool                     `json:"blob_store"`
	Fallback     bool                     `json:"fallback,omitempty"`
	Distribution map[model.MemoryType]int `json:"distribution"`
	CorruptedIDs []string                 `json:"corrupted_ids,omitempty"`
	Notes        []string                 `json:"notes,omitempty"`
}

func (m *Manager) Health(ctx context.Context) Health {
	_, blobErr := m.blobs.List(ctx)
	stats := m.Stats()

	h := Health{
		VectorIndex:  m.vectors.Healthy(ctx),
		BlobStore:    blobErr == nil,
		Distribution: stats.ByType,
		CorruptedIDs: m.corruptedIDs(),
	}
	if d, ok := m.vectors.(interface{ Degraded() bool }); ok {
		h.Fallback = d.Degraded()
	}

	if stats.Total < 10 {
		h.Notes = append(h.Notes, "low memory volume, system needs more experiences")
	}
	if stats.Total > 0 && float64(stats.ByType[model.MemoryTypeEpisodic])/float64(stats.Total) > 0.8 {
		h.Notes = append(h.Notes, "over-reliance on episodic memory, diversify learning")
	}
	return h
}

// GetMemory loads one unit by id and reinforces it.
func (m *Manager) GetMemory(ctx context.Context, id model.MemoryID) (*model.MemoryUnit, error) {
	unit, err := m.blobs.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	unit.Access(m.now())
	if err := m.blobs.Save(ctx, unit); err != nil {
		return nil, err
	}
	if err := m.indexes.Index(ctx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

// UpdateMemory replaces a unit's content, bumping its version and update
// history.
func (m *Manager) UpdateMemory(ctx context.Context, id model.MemoryID, content model.MemoryContent, updatedBy string) (*model.MemoryUnit, error) {
	unit, err := m.blobs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := content.Validate(unit.Type); err != nil {
		return nil, err
	}

	unit.UpdateContent(content, updatedBy, m.now())
	if err := m.persist(ctx, unit, embedTextFor(unit)); err != nil {
		return nil, err
	}
	return unit, nil
}

// RelateMemories records a relationship edge from one unit to another. The
// edge makes the related unit reachable through retrieval's one-hop
// expansion.
func (m *Manager) RelateMemories(ctx context.Context, id, related model.MemoryID, kind string) error {
	if id == related {
		return goerr.Wrap(model.ErrInvalidInput, "a memory cannot relate to itself", goerr.V("memory_id", id))
	}
	if _, ok := m.indexes.Summary(related); !ok {
		return goerr.Wrap(model.ErrNotFound, "related memory does not exist", goerr.V("memory_id", related))
	}

	unit, err := m.blobs.Load(ctx, id)
	if err != nil {
		return err
	}
	now := m.now()
	unit.AddRelationship(related, kind, now)
	unit.UpdatedAt = now
	return m.persist(ctx, unit, "")
}

// ForgetMemory removes a unit entirely: blob, indexes and vector point.
func (m *Manager) ForgetMemory(ctx context.Context, id model.MemoryID) error {
	if err := m.dropVectorPoints(ctx, []string{string(id)}); err != nil {
		return err
	}
	if err := m.indexes.Remove(ctx, id); err != nil {
		return err
	}
	return m.blobs.Delete(ctx, id)
}
