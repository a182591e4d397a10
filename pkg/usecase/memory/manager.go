package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// Manager coordinates the four memory stripes: it fans experiences out into
// units, retrieves across stripes, and runs the decay and consolidation
// sweeps.
type Manager struct {
	embedder interfaces.Embedder
	vectors  interfaces.VectorIndex
	blobs    *repository.BlobStore
	indexes  *repository.IndexStore
	cfg      *model.Config
	now      func() time.Time

	// emotional ring, single writer, snapshot reads
	emoMu sync.RWMutex
	ring  []*emotionalEntry

	// blobs that failed integrity checks since startup
	corruptMu sync.Mutex
	corrupted map[model.MemoryID]struct{}

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

type emotionalEntry struct {
	content    *model.EmotionalContent
	memoryID   model.MemoryID
	recordedAt time.Time
}

// Option is a functional option for Manager
type Option func(*Manager)

// WithNowFunc overrides the clock, for decay and sweep tests
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a memory Manager. The embedder must produce vectors matching
// the configured memory dimension.
func New(
	embedder interfaces.Embedder,
	vectors interfaces.VectorIndex,
	blobs *repository.BlobStore,
	indexes *repository.IndexStore,
	cfg *model.Config,
	opts ...Option,
) *Manager {
	m := &Manager{
		embedder:  embedder,
		vectors:   vectors,
		blobs:     blobs,
		indexes:   indexes,
		cfg:       cfg,
		now:       time.Now,
		corrupted: make(map[model.MemoryID]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Initialize ensures the memory collections exist. It must be called before
// any store or retrieve operation.
func (m *Manager) Initialize(ctx context.Context) error {
	dim := m.cfg.Embedding.MemoryDimension
	for _, name := range []string{
		model.CollectionAgentMemories,
		model.CollectionCorporateKnowledge,
		model.CollectionDecisionHistory,
	} {
		if err := m.vectors.EnsureCollection(ctx, name, dim); err != nil {
			return goerr.Wrap(err, "failed to ensure memory collection", goerr.V("collection", name))
		}
	}

	logging.From(ctx).Info("memory engine initialized",
		"dimension", dim,
		"indexed_units", m.indexes.Len(),
	)
	return nil
}

// StartSweeper runs the maintenance sweep on the configured interval until
// Shutdown or context cancellation.
func (m *Manager) StartSweeper(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})

	interval := time.Duration(m.cfg.Sweep.IntervalHours) * time.Hour
	go func() {
		defer close(m.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunMaintenance(sweepCtx); err != nil {
					logging.From(sweepCtx).Error("maintenance sweep failed", "error", err)
				}
			}
		}
	}()
}

// Shutdown stops the sweeper, checkpoints the indexes and releases the blob
// cache.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.sweepCancel != nil {
		m.sweepCancel()
		select {
		case <-m.sweepDone:
		case <-ctx.Done():
			return goerr.Wrap(model.ErrTimeout, "sweeper did not stop before deadline")
		}
		m.sweepCancel = nil
	}

	if err := m.indexes.Checkpoint(ctx); err != nil {
		return err
	}
	m.blobs.Close()
	return nil
}

// persist writes a unit to the blob store, both indexes, and the vector
// collection it belongs to.
func (m *Manager) persist(ctx context.Context, unit *model.MemoryUnit, embedText string) error {
	if err := m.blobs.Save(ctx, unit); err != nil {
		return err
	}
	if err := m.indexes.Index(ctx, unit); err != nil {
		return err
	}

	if embedText == "" {
		return nil
	}
	vec, err := m.embedder.Embed(ctx, embedText)
	if err != nil {
		return goerr.Wrap(err, "failed to embed memory", goerr.V("memory_id", unit.ID))
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
		return err
	}
	if mirror := mirrorCollection(unit); mirror != "" {
		return m.vectors.Upsert(ctx, mirror, []interfaces.VectorPoint{point})
	}
	return nil
}

// dropVectorPoints removes ids from the primary collection and both mirrors.
func (m *Manager) dropVectorPoints(ctx context.Context, ids []string) error {
	for _, collection := range []string{
		model.CollectionAgentMemories,
		model.CollectionCorporateKnowledge,
		model.CollectionDecisionHistory,
	} {
		if err := m.vectors.Delete(ctx, collection, ids); err != nil {
			return err
		}
	}
	return nil
}

// restoreEmotionalRing replaces the ring with persisted emotional units,
// oldest first, keeping the configured cap. Used by RebuildIndexes so a cold
// process recovers the same emotional context it had before restart.
func (m *Manager) restoreEmotionalRing(entries []*emotionalEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].recordedAt.Before(entries[j].recordedAt)
	})
	if limit := m.cfg.Sweep.MaxEmotionalEntries; len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	m.emoMu.Lock()
	m.ring = entries
	m.emoMu.Unlock()
}

// noteCorrupted records a blob that failed its integrity check so the id can
// surface through Health. Other load failures are not tracked.
func (m *Manager) noteCorrupted(id model.MemoryID, err error) {
	if !errors.Is(err, model.ErrCorruptedMemory) {
		return
	}
	m.corruptMu.Lock()
	m.corrupted[id] = struct{}{}
	m.corruptMu.Unlock()
}

func (m *Manager) corruptedIDs() []string {
	m.corruptMu.Lock()
	defer m.corruptMu.Unlock()
	if len(m.corrupted) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m.corrupted))
	for id := range m.corrupted {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return ids
}

// mirrorCollection routes a unit to its secondary collection: distilled
// knowledge is mirrored to corporate_knowledge and concrete decisions with a
// recorded outcome to decision_history. All retrieval runs against
// agent_memories; the mirrors exist for external consumers of the layout.
func mirrorCollection(unit *model.MemoryUnit) string {
	switch unit.Type {
	case model.MemoryTypeSemantic, model.MemoryTypeConsolidated:
		return model.CollectionCorporateKnowledge
	case model.MemoryTypeEpisodic:
		if unit.Content.Episodic != nil && unit.Content.Episodic.Outcome != nil {
			return model.CollectionDecisionHistory
		}
	}
	return ""
}
