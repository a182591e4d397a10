package truthbase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

const overrideFileName = "overrides.json"

// UseCase is the authoritative factual layer: documents are chunked and
// indexed into the truth base collection, retrieval grounds answers in those
// chunks, and per-topic fact overrides outrank conflicting document chunks.
type UseCase struct {
	embedder interfaces.Embedder
	vectors  interfaces.VectorIndex
	cfg      *model.Config
	now      func() time.Time

	mu        sync.RWMutex
	overrides map[string]*model.Override
	sources   map[string]map[string]struct{}
	documents int
	chunks    int

	cache *queryCache

	statsMu     sync.Mutex
	queries     int
	cacheHits   int
	cacheMisses int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithNowFunc overrides the clock, for cache TTL tests
func WithNowFunc(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a truth base over the given embedder and vector index. Existing
// overrides are loaded from disk immediately; their vectors are restored by
// Initialize.
func New(embedder interfaces.Embedder, vectors interfaces.VectorIndex, cfg *model.Config, opts ...Option) (*UseCase, error) {
	uc := &UseCase{
		embedder:  embedder,
		vectors:   vectors,
		cfg:       cfg,
		now:       time.Now,
		overrides: make(map[string]*model.Override),
		sources:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.cache = newQueryCache(time.Duration(cfg.TruthBase.CacheTTLDays) * 24 * time.Hour)

	dir := filepath.Join(cfg.BaseDir, "truth_base")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create truth base directory", goerr.V("dir", dir))
	}
	if err := uc.loadOverrides(); err != nil {
		return nil, err
	}
	return uc, nil
}

// Initialize ensures the truth base collection exists and restores the vector
// points of persisted overrides.
func (uc *UseCase) Initialize(ctx context.Context) error {
	if err := uc.vectors.EnsureCollection(ctx, model.CollectionTruthBase, uc.cfg.Embedding.Dimension); err != nil {
		return goerr.Wrap(err, "failed to ensure truth base collection")
	}

	uc.mu.RLock()
	overrides := make([]*model.Override, 0, len(uc.overrides))
	for _, o := range uc.overrides {
		overrides = append(overrides, o)
	}
	uc.mu.RUnlock()

	for _, o := range overrides {
		if err := uc.indexOverride(ctx, o); err != nil {
			return err
		}
	}

	logging.From(ctx).Info("truth base initialized",
		"dimension", uc.cfg.Embedding.Dimension,
		"overrides", len(overrides),
	)
	return nil
}

// TruthStats is the operational snapshot of the truth base.
type TruthStats struct {
	Queries       int     `json:"queries"`
	CacheHits     int     `json:"cache_hits"`
	CacheMisses   int     `json:"cache_misses"`
	HitRate       float64 `json:"hit_rate"`
	CachedQueries int     `json:"cached_queries"`
	Documents     int     `json:"documents"`
	Chunks        int     `json:"chunks"`
	Overrides     int     `json:"overrides"`
}

func (uc *UseCase) Stats() *TruthStats {
	uc.statsMu.Lock()
	stats := &TruthStats{
		Queries:     uc.queries,
		CacheHits:   uc.cacheHits,
		CacheMisses: uc.cacheMisses,
	}
	uc.statsMu.Unlock()
	if stats.Queries > 0 {
		stats.HitRate = float64(stats.CacheHits) / float64(stats.Queries)
	}
	stats.CachedQueries = uc.cache.Len()

	uc.mu.RLock()
	stats.Documents = uc.documents
	stats.Chunks = uc.chunks
	stats.Overrides = len(uc.overrides)
	uc.mu.RUnlock()
	return stats
}

// CacheGC drops expired cache entries, called from the background sweep.
func (uc *UseCase) CacheGC() int {
	return uc.cache.GC(uc.now())
}

// CachedAt reports when the result for a query entered the cache.
func (uc *UseCase) CachedAt(query string, topK int, minScore float64) (time.Time, bool) {
	if topK <= 0 {
		topK = defaultTopK
	}
	if minScore <= 0 {
		minScore = defaultMinScore
	}
	return uc.cache.CachedAt(cacheKey(query, topK, minScore))
}

func (uc *UseCase) overridePath() string {
	return filepath.Join(uc.cfg.BaseDir, "truth_base", overrideFileName)
}

func (uc *UseCase) loadOverrides() error {
	raw, err := os.ReadFile(uc.overridePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read override file", goerr.V("path", uc.overridePath()))
	}

	overrides := make(map[string]*model.Override)
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return goerr.Wrap(model.ErrCorruptedMemory, "override file is not valid JSON",
			goerr.V("path", uc.overridePath()))
	}

	uc.mu.Lock()
	uc.overrides = overrides
	for _, o := range overrides {
		uc.registerSourceLocked(o.SourcePath, o.Section)
	}
	uc.mu.Unlock()
	return nil
}

// registerSourceLocked records a source_path/section pair for citation
// validation. Caller holds uc.mu.
func (uc *UseCase) registerSourceLocked(sourcePath, section string) {
	sections, ok := uc.sources[sourcePath]
	if !ok {
		sections = make(map[string]struct{})
		uc.sources[sourcePath] = sections
	}
	sections[section] = struct{}{}
}
