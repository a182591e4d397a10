package truthbase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.3
)

// Retrieve runs an ANN query over the truth base and returns scored chunks,
// override chunks ranked ahead of document chunks they tie or beat. Results
// are cached by query hash for the configured TTL; a cache hit returns the
// stored result unchanged.
func (uc *UseCase) Retrieve(ctx context.Context, query string, topK int, minScore float64) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is empty")
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if minScore <= 0 {
		minScore = defaultMinScore
	}

	now := uc.now()
	key := cacheKey(query, topK, minScore)

	uc.statsMu.Lock()
	uc.queries++
	uc.statsMu.Unlock()

	if chunks, ok := uc.cache.Get(key, now); ok {
		uc.statsMu.Lock()
		uc.cacheHits++
		uc.statsMu.Unlock()
		logging.From(ctx).Debug("truth base cache hit", "query", query)
		return chunks, nil
	}
	uc.statsMu.Lock()
	uc.cacheMisses++
	uc.statsMu.Unlock()

	vec, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed truth base query")
	}

	// overfetch so override promotion has material to work with
	hits, err := uc.vectors.Search(ctx, model.CollectionTruthBase, vec, topK*2, minScore, nil)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, model.ScoredChunk{
			Chunk: chunkFromPayload(h),
			Score: h.Score,
		})
	}
	chunks = promoteOverrides(chunks)
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	uc.cache.Put(key, chunks, now)
	return chunks, nil
}

// promoteOverrides orders chunks by descending score, then moves every
// override chunk that ties or beats the best document chunk to the front.
func promoteOverrides(chunks []model.ScoredChunk) []model.ScoredChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Chunk.Override && !chunks[j].Chunk.Override
	})

	var bestDocument float64
	for _, c := range chunks {
		if !c.Chunk.Override && c.Score > bestDocument {
			bestDocument = c.Score
		}
	}

	var front, rest []model.ScoredChunk
	for _, c := range chunks {
		if c.Chunk.Override && c.Score >= bestDocument {
			front = append(front, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(front, rest...)
}

func chunkFromPayload(h interfaces.VectorHit) *model.DocumentChunk {
	chunk := &model.DocumentChunk{
		ID:         model.ChunkID(h.ID),
		SourcePath: payloadString(h.Payload, "source_path"),
		Section:    payloadString(h.Payload, "section"),
		ChunkIndex: payloadInt(h.Payload, "chunk_index"),
		TokenCount: payloadInt(h.Payload, "token_count"),
		Text:       payloadString(h.Payload, "text"),
		Topic:      payloadString(h.Payload, "topic"),
	}
	if v, ok := h.Payload["override"].(bool); ok {
		chunk.Override = v
	}
	if v, ok := h.Payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			chunk.CreatedAt = t
		}
	}
	return chunk
}

func payloadString(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

// payloadInt tolerates the numeric types different backends hand back.
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
