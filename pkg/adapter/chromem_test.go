package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/adapter"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
)

func seedIndex(t *testing.T, ctx context.Context) (*adapter.ChromemIndex, *adapter.LocalEmbedder) {
	t.Helper()
	idx := adapter.NewChromemIndex()
	emb := adapter.NewLocalEmbedder(384)
	gt.NoError(t, idx.EnsureCollection(ctx, model.CollectionAgentMemories, 384))
	return idx, emb
}

func embedPoint(t *testing.T, ctx context.Context, emb *adapter.LocalEmbedder, id, text string) interfaces.VectorPoint {
	t.Helper()
	vec, err := emb.Embed(ctx, text)
	gt.NoError(t, err)
	return interfaces.VectorPoint{
		ID:      id,
		Vector:  vec,
		Payload: map[string]any{"text": text},
	}
}

func TestChromemEnsureCollectionIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := adapter.NewChromemIndex()

	gt.NoError(t, idx.EnsureCollection(ctx, "test", 384))
	gt.NoError(t, idx.EnsureCollection(ctx, "test", 384))

	err := idx.EnsureCollection(ctx, "test", 1536)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestChromemUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	points := []interfaces.VectorPoint{
		embedPoint(t, ctx, emb, "m1", "contract renewal negotiation with key client"),
		embedPoint(t, ctx, emb, "m2", "database migration runbook"),
		embedPoint(t, ctx, emb, "m3", "weekly revenue report automation"),
	}
	gt.NoError(t, idx.Upsert(ctx, model.CollectionAgentMemories, points))

	query, err := emb.Embed(ctx, "contract renewal negotiation with key client")
	gt.NoError(t, err)

	hits, err := idx.Search(ctx, model.CollectionAgentMemories, query, 3, 0.0, nil)
	gt.NoError(t, err)
	gt.A(t, hits).Longer(0)

	// identical text embeds identically, so the exact match ranks first
	gt.V(t, hits[0].ID).Equal("m1")
	gt.Number(t, hits[0].Score).Greater(0.99)
	gt.V(t, hits[0].Payload["text"].(string)).Equal("contract renewal negotiation with key client")
}

func TestChromemSearchLimitAboveCount(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	gt.NoError(t, idx.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{
		embedPoint(t, ctx, emb, "only", "a single stored memory"),
	}))

	query, err := emb.Embed(ctx, "anything")
	gt.NoError(t, err)

	// limit larger than the collection must not error
	hits, err := idx.Search(ctx, model.CollectionAgentMemories, query, 10, -1, nil)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
}

func TestChromemSearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	query, err := emb.Embed(ctx, "anything")
	gt.NoError(t, err)

	hits, err := idx.Search(ctx, model.CollectionAgentMemories, query, 5, 0.0, nil)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestChromemMinScoreFilters(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	gt.NoError(t, idx.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{
		embedPoint(t, ctx, emb, "m1", "completely unrelated content about gardening"),
	}))

	query, err := emb.Embed(ctx, "quarterly financial projections")
	gt.NoError(t, err)

	hits, err := idx.Search(ctx, model.CollectionAgentMemories, query, 5, 0.99, nil)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestChromemSearchPayloadFilter(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	episodic := embedPoint(t, ctx, emb, "ep1", "client escalation call about delayed shipment")
	episodic.Payload["memory_type"] = "episodic"
	semantic := embedPoint(t, ctx, emb, "se1", "client escalation call about delayed shipment")
	semantic.Payload["memory_type"] = "semantic"
	gt.NoError(t, idx.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{episodic, semantic}))

	query, err := emb.Embed(ctx, "client escalation call about delayed shipment")
	gt.NoError(t, err)

	// both points embed identically, the filter alone decides which one returns
	hits, err := idx.Search(ctx, model.CollectionAgentMemories, query, 5, 0.0,
		map[string]string{"memory_type": "semantic"})
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.V(t, hits[0].ID).Equal("se1")
}

func TestChromemDelete(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	gt.NoError(t, idx.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{
		embedPoint(t, ctx, emb, "keep", "memory to keep"),
		embedPoint(t, ctx, emb, "drop", "memory to drop"),
	}))

	gt.NoError(t, idx.Delete(ctx, model.CollectionAgentMemories, []string{"drop", "never-existed"}))

	info, err := idx.Collection(ctx, model.CollectionAgentMemories)
	gt.NoError(t, err)
	gt.V(t, info.Count).Equal(1)
}

func TestChromemUpsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, _ := seedIndex(t, ctx)

	err := idx.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{
		{ID: "bad", Vector: make([]float32, 16)},
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestChromemUpsertBatchAtomic(t *testing.T) {
	ctx := context.Background()
	idx, emb := seedIndex(t, ctx)

	err := idx.Upsert(ctx, model.CollectionAgentMemories, []interfaces.VectorPoint{
		embedPoint(t, ctx, emb, "ok", "a perfectly valid point"),
		{ID: "bad", Vector: make([]float32, 16)},
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))

	// the valid point must not have landed from the failed batch
	info, err := idx.Collection(ctx, model.CollectionAgentMemories)
	gt.NoError(t, err)
	gt.V(t, info.Count).Equal(0)
}

func TestChromemUnknownCollection(t *testing.T) {
	ctx := context.Background()
	idx := adapter.NewChromemIndex()

	_, err := idx.Search(ctx, "missing", make([]float32, 384), 5, 0, nil)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}
