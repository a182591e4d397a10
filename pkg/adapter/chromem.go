package adapter

import (
	"context"
	"encoding/json"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
)

// ChromemIndex is the in-process fallback vector index. It keeps every vector
// in memory and searches exhaustively with cosine similarity, so it works
// without any backend but does not survive a restart.
type ChromemIndex struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	dimensions  map[string]int
}

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		dimensions:  make(map[string]int),
	}
}

func (x *ChromemIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.dimensions[name]; ok {
		if existing != dimension {
			return goerr.Wrap(model.ErrInvalidInput, "collection exists with different dimension",
				goerr.V("collection", name), goerr.V("want", dimension), goerr.V("got", existing))
		}
		return nil
	}

	col, err := x.db.CreateCollection(name, nil, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", name))
	}
	x.collections[name] = col
	x.dimensions[name] = dimension
	return nil
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	col, ok := x.collections[name]
	if !ok {
		return nil, 0, goerr.Wrap(model.ErrNotFound, "unknown collection", goerr.V("collection", name))
	}
	return col, x.dimensions[name], nil
}

func (x *ChromemIndex) Upsert(ctx context.Context, collection string, points []interfaces.VectorPoint) error {
	col, dimension, err := x.collection(collection)
	if err != nil {
		return err
	}

	// validate the whole batch before touching the collection, a bad point
	// must not leave earlier points committed
	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if p.ID == "" {
			return goerr.Wrap(model.ErrInvalidInput, "point id is empty", goerr.V("collection", collection))
		}
		if len(p.Vector) != dimension {
			return goerr.Wrap(model.ErrInvalidInput, "vector dimension mismatch",
				goerr.V("collection", collection), goerr.V("id", p.ID),
				goerr.V("want", dimension), goerr.V("got", len(p.Vector)))
		}

		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return goerr.Wrap(err, "failed to encode payload", goerr.V("id", p.ID))
		}

		// string payload fields double as metadata so searches can filter on them
		meta := make(map[string]string)
		for k, v := range p.Payload {
			if s, ok := v.(string); ok {
				meta[k] = s
			}
		}

		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Metadata:  meta,
			Content:   string(payload),
			Embedding: p.Vector,
		})
	}

	for _, doc := range docs {
		if err := col.AddDocument(ctx, doc); err != nil {
			return goerr.Wrap(err, "failed to add document",
				goerr.V("collection", collection), goerr.V("id", doc.ID))
		}
	}
	return nil
}

func (x *ChromemIndex) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64, filter map[string]string) ([]interfaces.VectorHit, error) {
	col, dimension, err := x.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dimension {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query vector dimension mismatch",
			goerr.V("collection", collection), goerr.V("want", dimension), goerr.V("got", len(vector)))
	}

	// chromem rejects nResults larger than the collection size
	if n := col.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, filter, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "fallback vector search failed", goerr.V("collection", collection))
	}

	var hits []interfaces.VectorHit
	for _, r := range results {
		score := float64(r.Similarity)
		if score < minScore {
			continue
		}

		var payload map[string]any
		if r.Content != "" {
			if err := json.Unmarshal([]byte(r.Content), &payload); err != nil {
				return nil, goerr.Wrap(err, "failed to decode payload", goerr.V("id", r.ID))
			}
		}
		hits = append(hits, interfaces.VectorHit{
			ID:      r.ID,
			Score:   score,
			Payload: payload,
		})
	}
	return hits, nil
}

func (x *ChromemIndex) Delete(ctx context.Context, collection string, ids []string) error {
	col, _, err := x.collection(collection)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return goerr.Wrap(err, "failed to delete documents", goerr.V("collection", collection))
	}
	return nil
}

func (x *ChromemIndex) Collection(ctx context.Context, name string) (*interfaces.CollectionInfo, error) {
	col, dimension, err := x.collection(name)
	if err != nil {
		return nil, err
	}
	return &interfaces.CollectionInfo{
		Name:      name,
		Dimension: dimension,
		Count:     col.Count(),
	}, nil
}

func (x *ChromemIndex) Healthy(ctx context.Context) bool {
	return true
}
