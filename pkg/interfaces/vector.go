package interfaces

import "context"

// VectorPoint is one embedded record handed to a vector index.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// VectorHit is one search result. Score is cosine similarity in [-1, 1],
// higher is closer.
type VectorHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	Count     int
}

// VectorIndex abstracts the vector store. The reference implementation is a
// networked index; a local exhaustive index serves as fallback when the
// backend is unreachable.
type VectorIndex interface {
	// EnsureCollection creates the collection if missing. An existing
	// collection with a different dimension is an error.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or replaces points by ID
	Upsert(ctx context.Context, collection string, points []VectorPoint) error

	// Search returns up to limit nearest points above minScore. A non-nil
	// filter restricts hits to points whose payload fields equal the given
	// values.
	Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64, filter map[string]string) ([]VectorHit, error)

	// Delete removes points by ID, ignoring unknown IDs
	Delete(ctx context.Context, collection string, ids []string) error

	// Collection reports metadata for one collection
	Collection(ctx context.Context, name string) (*CollectionInfo, error)

	// Healthy reports whether the backing store is reachable
	Healthy(ctx context.Context) bool
}
