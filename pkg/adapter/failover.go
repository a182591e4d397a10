package adapter

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// FailoverIndex routes vector operations to a primary index and degrades to a
// local fallback when the primary stops responding. Once degraded it stays on
// the fallback until the primary reports healthy again, so a flapping backend
// does not split writes between the two stores mid-batch.
type FailoverIndex struct {
	primary  interfaces.VectorIndex
	fallback interfaces.VectorIndex
	degraded atomic.Bool
}

func NewFailoverIndex(primary, fallback interfaces.VectorIndex) *FailoverIndex {
	return &FailoverIndex{primary: primary, fallback: fallback}
}

// Degraded reports whether operations are currently served by the fallback.
func (x *FailoverIndex) Degraded() bool {
	return x.degraded.Load()
}

func (x *FailoverIndex) pick(ctx context.Context) interfaces.VectorIndex {
	if x.degraded.Load() {
		if x.primary.Healthy(ctx) {
			x.degraded.Store(false)
			logging.From(ctx).Info("vector index recovered, leaving fallback mode")
			return x.primary
		}
		return x.fallback
	}

	if !x.primary.Healthy(ctx) {
		x.degraded.Store(true)
		logging.From(ctx).Warn("vector index unreachable, entering fallback mode")
		return x.fallback
	}
	return x.primary
}

func (x *FailoverIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	// the fallback must always know the collection so a later degrade works
	if err := x.fallback.EnsureCollection(ctx, name, dimension); err != nil {
		return err
	}
	if x.pick(ctx) == x.fallback {
		return nil
	}
	return x.primary.EnsureCollection(ctx, name, dimension)
}

func (x *FailoverIndex) Upsert(ctx context.Context, collection string, points []interfaces.VectorPoint) error {
	return x.pick(ctx).Upsert(ctx, collection, points)
}

func (x *FailoverIndex) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64, filter map[string]string) ([]interfaces.VectorHit, error) {
	return x.pick(ctx).Search(ctx, collection, vector, limit, minScore, filter)
}

func (x *FailoverIndex) Delete(ctx context.Context, collection string, ids []string) error {
	return x.pick(ctx).Delete(ctx, collection, ids)
}

func (x *FailoverIndex) Collection(ctx context.Context, name string) (*interfaces.CollectionInfo, error) {
	return x.pick(ctx).Collection(ctx, name)
}

func (x *FailoverIndex) Healthy(ctx context.Context) bool {
	return x.primary.Healthy(ctx) || x.fallback.Healthy(ctx)
}
