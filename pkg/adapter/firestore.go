package adapter

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"google.golang.org/api/iterator"
)

const (
	vectorField    = "embedding"
	distanceField  = "vector_distance"
	metaCollection = "vector_collections"
)

// FirestoreIndex is the networked vector index. Each logical collection maps
// to a Firestore collection with an "embedding" vector field, plus a metadata
// document recording its dimension.
type FirestoreIndex struct {
	client *firestore.Client
}

func NewFirestoreIndex(ctx context.Context, projectID, databaseID string) (*FirestoreIndex, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}
	return &FirestoreIndex{client: client}, nil
}

func (x *FirestoreIndex) Close() error {
	return x.client.Close()
}

func (x *FirestoreIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	ref := x.client.Collection(metaCollection).Doc(name)
	snap, err := ref.Get(ctx)
	if err == nil && snap.Exists() {
		existing, err := snap.DataAt("dimension")
		if err != nil {
			return goerr.Wrap(err, "failed to read collection dimension", goerr.V("collection", name))
		}
		if got, ok := existing.(int64); ok && int(got) != dimension {
			return goerr.Wrap(model.ErrInvalidInput, "collection exists with different dimension",
				goerr.V("collection", name), goerr.V("want", dimension), goerr.V("got", got))
		}
		return nil
	}

	if _, err := ref.Set(ctx, map[string]any{"dimension": dimension}); err != nil {
		return goerr.Wrap(model.ErrBackendUnavailable, "failed to register collection",
			goerr.V("collection", name), goerr.V("cause", err.Error()))
	}
	return nil
}

func (x *FirestoreIndex) Upsert(ctx context.Context, collection string, points []interfaces.VectorPoint) error {
	col := x.client.Collection(collection)
	bw := x.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(points))
	for _, p := range points {
		doc := map[string]any{
			vectorField: firestore.Vector32(p.Vector),
		}
		for k, v := range p.Payload {
			doc[k] = v
		}
		job, err := bw.Set(col.Doc(p.ID), doc)
		if err != nil {
			return goerr.Wrap(err, "failed to queue vector upsert",
				goerr.V("collection", collection), goerr.V("id", p.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	// End only flushes; each job carries its own outcome
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(model.ErrBackendUnavailable, "vector upsert was rejected",
				goerr.V("collection", collection), goerr.V("id", points[i].ID),
				goerr.V("cause", err.Error()))
		}
	}
	return nil
}

func (x *FirestoreIndex) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64, filter map[string]string) ([]interfaces.VectorHit, error) {
	base := x.client.Collection(collection).Query
	for k, v := range filter {
		base = base.Where(k, "==", v)
	}
	q := base.FindNearest(
		vectorField,
		firestore.Vector32(vector),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField},
	)

	var hits []interfaces.VectorHit
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrBackendUnavailable, "vector search failed",
				goerr.V("collection", collection), goerr.V("cause", err.Error()))
		}

		data := snap.Data()
		score := 1.0
		if d, ok := data[distanceField].(float64); ok {
			// cosine distance to similarity
			score = 1 - d
		}
		delete(data, distanceField)
		delete(data, vectorField)

		if score < minScore {
			continue
		}
		hits = append(hits, interfaces.VectorHit{
			ID:      snap.Ref.ID,
			Score:   score,
			Payload: data,
		})
	}
	return hits, nil
}

func (x *FirestoreIndex) Delete(ctx context.Context, collection string, ids []string) error {
	col := x.client.Collection(collection)
	bw := x.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(ids))
	for _, id := range ids {
		job, err := bw.Delete(col.Doc(id))
		if err != nil {
			return goerr.Wrap(err, "failed to queue vector delete",
				goerr.V("collection", collection), goerr.V("id", id))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(model.ErrBackendUnavailable, "vector delete was rejected",
				goerr.V("collection", collection), goerr.V("id", ids[i]),
				goerr.V("cause", err.Error()))
		}
	}
	return nil
}

func (x *FirestoreIndex) Collection(ctx context.Context, name string) (*interfaces.CollectionInfo, error) {
	snap, err := x.client.Collection(metaCollection).Doc(name).Get(ctx)
	if err != nil || !snap.Exists() {
		return nil, goerr.Wrap(model.ErrNotFound, "collection is not registered", goerr.V("collection", name))
	}

	dimension := 0
	if raw, err := snap.DataAt("dimension"); err == nil {
		if d, ok := raw.(int64); ok {
			dimension = int(d)
		}
	}

	count := 0
	it := x.client.Collection(name).Select().Documents(ctx)
	defer it.Stop()
	for {
		_, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrBackendUnavailable, "failed to count collection",
				goerr.V("collection", name), goerr.V("cause", err.Error()))
		}
		count++
	}

	return &interfaces.CollectionInfo{Name: name, Dimension: dimension, Count: count}, nil
}

func (x *FirestoreIndex) Healthy(ctx context.Context) bool {
	it := x.client.Collection(metaCollection).Limit(1).Documents(ctx)
	defer it.Stop()
	_, err := it.Next()
	return err == nil || err == iterator.Done
}
