package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/adapter"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/usecase/memory"
)

func TestSweepForgetsStaleMemories(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.mgr.StoreExperience(ctx, clientMeeting("one off vendor call"))
	gt.NoError(t, err)

	env.clock.Advance(120 * 24 * time.Hour)
	report, err := env.mgr.RunMaintenance(ctx)
	gt.NoError(t, err)
	gt.V(t, report.Scanned).Equal(1)
	gt.V(t, report.Forgotten).Equal(1)

	unit, err := env.mgr.GetMemory(ctx, res.EpisodicID)
	gt.NoError(t, err)
	gt.V(t, unit.Status).Equal(model.StatusForgotten)
	gt.Number(t, unit.DecayFactor).GreaterOrEqual(0.9)

	// forgotten units do not surface in retrieval
	hits, err := env.mgr.RetrieveStripes(ctx, &model.RetrievalQuery{
		Description: "one off vendor call",
	})
	gt.NoError(t, err)
	gt.A(t, hits.Episodic).Length(0)

	// not even when the caller filters for them explicitly
	hits, err = env.mgr.RetrieveStripes(ctx, &model.RetrievalQuery{
		Description: "one off vendor call",
		Statuses:    []model.MemoryStatus{model.StatusForgotten},
	})
	gt.NoError(t, err)
	gt.A(t, hits.Episodic).Length(0)
}

func TestSweepMovesStaleMemoryToDecaying(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.mgr.StoreExperience(ctx, clientMeeting("fading but not gone"))
	gt.NoError(t, err)

	env.clock.Advance(35 * 24 * time.Hour)
	report, err := env.mgr.RunMaintenance(ctx)
	gt.NoError(t, err)
	gt.V(t, report.Forgotten).Equal(0)

	unit, err := env.mgr.GetMemory(ctx, res.EpisodicID)
	gt.NoError(t, err)
	gt.V(t, unit.Status).Equal(model.StatusDecaying)
	gt.Number(t, unit.Relevance).Less(1.0)
}

func TestSweepSemanticDecaysSlower(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// a derived semantic unit survives a window that forgets episodic units
	for i := 0; i < 3; i++ {
		_, err := env.mgr.StoreExperience(ctx, clientMeeting("recurring pattern source"))
		gt.NoError(t, err)
	}
	results, err := env.mgr.Consolidate(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)

	env.clock.Advance(120 * 24 * time.Hour)
	_, err = env.mgr.RunMaintenance(ctx)
	gt.NoError(t, err)

	unit, err := env.mgr.GetMemory(ctx, results[0].Derived.ID)
	gt.NoError(t, err)
	gt.V(t, unit.Status == model.StatusForgotten).Equal(false)
}

func TestSweepArchivesExpiredMemory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	x := clientMeeting("short lived reminder")
	expires := env.clock.Now().Add(24 * time.Hour)
	x.ExpiresAt = &expires
	res, err := env.mgr.StoreExperience(ctx, x)
	gt.NoError(t, err)

	env.clock.Advance(48 * time.Hour)
	report, err := env.mgr.RunMaintenance(ctx)
	gt.NoError(t, err)
	gt.V(t, report.Expired).Equal(1)

	after, err := env.mgr.GetMemory(ctx, res.EpisodicID)
	gt.NoError(t, err)
	gt.V(t, after.Status).Equal(model.StatusArchived)
}

func TestSweepEnforcesCapacity(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.BaseDir = base
	cfg.Storage.MaxMemories = 2

	blobs, err := repository.NewBlobStore(base, 0)
	gt.NoError(t, err)
	indexes, err := repository.NewIndexStore(base, cfg.Storage.CheckpointEvery)
	gt.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := memory.New(
		adapter.NewLocalEmbedder(cfg.Embedding.MemoryDimension),
		adapter.NewChromemIndex(),
		blobs, indexes, cfg,
		memory.WithNowFunc(clock.Now),
	)
	gt.NoError(t, mgr.Initialize(ctx))

	// distinct event types so consolidation does not kick in
	for _, event := range []string{"planning", "standup", "retrospective"} {
		_, err := mgr.StoreExperience(ctx, &model.Experience{
			EventType:   event,
			Description: "routine " + event + " session",
			Owner:       "diana",
		})
		gt.NoError(t, err)
	}

	report, err := mgr.RunMaintenance(ctx)
	gt.NoError(t, err)
	gt.V(t, report.Evicted).Equal(1)

	// the evicted blob is gone, replaced by one summary unit
	stats := mgr.Stats()
	gt.V(t, stats.ByType[model.MemoryTypeEpisodic]).Equal(2)
	gt.V(t, stats.ByType[model.MemoryTypeConsolidated]).Equal(1)

	blobs2, err := repository.NewBlobStore(base, 0)
	gt.NoError(t, err)
	ids, err := blobs2.List(ctx)
	gt.NoError(t, err)
	gt.A(t, ids).Length(3)
}

func TestShutdownCheckpointsIndexes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.mgr.StoreExperience(ctx, clientMeeting("persisted across restart"))
	gt.NoError(t, err)
	gt.NoError(t, env.mgr.Shutdown(ctx))

	// a fresh index store over the same directory sees the checkpoint
	indexes, err := repository.NewIndexStore(env.base, 10)
	gt.NoError(t, err)
	rec, ok := indexes.Summary(res.EpisodicID)
	gt.True(t, ok)
	gt.V(t, rec.Type).Equal(model.MemoryTypeEpisodic)
}
