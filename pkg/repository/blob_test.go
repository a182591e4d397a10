package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
)

func testUnit(now time.Time) *model.MemoryUnit {
	return model.NewMemoryUnit(model.MemoryTypeEpisodic, "diana", model.MemoryContent{
		Episodic: &model.EpisodicContent{
			EventType:      "client_meeting",
			Description:    "quarterly business review with acme",
			Outcome:        map[string]any{"success": true},
			LessonsLearned: []string{"send agenda two days ahead"},
		},
	}, now)
}

func TestBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewBlobStore(t.TempDir(), 0)
	gt.NoError(t, err)
	defer store.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	unit := testUnit(now)
	gt.NoError(t, store.Save(ctx, unit))

	loaded, err := store.Load(ctx, unit.ID)
	gt.NoError(t, err)
	gt.V(t, loaded.ID).Equal(unit.ID)
	gt.V(t, loaded.Type).Equal(model.MemoryTypeEpisodic)
	gt.V(t, loaded.Content.Episodic.Description).Equal("quarterly business review with acme")
	gt.True(t, loaded.CreatedAt.Equal(now))
}

func TestBlobFileLayout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := repository.NewBlobStore(base, 0)
	gt.NoError(t, err)
	defer store.Close()

	unit := testUnit(time.Now())
	gt.NoError(t, store.Save(ctx, unit))

	path := filepath.Join(base, "memory_store", "compressed", string(unit.ID)+".llb.gz")
	_, statErr := os.Stat(path)
	gt.NoError(t, statErr)
}

func TestBlobLoadMissing(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewBlobStore(t.TempDir(), 0)
	gt.NoError(t, err)
	defer store.Close()

	_, loadErr := store.Load(ctx, model.NewMemoryID())
	gt.Error(t, loadErr)
	gt.True(t, errors.Is(loadErr, model.ErrNotFound))
}

func TestBlobCorruptedFile(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := repository.NewBlobStore(base, 0)
	gt.NoError(t, err)
	defer store.Close()

	id := model.NewMemoryID()
	path := filepath.Join(base, "memory_store", "compressed", string(id)+".llb.gz")
	gt.NoError(t, os.WriteFile(path, []byte("this is not gzip"), 0o644))

	_, loadErr := store.Load(ctx, id)
	gt.Error(t, loadErr)
	gt.True(t, errors.Is(loadErr, model.ErrCorruptedMemory))
}

func TestBlobDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewBlobStore(t.TempDir(), 0)
	gt.NoError(t, err)
	defer store.Close()

	unit := testUnit(time.Now())
	gt.NoError(t, store.Save(ctx, unit))
	gt.NoError(t, store.Delete(ctx, unit.ID))
	gt.NoError(t, store.Delete(ctx, unit.ID))

	_, loadErr := store.Load(ctx, unit.ID)
	gt.Error(t, loadErr)
}

func TestBlobList(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewBlobStore(t.TempDir(), 0)
	gt.NoError(t, err)
	defer store.Close()

	want := make(map[model.MemoryID]bool)
	for i := 0; i < 3; i++ {
		unit := testUnit(time.Now())
		gt.NoError(t, store.Save(ctx, unit))
		want[unit.ID] = true
	}

	ids, err := store.List(ctx)
	gt.NoError(t, err)
	gt.A(t, ids).Length(3)
	for _, id := range ids {
		gt.True(t, want[id])
	}
}

func TestBlobSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewBlobStore(t.TempDir(), 0, repository.WithCompressionLevel(9))
	gt.NoError(t, err)
	defer store.Close()

	unit := testUnit(time.Now())
	gt.NoError(t, store.Save(ctx, unit))

	unit.AccessCount = 7
	gt.NoError(t, store.Save(ctx, unit))

	loaded, err := store.Load(ctx, unit.ID)
	gt.NoError(t, err)
	gt.V(t, loaded.AccessCount).Equal(7)
}
