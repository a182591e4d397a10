package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	gt.V(t, cfg.Embedding.Model).Equal("gemini-embedding-001")
	gt.V(t, cfg.Embedding.Dimension).Equal(1536)
	gt.V(t, cfg.Embedding.MemoryDimension).Equal(384)
	gt.V(t, cfg.Storage.CompressionLevel).Equal(6)
	gt.V(t, cfg.Decay.Episodic).Equal(0.02)
	gt.V(t, cfg.Decay.Procedural).Equal(0.001)
	gt.V(t, cfg.Sweep.MaxEmotionalEntries).Equal(1000)
	gt.V(t, cfg.Storage.CacheMaxBytes).Equal(int64(64 << 20))
	gt.V(t, cfg.Retrieval.MaxExpansion).Equal(2)
	gt.NoError(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	raw := []byte(`
base_dir: /var/lib/llbmem
embedding:
  chunk_size: 500
  chunk_overlap: 50
storage:
  compression_level: 9
decay:
  episodic: 0.05
`)
	gt.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := model.LoadConfig(path)
	gt.NoError(t, err)
	gt.V(t, cfg.BaseDir).Equal("/var/lib/llbmem")
	gt.V(t, cfg.Embedding.ChunkSize).Equal(500)
	gt.V(t, cfg.Storage.CompressionLevel).Equal(9)
	gt.V(t, cfg.Decay.Episodic).Equal(0.05)
	// untouched keys keep defaults
	gt.V(t, cfg.Decay.Semantic).Equal(0.005)
	gt.V(t, cfg.Embedding.Model).Equal("gemini-embedding-001")
}

func TestLoadConfigRejectsBadOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	raw := []byte(`
embedding:
  chunk_size: 100
  chunk_overlap: 200
`)
	gt.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := model.LoadConfig(path)
	gt.Error(t, err)
}

func TestDecayRatePerStripe(t *testing.T) {
	cfg := model.DefaultConfig()
	gt.V(t, cfg.DecayRate(model.MemoryTypeEpisodic)).Equal(0.02)
	gt.V(t, cfg.DecayRate(model.MemoryTypeSemantic)).Equal(0.005)
	gt.V(t, cfg.DecayRate(model.MemoryTypeProcedural)).Equal(0.001)
	gt.V(t, cfg.DecayRate(model.MemoryTypeEmotional)).Equal(0.01)
	// derived stripes decay like semantic
	gt.V(t, cfg.DecayRate(model.MemoryTypeConsolidated)).Equal(0.005)
}
