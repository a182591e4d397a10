package model

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Collection names used by the vector index.
const (
	CollectionAgentMemories      = "agent_memories"
	CollectionCorporateKnowledge = "corporate_knowledge"
	CollectionDecisionHistory    = "decision_history"
	CollectionTruthBase          = "diana-truth-base"
)

// Config holds the tunables of the memory engine. Zero values are filled in
// by defaults before use.
type Config struct {
	BaseDir string `yaml:"base_dir"`

	Embedding struct {
		Model           string `yaml:"model"`
		Dimension       int    `yaml:"dimension"`
		MemoryDimension int    `yaml:"memory_dimension"`
		MaxTokens       int    `yaml:"max_tokens"`
		ChunkSize       int    `yaml:"chunk_size"`
		ChunkOverlap    int    `yaml:"chunk_overlap"`
	} `yaml:"embedding"`

	Storage struct {
		CompressionLevel int   `yaml:"compression_level"`
		CheckpointEvery  int   `yaml:"checkpoint_every"`
		MaxMemories      int   `yaml:"max_memories"`
		CacheMaxBytes    int64 `yaml:"cache_max_bytes"`
	} `yaml:"storage"`

	Retrieval struct {
		MaxExpansion int `yaml:"max_expansion"`
	} `yaml:"retrieval"`

	Decay struct {
		Episodic   float64 `yaml:"episodic"`
		Semantic   float64 `yaml:"semantic"`
		Procedural float64 `yaml:"procedural"`
		Emotional  float64 `yaml:"emotional"`
	} `yaml:"decay"`

	Sweep struct {
		IntervalHours       int `yaml:"interval_hours"`
		MaxEmotionalEntries int `yaml:"max_emotional_entries"`
	} `yaml:"sweep"`

	TruthBase struct {
		CacheTTLDays int `yaml:"cache_ttl_days"`
	} `yaml:"truth_base"`

	Fallback bool `yaml:"fallback"`
}

// DefaultConfig returns the configuration the engine runs with when no file
// is provided.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadConfig reads a YAML config file and fills in defaults for anything the
// file leaves unset.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseDir == "" {
		c.BaseDir = "."
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "gemini-embedding-001"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
	if c.Embedding.MemoryDimension == 0 {
		c.Embedding.MemoryDimension = 384
	}
	if c.Embedding.MaxTokens == 0 {
		c.Embedding.MaxTokens = 2048
	}
	if c.Embedding.ChunkSize == 0 {
		c.Embedding.ChunkSize = 1000
	}
	if c.Embedding.ChunkOverlap == 0 {
		c.Embedding.ChunkOverlap = 100
	}
	if c.Storage.CompressionLevel == 0 {
		c.Storage.CompressionLevel = 6
	}
	if c.Storage.CheckpointEvery == 0 {
		c.Storage.CheckpointEvery = 10
	}
	if c.Storage.MaxMemories == 0 {
		c.Storage.MaxMemories = 10000
	}
	if c.Storage.CacheMaxBytes == 0 {
		c.Storage.CacheMaxBytes = 64 << 20
	}
	if c.Retrieval.MaxExpansion == 0 {
		c.Retrieval.MaxExpansion = 2
	}
	if c.Decay.Episodic == 0 {
		c.Decay.Episodic = 0.02
	}
	if c.Decay.Semantic == 0 {
		c.Decay.Semantic = 0.005
	}
	if c.Decay.Procedural == 0 {
		c.Decay.Procedural = 0.001
	}
	if c.Decay.Emotional == 0 {
		c.Decay.Emotional = 0.01
	}
	if c.Sweep.IntervalHours == 0 {
		c.Sweep.IntervalHours = 168
	}
	if c.Sweep.MaxEmotionalEntries == 0 {
		c.Sweep.MaxEmotionalEntries = 1000
	}
	if c.TruthBase.CacheTTLDays == 0 {
		c.TruthBase.CacheTTLDays = 7
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Embedding.ChunkOverlap >= c.Embedding.ChunkSize {
		return goerr.Wrap(ErrInvalidInput, "chunk overlap must be smaller than chunk size",
			goerr.V("chunk_size", c.Embedding.ChunkSize),
			goerr.V("chunk_overlap", c.Embedding.ChunkOverlap))
	}
	if c.Storage.CompressionLevel < -1 || c.Storage.CompressionLevel > 9 {
		return goerr.Wrap(ErrInvalidInput, "compression level must be between -1 and 9",
			goerr.V("compression_level", c.Storage.CompressionLevel))
	}
	return nil
}

// DecayRate returns the per-day decay rate for a stripe. Derived stripes
// decay like semantic knowledge.
func (c *Config) DecayRate(t MemoryType) float64 {
	switch t {
	case MemoryTypeEpisodic:
		return c.Decay.Episodic
	case MemoryTypeProcedural:
		return c.Decay.Procedural
	case MemoryTypeEmotional:
		return c.Decay.Emotional
	default:
		return c.Decay.Semantic
	}
}
